// Package docs provides the embedded API documentation assets.
//
// The HTML page renders the OpenAPI document client-side, so the two
// files must stay in sync: docs.html fetches /docs/openapi.json.
package docs

import (
	_ "embed"
)

// DocsHTML is the human-readable API documentation page.
//
//go:embed docs.html
var DocsHTML []byte

// OpenAPIJSON is the machine-readable OpenAPI 3 document.
//
//go:embed openapi.json
var OpenAPIJSON []byte
