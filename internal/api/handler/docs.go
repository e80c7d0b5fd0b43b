package handler

import (
	"net/http"

	"github.com/iconidentify/vidgrab/pkg/docs"
)

// DocsHandler serves the embedded API documentation.
type DocsHandler struct{}

// NewDocsHandler creates a new docs handler.
func NewDocsHandler() *DocsHandler {
	return &DocsHandler{}
}

// Index serves the documentation page.
func (h *DocsHandler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(docs.DocsHTML)
}

// OpenAPI serves the OpenAPI document.
func (h *DocsHandler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(docs.OpenAPIJSON)
}
