package policy

import (
	"io"

	"github.com/iconidentify/vidgrab/internal/domain"
)

// SizeGuard enforces the maximum transfer size. The declared check runs
// before any bytes move; the streamed check runs per read so an absent
// or underestimated size hint cannot allow an unbounded download.
type SizeGuard struct {
	maxBytes int64
}

// NewSizeGuard creates a size guard with the given limit in bytes.
func NewSizeGuard(maxBytes int64) *SizeGuard {
	return &SizeGuard{maxBytes: maxBytes}
}

// MaxBytes returns the configured limit.
func (g *SizeGuard) MaxBytes() int64 {
	return g.maxBytes
}

// CheckDeclared validates a descriptor's size hint, if present.
// A descriptor with no hint (DeclaredSize < 0) passes; the streamed
// check remains the backstop.
func (g *SizeGuard) CheckDeclared(d domain.MediaDescriptor) error {
	if d.DeclaredSize > g.maxBytes {
		return domain.ErrSizeExceeded
	}
	return nil
}

// CheckStreamed validates a running byte total mid-transfer.
func (g *SizeGuard) CheckStreamed(bytesSoFar int64) error {
	if bytesSoFar > g.maxBytes {
		return domain.ErrSizeExceeded
	}
	return nil
}

// Reader wraps r so reads fail with domain.ErrSizeExceeded the moment
// the running total crosses the limit.
func (g *SizeGuard) Reader(r io.Reader) io.Reader {
	return &guardedReader{r: r, guard: g}
}

type guardedReader struct {
	r     io.Reader
	guard *SizeGuard
	total int64
}

func (gr *guardedReader) Read(p []byte) (int, error) {
	n, err := gr.r.Read(p)
	gr.total += int64(n)
	if cerr := gr.guard.CheckStreamed(gr.total); cerr != nil {
		return n, cerr
	}
	return n, err
}
