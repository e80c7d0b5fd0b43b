package fetch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Spool is a fully-buffered transfer sitting in a temp file, ready to
// be replayed to the client. Close removes the file; it is safe to call
// more than once.
type Spool struct {
	file *os.File
	path string
	size int64
}

// NewSpool copies r into a temp file under dir until EOF or error.
// On any error the partial file is removed before returning, so a
// failed transfer can never leak to a caller.
func NewSpool(dir string, r io.Reader) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}

	f, err := os.CreateTemp(dir, "spool-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}

	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("rewind spool: %w", err)
	}

	return &Spool{file: f, path: f.Name(), size: size}, nil
}

// Size returns the spooled byte count.
func (s *Spool) Size() int64 {
	return s.size
}

// Read implements io.Reader over the spooled bytes.
func (s *Spool) Read(p []byte) (int, error) {
	return s.file.Read(p)
}

// Close closes and removes the spool file.
func (s *Spool) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

// Path returns the spool file location. Exposed for logging only.
func (s *Spool) Path() string {
	return filepath.Clean(s.path)
}
