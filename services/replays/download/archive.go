package download

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/klauspost/compress/flate"
)

// Archiver accepts (relativePath, payload) pairs incrementally and produces
// one final artifact on demand. Exactly one of Finalize or Abort must be
// called.
type Archiver interface {
	Add(relPath string, payload []byte) error
	Finalize() (string, error)
	Abort()
}

// zipArchiver writes a zip file, preserving any directory structure embedded
// in the entry paths.
type zipArchiver struct {
	file *os.File
	zw   *zip.Writer
	path string
}

func newZipArchiver(dir, name string) (Archiver, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	target := filepath.Join(dir, name)
	file, err := os.Create(target)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}

	zw := zip.NewWriter(file)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})

	return &zipArchiver{file: file, zw: zw, path: target}, nil
}

func (a *zipArchiver) Add(relPath string, payload []byte) error {
	w, err := a.zw.Create(path.Clean(filepath.ToSlash(relPath)))
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", relPath, err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write %s to archive: %w", relPath, err)
	}
	return nil
}

func (a *zipArchiver) Finalize() (string, error) {
	if err := a.zw.Close(); err != nil {
		a.file.Close()
		os.Remove(a.path)
		return "", fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := a.file.Close(); err != nil {
		os.Remove(a.path)
		return "", fmt.Errorf("failed to close archive: %w", err)
	}
	return a.path, nil
}

func (a *zipArchiver) Abort() {
	a.zw.Close()
	a.file.Close()
	os.Remove(a.path)
}
