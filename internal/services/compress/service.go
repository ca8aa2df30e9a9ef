// Package compress shrinks completed dump files with gzip.
package compress

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
)

// Service defines the interface for dump compression.
type Service interface {
	Compress(sourcePath, destPath string) error
}

// Impl implements the compress Service with compress/gzip.
type Impl struct{}

// New creates a compress service.
func New() *Impl {
	return &Impl{}
}

// Compress writes a gzip'd copy of sourcePath to destPath at the highest
// compression level. The source file is left in place; the caller decides
// when to drop it. The destination keeps the owner-only mode of dump files.
func (Impl) Compress(sourcePath, destPath string) error {
	source, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer func() { _ = source.Close() }()

	dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating destination file: %w", err)
	}

	writer, err := gzip.NewWriterLevel(dest, gzip.BestCompression)
	if err != nil {
		_ = dest.Close()
		return fmt.Errorf("creating gzip writer: %w", err)
	}

	if _, err := io.Copy(writer, source); err != nil {
		_ = writer.Close()
		_ = dest.Close()
		return fmt.Errorf("compressing: %w", err)
	}

	if err := writer.Close(); err != nil {
		_ = dest.Close()
		return fmt.Errorf("finalizing gzip stream: %w", err)
	}

	return dest.Close()
}
