// Package archive reads transcripts for the seed command and writes
// conversation exports, transparently zstd-compressed when the file name
// ends in .zst.
package archive

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// IsZstd reports whether path names a zstd file.
func IsZstd(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".zst")
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error { return r.close() }

// Open opens path for reading, decompressing .zst files.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !IsZstd(path) {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("archive: zstd reader: %w", err)
	}
	return readCloser{Reader: dec, close: func() error {
		dec.Close()
		return f.Close()
	}}, nil
}

type writeCloser struct {
	io.Writer
	close func() error
}

func (w writeCloser) Close() error { return w.close() }

// Create creates path for writing, compressing .zst files. Close flushes
// the compressor before closing the file.
func Create(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if !IsZstd(path) {
		return f, nil
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("archive: zstd writer: %w", err)
	}
	return writeCloser{Writer: enc, close: func() error {
		if err := enc.Close(); err != nil {
			f.Close()
			return fmt.Errorf("archive: flush zstd: %w", err)
		}
		return f.Close()
	}}, nil
}
