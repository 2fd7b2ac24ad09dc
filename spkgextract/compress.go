// Package spkgextract unpacks source archives into build workspaces and
// applies patches. It also provides the compression and tar primitives
// shared by the packager, the rollback bundles and the git exporter.
package spkgextract

import (
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// ErrUnsupportedFormat is returned for archive extensions spkg cannot handle.
var ErrUnsupportedFormat = errors.New("unsupported archive format")

// DefaultCompression is the extension used for archives spkg produces.
const DefaultCompression = "zst"

type readCloser struct {
	io.Reader
	close []func() error
}

func (r *readCloser) Close() error {
	var err error
	for _, c := range r.close {
		if e := c(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

type writeCloser struct {
	io.Writer
	close []func() error
}

func (w *writeCloser) Close() error {
	var err error
	for _, c := range w.close {
		if e := c(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// OpenCompressed opens path and returns a reader over its decompressed
// contents, dispatching on the file extension.
func OpenCompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(path, ".gz"), strings.HasSuffix(path, ".tgz"):
		r, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &readCloser{Reader: r, close: []func() error{r.Close, f.Close}}, nil
	case strings.HasSuffix(path, ".xz"), strings.HasSuffix(path, ".txz"):
		r, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &readCloser{Reader: r, close: []func() error{f.Close}}, nil
	case strings.HasSuffix(path, ".bz2"), strings.HasSuffix(path, ".tbz2"):
		return &readCloser{Reader: bzip2.NewReader(f), close: []func() error{f.Close}}, nil
	case strings.HasSuffix(path, ".zst"):
		r, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &readCloser{Reader: r, close: []func() error{func() error { r.Close(); return nil }, f.Close}}, nil
	case strings.HasSuffix(path, ".tar"):
		return f, nil
	}

	f.Close()
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// CreateCompressed creates path and returns a writer compressing into it.
// Only the formats spkg produces are supported (zst, xz). The concurrency of
// the zstd encoder is pinned so two runs over the same input produce the
// same bytes.
func CreateCompressed(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(path, ".zst"):
		w, err := zstd.NewWriter(f,
			zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
			zstd.WithEncoderConcurrency(1))
		if err != nil {
			f.Close()
			return nil, err
		}
		return &writeCloser{Writer: w, close: []func() error{w.Close, f.Close}}, nil
	case strings.HasSuffix(path, ".xz"):
		w, err := xz.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &writeCloser{Writer: w, close: []func() error{w.Close, f.Close}}, nil
	}

	f.Close()
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}
