// internal/network/compression.go
package network

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

var gzipReaderPool = sync.Pool{
	New: func() interface{} { return new(gzip.Reader) },
}

// CompressionMiddleware is an http.RoundTripper that advertises gzip, deflate and
// brotli support and transparently decodes the response body.
type CompressionMiddleware struct {
	Transport http.RoundTripper
}

// NewCompressionMiddleware wraps transport. A nil transport means http.DefaultTransport.
func NewCompressionMiddleware(transport http.RoundTripper) *CompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &CompressionMiddleware{Transport: transport}
}

// RoundTrip implements http.RoundTripper.
func (cm *CompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "br, gzip, deflate")
	}

	resp, err := cm.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := DecompressResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}
	return resp, nil
}

type closeWrapper struct {
	io.ReadCloser
	originalBody io.ReadCloser
	onClose      func()
}

func (w *closeWrapper) Close() error {
	err := errors.Join(w.ReadCloser.Close(), w.originalBody.Close())
	if w.onClose != nil {
		w.onClose()
		w.onClose = nil
	}
	return err
}

// DecompressResponse replaces resp.Body with a decoding reader for its
// Content-Encoding and strips the encoding headers. Only a single encoding layer
// is supported; game servers never stack them.
func DecompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	var (
		reader  io.ReadCloser
		onClose func()
	)

	switch encoding {
	case "", "identity":
		return nil
	case "gzip":
		zr := gzipReaderPool.Get().(*gzip.Reader)
		if err := zr.Reset(resp.Body); err != nil {
			gzipReaderPool.Put(zr)
			return fmt.Errorf("gzip initialization error: %w", err)
		}
		reader = zr
		onClose = func() { gzipReaderPool.Put(zr) }
	case "br":
		reader = io.NopCloser(brotli.NewReader(resp.Body))
	case "deflate":
		reader = newDeflateReader(resp.Body)
	default:
		return fmt.Errorf("unsupported Content-Encoding: %s", encoding)
	}

	resp.Body = &closeWrapper{ReadCloser: reader, originalBody: resp.Body, onClose: onClose}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// newDeflateReader reads zlib-wrapped deflate and falls back to raw deflate,
// since servers disagree on what "deflate" means.
func newDeflateReader(r io.Reader) io.ReadCloser {
	var head bytes.Buffer
	zr, err := zlib.NewReader(io.TeeReader(r, &head))
	if err == nil {
		return zr
	}
	return flate.NewReader(io.MultiReader(&head, r))
}
