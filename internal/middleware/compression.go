package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

type resetWriteCloser interface {
	io.WriteCloser
	Reset(io.Writer)
}

var encoderPools = map[string]*sync.Pool{
	"br": {
		New: func() any { return brotli.NewWriterLevel(io.Discard, brotli.DefaultCompression) },
	},
	"gzip": {
		New: func() any { return gzip.NewWriter(io.Discard) },
	},
}

// compressWriter defers choosing an encoder until the status is known, so
// bodiless responses and handlers that never write stay uncompressed.
type compressWriter struct {
	http.ResponseWriter
	encoding    string
	enc         resetWriteCloser
	wroteHeader bool
}

func (w *compressWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	if status != http.StatusNoContent && status != http.StatusNotModified {
		h := w.ResponseWriter.Header()
		h.Set("Content-Encoding", w.encoding)
		h.Del("Content-Length")
		w.enc = encoderPools[w.encoding].Get().(resetWriteCloser)
		w.enc.Reset(w.ResponseWriter)
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *compressWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.enc == nil {
		return w.ResponseWriter.Write(b)
	}
	return w.enc.Write(b)
}

func (w *compressWriter) close() {
	if w.enc == nil {
		return
	}
	w.enc.Close()
	encoderPools[w.encoding].Put(w.enc)
	w.enc = nil
}

// negotiateEncoding picks brotli over gzip when the client accepts both.
// Quality values are not weighed, but an explicit q=0 disables a coding.
func negotiateEncoding(header string) string {
	var br, gz bool
	for _, part := range strings.Split(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.ReplaceAll(strings.TrimSpace(params), " ", "") == "q=0" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(coding)) {
		case "br":
			br = true
		case "gzip":
			gz = true
		}
	}
	switch {
	case br:
		return "br"
	case gz:
		return "gzip"
	}
	return ""
}

// Compress encodes response bodies with brotli or gzip depending on the
// client's Accept-Encoding. Potential vectors for large solves are
// repetitive JSON and compress well.
func Compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")

		encoding := negotiateEncoding(r.Header.Get("Accept-Encoding"))
		if encoding == "" || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		cw := &compressWriter{ResponseWriter: w, encoding: encoding}
		defer cw.close()
		next.ServeHTTP(cw, r)
	})
}
