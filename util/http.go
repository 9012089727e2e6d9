package util

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
)

type prefixedResponseWriter struct {
	http.ResponseWriter
	prefix string // without trailing slash
}

// WriteHeader shadows and calls http.ResponseWriter.WriteHeader.
func (w prefixedResponseWriter) WriteHeader(statusCode int) {
	// modify Location header, absolute locations only
	if location := w.Header().Get("Location"); len(location) > 0 && location[0] == '/' {
		w.Header().Set("Location", w.prefix+location)
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// Hijack is required for websockets.
func (w prefixedResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacking not supported")
}

// Prefix serves handler below the given path prefix. Root-relative Location headers get the prefix too.
// The empty prefix and "/" return handler as-is.
func Prefix(prefix string, handler http.Handler) http.Handler {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return handler
	}
	var mux = http.NewServeMux()
	mux.Handle(
		prefix+"/", // http mux needs trailing slash
		http.StripPrefix(
			prefix,
			http.HandlerFunc(
				func(w http.ResponseWriter, r *http.Request) {
					handler.ServeHTTP(prefixedResponseWriter{w, prefix}, r)
				},
			),
		),
	)
	return mux
}
