// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

// gzipReaderPool pools gzip readers across ingest requests.
var gzipReaderPool sync.Pool

type gzipBody struct {
	zr   *gzip.Reader
	orig io.ReadCloser
}

func (b *gzipBody) Read(p []byte) (int, error) {
	return b.zr.Read(p)
}

func (b *gzipBody) Close() error {
	err := b.zr.Close()
	gzipReaderPool.Put(b.zr)
	if cerr := b.orig.Close(); err == nil {
		err = cerr
	}
	return err
}

// DecompressRequest transparently inflates bodies sent with
// Content-Encoding: gzip. Producers batching many audit entries use it.
// Any other encoding is rejected with 415.
func DecompressRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding")))
		switch enc {
		case "", "identity":
			next.ServeHTTP(w, r)
			return
		case "gzip", "x-gzip":
		default:
			http.Error(w, "unsupported content encoding", http.StatusUnsupportedMediaType)
			return
		}

		var zr *gzip.Reader
		var err error
		if pooled, ok := gzipReaderPool.Get().(*gzip.Reader); ok {
			zr = pooled
			err = zr.Reset(r.Body)
		} else {
			zr, err = gzip.NewReader(r.Body)
		}
		if err != nil {
			if zr != nil {
				gzipReaderPool.Put(zr)
			}
			http.Error(w, "malformed gzip body", http.StatusBadRequest)
			return
		}

		r.Body = &gzipBody{zr: zr, orig: r.Body}
		r.Header.Del("Content-Encoding")
		r.Header.Del("Content-Length")
		r.ContentLength = -1
		next.ServeHTTP(w, r)
	})
}
