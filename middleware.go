package main

import (
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Shadansa24/Inventory-app/internal/logger"
	"github.com/Shadansa24/Inventory-app/internal/security"
)

// Middleware: timeout handler
func withTimeout(h http.Handler, timeout time.Duration) http.Handler {
	return http.TimeoutHandler(h, timeout, "Request timed out")
}

func withSecurityHeaders(h http.Handler) http.Handler {
	return security.AddSecurityHeaders(h)
}

// Middleware: log requests. API routes are logged by middleware.Chain,
// which also knows the request ID and status.
func logRequests(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if loggedByChain(r.URL.Path) {
			h.ServeHTTP(w, r)
			return
		}
		start := time.Now()

		h.ServeHTTP(w, r)

		logger.LogInfo("%s %s took %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func loggedByChain(path string) bool {
	return strings.HasPrefix(path, "/api/") || path == "/healthz"
}

// Middleware: track active connections and total requests
func (a *App) trackConnections(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.connections.Add(1)
		atomic.AddInt64(&a.totalRequests, 1)
		defer a.connections.Done()

		h.ServeHTTP(w, r)
	})
}

const notFoundPage = `<!DOCTYPE html>
<html><body>
	<h1>404 - Page Not Found</h1>
	<p>Sorry, the page you requested was not found.</p>
	<a href="/">Return to the inventory dashboard</a>
</body></html>
`

// Middleware: custom 404 page. API routes keep their JSON error bodies.
func withCustom404(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			h.ServeHTTP(w, r)
			return
		}

		crw := &captureResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		h.ServeHTTP(crw, r)

		if crw.statusCode == http.StatusNotFound {
			logger.LogInfo("404 not found: %s", r.URL.Path)
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(notFoundPage))
		}
	})
}

// captureResponseWriter passes everything through except a 404, whose
// header and body are swallowed so withCustom404 can write its own page.
type captureResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (crw *captureResponseWriter) WriteHeader(code int) {
	if crw.written {
		return
	}
	crw.statusCode = code
	crw.written = true
	if code != http.StatusNotFound {
		crw.ResponseWriter.WriteHeader(code)
	}
}

func (crw *captureResponseWriter) Write(b []byte) (int, error) {
	if !crw.written {
		crw.WriteHeader(http.StatusOK)
	}
	if crw.statusCode == http.StatusNotFound {
		return len(b), nil
	}
	return crw.ResponseWriter.Write(b)
}
