// main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Shadansa24/Inventory-app/internal/logger"
)

type App struct {
	addr           string
	mux            *http.ServeMux
	requestTimeout time.Duration
	connections    sync.WaitGroup
	totalRequests  int64
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		// cobra has already printed the error
		os.Exit(1)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              a.addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// must outlast the slowest chat request
		WriteTimeout: a.requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.LogInfo("Starting server on http://%s", a.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.LogInfo("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.LogError("Server shutdown error: %v", err)
	}

	logger.LogInfo("Waiting for active connections to finish...")
	a.connections.Wait()
	logger.LogInfo("All connections closed. Total requests handled: %d", atomic.LoadInt64(&a.totalRequests))
	logger.LogInfo("Server shut down gracefully")
	return nil
}

// Handler assembles all middleware around the main mux
func (a *App) Handler() http.Handler {
	var handler http.Handler = a.mux

	handler = withCustom404(handler)
	handler = withSecurityHeaders(handler)
	handler = a.trackConnections(handler)
	handler = logRequests(handler)
	handler = withTimeout(handler, a.requestTimeout)

	return handler
}
