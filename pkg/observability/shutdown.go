package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultShutdownTimeout = 30 * time.Second

type closer struct {
	name string
	fn   func(context.Context) error
}

// ShutdownManager drains the HTTP server and closes registered resources
// when the process receives SIGINT or SIGTERM. The server is shut down
// first so no request arrives at a closed pool or registry client.
type ShutdownManager struct {
	log     *logrus.Logger
	server  *http.Server
	timeout time.Duration

	mu      sync.Mutex
	closers []closer
}

// NewShutdownManager wraps server with signal-driven shutdown. A zero
// timeout falls back to 30s.
func NewShutdownManager(log *logrus.Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	return &ShutdownManager{log: log, server: server, timeout: timeout}
}

// OnShutdown registers a named close function. Closers run concurrently
// after the HTTP server has drained.
func (m *ShutdownManager) OnShutdown(name string, fn func(context.Context) error) {
	m.mu.Lock()
	m.closers = append(m.closers, closer{name: name, fn: fn})
	m.mu.Unlock()
}

// WaitForShutdown blocks until a termination signal arrives, then drains
// the server and runs every registered closer within the timeout. It
// returns an error if the server refused to drain, a closer failed, or
// the timeout expired first.
func (m *ShutdownManager) WaitForShutdown() error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigs
	m.log.WithField("signal", sig.String()).Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if m.server != nil {
		if err := m.server.Shutdown(ctx); err != nil {
			m.log.WithError(err).Error("HTTP server did not drain cleanly")
			return fmt.Errorf("draining HTTP server: %w", err)
		}
		m.log.Info("HTTP server drained")
	}

	m.mu.Lock()
	closers := m.closers
	m.mu.Unlock()

	results := make(chan error, len(closers))
	var wg sync.WaitGroup
	for _, c := range closers {
		wg.Add(1)
		go func(c closer) {
			defer wg.Done()
			if err := c.fn(ctx); err != nil {
				m.log.WithError(err).WithField("closer", c.name).Error("Close failed")
				results <- fmt.Errorf("closing %s: %w", c.name, err)
				return
			}
			m.log.WithField("closer", c.name).Debug("Closed")
		}(c)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.log.Warn("Shutdown timeout expired before all closers finished")
		return fmt.Errorf("shutdown timed out after %s", m.timeout)
	}

	close(results)
	var failed int
	for range results {
		failed++
	}
	if failed > 0 {
		return fmt.Errorf("shutdown finished with %d failed closers", failed)
	}

	m.log.Info("Shutdown complete")
	return nil
}
