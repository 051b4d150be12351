// Package lifecycle drains in-flight HTTP requests before the server
// closes its stores.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docdiff/docdiff/pkg/logging"
)

// DefaultDrainTimeout bounds how long Shutdown waits for requests.
const DefaultDrainTimeout = 30 * time.Second

// ShutdownManager tracks in-flight requests and closes registered
// services once they finish.
type ShutdownManager struct {
	mu sync.Mutex

	drainTimeout time.Duration
	draining     bool
	shutdownAt   time.Time

	inFlight      sync.WaitGroup
	inFlightCount int64

	closers []io.Closer
	logger  *zap.Logger
	done    chan struct{}
}

// NewShutdownManager creates a manager. A zero drainTimeout uses
// DefaultDrainTimeout.
func NewShutdownManager(drainTimeout time.Duration, logger *zap.Logger) *ShutdownManager {
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}
	return &ShutdownManager{
		drainTimeout: drainTimeout,
		logger:       logging.OrNop(logger),
		done:         make(chan struct{}),
	}
}

// RegisterCloser adds a service to close after draining. Services are
// closed in reverse registration order.
func (m *ShutdownManager) RegisterCloser(c io.Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closers = append(m.closers, c)
}

// StartRequest marks the start of an in-flight request.
// Returns false if we're draining and the request should be rejected.
func (m *ShutdownManager) StartRequest() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.draining {
		return false
	}
	m.inFlightCount++
	m.inFlight.Add(1)
	return true
}

// EndRequest marks the end of an in-flight request.
func (m *ShutdownManager) EndRequest() {
	m.mu.Lock()
	m.inFlightCount--
	m.mu.Unlock()
	m.inFlight.Done()
}

// InFlightCount returns the number of in-flight requests.
func (m *ShutdownManager) InFlightCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlightCount
}

// IsDraining reports whether Shutdown has started.
func (m *ShutdownManager) IsDraining() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draining
}

// Shutdown stops accepting requests, waits for in-flight ones up to the
// drain timeout or ctx, then closes registered services. Calling it
// again returns nil.
func (m *ShutdownManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return nil
	}
	m.draining = true
	m.shutdownAt = time.Now()
	closers := m.closers
	m.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		m.inFlight.Wait()
		close(drained)
	}()

	timer := time.NewTimer(m.drainTimeout)
	defer timer.Stop()
	select {
	case <-drained:
	case <-timer.C:
		m.logger.Warn("drain timeout reached", zap.Int64("in_flight", m.InFlightCount()))
	case <-ctx.Done():
		m.logger.Warn("drain interrupted", zap.Int64("in_flight", m.InFlightCount()))
	}

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	close(m.done)
	return errors.Join(errs...)
}

// Done is closed when Shutdown completes.
func (m *ShutdownManager) Done() <-chan struct{} {
	return m.done
}

// Middleware counts requests through next and answers 503 once draining.
func (m *ShutdownManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.StartRequest() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Connection", "close")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"error": "server is shutting down"})
			return
		}
		defer m.EndRequest()
		next.ServeHTTP(w, r)
	})
}
