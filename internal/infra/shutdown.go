package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ShutdownPhase orders shutdown handlers. Earlier phases run first.
type ShutdownPhase int

const (
	// PhasePreShutdown stops accepting new work.
	PhasePreShutdown ShutdownPhase = iota
	// PhaseServices stops background services.
	PhaseServices
	// PhaseConnections closes external connections.
	PhaseConnections
	phaseCount
)

func (p ShutdownPhase) String() string {
	switch p {
	case PhasePreShutdown:
		return "pre-shutdown"
	case PhaseServices:
		return "services"
	case PhaseConnections:
		return "connections"
	default:
		return fmt.Sprintf("phase-%d", int(p))
	}
}

// ShutdownFunc releases one component.
type ShutdownFunc func(ctx context.Context) error

type shutdownHandler struct {
	name string
	fn   ShutdownFunc
}

// ShutdownCoordinator runs registered handlers phase by phase. Handlers in
// a phase run concurrently; every handler runs even if others fail.
type ShutdownCoordinator struct {
	mu       sync.Mutex
	handlers [phaseCount][]shutdownHandler
	timeout  time.Duration
	logger   *slog.Logger
	once     sync.Once
	err      error
}

// NewShutdownCoordinator creates a coordinator whose Shutdown is bounded by
// timeout (30s when <= 0).
func NewShutdownCoordinator(timeout time.Duration, logger *slog.Logger) *ShutdownCoordinator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ShutdownCoordinator{timeout: timeout, logger: logger}
}

// Register adds a handler to phase.
func (c *ShutdownCoordinator) Register(name string, phase ShutdownPhase, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	if phase < 0 || phase >= phaseCount {
		phase = PhaseConnections
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[phase] = append(c.handlers[phase], shutdownHandler{name: name, fn: fn})
}

// Shutdown runs all handlers once and joins their errors. Later calls
// return the first result.
func (c *ShutdownCoordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		c.mu.Lock()
		phases := c.handlers
		c.mu.Unlock()

		var errs []error
		for phase := ShutdownPhase(0); phase < phaseCount; phase++ {
			errs = append(errs, c.runPhase(ctx, phase, phases[phase])...)
		}
		c.err = errors.Join(errs...)
	})
	return c.err
}

func (c *ShutdownCoordinator) runPhase(ctx context.Context, phase ShutdownPhase, handlers []shutdownHandler) []error {
	if len(handlers) == 0 {
		return nil
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, h := range handlers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := h.fn(ctx)
			if err != nil {
				c.logger.Error("shutdown handler failed", "name", h.name, "phase", phase.String(), "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
				mu.Unlock()
				return
			}
			c.logger.Debug("shutdown handler finished", "name", h.name, "phase", phase.String(), "duration", time.Since(start))
		}()
	}
	wg.Wait()
	return errs
}
