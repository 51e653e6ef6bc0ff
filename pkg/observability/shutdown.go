package observability

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

type namedShutdown struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager runs registered shutdown steps in two phases: servers stop
// accepting work first, then resources (adapter, telemetry) are released
type ShutdownManager struct {
	logger  *Logger
	timeout time.Duration

	mu        sync.Mutex
	servers   []namedShutdown
	resources []namedShutdown
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *Logger, timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:  logger,
		timeout: timeout,
	}
}

// RegisterServer adds a step that stops a listener, e.g. http.Server.Shutdown
func (sm *ShutdownManager) RegisterServer(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.servers = append(sm.servers, namedShutdown{name: name, fn: fn})
}

// RegisterResource adds a step run after every server has stopped
func (sm *ShutdownManager) RegisterResource(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.resources = append(sm.resources, namedShutdown{name: name, fn: fn})
}

// WaitForSignal blocks until SIGINT/SIGTERM or ctx ends, then shuts down
func (sm *ShutdownManager) WaitForSignal(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	sm.logger.Info("Shutdown signal received, starting graceful shutdown")
	return sm.Shutdown(context.Background())
}

// Shutdown runs both phases within the manager's timeout
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, sm.timeout)
	defer cancel()

	sm.mu.Lock()
	servers := append([]namedShutdown(nil), sm.servers...)
	resources := append([]namedShutdown(nil), sm.resources...)
	sm.mu.Unlock()

	errs := sm.runPhase(ctx, servers)
	errs = append(errs, sm.runPhase(ctx, resources)...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown completed with %d errors: %w", len(errs), errors.Join(errs...))
	}
	sm.logger.Info("Graceful shutdown complete")
	return nil
}

// runPhase runs steps concurrently and waits for all of them or ctx
func (sm *ShutdownManager) runPhase(ctx context.Context, steps []namedShutdown) []error {
	if len(steps) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(steps))

	for _, step := range steps {
		wg.Add(1)
		go func(step namedShutdown) {
			defer wg.Done()
			defer RecoverPanicWithCallback(sm.logger, "shutdown "+step.name, func() {
				errCh <- fmt.Errorf("%s: panic during shutdown", step.name)
			})
			if err := step.fn(ctx); err != nil {
				sm.logger.WithError(err).WithField("step", step.name).Error("Shutdown step failed")
				errCh <- fmt.Errorf("%s: %w", step.name, err)
				return
			}
			sm.logger.WithField("step", step.name).Info("Shutdown step complete")
		}(step)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sm.logger.Warn("Shutdown timeout reached, forcing shutdown")
		return []error{fmt.Errorf("shutdown timeout reached: %w", ctx.Err())}
	}

	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errs
}
