package audit

import (
	"context"
	"errors"
	"sync"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the destination
	Close() error
}

// NopLogger discards every event
type NopLogger struct{}

func (NopLogger) Log(context.Context, *Event) error { return nil }
func (NopLogger) Close() error                      { return nil }

// LogLogger writes events to the structured application log
type LogLogger struct {
	logger *observability.Logger
}

// NewLogLogger creates a logger that emits one info line per event
func NewLogLogger(logger *observability.Logger) *LogLogger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogLogger{logger: logger}
}

// Log writes the event's fields on an "audit" line
func (l *LogLogger) Log(ctx context.Context, event *Event) error {
	entry := observability.FromContext(ctx, l.logger).WithFields(map[string]interface{}{
		"audit":      true,
		"event_type": string(event.Type),
		"status":     string(event.Status),
		"actor":      event.Actor,
	})
	if event.Subject != "" {
		entry = entry.WithField("subject", event.Subject)
	}
	if event.Role != "" {
		entry = entry.WithField("role", event.Role)
	}
	if event.Permission != "" {
		entry = entry.WithField("permission", string(event.Permission))
	}
	if event.ErrorMessage != "" {
		entry = entry.WithField("error", event.ErrorMessage)
	}

	msg := event.Message
	if msg == "" {
		msg = "audit event"
	}
	entry.Info(msg)
	return nil
}

// Close is a no-op
func (l *LogLogger) Close() error {
	return nil
}

// MultiLogger logs to multiple audit loggers
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger that writes to every destination
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log writes to every destination, continuing past failures
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every destination
func (m *MultiLogger) Close() error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemoryLogger keeps events in memory
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
}

// Log stores a copy of event
func (m *MemoryLogger) Log(_ context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

// Events returns the recorded events in order
func (m *MemoryLogger) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Close is a no-op
func (m *MemoryLogger) Close() error {
	return nil
}
