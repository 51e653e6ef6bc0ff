package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// ErrBufferFull is returned when the async queue cannot accept another event
var ErrBufferFull = errors.New("audit buffer full")

type queuedEvent struct {
	ctx   context.Context
	event *Event
}

// AsyncLogger hands events to a single background writer so slow sinks do
// not hold up request handlers. Close drains the queue before closing next.
type AsyncLogger struct {
	next   Logger
	logger *observability.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan queuedEvent
	done   chan struct{}
	once   sync.Once
}

// NewAsyncLogger starts the writer. A non-positive size defaults to 256.
func NewAsyncLogger(next Logger, size int, logger *observability.Logger) *AsyncLogger {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	a := &AsyncLogger{
		next:   next,
		logger: logger,
		queue:  make(chan queuedEvent, size),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// Log enqueues the event. The request context's values are kept but its
// cancellation is not, since the write happens after the response.
func (a *AsyncLogger) Log(ctx context.Context, event *Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return fmt.Errorf("audit logger closed")
	}

	select {
	case a.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting events, waits for queued ones and closes next
func (a *AsyncLogger) Close() error {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	<-a.done
	return a.next.Close()
}

func (a *AsyncLogger) run() {
	defer close(a.done)
	for q := range a.queue {
		a.write(q)
	}
}

func (a *AsyncLogger) write(q queuedEvent) {
	logger := a.logger.WithField("event_type", string(q.event.Type))
	defer observability.RecoverPanic(logger, "audit sink")

	if err := a.next.Log(q.ctx, q.event); err != nil {
		logger.WithError(err).Warn("failed to write audit event")
	}
}
