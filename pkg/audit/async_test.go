package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingLogger struct {
	MemoryLogger
	started chan struct{}
	release chan struct{}
}

func (b *blockingLogger) Log(ctx context.Context, event *Event) error {
	b.started <- struct{}{}
	<-b.release
	return b.MemoryLogger.Log(ctx, event)
}

type panickingLogger struct{ MemoryLogger }

func (p *panickingLogger) Log(ctx context.Context, event *Event) error {
	if event.Role == "boom" {
		panic("sink exploded")
	}
	return p.MemoryLogger.Log(ctx, event)
}

func TestAsyncLogger_DrainsOnClose(t *testing.T) {
	mem := &MemoryLogger{}
	a := NewAsyncLogger(mem, 16, nil)

	ctx, cancel := context.WithCancel(context.Background())
	for _, role := range []string{"admin", "manager", "user"} {
		require.NoError(t, a.Log(ctx, &Event{Type: EventTypeRoleCreate, Role: role}))
	}
	cancel()

	require.NoError(t, a.Close())
	events := mem.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "admin", events[0].Role)
	assert.Equal(t, "user", events[2].Role)

	assert.ErrorContains(t, a.Log(context.Background(), &Event{}), "closed")
	require.NoError(t, a.Close())
}

func TestAsyncLogger_BufferFull(t *testing.T) {
	b := &blockingLogger{started: make(chan struct{}), release: make(chan struct{})}
	a := NewAsyncLogger(b, 1, nil)

	require.NoError(t, a.Log(context.Background(), &Event{Role: "first"}))
	<-b.started
	require.NoError(t, a.Log(context.Background(), &Event{Role: "queued"}))
	assert.ErrorIs(t, a.Log(context.Background(), &Event{Role: "dropped"}), ErrBufferFull)

	close(b.release)
	go func() {
		for range b.started {
		}
	}()
	require.NoError(t, a.Close())
	close(b.started)
	assert.Len(t, b.Events(), 2)
}

func TestAsyncLogger_RecoversPanic(t *testing.T) {
	p := &panickingLogger{}
	a := NewAsyncLogger(p, 4, nil)

	require.NoError(t, a.Log(context.Background(), &Event{Role: "boom"}))
	require.NoError(t, a.Log(context.Background(), &Event{Role: "after"}))
	require.NoError(t, a.Close())

	require.Len(t, p.Events(), 1)
	assert.Equal(t, "after", p.Events()[0].Role)
}
