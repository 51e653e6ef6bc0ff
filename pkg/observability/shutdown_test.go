package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownManager_Ordering(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), time.Second)

	var mu sync.Mutex
	var order []string
	record := func(name string) ShutdownFunc {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	sm.RegisterResource("adapter", record("adapter"))
	sm.RegisterServer("http", record("http"))

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, []string{"http", "adapter"}, order)
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), time.Second)
	boom := errors.New("boom")

	sm.RegisterResource("adapter", func(context.Context) error { return boom })
	sm.RegisterResource("otel", func(context.Context) error { return nil })
	sm.RegisterResource("panicky", func(context.Context) error { panic("oops") })

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "2 errors")
}

func TestShutdownManager_Timeout(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), 20*time.Millisecond)
	release := make(chan struct{})
	defer close(release)

	sm.RegisterServer("stuck", func(context.Context) error {
		<-release
		return nil
	})

	err := sm.Shutdown(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestShutdownManager_WaitForSignalContext(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), time.Second)
	called := make(chan struct{}, 1)
	sm.RegisterServer("http", func(context.Context) error {
		called <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sm.WaitForSignal(ctx))
	assert.Len(t, called, 1)
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(NopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/users", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rr.Body.String())
}

func TestRecoverPanicWithCallback(t *testing.T) {
	called := false
	func() {
		defer RecoverPanicWithCallback(NopLogger(), "test", func() { called = true })
		panic("boom")
	}()
	assert.True(t, called)
}

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	func() {
		defer RecoverPanic(NewLogger(ErrorLevel, &buf), "audit sink")
		panic("sink exploded")
	}()

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "PANIC recovered", entry["msg"])
	assert.Equal(t, "sink exploded", entry["panic"])
	assert.Equal(t, "audit sink", entry["context"])
}
