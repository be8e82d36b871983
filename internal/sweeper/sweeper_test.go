package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockEngine struct {
	mu    sync.Mutex
	count int64
	err   error
	calls int
}

func (m *mockEngine) SweepExpired(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.count, m.err
}

func (m *mockEngine) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestRun_SweepsOnInterval(t *testing.T) {
	engine := &mockEngine{count: 3}
	s := New(engine, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return engine.callCount() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}

func TestRun_KeepsGoingAfterErrors(t *testing.T) {
	engine := &mockEngine{err: errors.New("db down")}
	s := New(engine, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool {
		return engine.callCount() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestNew_DefaultInterval(t *testing.T) {
	s := New(&mockEngine{}, 0, zap.NewNop())
	assert.Equal(t, DefaultInterval, s.interval)
}
