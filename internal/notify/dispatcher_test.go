package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingGateway struct {
	mu      sync.Mutex
	sent    []string
	deliver bool
}

func (g *recordingGateway) Send(_ context.Context, userID, text string) Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, userID+":"+text)
	if !g.deliver {
		return Result{Detail: "gateway down"}
	}
	return Result{Delivered: true}
}

func (g *recordingGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

func TestDispatcher_DeliversQueuedMessagesBeforeStop(t *testing.T) {
	gw := &recordingGateway{deliver: true}
	d := NewDispatcher(gw, DispatcherOptions{QueueSize: 16, Workers: 3})
	d.Start()

	for i := 0; i < 10; i++ {
		d.Notify("U1", "hello")
	}
	d.Notify("", "ignored")
	d.Stop()

	assert.Equal(t, 10, gw.count())
	stats := d.Stats()
	assert.EqualValues(t, 10, stats.Enqueued)
	assert.EqualValues(t, 10, stats.Delivered)
	assert.EqualValues(t, 0, stats.Failed)
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	gw := &recordingGateway{deliver: true}
	d := NewDispatcher(gw, DispatcherOptions{QueueSize: 1, Workers: 1})

	// not started, so the first message occupies the only slot
	d.Notify("U1", "a")
	d.Notify("U2", "b")
	assert.EqualValues(t, 1, d.Stats().Dropped)
	assert.Equal(t, 1, d.Stats().Pending)

	d.Start()
	d.Stop()
	assert.Equal(t, 1, gw.count())

	d.Notify("U3", "after stop")
	assert.EqualValues(t, 2, d.Stats().Dropped)
}

func TestDispatcher_FailuresOpenBreaker(t *testing.T) {
	gw := &recordingGateway{deliver: false}
	d := NewDispatcher(gw, DispatcherOptions{
		QueueSize:        16,
		Workers:          1,
		FailureThreshold: 3,
		ResetTimeout:     time.Hour,
	})
	d.Start()
	for i := 0; i < 8; i++ {
		d.Notify("U1", "x")
	}
	d.Stop()

	// three attempts reach the gateway, the rest are skipped while open
	assert.Equal(t, 3, gw.count())
	assert.EqualValues(t, 8, d.Stats().Failed)
	assert.EqualValues(t, 0, d.Stats().Delivered)
}

func TestCircuitBreaker_HalfOpensAfterReset(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	require.True(t, cb.CanProceed())
	cb.RecordFailure()
	assert.False(t, cb.CanProceed())

	now = now.Add(61 * time.Second)
	assert.True(t, cb.CanProceed())

	cb.RecordFailure()
	assert.False(t, cb.CanProceed())

	now = now.Add(2 * time.Minute)
	require.True(t, cb.CanProceed())
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.True(t, cb.CanProceed())

	isOpen, failures, total := cb.GetStatus()
	assert.False(t, isOpen)
	assert.Equal(t, 4, failures)
	assert.Equal(t, 5, total)
}
