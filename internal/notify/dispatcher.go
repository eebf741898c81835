package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jesadaho/asset-ace-sub000/internal/metrics"
)

type message struct {
	userID string
	text   string
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Enqueued  int64 `json:"enqueued"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Pending   int   `json:"pending"`
}

// Dispatcher queues messages and sends them from a small worker pool.
// Notify never blocks; a full queue drops the message.
type Dispatcher struct {
	gateway     Gateway
	breaker     *CircuitBreaker
	queue       chan message
	workers     int
	sendTimeout time.Duration

	mu        sync.RWMutex
	isRunning bool
	closed    bool
	wg        sync.WaitGroup

	enqueued  atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// DispatcherOptions configures NewDispatcher. Zero values fall back to defaults.
type DispatcherOptions struct {
	QueueSize        int
	Workers          int
	SendTimeout      time.Duration
	FailureThreshold int
	ResetTimeout     time.Duration
}

// NewDispatcher creates a dispatcher. Call Start before messages are sent.
func NewDispatcher(gateway Gateway, opts DispatcherOptions) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = time.Minute
	}
	return &Dispatcher{
		gateway:     gateway,
		breaker:     NewCircuitBreaker(opts.FailureThreshold, opts.ResetTimeout),
		queue:       make(chan message, opts.QueueSize),
		workers:     opts.Workers,
		sendTimeout: opts.SendTimeout,
	}
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isRunning || d.closed {
		return
	}
	d.isRunning = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run(i)
	}
	slog.Info("notification dispatcher started", "workers", d.workers, "queue_size", cap(d.queue))
}

// Stop closes the queue and waits until already queued messages are sent.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	slog.Info("notification dispatcher stopped",
		"delivered", d.delivered.Load(), "failed", d.failed.Load(), "dropped", d.dropped.Load())
}

// Notify enqueues a message. Empty recipients are ignored.
func (d *Dispatcher) Notify(userID, text string) {
	if userID == "" {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(userID, "dispatcher stopped")
		return
	}

	select {
	case d.queue <- message{userID: userID, text: text}:
		d.enqueued.Add(1)
	default:
		d.drop(userID, "queue full")
	}
}

func (d *Dispatcher) drop(userID, reason string) {
	d.dropped.Add(1)
	metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
	slog.Warn("notification dropped", "user_id", userID, "reason", reason)
}

func (d *Dispatcher) run(worker int) {
	defer d.wg.Done()
	for msg := range d.queue {
		d.send(worker, msg)
	}
}

func (d *Dispatcher) send(worker int, msg message) {
	if !d.breaker.CanProceed() {
		d.failed.Add(1)
		metrics.NotificationsTotal.WithLabelValues("skipped").Inc()
		slog.Warn("notification skipped, circuit open", "worker", worker, "user_id", msg.userID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	res := d.gateway.Send(ctx, msg.userID, msg.text)
	if !res.Delivered {
		d.breaker.RecordFailure()
		d.failed.Add(1)
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		slog.Warn("notification failed", "worker", worker, "user_id", msg.userID, "detail", res.Detail)
		return
	}

	d.breaker.RecordSuccess()
	d.delivered.Add(1)
	metrics.NotificationsTotal.WithLabelValues("delivered").Inc()
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Enqueued:  d.enqueued.Load(),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
		Pending:   len(d.queue),
	}
}
