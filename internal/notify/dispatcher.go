package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	QueueSize int
	Workers   int
	// Timeout bounds a single delivery.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Dispatcher is a Publisher that hands events to a Notifier from a pool of
// worker goroutines. Delivery errors are logged and dropped.
type Dispatcher struct {
	notifier Notifier
	opts     DispatcherOptions
	logger   *slog.Logger

	mu     sync.RWMutex
	queue  chan Event
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Call Start before publishing and Close
// on shutdown.
func NewDispatcher(n Notifier, opts DispatcherOptions) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		notifier: n,
		opts:     opts,
		logger:   logger,
		queue:    make(chan Event, opts.QueueSize),
	}
}

// Start launches the workers. They run until Close drains the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.work(context.WithoutCancel(ctx))
	}
}

// Publish enqueues e. When the queue is full or the dispatcher is closed the
// event is dropped with a warning.
func (d *Dispatcher) Publish(e Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("notification dropped, dispatcher closed", "kind", e.Kind, "process_id", e.ProcessID)
		return
	}

	select {
	case d.queue <- e:
	default:
		d.logger.Warn("notification dropped, queue full", "kind", e.Kind, "process_id", e.ProcessID)
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for e := range d.queue {
		d.deliver(ctx, e)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("notifier panicked", "kind", e.Kind, "process_id", e.ProcessID, "panic", p)
		}
	}()

	if err := d.notifier.Notify(ctx, e); err != nil {
		d.logger.Error("failed to send notification", "kind", e.Kind, "to", e.To, "process_id", e.ProcessID, "error", err)
		return
	}
	d.logger.Info("notification sent", "kind", e.Kind, "to", e.To, "process_id", e.ProcessID)
}
