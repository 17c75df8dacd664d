package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const defaultBufferSize = 256

// Config controls how flow events are queued.
type Config struct {
	// BufferSize bounds the queue. Defaults to 256.
	BufferSize int
	// DropIfFull makes Emit discard an event rather than wait for room.
	DropIfFull bool
	// Logger reports sink panics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Dispatcher hands flow events to a Sink on a single worker goroutine, so
// a slow sink never sits on the login or refresh path.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	logger     *zap.Logger

	// mu guards closed and the send on queue against Close.
	mu     sync.RWMutex
	closed bool
	queue  chan Event
	worker sync.WaitGroup

	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewDispatcher starts the worker. Without a sink it returns nil, and every
// method on a nil *Dispatcher does nothing.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if sink == nil {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		logger:     cfg.Logger.Named("audit"),
		queue:      make(chan Event, cfg.BufferSize),
	}

	d.worker.Add(1)
	go func() {
		defer d.worker.Done()
		for event := range d.queue {
			d.deliver(event)
		}
	}()

	return d
}

func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.logger.Error("audit sink panicked",
				zap.String("type", event.Type),
				zap.Any("panic", r),
			)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event, stamping it with the current time if it has none.
// Without DropIfFull it waits for room until ctx is done; an event given up
// that way counts as dropped. Emit after Close is ignored.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close stops accepting events and returns once every queued event has
// reached the sink. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.worker.Wait()
}

// Dropped reports events discarded because the queue was full or the
// caller's context ended first.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed reports events whose sink call panicked.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
