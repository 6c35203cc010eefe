package service

import (
	"sync"

	"pkt.systems/pslog"

	"github.com/adi0301/item-lending/internal/core/domain"
)

// ActivityRecorder decouples the serving path from the activity log sinks.
// Events are queued on a buffered channel and drained by worker goroutines
// started in cmd/server. Emit never blocks: the activity log is
// fire-and-forget, so when the queue is full the event is dropped.
//
// Emit stays safe after Close. A forced shutdown abandons handler
// goroutines that are still unwinding, and their disconnect events may
// arrive after the queue is closed; those are dropped, not a crash.
type ActivityRecorder struct {
	mu     sync.Mutex
	queue  chan domain.Event
	closed bool
	logger pslog.Logger
}

func NewActivityRecorder(queueSize int, logger pslog.Logger) *ActivityRecorder {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &ActivityRecorder{
		queue:  make(chan domain.Event, queueSize),
		logger: logger,
	}
}

func (r *ActivityRecorder) Emit(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.logger.Debug("activity event dropped", "kind", string(ev.Kind), "user", ev.Username, "reason", "recorder closed")
		return
	}
	select {
	case r.queue <- ev:
	default:
		r.logger.Debug("activity event dropped", "kind", string(ev.Kind), "user", ev.Username, "reason", "queue full")
	}
}

func (r *ActivityRecorder) Queue() <-chan domain.Event {
	return r.queue
}

// Close stops the queue so the sink workers drain and exit. Safe to call
// more than once; Emit after Close drops the event.
func (r *ActivityRecorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	close(r.queue)
}
