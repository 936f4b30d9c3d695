package history

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/mapbridge/internal/monitoring"
	"github.com/banshee-data/mapbridge/internal/publish"
)

// DefaultRecorderQueue is the number of emissions a Recorder buffers
// before it starts dropping.
const DefaultRecorderQueue = 256

// Recorder writes emissions to a Store from its own goroutine so that
// the frame path never waits on SQLite. It implements publish.Observer.
type Recorder struct {
	store *Store
	queue chan publish.Emission
	logf  func(format string, v ...interface{})

	closeOnce sync.Once
	done      chan struct{}

	recorded atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

var _ publish.Observer = (*Recorder)(nil)

// RecorderStats contains recorder counters.
type RecorderStats struct {
	Recorded uint64
	Dropped  uint64
	Failed   uint64
}

// NewRecorder starts a recorder over store buffering up to queueSize
// emissions. A non-positive queueSize selects DefaultRecorderQueue.
func NewRecorder(store *Store, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultRecorderQueue
	}
	r := &Recorder{
		store: store,
		queue: make(chan publish.Emission, queueSize),
		logf:  monitoring.Prefixed("History"),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Observe queues e without blocking. When the queue is full the emission
// is dropped and counted.
func (r *Recorder) Observe(e publish.Emission) {
	select {
	case r.queue <- e:
	default:
		dropped := r.dropped.Add(1)
		r.logf("DROPPED publication seq=%d (total dropped: %d), queue full", e.Seq, dropped)
	}
}

// Close stops accepting emissions and waits until the queued ones are
// written. Observe must not be called after Close.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() { close(r.queue) })
	<-r.done
}

// Stats returns current recorder statistics.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Recorded: r.recorded.Load(),
		Dropped:  r.dropped.Load(),
		Failed:   r.failed.Load(),
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		if err := r.store.Record(context.Background(), e); err != nil {
			r.failed.Add(1)
			r.logf("Failed to record publication seq=%d: %v", e.Seq, err)
			continue
		}
		r.recorded.Add(1)
	}
}
