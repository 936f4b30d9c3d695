// Package pairing joins two independently timestamped sensor streams into
// synchronised pairs.
//
// Each stream keeps a bounded queue. Whenever both queues are non-empty
// the heads are compared: heads within the tolerance window form a pair,
// otherwise the older head can never be matched and is dropped. Pairs are
// handed to the handler one at a time; the next pair is not formed until
// the handler returns.
package pairing

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/mapbridge/internal/monitoring"
)

// Message is one raw sensor message.
type Message struct {
	Stamp    time.Time
	Width    int
	Height   int
	Encoding string
	Data     []byte
}

// Pair is a colour message and a depth message close enough in time to
// be processed together. Stamp is the colour stamp.
type Pair struct {
	Color Message
	Depth Message
}

// Stamp returns the pair's timestamp.
func (p Pair) Stamp() time.Time {
	return p.Color.Stamp
}

// Config holds synchroniser settings.
type Config struct {
	// QueueSize bounds each stream's queue; the oldest message is dropped
	// on overflow.
	QueueSize int

	// Tolerance is the largest stamp difference accepted in a pair.
	Tolerance time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize: 10,
		Tolerance: 20 * time.Millisecond,
	}
}

// Stats contains synchroniser statistics.
type Stats struct {
	Pairs        uint64
	DroppedColor uint64
	DroppedDepth uint64
}

// Synchronizer pairs colour and depth messages.
type Synchronizer struct {
	cfg     Config
	handler func(Pair)
	logf    func(format string, v ...interface{})

	mu    sync.Mutex
	color []Message
	depth []Message

	pairs        atomic.Uint64
	droppedColor atomic.Uint64
	droppedDepth atomic.Uint64
}

// New creates a Synchronizer delivering pairs to handler. The handler is
// called with the synchroniser locked and must not push messages itself.
func New(cfg Config, handler func(Pair)) *Synchronizer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.Tolerance < 0 {
		cfg.Tolerance = 0
	}
	return &Synchronizer{
		cfg:     cfg,
		handler: handler,
		logf:    monitoring.Prefixed("Pairing"),
	}
}

// PushColor queues a colour message and delivers any pairs it completes.
func (s *Synchronizer) PushColor(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.color = s.enqueue(s.color, m, &s.droppedColor, "color")
	s.match()
}

// PushDepth queues a depth message and delivers any pairs it completes.
func (s *Synchronizer) PushDepth(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depth = s.enqueue(s.depth, m, &s.droppedDepth, "depth")
	s.match()
}

// Stats returns current synchroniser statistics.
func (s *Synchronizer) Stats() Stats {
	return Stats{
		Pairs:        s.pairs.Load(),
		DroppedColor: s.droppedColor.Load(),
		DroppedDepth: s.droppedDepth.Load(),
	}
}

func (s *Synchronizer) enqueue(q []Message, m Message, dropped *atomic.Uint64, name string) []Message {
	if n := len(q); n > 0 && m.Stamp.Before(q[n-1].Stamp) {
		dropped.Add(1)
		s.logf("Dropping out-of-order %s message (%v before %v)", name, m.Stamp, q[n-1].Stamp)
		return q
	}
	if len(q) >= s.cfg.QueueSize {
		dropped.Add(1)
		q = q[1:]
	}
	return append(q, m)
}

func (s *Synchronizer) match() {
	for len(s.color) > 0 && len(s.depth) > 0 {
		c, d := s.color[0], s.depth[0]
		diff := c.Stamp.Sub(d.Stamp)

		switch {
		case diff.Abs() <= s.cfg.Tolerance:
			s.color = s.color[1:]
			s.depth = s.depth[1:]
			s.pairs.Add(1)
			if s.handler != nil {
				s.handler(Pair{Color: c, Depth: d})
			}
		case diff < 0:
			s.color = s.color[1:]
			s.droppedColor.Add(1)
		default:
			s.depth = s.depth[1:]
			s.droppedDepth.Add(1)
		}
	}
}
