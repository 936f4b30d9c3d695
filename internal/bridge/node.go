// Package bridge drives one frame cycle: decode a synchronised pair, feed
// it to the engine, and publish the resulting map state.
package bridge

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/mapbridge/internal/monitoring"
	"github.com/banshee-data/mapbridge/internal/pairing"
	"github.com/banshee-data/mapbridge/internal/publish"
	"github.com/banshee-data/mapbridge/internal/slam"
)

// Stats contains per-node counters.
type Stats struct {
	Processed      uint64
	DecodeFailures uint64
	IngestFailures uint64
	PublishErrors  uint64
}

// Node owns the frame index and runs one cycle per pair.
type Node struct {
	engine    slam.Engine
	publisher *publish.FramePublisher
	logf      func(format string, v ...interface{})

	mu         sync.Mutex
	frameIndex uint64

	processed      atomic.Uint64
	decodeFailures atomic.Uint64
	ingestFailures atomic.Uint64
	publishErrors  atomic.Uint64
}

// NewNode creates a Node.
func NewNode(engine slam.Engine, publisher *publish.FramePublisher) *Node {
	return &Node{
		engine:    engine,
		publisher: publisher,
		logf:      monitoring.Prefixed("Bridge"),
	}
}

// FrameIndex returns the index the next processed frame will get.
func (n *Node) FrameIndex() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.frameIndex
}

// HandlePair runs one cycle. A pair that fails to decode or ingest is
// skipped without consuming a frame index. Publish failures still
// consume the index since the engine has already advanced.
func (n *Node) HandlePair(p pairing.Pair) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	color, err := DecodeColor(p.Color)
	if err != nil {
		n.decodeFailures.Add(1)
		return fmt.Errorf("color: %w", err)
	}
	depth, err := DecodeDepth(p.Depth)
	if err != nil {
		n.decodeFailures.Add(1)
		return fmt.Errorf("depth: %w", err)
	}

	res, err := n.engine.Ingest(p.Stamp(), color, depth)
	if err != nil {
		n.ingestFailures.Add(1)
		return fmt.Errorf("ingest frame at %v: %w", p.Stamp(), err)
	}

	index := n.frameIndex
	n.frameIndex++
	n.processed.Add(1)

	if _, err := n.publisher.Publish(index, res); err != nil {
		n.publishErrors.Add(1)
		return fmt.Errorf("publish frame %d: %w", index, err)
	}
	return nil
}

// Handler adapts HandlePair to a pairing handler, logging failures.
func (n *Node) Handler() func(pairing.Pair) {
	return func(p pairing.Pair) {
		if err := n.HandlePair(p); err != nil {
			n.logf("Skipping frame: %v", err)
		}
	}
}

// Stats returns current node statistics.
func (n *Node) Stats() Stats {
	return Stats{
		Processed:      n.processed.Load(),
		DecodeFailures: n.decodeFailures.Load(),
		IngestFailures: n.ingestFailures.Load(),
		PublishErrors:  n.publishErrors.Load(),
	}
}
