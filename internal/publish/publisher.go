package publish

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/mapbridge/internal/geometry"
	"github.com/banshee-data/mapbridge/internal/monitoring"
	"github.com/banshee-data/mapbridge/internal/slam"
	"github.com/banshee-data/mapbridge/internal/wire"
)

// ErrFrameIndexNotIncreasing is returned when Publish is called with a
// frame index that does not exceed the previous one.
var ErrFrameIndexNotIncreasing = errors.New("frame index not strictly increasing")

// Sink delivers a message on a named topic.
type Sink interface {
	Send(topic string, msg *wire.PoseArray) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(topic string, msg *wire.PoseArray) error

// Send calls f.
func (f SinkFunc) Send(topic string, msg *wire.PoseArray) error {
	return f(topic, msg)
}

// Emission describes one message handed to the sink.
type Emission struct {
	Seq       uint32
	Topic     string
	Decision  Decision
	Keyframes int
	Landmarks int
	Poses     int
	Stamp     time.Time
}

// Observer is notified after every successful send.
type Observer interface {
	Observe(Emission)
}

// Config holds the publication settings.
type Config struct {
	// FullDumpGap is the number of incremental updates between periodic
	// full dumps. 0 disables periodic dumps.
	FullDumpGap int

	// IncrementalTopic carries camera pose plus tracked landmarks.
	IncrementalTopic string

	// FullDumpTopic carries the whole valid map.
	FullDumpTopic string

	// FrameOfReference is stamped into every header.
	FrameOfReference string
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		FullDumpGap:      0,
		IncrementalTopic: "pts_and_pose",
		FullDumpTopic:    "all_kf_and_pts",
		FrameOfReference: "1",
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	Frames             uint64
	Incremental        uint64
	Full               uint64
	SkippedIncremental uint64
	SendErrors         uint64
}

// FramePublisher runs the policy once per processed frame and emits at
// most one message. Publish must be called from a single goroutine;
// Policy().RequestFullDump may be called from anywhere.
type FramePublisher struct {
	cfg    Config
	policy *Policy
	state  slam.State
	sink   Sink
	logf   func(format string, v ...interface{})

	observersMu sync.RWMutex
	observers   []Observer

	started   bool
	lastIndex uint64

	frames             atomic.Uint64
	incremental        atomic.Uint64
	full               atomic.Uint64
	skippedIncremental atomic.Uint64
	sendErrors         atomic.Uint64
}

// NewFramePublisher creates a publisher reading from state and writing
// to sink.
func NewFramePublisher(cfg Config, state slam.State, sink Sink) *FramePublisher {
	return &FramePublisher{
		cfg:    cfg,
		policy: NewPolicy(cfg.FullDumpGap),
		state:  state,
		sink:   sink,
		logf:   monitoring.Prefixed("Publisher"),
	}
}

// Policy returns the publication policy.
func (p *FramePublisher) Policy() *Policy {
	return p.policy
}

// AddObserver registers o for every subsequent emission.
func (p *FramePublisher) AddObserver(o Observer) {
	p.observersMu.Lock()
	p.observers = append(p.observers, o)
	p.observersMu.Unlock()
}

// Publish evaluates the policy for frame frameIndex and emits the chosen
// payload. Entities with missing geometry are skipped individually; an
// incremental update whose camera pose cannot be recovered is not sent.
// The returned error is either ErrFrameIndexNotIncreasing or a sink error.
func (p *FramePublisher) Publish(frameIndex uint64, res slam.FrameResult) (Decision, error) {
	// The engine clears loop events once reported, so they are latched
	// even when the frame itself is rejected.
	p.policy.Observe(res.Loops)

	if p.started && frameIndex <= p.lastIndex {
		return DecisionNone, fmt.Errorf("%w: got %d after %d", ErrFrameIndexNotIncreasing, frameIndex, p.lastIndex)
	}
	p.started = true
	p.lastIndex = frameIndex
	p.frames.Add(1)

	decision := p.policy.Decide(res.Frame.IsKeyframe)

	header := wire.Header{
		Seq:     uint32(frameIndex + 1),
		FrameID: p.cfg.FrameOfReference,
	}
	if !res.Frame.Timestamp.IsZero() {
		header.StampNanos = res.Frame.Timestamp.UnixNano()
	}

	switch decision {
	case DecisionFull:
		p.full.Add(1)
		dump := p.BuildFullDump(header)
		p.logf("Publishing data for %d keyframes", len(dump.Keyframes))
		return decision, p.send(p.cfg.FullDumpTopic, dump.PoseArray(), Emission{
			Decision:  decision,
			Keyframes: len(dump.Keyframes),
			Landmarks: dump.LandmarkCount(),
		})

	case DecisionIncremental:
		p.incremental.Add(1)
		update, err := p.BuildIncremental(header, res.Frame)
		if err != nil {
			p.skippedIncremental.Add(1)
			p.logf("Skipping incremental update for frame %d: %v", frameIndex, err)
			return decision, nil
		}
		return decision, p.send(p.cfg.IncrementalTopic, update.PoseArray(), Emission{
			Decision:  decision,
			Landmarks: len(update.Landmarks),
		})
	}

	return decision, nil
}

// BuildFullDump collects every valid keyframe in id order with its valid,
// triangulated landmarks. Keyframe poses are published as stored, without
// re-anchoring.
func (p *FramePublisher) BuildFullDump(header wire.Header) *FullDump {
	snap := NewSnapshot(p.state)
	dump := &FullDump{Header: header}

	for _, kf := range snap.AllKeyframesSorted() {
		if kf.IsBad() {
			continue
		}
		tcw, ok := kf.Pose()
		if !ok {
			continue
		}
		dump.Keyframes = append(dump.Keyframes, KeyframeBlock{
			KeyframeID: kf.ID,
			Pose:       geometry.CameraPose(tcw),
			Landmarks:  validPositions(LandmarksOf(kf)),
		})
	}
	return dump
}

// BuildIncremental recovers the camera pose of frame relative to the
// first keyframe and collects the landmarks it tracks:
//
//	Tcw = Tcr · Trw · Two
//
// where Trw is the reference keyframe pose, Two re-expresses the first
// keyframe at the origin, and Tcr is the frame's own relative pose looked
// up by frame id.
func (p *FramePublisher) BuildIncremental(header wire.Header, frame slam.Frame) (*IncrementalUpdate, error) {
	if frame.Reference == nil {
		return nil, errors.New("frame has no reference keyframe")
	}
	trw, ok := frame.Reference.Pose()
	if !ok {
		return nil, fmt.Errorf("reference keyframe %d has no pose", frame.Reference.ID)
	}

	snap := NewSnapshot(p.state)
	kfs := snap.AllKeyframesSorted()
	if len(kfs) == 0 {
		return nil, errors.New("map has no keyframes")
	}
	origin, ok := kfs[0].Pose()
	if !ok {
		return nil, fmt.Errorf("anchor keyframe %d has no pose", kfs[0].ID)
	}

	tcr, ok := p.state.RelativePose(frame.ID)
	if !ok {
		return nil, fmt.Errorf("no relative pose for frame %d", frame.ID)
	}

	tcw := tcr.Mul(trw.Mul(origin.Inverse()))
	return &IncrementalUpdate{
		Header:    header,
		Camera:    geometry.CameraPose(tcw),
		Landmarks: validPositions(snap.TrackedLandmarks()),
	}, nil
}

// Stats returns current publisher statistics.
func (p *FramePublisher) Stats() PublisherStats {
	return PublisherStats{
		Frames:             p.frames.Load(),
		Incremental:        p.incremental.Load(),
		Full:               p.full.Load(),
		SkippedIncremental: p.skippedIncremental.Load(),
		SendErrors:         p.sendErrors.Load(),
	}
}

func (p *FramePublisher) send(topic string, msg *wire.PoseArray, e Emission) error {
	if err := p.sink.Send(topic, msg); err != nil {
		p.sendErrors.Add(1)
		return fmt.Errorf("send on %q: %w", topic, err)
	}

	e.Seq = msg.Header.Seq
	e.Topic = topic
	e.Poses = len(msg.Poses)
	if msg.Header.StampNanos != 0 {
		e.Stamp = time.Unix(0, msg.Header.StampNanos)
	}

	p.observersMu.RLock()
	observers := p.observers
	p.observersMu.RUnlock()
	for _, o := range observers {
		o.Observe(e)
	}
	return nil
}
