package bridge

import (
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/mapbridge/internal/geometry"
	"github.com/banshee-data/mapbridge/internal/pairing"
	"github.com/banshee-data/mapbridge/internal/publish"
	"github.com/banshee-data/mapbridge/internal/slam"
	"github.com/banshee-data/mapbridge/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEngine keeps one identity keyframe and registers every frame
// against it.
type stubEngine struct {
	m        *slam.Map
	kf       *slam.Keyframe
	next     uint64
	ingested []time.Time
	err      error
}

func newStubEngine() *stubEngine {
	m := slam.NewMap()
	kf := slam.NewKeyframe(0)
	kf.SetPose(geometry.Identity())
	m.AddKeyframe(kf)
	return &stubEngine{m: m, kf: kf}
}

func (e *stubEngine) Keyframes() []*slam.Keyframe        { return e.m.Keyframes() }
func (e *stubEngine) TrackedLandmarks() []*slam.Landmark { return nil }
func (e *stubEngine) RelativePose(uint64) (geometry.Transform, bool) {
	return geometry.Identity(), true
}

func (e *stubEngine) Ingest(ts time.Time, _, _ slam.Image) (slam.FrameResult, error) {
	if e.err != nil {
		return slam.FrameResult{}, e.err
	}
	e.ingested = append(e.ingested, ts)
	id := e.next
	e.next++
	return slam.FrameResult{Frame: slam.Frame{ID: id, Timestamp: ts, IsKeyframe: true, Reference: e.kf}}, nil
}

type seqSink struct {
	seqs []uint32
	err  error
}

func (s *seqSink) Send(_ string, msg *wire.PoseArray) error {
	if s.err != nil {
		return s.err
	}
	s.seqs = append(s.seqs, msg.Header.Seq)
	return nil
}

func validPair(ts time.Time) pairing.Pair {
	return pairing.Pair{
		Color: pairing.Message{Stamp: ts, Width: 2, Height: 2, Encoding: EncodingRGB8, Data: make([]byte, 12)},
		Depth: pairing.Message{Stamp: ts, Width: 2, Height: 2, Encoding: Encoding16UC1, Data: make([]byte, 8)},
	}
}

func newTestNode(engine *stubEngine, sink publish.Sink) *Node {
	return NewNode(engine, publish.NewFramePublisher(publish.DefaultConfig(), engine, sink))
}

func TestNode_FrameIndexAdvancesPerCycle(t *testing.T) {
	engine := newStubEngine()
	sink := &seqSink{}
	n := newTestNode(engine, sink)

	base := time.Unix(1000, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, n.HandlePair(validPair(base.Add(time.Duration(i)*time.Second))))
	}

	assert.Equal(t, uint64(3), n.FrameIndex())
	assert.Equal(t, []uint32{1, 2, 3}, sink.seqs)
	assert.Len(t, engine.ingested, 3)
	assert.Equal(t, Stats{Processed: 3}, n.Stats())
}

func TestNode_DecodeFailureSkipsCycle(t *testing.T) {
	engine := newStubEngine()
	sink := &seqSink{}
	n := newTestNode(engine, sink)

	bad := validPair(time.Unix(1, 0))
	bad.Depth.Data = bad.Depth.Data[:3]

	err := n.HandlePair(bad)
	require.ErrorIs(t, err, ErrDecode)
	assert.Empty(t, engine.ingested)
	assert.Equal(t, uint64(0), n.FrameIndex())

	require.NoError(t, n.HandlePair(validPair(time.Unix(2, 0))))
	assert.Equal(t, []uint32{1}, sink.seqs)
	assert.Equal(t, uint64(1), n.Stats().DecodeFailures)
}

func TestNode_IngestFailureSkipsCycle(t *testing.T) {
	engine := newStubEngine()
	engine.err = errors.New("tracking lost")
	n := newTestNode(engine, &seqSink{})

	err := n.HandlePair(validPair(time.Unix(1, 0)))
	require.Error(t, err)
	assert.Equal(t, uint64(0), n.FrameIndex())
	assert.Equal(t, uint64(1), n.Stats().IngestFailures)
}

func TestNode_PublishErrorStillAdvances(t *testing.T) {
	engine := newStubEngine()
	sink := &seqSink{err: errors.New("closed")}
	n := newTestNode(engine, sink)

	require.Error(t, n.HandlePair(validPair(time.Unix(1, 0))))
	assert.Equal(t, uint64(1), n.FrameIndex())
	assert.Equal(t, uint64(1), n.Stats().PublishErrors)

	sink.err = nil
	require.NoError(t, n.HandlePair(validPair(time.Unix(2, 0))))
	assert.Equal(t, []uint32{2}, sink.seqs)
}

func TestNode_HandlerViaSynchronizer(t *testing.T) {
	engine := newStubEngine()
	sink := &seqSink{}
	n := newTestNode(engine, sink)
	s := pairing.New(pairing.Config{QueueSize: 4, Tolerance: 10 * time.Millisecond}, n.Handler())

	p := validPair(time.Unix(5, 0))
	s.PushColor(p.Color)
	p.Depth.Stamp = p.Depth.Stamp.Add(3 * time.Millisecond)
	s.PushDepth(p.Depth)

	require.Len(t, engine.ingested, 1)
	assert.True(t, engine.ingested[0].Equal(time.Unix(5, 0)))
	assert.Equal(t, []uint32{1}, sink.seqs)
}
