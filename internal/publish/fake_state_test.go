package publish

import (
	"github.com/banshee-data/mapbridge/internal/geometry"
	"github.com/banshee-data/mapbridge/internal/slam"
	"github.com/banshee-data/mapbridge/internal/wire"
	"gonum.org/v1/gonum/spatial/r3"
)

// fakeState is an engine read side backed by a slam.Map.
type fakeState struct {
	*slam.Map
	tracked  []*slam.Landmark
	relative map[uint64]geometry.Transform
}

func newFakeState() *fakeState {
	return &fakeState{
		Map:      slam.NewMap(),
		relative: make(map[uint64]geometry.Transform),
	}
}

func (s *fakeState) TrackedLandmarks() []*slam.Landmark {
	return s.tracked
}

func (s *fakeState) RelativePose(frameID uint64) (geometry.Transform, bool) {
	t, ok := s.relative[frameID]
	return t, ok
}

func (s *fakeState) addKeyframe(id uint64, tcw geometry.Transform) *slam.Keyframe {
	k := slam.NewKeyframe(id)
	k.SetPose(tcw)
	s.AddKeyframe(k)
	return k
}

func landmarkAt(id uint64, x, y, z float64) *slam.Landmark {
	l := slam.NewLandmark(id)
	l.SetWorldPos(r3.Vec{X: x, Y: y, Z: z})
	return l
}

// recordingSink keeps every message it is given.
type recordingSink struct {
	sent []sentMsg
	err  error
}

type sentMsg struct {
	topic string
	msg   *wire.PoseArray
}

func (s *recordingSink) Send(topic string, msg *wire.PoseArray) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMsg{topic: topic, msg: msg})
	return nil
}
