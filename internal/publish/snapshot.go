package publish

import (
	"sort"

	"github.com/banshee-data/mapbridge/internal/slam"
	"gonum.org/v1/gonum/spatial/r3"
)

// Snapshot is a read-only view over the engine state for one cycle.
// Each accessor copies what it returns, so later engine writes do not
// change a slice the caller already holds.
type Snapshot struct {
	state slam.State
}

// NewSnapshot wraps state.
func NewSnapshot(state slam.State) Snapshot {
	return Snapshot{state: state}
}

// AllKeyframesSorted returns every keyframe, valid or not, ordered by id.
func (s Snapshot) AllKeyframesSorted() []*slam.Keyframe {
	kfs := s.state.Keyframes()
	out := make([]*slam.Keyframe, 0, len(kfs))
	for _, k := range kfs {
		if k != nil {
			out = append(out, k)
		}
	}
	SortKeyframes(out)
	return out
}

// TrackedLandmarks returns the landmarks matched by the most recent frame.
func (s Snapshot) TrackedLandmarks() []*slam.Landmark {
	return s.state.TrackedLandmarks()
}

// LandmarksOf returns the landmarks observed by k.
func LandmarksOf(k *slam.Keyframe) []*slam.Landmark {
	if k == nil {
		return nil
	}
	return k.Landmarks()
}

// SortKeyframes orders keyframes by ascending id in place. Ids are unique,
// so the order is total and re-sorting is a no-op.
func SortKeyframes(kfs []*slam.Keyframe) {
	sort.Slice(kfs, func(i, j int) bool { return kfs[i].ID < kfs[j].ID })
}

// validPositions returns the world positions of the landmarks that are
// valid and triangulated, in input order.
func validPositions(landmarks []*slam.Landmark) []r3.Vec {
	out := make([]r3.Vec, 0, len(landmarks))
	for _, l := range landmarks {
		if l == nil || l.IsBad() {
			continue
		}
		pos, ok := l.WorldPos()
		if !ok {
			continue
		}
		out = append(out, pos)
	}
	return out
}
