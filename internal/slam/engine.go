package slam

import (
	"time"

	"github.com/banshee-data/mapbridge/internal/geometry"
)

// Image is a decoded sensor image handed to the engine.
type Image struct {
	Width    int
	Height   int
	Encoding string
	Data     []byte
}

// Frame describes the frame the engine just processed.
type Frame struct {
	// ID identifies the frame inside the engine. RelativePose is keyed by it.
	ID        uint64
	Timestamp time.Time

	// IsKeyframe is set when tracking promoted this frame to a new keyframe.
	IsKeyframe bool

	// Reference is the keyframe the frame is registered against. It may
	// be nil while tracking is not initialised.
	Reference *Keyframe
}

// LoopEvents reports loop closures detected since the previous Ingest.
type LoopEvents struct {
	// Tracking is raised by the tracker (relocalisation onto an old map area).
	Tracking bool
	// LoopClosing is raised by the loop-closing thread after a correction.
	LoopClosing bool
}

// Any reports whether any loop closure was detected.
func (e LoopEvents) Any() bool {
	return e.Tracking || e.LoopClosing
}

// FrameResult is returned once per ingested frame. Its events are
// delivered exactly once: the engine clears them when it builds the result.
type FrameResult struct {
	Frame Frame
	Loops LoopEvents
}

// MapSource exposes the keyframe collection.
type MapSource interface {
	// Keyframes returns every keyframe, valid or not, in any order.
	Keyframes() []*Keyframe
}

// State is the read side of the engine consumed by the publisher.
type State interface {
	MapSource

	// TrackedLandmarks returns the landmarks matched in the most recent
	// frame. Entries may be nil where a feature has no landmark.
	TrackedLandmarks() []*Landmark

	// RelativePose returns Tcr, the transform from the reference keyframe
	// to frame frameID, when the engine still holds it.
	RelativePose(frameID uint64) (geometry.Transform, bool)
}

// Engine is the estimation engine as seen by the bridge.
type Engine interface {
	State

	// Ingest processes one synchronised colour/depth pair and updates
	// the map.
	Ingest(timestamp time.Time, color, depth Image) (FrameResult, error)
}
