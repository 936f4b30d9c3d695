package publish

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/mapbridge/internal/geometry"
	"github.com/banshee-data/mapbridge/internal/wire"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrMalformedPayload is returned when a pose array does not follow the
// expected framing.
var ErrMalformedPayload = errors.New("malformed payload")

// KeyframeBlock is one keyframe of a full dump with its landmarks.
type KeyframeBlock struct {
	// KeyframeID is not carried on the wire; parsed blocks leave it zero.
	KeyframeID uint64
	Pose       geometry.Pose
	Landmarks  []r3.Vec
}

// FullDump is every valid keyframe and its valid landmarks.
type FullDump struct {
	Header    wire.Header
	Keyframes []KeyframeBlock
}

// LandmarkCount returns the number of landmark records across all blocks.
func (d *FullDump) LandmarkCount() int {
	n := 0
	for _, kf := range d.Keyframes {
		n += len(kf.Landmarks)
	}
	return n
}

// PoseArray flattens the dump into the count-prefixed wire layout. Counts
// are taken from the slice lengths, so they always match the records
// that follow them.
func (d *FullDump) PoseArray() *wire.PoseArray {
	poses := make([]wire.Pose, 0, 1+2*len(d.Keyframes)+d.LandmarkCount())
	poses = append(poses, countRecord(len(d.Keyframes)))
	for _, kf := range d.Keyframes {
		poses = append(poses, toWirePose(kf.Pose))
		poses = append(poses, countRecord(len(kf.Landmarks)))
		for _, p := range kf.Landmarks {
			poses = append(poses, positionRecord(p))
		}
	}
	return &wire.PoseArray{Header: d.Header, Poses: poses}
}

// IncrementalUpdate is the current camera pose and the landmarks it tracks.
type IncrementalUpdate struct {
	Header    wire.Header
	Camera    geometry.Pose
	Landmarks []r3.Vec
}

// PoseArray flattens the update into the flat wire layout: the camera
// pose, then one record per landmark, with no count fields.
func (u *IncrementalUpdate) PoseArray() *wire.PoseArray {
	poses := make([]wire.Pose, 0, 1+len(u.Landmarks))
	poses = append(poses, toWirePose(u.Camera))
	for _, p := range u.Landmarks {
		poses = append(poses, positionRecord(p))
	}
	return &wire.PoseArray{Header: u.Header, Poses: poses}
}

// ParseFullDump rebuilds a FullDump from its wire form, checking every
// count against the records that follow it.
func ParseFullDump(a *wire.PoseArray) (*FullDump, error) {
	if a == nil || len(a.Poses) == 0 {
		return nil, fmt.Errorf("%w: missing keyframe count", ErrMalformedPayload)
	}
	poses := a.Poses

	nKF, err := parseCount(poses[0])
	if err != nil {
		return nil, fmt.Errorf("keyframe count: %w", err)
	}
	poses = poses[1:]
	// Every keyframe block holds at least a pose and a point count.
	if nKF > len(poses)/2 {
		return nil, fmt.Errorf("%w: %d keyframes declared, only %d records follow", ErrMalformedPayload, nKF, len(poses))
	}

	dump := &FullDump{Header: a.Header, Keyframes: make([]KeyframeBlock, 0, nKF)}
	for i := 0; i < nKF; i++ {
		if len(poses) < 2 {
			return nil, fmt.Errorf("%w: keyframe %d of %d truncated", ErrMalformedPayload, i, nKF)
		}
		block := KeyframeBlock{Pose: fromWirePose(poses[0])}
		nPts, err := parseCount(poses[1])
		if err != nil {
			return nil, fmt.Errorf("keyframe %d point count: %w", i, err)
		}
		poses = poses[2:]
		if len(poses) < nPts {
			return nil, fmt.Errorf("%w: keyframe %d declares %d points, %d remain", ErrMalformedPayload, i, nPts, len(poses))
		}
		block.Landmarks = make([]r3.Vec, nPts)
		for j := 0; j < nPts; j++ {
			block.Landmarks[j] = fromWirePoint(poses[j].Position)
		}
		poses = poses[nPts:]
		dump.Keyframes = append(dump.Keyframes, block)
	}
	if len(poses) != 0 {
		return nil, fmt.Errorf("%w: %d trailing records", ErrMalformedPayload, len(poses))
	}
	return dump, nil
}

// ParseIncremental rebuilds an IncrementalUpdate from its wire form.
func ParseIncremental(a *wire.PoseArray) (*IncrementalUpdate, error) {
	if a == nil || len(a.Poses) == 0 {
		return nil, fmt.Errorf("%w: missing camera pose", ErrMalformedPayload)
	}
	u := &IncrementalUpdate{
		Header:    a.Header,
		Camera:    fromWirePose(a.Poses[0]),
		Landmarks: make([]r3.Vec, 0, len(a.Poses)-1),
	}
	for _, p := range a.Poses[1:] {
		u.Landmarks = append(u.Landmarks, fromWirePoint(p.Position))
	}
	return u, nil
}

func countRecord(n int) wire.Pose {
	v := float64(n)
	return wire.Pose{Position: wire.Point{X: v, Y: v, Z: v}}
}

func parseCount(p wire.Pose) (int, error) {
	x := p.Position.X
	if x != p.Position.Y || x != p.Position.Z {
		return 0, fmt.Errorf("%w: count record fields disagree (%v, %v, %v)", ErrMalformedPayload, x, p.Position.Y, p.Position.Z)
	}
	if x < 0 || x != math.Trunc(x) || x > math.MaxInt32 {
		return 0, fmt.Errorf("%w: invalid count %v", ErrMalformedPayload, x)
	}
	return int(x), nil
}

func positionRecord(p r3.Vec) wire.Pose {
	return wire.Pose{Position: wire.Point{X: p.X, Y: p.Y, Z: p.Z}}
}

func toWirePose(p geometry.Pose) wire.Pose {
	return wire.Pose{
		Position: wire.Point{X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z},
		Orientation: wire.Quaternion{
			X: p.Orientation.Imag,
			Y: p.Orientation.Jmag,
			Z: p.Orientation.Kmag,
			W: p.Orientation.Real,
		},
	}
}

func fromWirePose(p wire.Pose) geometry.Pose {
	return geometry.Pose{
		Position: fromWirePoint(p.Position),
		Orientation: quat.Number{
			Real: p.Orientation.W,
			Imag: p.Orientation.X,
			Jmag: p.Orientation.Y,
			Kmag: p.Orientation.Z,
		},
	}
}

func fromWirePoint(p wire.Point) r3.Vec {
	return r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}
