package slam

import (
	"sort"
	"sync"

	"github.com/banshee-data/mapbridge/internal/geometry"
	"gonum.org/v1/gonum/spatial/r3"
)

// Landmark is a triangulated map point.
type Landmark struct {
	ID uint64

	mu     sync.RWMutex
	pos    r3.Vec
	hasPos bool
	bad    bool
}

// NewLandmark creates a landmark with no position yet.
func NewLandmark(id uint64) *Landmark {
	return &Landmark{ID: id}
}

// SetWorldPos sets the landmark's world position.
func (l *Landmark) SetWorldPos(p r3.Vec) {
	l.mu.Lock()
	l.pos = p
	l.hasPos = true
	l.mu.Unlock()
}

// ClearWorldPos marks the position as unset.
func (l *Landmark) ClearWorldPos() {
	l.mu.Lock()
	l.pos = r3.Vec{}
	l.hasPos = false
	l.mu.Unlock()
}

// WorldPos returns the world position and whether it is set.
func (l *Landmark) WorldPos() (r3.Vec, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pos, l.hasPos
}

// SetBad flags the landmark as invalid.
func (l *Landmark) SetBad() {
	l.mu.Lock()
	l.bad = true
	l.mu.Unlock()
}

// IsBad reports whether the landmark has been invalidated.
func (l *Landmark) IsBad() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.bad
}

// Keyframe is a map-anchoring camera observation. Its pose is stored as
// Tcw (world to camera).
type Keyframe struct {
	ID uint64

	mu        sync.RWMutex
	pose      geometry.Transform
	hasPose   bool
	bad       bool
	landmarks map[uint64]*Landmark
}

// NewKeyframe creates a keyframe with no pose yet.
func NewKeyframe(id uint64) *Keyframe {
	return &Keyframe{
		ID:        id,
		landmarks: make(map[uint64]*Landmark),
	}
}

// SetPose sets Tcw.
func (k *Keyframe) SetPose(tcw geometry.Transform) {
	k.mu.Lock()
	k.pose = tcw
	k.hasPose = true
	k.mu.Unlock()
}

// Pose returns Tcw and whether it is set.
func (k *Keyframe) Pose() (geometry.Transform, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.pose, k.hasPose
}

// SetBad flags the keyframe as culled.
func (k *Keyframe) SetBad() {
	k.mu.Lock()
	k.bad = true
	k.mu.Unlock()
}

// IsBad reports whether the keyframe has been culled.
func (k *Keyframe) IsBad() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.bad
}

// AddLandmark records that the keyframe observes l.
func (k *Keyframe) AddLandmark(l *Landmark) {
	if l == nil {
		return
	}
	k.mu.Lock()
	k.landmarks[l.ID] = l
	k.mu.Unlock()
}

// EraseLandmark drops the observation of landmark id.
func (k *Keyframe) EraseLandmark(id uint64) {
	k.mu.Lock()
	delete(k.landmarks, id)
	k.mu.Unlock()
}

// Landmarks returns the observed landmarks ordered by id.
func (k *Keyframe) Landmarks() []*Landmark {
	k.mu.RLock()
	out := make([]*Landmark, 0, len(k.landmarks))
	for _, l := range k.landmarks {
		out = append(out, l)
	}
	k.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Map is the keyframe and landmark store. It is safe for one writer
// goroutine per subsystem and any number of readers.
type Map struct {
	mu        sync.RWMutex
	keyframes map[uint64]*Keyframe
	landmarks map[uint64]*Landmark
}

// NewMap creates an empty map.
func NewMap() *Map {
	return &Map{
		keyframes: make(map[uint64]*Keyframe),
		landmarks: make(map[uint64]*Landmark),
	}
}

// AddKeyframe inserts k, replacing any keyframe with the same id.
func (m *Map) AddKeyframe(k *Keyframe) {
	m.mu.Lock()
	m.keyframes[k.ID] = k
	m.mu.Unlock()
}

// AddLandmark inserts l, replacing any landmark with the same id.
func (m *Map) AddLandmark(l *Landmark) {
	m.mu.Lock()
	m.landmarks[l.ID] = l
	m.mu.Unlock()
}

// Keyframe looks up a keyframe by id.
func (m *Map) Keyframe(id uint64) (*Keyframe, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.keyframes[id]
	return k, ok
}

// Keyframes returns every keyframe, valid or not, in no particular order.
func (m *Map) Keyframes() []*Keyframe {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Keyframe, 0, len(m.keyframes))
	for _, k := range m.keyframes {
		out = append(out, k)
	}
	return out
}

// Landmarks returns every landmark, valid or not, in no particular order.
func (m *Map) Landmarks() []*Landmark {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Landmark, 0, len(m.landmarks))
	for _, l := range m.landmarks {
		out = append(out, l)
	}
	return out
}

// KeyframeCount returns the number of keyframes, valid or not.
func (m *Map) KeyframeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keyframes)
}
