// Package synthetic provides a stand-in estimation engine and sensor rig
// for demos and end-to-end tests.
//
// The engine moves a camera around a circle, promotes every Nth frame to
// a keyframe carrying freshly triangulated landmarks, and registers every
// frame against the latest keyframe. A background loop-closing goroutine
// periodically culls a keyframe and re-optimises the map by applying a
// small rigid correction to every keyframe and landmark, then reports a
// loop closure on the next ingested frame.
package synthetic

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/mapbridge/internal/geometry"
	"github.com/banshee-data/mapbridge/internal/monitoring"
	"github.com/banshee-data/mapbridge/internal/slam"
	"github.com/banshee-data/mapbridge/internal/timeutil"
	"gonum.org/v1/gonum/spatial/r3"
)

// Config holds synthetic engine settings.
type Config struct {
	KeyframeEvery        int     // frames per keyframe
	LandmarksPerKeyframe int     // landmarks created with each keyframe
	UntriangulatedEvery  int     // every Nth new landmark has no position; 0 disables
	OrbitRadius          float64 // metres
	OrbitStep            float64 // radians per frame

	// LoopInterval is how often the loop-closing goroutine runs. Zero
	// disables it; CloseLoop can still be called directly.
	LoopInterval time.Duration

	// RelativeHistory bounds how many frame-to-reference transforms are kept.
	RelativeHistory int

	Seed int64
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		KeyframeEvery:        5,
		LandmarksPerKeyframe: 20,
		UntriangulatedEvery:  7,
		OrbitRadius:          3.0,
		OrbitStep:            math.Pi / 180,
		LoopInterval:         10 * time.Second,
		RelativeHistory:      64,
		Seed:                 1,
	}
}

// Engine is a synthetic slam.Engine.
type Engine struct {
	cfg   Config
	m     *slam.Map
	clock timeutil.Clock
	logf  func(format string, v ...interface{})

	mu       sync.Mutex
	rng      *rand.Rand
	frames   uint64
	nextKF   uint64
	nextLM   uint64
	lastKF   *slam.Keyframe
	tracked  []*slam.Landmark
	relative map[uint64]geometry.Transform
	order    []uint64
	drift    geometry.Transform
	pending  slam.LoopEvents
	loops    int

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

var _ slam.Engine = (*Engine)(nil)

// New creates an Engine with an empty map.
func New(cfg Config, clock timeutil.Clock) *Engine {
	def := DefaultConfig()
	if cfg.KeyframeEvery <= 0 {
		cfg.KeyframeEvery = def.KeyframeEvery
	}
	if cfg.RelativeHistory <= 0 {
		cfg.RelativeHistory = def.RelativeHistory
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Engine{
		cfg:      cfg,
		m:        slam.NewMap(),
		clock:    clock,
		logf:     monitoring.Prefixed("Synthetic"),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		relative: make(map[uint64]geometry.Transform),
		drift:    geometry.Identity(),
		stopCh:   make(chan struct{}),
	}
}

// Map returns the engine's map.
func (e *Engine) Map() *slam.Map {
	return e.m
}

// Keyframes implements slam.MapSource.
func (e *Engine) Keyframes() []*slam.Keyframe {
	return e.m.Keyframes()
}

// TrackedLandmarks returns the landmarks seen in the latest frame.
func (e *Engine) TrackedLandmarks() []*slam.Landmark {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*slam.Landmark, len(e.tracked))
	copy(out, e.tracked)
	return out
}

// RelativePose returns Tcr for frameID while it is still in the history.
func (e *Engine) RelativePose(frameID uint64) (geometry.Transform, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.relative[frameID]
	return t, ok
}

// Ingest tracks one frame.
func (e *Engine) Ingest(timestamp time.Time, color, depth slam.Image) (slam.FrameResult, error) {
	if color.Width != depth.Width || color.Height != depth.Height {
		return slam.FrameResult{}, fmt.Errorf("image size mismatch: color %dx%d, depth %dx%d",
			color.Width, color.Height, depth.Width, depth.Height)
	}
	if len(color.Data) == 0 || len(depth.Data) == 0 {
		return slam.FrameResult{}, errors.New("empty image")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.frames
	e.frames++

	// Estimated pose: ground truth expressed in the drifted world.
	tcw := e.groundTruth(id).Mul(e.drift)

	isKeyframe := e.lastKF == nil || id%uint64(e.cfg.KeyframeEvery) == 0
	if isKeyframe {
		e.lastKF = e.newKeyframe(tcw)
		e.tracked = e.lastKF.Landmarks()
	}

	trw, _ := e.lastKF.Pose()
	e.storeRelative(id, tcw.Mul(trw.Inverse()))

	loops := e.pending
	e.pending = slam.LoopEvents{}

	return slam.FrameResult{
		Frame: slam.Frame{
			ID:         id,
			Timestamp:  timestamp,
			IsKeyframe: isKeyframe,
			Reference:  e.lastKF,
		},
		Loops: loops,
	}, nil
}

// groundTruth returns the true Tcw of frame id: the camera on a circle in
// the XY plane, yawing with the orbit.
func (e *Engine) groundTruth(id uint64) geometry.Transform {
	theta := float64(id) * e.cfg.OrbitStep
	rwc := geometry.AxisAngle(r3.Vec{Z: 1}, theta)
	twc := r3.Vec{
		X: e.cfg.OrbitRadius * (math.Cos(theta) - 1),
		Y: e.cfg.OrbitRadius * math.Sin(theta),
	}
	return geometry.NewTransform(rwc, twc).Inverse()
}

// newKeyframe creates a keyframe at tcw with new landmarks spread in
// front of the camera. Called with e.mu held.
func (e *Engine) newKeyframe(tcw geometry.Transform) *slam.Keyframe {
	kf := slam.NewKeyframe(e.nextKF)
	e.nextKF++
	kf.SetPose(tcw)

	twc := tcw.Inverse()
	for i := 0; i < e.cfg.LandmarksPerKeyframe; i++ {
		l := slam.NewLandmark(e.nextLM)
		e.nextLM++
		if e.cfg.UntriangulatedEvery == 0 || (i+1)%e.cfg.UntriangulatedEvery != 0 {
			local := r3.Vec{
				X: 1 + 4*e.rng.Float64(),
				Y: 2*e.rng.Float64() - 1,
				Z: 2*e.rng.Float64() - 1,
			}
			l.SetWorldPos(twc.Apply(local))
		}
		kf.AddLandmark(l)
		e.m.AddLandmark(l)
	}
	e.m.AddKeyframe(kf)
	return kf
}

// storeRelative records Tcr for frame id, evicting the oldest entries
// beyond the history bound. Called with e.mu held.
func (e *Engine) storeRelative(id uint64, tcr geometry.Transform) {
	e.relative[id] = tcr
	e.order = append(e.order, id)
	for len(e.order) > e.cfg.RelativeHistory {
		delete(e.relative, e.order[0])
		e.order = e.order[1:]
	}
}

// CloseLoop culls one intermediate keyframe, applies a small rigid
// correction to the whole map and queues a loop event for the next
// Ingest. Loop closures alternate between the tracker and the
// loop-closing thread as the reporting source.
func (e *Engine) CloseLoop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	kfs := e.m.Keyframes()
	sort.Slice(kfs, func(i, j int) bool { return kfs[i].ID < kfs[j].ID })
	if len(kfs) < 2 {
		return
	}

	culled := e.cull(kfs)

	s := geometry.NewTransform(
		geometry.AxisAngle(r3.Vec{Z: 1}, 0.02*(e.rng.Float64()-0.5)),
		r3.Vec{X: 0.05 * (e.rng.Float64() - 0.5), Y: 0.05 * (e.rng.Float64() - 0.5)},
	)
	sInv := s.Inverse()
	for _, kf := range kfs {
		if tcw, ok := kf.Pose(); ok {
			kf.SetPose(tcw.Mul(s))
		}
	}
	for _, l := range e.m.Landmarks() {
		if p, ok := l.WorldPos(); ok {
			l.SetWorldPos(sInv.Apply(p))
		}
	}
	e.drift = e.drift.Mul(s)

	if e.loops%2 == 0 {
		e.pending.LoopClosing = true
	} else {
		e.pending.Tracking = true
	}
	e.loops++

	if culled != nil {
		e.logf("Loop closed over %d keyframes, culled keyframe %d", len(kfs), culled.ID)
	} else {
		e.logf("Loop closed over %d keyframes", len(kfs))
	}
}

// cull marks one keyframe that is neither the first nor the current
// reference as bad, along with every third of its landmarks.
func (e *Engine) cull(sorted []*slam.Keyframe) *slam.Keyframe {
	var candidates []*slam.Keyframe
	for _, kf := range sorted[1:] {
		if kf != e.lastKF && !kf.IsBad() {
			candidates = append(candidates, kf)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	kf := candidates[e.rng.Intn(len(candidates))]
	kf.SetBad()
	for i, l := range kf.Landmarks() {
		if i%3 == 0 {
			l.SetBad()
		}
	}
	return kf
}

// Start runs the loop-closing goroutine when LoopInterval is set.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.cfg.LoopInterval <= 0 {
		return
	}
	e.started = true

	ticker := e.clock.NewTicker(e.cfg.LoopInterval)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-e.stopCh:
				return
			case <-ticker.C():
				e.CloseLoop()
			}
		}
	}()
}

// Stop stops the loop-closing goroutine.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	close(e.stopCh)
	e.mu.Unlock()
	e.wg.Wait()
}
