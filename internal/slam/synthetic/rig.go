package synthetic

import (
	"context"
	"math/rand"
	"time"

	"github.com/banshee-data/mapbridge/internal/pairing"
	"github.com/banshee-data/mapbridge/internal/timeutil"
)

// PairSink receives the two camera streams.
type PairSink interface {
	PushColor(pairing.Message)
	PushDepth(pairing.Message)
}

// RigConfig holds synthetic camera rig settings.
type RigConfig struct {
	Width     int
	Height    int
	FrameRate float64 // frames per second

	// DepthJitter offsets each depth stamp by a uniform amount in
	// [-DepthJitter, DepthJitter].
	DepthJitter time.Duration

	// CorruptEvery truncates every Nth depth image; 0 disables.
	CorruptEvery int

	Seed int64
}

// DefaultRigConfig returns a default configuration.
func DefaultRigConfig() RigConfig {
	return RigConfig{
		Width:       64,
		Height:      48,
		FrameRate:   30,
		DepthJitter: 5 * time.Millisecond,
		Seed:        1,
	}
}

// Rig produces colour (rgb8) and depth (16UC1) messages.
type Rig struct {
	cfg    RigConfig
	clock  timeutil.Clock
	rng    *rand.Rand
	frames uint64
}

// NewRig creates a Rig.
func NewRig(cfg RigConfig, clock timeutil.Clock) *Rig {
	def := DefaultRigConfig()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = def.FrameRate
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Rig{
		cfg:   cfg,
		clock: clock,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Emit pushes one colour message and one depth message stamped around
// the clock's current time.
func (r *Rig) Emit(sink PairSink) {
	r.frames++
	stamp := r.clock.Now()
	w, h := r.cfg.Width, r.cfg.Height

	color := make([]byte, w*h*3)
	for i := range color {
		color[i] = byte(uint64(i) + r.frames)
	}
	sink.PushColor(pairing.Message{Stamp: stamp, Width: w, Height: h, Encoding: "rgb8", Data: color})

	depth := make([]byte, w*h*2)
	for i := 0; i < len(depth); i += 2 {
		// 1500mm little-endian
		depth[i], depth[i+1] = 0xdc, 0x05
	}
	if r.cfg.CorruptEvery > 0 && r.frames%uint64(r.cfg.CorruptEvery) == 0 {
		depth = depth[:len(depth)-1]
	}

	var jitter time.Duration
	if r.cfg.DepthJitter > 0 {
		jitter = time.Duration(r.rng.Int63n(int64(2*r.cfg.DepthJitter)+1)) - r.cfg.DepthJitter
	}
	sink.PushDepth(pairing.Message{Stamp: stamp.Add(jitter), Width: w, Height: h, Encoding: "16UC1", Data: depth})
}

// Run emits at the configured frame rate until ctx is cancelled.
func (r *Rig) Run(ctx context.Context, sink PairSink) error {
	ticker := r.clock.NewTicker(time.Duration(float64(time.Second) / r.cfg.FrameRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			r.Emit(sink)
		}
	}
}
