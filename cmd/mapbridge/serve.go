package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/banshee-data/mapbridge/internal/bridge"
	"github.com/banshee-data/mapbridge/internal/config"
	"github.com/banshee-data/mapbridge/internal/history"
	"github.com/banshee-data/mapbridge/internal/pairing"
	"github.com/banshee-data/mapbridge/internal/publish"
	"github.com/banshee-data/mapbridge/internal/slam/synthetic"
	"github.com/banshee-data/mapbridge/internal/timeutil"
	"github.com/banshee-data/mapbridge/internal/transport"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var configPath, listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the synthetic engine and stream map state",
		Long: `Run the bridge against the synthetic RGB-D engine.

Incremental updates (camera pose plus tracked landmarks) are streamed on
the incremental topic for every keyframe. Full keyframe and landmark dumps
are streamed on the full-dump topic after loop closures, every
full_dump_gap keyframes, and when a client subscribes to that topic.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.EmptyBridgeConfig()
			if configPath != "" {
				var err error
				if cfg, err = config.LoadBridgeConfig(configPath); err != nil {
					return err
				}
			}
			if listen != "" {
				cfg.ListenAddr = &listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a JSON or YAML config file")
	cmd.Flags().StringVar(&listen, "listen", "", "override listen_addr")
	return cmd
}

// pipeline is the wired bridge: rig → pairing → node → publisher → server.
type pipeline struct {
	engine    *synthetic.Engine
	rig       *synthetic.Rig
	sync      *pairing.Synchronizer
	node      *bridge.Node
	publisher *publish.FramePublisher
	server    *transport.Server
	history   *history.DB
	recorder  *history.Recorder
}

func newPipeline(cfg *config.BridgeConfig, clock timeutil.Clock) (*pipeline, error) {
	p := &pipeline{}

	engineCfg := synthetic.DefaultConfig()
	engineCfg.KeyframeEvery = cfg.GetKeyframeEvery()
	engineCfg.LoopInterval = cfg.GetLoopInterval()
	p.engine = synthetic.New(engineCfg, clock)

	srvCfg := transport.DefaultConfig()
	srvCfg.ListenAddr = cfg.GetListenAddr()
	srvCfg.MaxClients = cfg.GetMaxClients()
	p.server = transport.NewServer(srvCfg)
	p.server.SetClock(clock)

	p.publisher = publish.NewFramePublisher(publish.Config{
		FullDumpGap:      cfg.GetFullDumpGap(),
		IncrementalTopic: cfg.GetIncrementalTopic(),
		FullDumpTopic:    cfg.GetFullDumpTopic(),
		FrameOfReference: cfg.GetFrameOfReference(),
	}, p.engine, p.server)

	if cfg.GetFullDumpOnSubscribe() {
		fullTopic := cfg.GetFullDumpTopic()
		p.server.OnSubscribe(func(topic string) {
			if topic == fullTopic {
				p.publisher.Policy().RequestFullDump()
			}
		})
	}

	if path := cfg.GetHistoryDB(); path != "" {
		db, err := history.OpenDB(path)
		if err != nil {
			return nil, fmt.Errorf("open history database: %w", err)
		}
		p.history = db
		store := history.NewStore(db, clock)
		p.recorder = history.NewRecorder(store, history.DefaultRecorderQueue)
		p.publisher.AddObserver(p.recorder)
		log.Printf("Recording publications to %s (run %s)", path, store.RunID())
	}

	p.node = bridge.NewNode(p.engine, p.publisher)
	p.sync = pairing.New(pairing.Config{
		QueueSize: cfg.GetSyncQueueSize(),
		Tolerance: cfg.GetSyncTolerance(),
	}, p.node.Handler())

	rigCfg := synthetic.DefaultRigConfig()
	rigCfg.FrameRate = cfg.GetFrameRate()
	p.rig = synthetic.NewRig(rigCfg, clock)
	return p, nil
}

func (p *pipeline) start() error {
	if err := p.server.Start(); err != nil {
		return err
	}
	p.engine.Start()
	return nil
}

func (p *pipeline) stop() {
	p.engine.Stop()
	p.server.Stop()
	p.closeHistory()

	ps, ns, ss := p.publisher.Stats(), p.node.Stats(), p.sync.Stats()
	log.Printf("Frames: processed=%d decode_failures=%d pairs=%d dropped_color=%d dropped_depth=%d",
		ns.Processed, ns.DecodeFailures, ss.Pairs, ss.DroppedColor, ss.DroppedDepth)
	log.Printf("Publications: incremental=%d full=%d skipped=%d send_errors=%d",
		ps.Incremental, ps.Full, ps.SkippedIncremental, ps.SendErrors)
}

// closeHistory flushes queued publications and closes the database.
func (p *pipeline) closeHistory() {
	if p.recorder != nil {
		p.recorder.Close()
		rs := p.recorder.Stats()
		log.Printf("History: recorded=%d dropped=%d failed=%d", rs.Recorded, rs.Dropped, rs.Failed)
	}
	if p.history != nil {
		p.history.Close()
	}
}

func serve(ctx context.Context, cfg *config.BridgeConfig) error {
	p, err := newPipeline(cfg, timeutil.RealClock{})
	if err != nil {
		return err
	}
	if err := p.start(); err != nil {
		p.closeHistory()
		return err
	}
	defer p.stop()

	log.Printf("Serving on %s: incremental=%q full=%q", p.server.Addr(), cfg.GetIncrementalTopic(), cfg.GetFullDumpTopic())
	return p.rig.Run(ctx, p.sync)
}
