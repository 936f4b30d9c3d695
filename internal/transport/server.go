// Package transport streams published map state to remote subscribers
// over gRPC.
//
// Each subscriber opens a server stream on one topic. Messages handed to
// Send are queued, then fanned out to the subscribers of that topic by a
// single broadcast goroutine. A subscriber that cannot keep up loses
// messages instead of stalling the publisher.
package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/mapbridge/internal/monitoring"
	"github.com/banshee-data/mapbridge/internal/timeutil"
	"github.com/banshee-data/mapbridge/internal/wire"
	"google.golang.org/grpc"
)

var (
	// ErrNotRunning is returned by Send before Start or after Stop.
	ErrNotRunning = errors.New("transport not running")

	// ErrQueueFull is returned by Send when the broadcast queue is full.
	ErrQueueFull = errors.New("broadcast queue full")

	// ErrTooManyClients is reported to subscribers over the client limit.
	ErrTooManyClients = errors.New("too many clients")
)

// Config holds configuration for the transport server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50061")
	ListenAddr string

	// MaxClients is the maximum number of concurrent subscribers
	MaxClients int

	// QueueSize bounds the broadcast queue shared by all topics
	QueueSize int

	// ClientBuffer bounds each subscriber's pending messages
	ClientBuffer int

	// StatsInterval is how often throughput is logged (0 disables)
	StatsInterval time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    "localhost:50061",
		MaxClients:    8,
		QueueSize:     100,
		ClientBuffer:  10,
		StatsInterval: 5 * time.Second,
	}
}

// maxMsgSize allows full dumps of large maps.
const maxMsgSize = 16 * 1024 * 1024

type envelope struct {
	topic string
	msg   *wire.PoseArray
}

// subscriber is one connected stream.
type subscriber struct {
	id    string
	topic string
	msgCh chan *wire.PoseArray
}

// Server owns the gRPC server and the subscriber set.
type Server struct {
	config Config
	clock  timeutil.Clock
	logf   func(format string, v ...interface{})

	server   *grpc.Server
	listener net.Listener

	queue     chan envelope
	clients   map[string]*subscriber
	clientsMu sync.RWMutex

	subscribeMu sync.RWMutex
	onSubscribe []func(topic string)

	// Stats
	sent          atomic.Uint64
	dropped       atomic.Uint64
	clientCount   atomic.Int32
	lastStatsTime time.Time
	lastSent      uint64
	lastStatsMu   sync.Mutex

	// Lifecycle
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = def.ClientBuffer
	}
	return &Server{
		config:  cfg,
		clock:   timeutil.RealClock{},
		logf:    monitoring.Prefixed("Transport"),
		queue:   make(chan envelope, cfg.QueueSize),
		clients: make(map[string]*subscriber),
		stopCh:  make(chan struct{}),
	}
}

// SetClock replaces the clock used for periodic stats.
func (s *Server) SetClock(c timeutil.Clock) {
	s.clock = c
}

// OnSubscribe registers fn to run whenever a subscriber joins a topic,
// after it has been registered and can receive messages.
func (s *Server) OnSubscribe(fn func(topic string)) {
	s.subscribeMu.Lock()
	s.onSubscribe = append(s.onSubscribe, fn)
	s.subscribeMu.Unlock()
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	if s.running.Load() {
		return fmt.Errorf("transport already running")
	}
	lis, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.logf("Listening on %s", lis.Addr())
	return s.Serve(lis)
}

// Serve serves on an existing listener in the background.
func (s *Server) Serve(lis net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("transport already running")
	}
	s.listener = lis
	s.server = grpc.NewServer(
		grpc.ForceServerCodec(wire.Codec{}),
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
	)
	s.server.RegisterService(&serviceDesc, s)

	s.wg.Add(1)
	go s.broadcastLoop()

	if s.config.StatsInterval > 0 {
		s.wg.Add(1)
		go s.statsLoop()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(lis); err != nil && s.running.Load() {
			s.logf("gRPC server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops the gRPC server and waits for background goroutines.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stopCh)

	if s.server != nil {
		s.server.Stop()
	}
	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()
	s.logf("Stopped (sent=%d dropped=%d)", s.sent.Load(), s.dropped.Load())
}

// Send queues msg for the subscribers of topic.
func (s *Server) Send(topic string, msg *wire.PoseArray) error {
	if !s.running.Load() {
		return ErrNotRunning
	}
	select {
	case s.queue <- envelope{topic: topic, msg: msg}:
		return nil
	default:
		s.dropped.Add(1)
		return ErrQueueFull
	}
}

// broadcastLoop distributes messages to the subscribers of their topic.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case env := <-s.queue:
			s.clientsMu.RLock()
			for _, c := range s.clients {
				if c.topic != env.topic {
					continue
				}
				select {
				case c.msgCh <- env.msg:
					s.sent.Add(1)
				default:
					// Slow subscriber; drop for this client only.
					s.dropped.Add(1)
				}
			}
			s.clientsMu.RUnlock()
		}
	}
}

func (s *Server) statsLoop() {
	defer s.wg.Done()
	ticker := s.clock.NewTicker(s.config.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C():
			s.logPeriodicStats()
		}
	}
}

// logPeriodicStats logs the send rate since the previous call.
func (s *Server) logPeriodicStats() {
	s.lastStatsMu.Lock()
	defer s.lastStatsMu.Unlock()

	now := s.clock.Now()
	sent := s.sent.Load()
	if s.lastStatsTime.IsZero() {
		s.lastStatsTime = now
		s.lastSent = sent
		return
	}

	elapsed := now.Sub(s.lastStatsTime)
	if elapsed <= 0 {
		return
	}
	rate := float64(sent-s.lastSent) / elapsed.Seconds()
	s.logf("Stats: rate=%.1f/s sent=%d dropped=%d clients=%d queue=%d/%d",
		rate, sent-s.lastSent, s.dropped.Load(), s.clientCount.Load(), len(s.queue), cap(s.queue))
	s.lastStatsTime = now
	s.lastSent = sent
}

// addClient registers a subscriber, enforcing MaxClients.
func (s *Server) addClient(id, topic string) (*subscriber, error) {
	s.clientsMu.Lock()
	if s.config.MaxClients > 0 && len(s.clients) >= s.config.MaxClients {
		s.clientsMu.Unlock()
		return nil, ErrTooManyClients
	}
	c := &subscriber{
		id:    id,
		topic: topic,
		msgCh: make(chan *wire.PoseArray, s.config.ClientBuffer),
	}
	s.clients[id] = c
	s.clientsMu.Unlock()

	n := s.clientCount.Add(1)
	s.logf("Client connected: %s topic=%s (total: %d)", id, topic, n)
	return c, nil
}

// removeClient unregisters a subscriber.
func (s *Server) removeClient(id string) {
	s.clientsMu.Lock()
	if _, ok := s.clients[id]; !ok {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, id)
	s.clientsMu.Unlock()

	n := s.clientCount.Add(-1)
	s.logf("Client disconnected: %s (remaining: %d)", id, n)
}

func (s *Server) notifySubscribe(topic string) {
	s.subscribeMu.RLock()
	hooks := s.onSubscribe
	s.subscribeMu.RUnlock()
	for _, fn := range hooks {
		fn(topic)
	}
}

// Stats returns current server statistics.
func (s *Server) Stats() Stats {
	return Stats{
		Sent:        s.sent.Load(),
		Dropped:     s.dropped.Load(),
		ClientCount: s.clientCount.Load(),
		Running:     s.running.Load(),
	}
}

// Stats contains server statistics.
type Stats struct {
	Sent        uint64
	Dropped     uint64
	ClientCount int32
	Running     bool
}
