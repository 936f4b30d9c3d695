package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/mapbridge.defaults.json"

// BridgeConfig is the root configuration of the bridge process. Every
// field is optional; the Get* accessors supply defaults for omitted ones.
type BridgeConfig struct {
	// Publication
	FullDumpGap         *int    `json:"full_dump_gap,omitempty" yaml:"full_dump_gap,omitempty"`
	IncrementalTopic    *string `json:"incremental_topic,omitempty" yaml:"incremental_topic,omitempty"`
	FullDumpTopic       *string `json:"full_dump_topic,omitempty" yaml:"full_dump_topic,omitempty"`
	FrameOfReference    *string `json:"frame_of_reference,omitempty" yaml:"frame_of_reference,omitempty"`
	FullDumpOnSubscribe *bool   `json:"full_dump_on_subscribe,omitempty" yaml:"full_dump_on_subscribe,omitempty"`

	// Transport
	ListenAddr *string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
	MaxClients *int    `json:"max_clients,omitempty" yaml:"max_clients,omitempty"`

	// Pairing
	SyncQueueSize *int    `json:"sync_queue_size,omitempty" yaml:"sync_queue_size,omitempty"`
	SyncTolerance *string `json:"sync_tolerance,omitempty" yaml:"sync_tolerance,omitempty"` // duration string like "20ms"

	// History
	HistoryDB *string `json:"history_db,omitempty" yaml:"history_db,omitempty"`

	// Synthetic source
	FrameRate     *float64 `json:"frame_rate,omitempty" yaml:"frame_rate,omitempty"`
	KeyframeEvery *int     `json:"keyframe_every,omitempty" yaml:"keyframe_every,omitempty"`
	LoopInterval  *string  `json:"loop_interval,omitempty" yaml:"loop_interval,omitempty"` // duration string, "0s" disables
}

// EmptyBridgeConfig returns a BridgeConfig with all fields unset.
func EmptyBridgeConfig() *BridgeConfig {
	return &BridgeConfig{}
}

// LoadBridgeConfig loads a BridgeConfig from a JSON or YAML file. The
// file must have a .json, .yaml or .yml extension and be at most 1MB.
// Omitted fields keep their defaults, so partial configs are safe.
func LoadBridgeConfig(path string) (*BridgeConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyBridgeConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		// Unknown keys are rejected so typos do not silently fall back
		// to defaults.
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Panics if the
// file cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *BridgeConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadBridgeConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *BridgeConfig) Validate() error {
	if c.FullDumpGap != nil && *c.FullDumpGap < 0 {
		return fmt.Errorf("full_dump_gap must be non-negative, got %d", *c.FullDumpGap)
	}
	if c.IncrementalTopic != nil && *c.IncrementalTopic == "" {
		return fmt.Errorf("incremental_topic must not be empty")
	}
	if c.FullDumpTopic != nil && *c.FullDumpTopic == "" {
		return fmt.Errorf("full_dump_topic must not be empty")
	}
	if c.IncrementalTopic != nil && c.FullDumpTopic != nil && *c.IncrementalTopic == *c.FullDumpTopic {
		return fmt.Errorf("incremental_topic and full_dump_topic must differ, both are %q", *c.FullDumpTopic)
	}
	if c.MaxClients != nil && *c.MaxClients < 1 {
		return fmt.Errorf("max_clients must be at least 1, got %d", *c.MaxClients)
	}
	if c.SyncQueueSize != nil && *c.SyncQueueSize < 1 {
		return fmt.Errorf("sync_queue_size must be at least 1, got %d", *c.SyncQueueSize)
	}
	if err := validDuration("sync_tolerance", c.SyncTolerance); err != nil {
		return err
	}
	if err := validDuration("loop_interval", c.LoopInterval); err != nil {
		return err
	}
	if c.FrameRate != nil && *c.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %f", *c.FrameRate)
	}
	if c.KeyframeEvery != nil && *c.KeyframeEvery < 1 {
		return fmt.Errorf("keyframe_every must be at least 1, got %d", *c.KeyframeEvery)
	}
	return nil
}

func validDuration(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must be non-negative, got %s", name, *v)
	}
	return nil
}

// GetFullDumpGap returns the full_dump_gap value or the default.
func (c *BridgeConfig) GetFullDumpGap() int {
	if c.FullDumpGap == nil {
		return 0 // periodic dumps disabled
	}
	return *c.FullDumpGap
}

// GetIncrementalTopic returns the incremental_topic value or the default.
func (c *BridgeConfig) GetIncrementalTopic() string {
	if c.IncrementalTopic == nil || *c.IncrementalTopic == "" {
		return "pts_and_pose"
	}
	return *c.IncrementalTopic
}

// GetFullDumpTopic returns the full_dump_topic value or the default.
func (c *BridgeConfig) GetFullDumpTopic() string {
	if c.FullDumpTopic == nil || *c.FullDumpTopic == "" {
		return "all_kf_and_pts"
	}
	return *c.FullDumpTopic
}

// GetFrameOfReference returns the frame_of_reference value or the default.
func (c *BridgeConfig) GetFrameOfReference() string {
	if c.FrameOfReference == nil {
		return "1"
	}
	return *c.FrameOfReference
}

// GetFullDumpOnSubscribe returns the full_dump_on_subscribe value or the default.
func (c *BridgeConfig) GetFullDumpOnSubscribe() bool {
	if c.FullDumpOnSubscribe == nil {
		return true
	}
	return *c.FullDumpOnSubscribe
}

// GetListenAddr returns the listen_addr value or the default.
func (c *BridgeConfig) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return "localhost:50061"
	}
	return *c.ListenAddr
}

// GetMaxClients returns the max_clients value or the default.
func (c *BridgeConfig) GetMaxClients() int {
	if c.MaxClients == nil {
		return 8
	}
	return *c.MaxClients
}

// GetSyncQueueSize returns the sync_queue_size value or the default.
func (c *BridgeConfig) GetSyncQueueSize() int {
	if c.SyncQueueSize == nil {
		return 10
	}
	return *c.SyncQueueSize
}

// GetSyncTolerance parses and returns sync_tolerance.
func (c *BridgeConfig) GetSyncTolerance() time.Duration {
	return parseDurationOr(c.SyncTolerance, 20*time.Millisecond)
}

// GetHistoryDB returns the history_db path; empty disables history.
func (c *BridgeConfig) GetHistoryDB() string {
	if c.HistoryDB == nil {
		return ""
	}
	return *c.HistoryDB
}

// GetFrameRate returns the frame_rate value or the default.
func (c *BridgeConfig) GetFrameRate() float64 {
	if c.FrameRate == nil {
		return 30
	}
	return *c.FrameRate
}

// GetKeyframeEvery returns the keyframe_every value or the default.
func (c *BridgeConfig) GetKeyframeEvery() int {
	if c.KeyframeEvery == nil {
		return 5
	}
	return *c.KeyframeEvery
}

// GetLoopInterval parses and returns loop_interval.
func (c *BridgeConfig) GetLoopInterval() time.Duration {
	return parseDurationOr(c.LoopInterval, 10*time.Second)
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}
