package store

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/caskdb/pkg/logging"
	"github.com/dd0wney/caskdb/pkg/metrics"
)

// SyncPolicy controls when appends are forced to stable storage.
type SyncPolicy string

const (
	// SyncEveryWrite fsyncs after every append. Highest durability, highest
	// per-write latency.
	SyncEveryWrite SyncPolicy = "every_write"
	// SyncInterval flushes every append immediately but fsyncs on a timer.
	// A crash can lose writes acknowledged since the last tick; that window
	// is the configured interval.
	SyncInterval SyncPolicy = "interval"
)

// CompactionTrigger controls when compaction runs.
type CompactionTrigger string

const (
	// TriggerManual compacts only on explicit Compact calls.
	TriggerManual CompactionTrigger = "manual"
	// TriggerLiveRatio schedules a background compaction after a segment
	// rollover whenever live bytes fall below the configured fraction of
	// sealed segment bytes.
	TriggerLiveRatio CompactionTrigger = "live_ratio"
)

// Compression selects the value compression codec.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionSnappy Compression = "snappy"
)

var validate = validator.New()

// Config holds the store's tunables. Zero values are filled in with the
// defaults from DefaultConfig before validation.
type Config struct {
	// SegmentSizeThreshold is the active segment size, in bytes, at which
	// the writer rolls to a fresh segment. Bounds crash-replay work and
	// single-segment compaction cost.
	SegmentSizeThreshold int64 `yaml:"segment_size_threshold" validate:"gte=1024"`

	// Sync is the durability policy for acknowledged writes.
	Sync SyncPolicy `yaml:"sync" validate:"oneof=every_write interval"`

	// SyncIntervalMS is the fsync period for the interval policy.
	SyncIntervalMS int `yaml:"sync_interval_ms" validate:"gte=0"`

	// Compaction selects manual or automatic compaction.
	Compaction CompactionTrigger `yaml:"compaction" validate:"oneof=manual live_ratio"`

	// LiveRatioThreshold triggers automatic compaction when
	// live_bytes/sealed_bytes drops below it. Only read for live_ratio.
	LiveRatioThreshold float64 `yaml:"live_ratio_threshold" validate:"gte=0,lte=1"`

	// Compression compresses value payloads before encoding. May not be
	// changed on an existing store directory.
	Compression Compression `yaml:"compression" validate:"oneof=none snappy"`

	// Logger receives the store's structured logs. Defaults to the global
	// JSON logger.
	Logger logging.Logger `yaml:"-"`

	// Metrics receives instrumentation. Defaults to the global registry.
	Metrics *metrics.Registry `yaml:"-"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		SegmentSizeThreshold: 16 * 1024 * 1024,
		Sync:                 SyncEveryWrite,
		SyncIntervalMS:       200,
		Compaction:           TriggerManual,
		LiveRatioThreshold:   0.5,
		Compression:          CompressionNone,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SegmentSizeThreshold == 0 {
		c.SegmentSizeThreshold = def.SegmentSizeThreshold
	}
	if c.Sync == "" {
		c.Sync = def.Sync
	}
	if c.SyncIntervalMS == 0 {
		c.SyncIntervalMS = def.SyncIntervalMS
	}
	if c.Compaction == "" {
		c.Compaction = def.Compaction
	}
	if c.LiveRatioThreshold == 0 {
		c.LiveRatioThreshold = def.LiveRatioThreshold
	}
	if c.Compression == "" {
		c.Compression = def.Compression
	}
	if c.Logger == nil {
		c.Logger = logging.DefaultLogger()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.DefaultRegistry()
	}
	return c
}

// Validate checks the configuration. Called by Open after defaults are
// applied.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Sync == SyncInterval && c.SyncIntervalMS <= 0 {
		return fmt.Errorf("invalid config: sync_interval_ms must be positive with the interval sync policy")
	}
	return nil
}

// syncInterval returns the fsync period for the interval policy.
func (c Config) syncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMS) * time.Millisecond
}
