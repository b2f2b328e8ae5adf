// Package config contains the configuration of the shardquery commands.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shardquery/shardquery/pkg/executor"
	"github.com/shardquery/shardquery/pkg/planner"
	"github.com/shardquery/shardquery/pkg/storage"
	"github.com/shardquery/shardquery/pkg/uid"
)

const (
	DefaultMaxConcurrentScans = 64
	DefaultMaxRetries         = 3
	DefaultRetryInterval      = 50 * time.Millisecond
	DefaultMaxAnchors         = 1
	DefaultDictionaryCacheTTL = 30 * time.Second
	DefaultDictionaryCacheMax = 1000
)

// Engines lists the datastore engines a store can be opened with.
var Engines = []string{"memory", "sqlite", "postgres", "mysql"}

type DatastoreMetricsConfig struct {
	// Enabled enables export of the connection pool metrics.
	Enabled bool
}

// DatastoreConfig defines the store the commands read from and write to.
type DatastoreConfig struct {
	// Engine is the datastore engine to use (e.g. 'memory', 'sqlite', 'postgres', 'mysql')
	Engine   string
	URI      string
	Username string
	Password string

	// ScanBatchSize is the number of entries fetched per round trip.
	ScanBatchSize int

	// MaxEntriesPerWrite bounds the entries upserted by one statement.
	MaxEntriesPerWrite int

	// MaxOpenConns is the maximum number of open connections to the database.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of connections to the datastore in the idle connection
	// pool.
	MaxIdleConns int

	// ConnMaxIdleTime is the maximum amount of time a connection to the datastore may be idle.
	ConnMaxIdleTime time.Duration

	// ConnMaxLifetime is the maximum amount of time a connection to the datastore may be reused.
	ConnMaxLifetime time.Duration

	// MaxConcurrentScans bounds the scans open against the store at once.
	MaxConcurrentScans uint32

	// MaxRetries is the number of times a transient store error is retried.
	MaxRetries uint64

	// RetryInterval is the initial backoff between retries.
	RetryInterval time.Duration

	// Metrics is configuration for the Datastore metrics.
	Metrics DatastoreMetricsConfig
}

// DictionaryConfig defines where field metadata comes from. With an empty
// File the metadata table of a SQL datastore is used.
type DictionaryConfig struct {
	File     string
	CacheTTL time.Duration
	// MaxCacheSize is the number of snapshots kept in the cache.
	MaxCacheSize int64
}

type PlannerConfig struct {
	// AllowFullScan lets queries without an index anchor scan every record.
	AllowFullScan bool
	// AncestorJoin intersects predicates across the record hierarchy.
	AncestorJoin bool
	// MaxAnchors is the number of index-driven terms per intersection.
	MaxAnchors int
	// DefaultCardinality is the estimated entry count of a field without
	// dictionary cardinality.
	DefaultCardinality int64
}

type ExecutorConfig struct {
	MaxConcurrentShards int
	// ShardBuffer is the number of documents a shard may produce ahead of
	// the consumer.
	ShardBuffer int
	// RadixThreshold is the input size above which ancestor intersection
	// groups uids in a radix tree.
	RadixThreshold int
}

// LogConfig defines log specific settings. For production we recommend
// using the 'json' log format.
type LogConfig struct {
	// Format is the log format to use in the log output (e.g. 'text' or 'json')
	Format string

	// Level is the log level to use in the log output (e.g. 'none', 'debug', or 'info')
	Level string

	// Format of the timestamp in the log output (e.g. 'Unix'(default) or 'ISO8601')
	TimestampFormat string
}

type TraceConfig struct {
	Enabled     bool
	OTLP        OTLPTraceConfig `mapstructure:"otlp"`
	SampleRatio float64
	ServiceName string
	// SlowQueryThreshold keeps only traces whose root span took at least
	// this long. Zero exports every sampled trace.
	SlowQueryThreshold time.Duration
}

type OTLPTraceConfig struct {
	Endpoint string
	TLS      OTLPTraceTLSConfig
}

type OTLPTraceTLSConfig struct {
	Enabled bool
}

type MetricConfig struct {
	// Enabled writes the prometheus metrics to stderr when a command ends.
	Enabled bool
}

type Config struct {
	Datastore  DatastoreConfig
	Dictionary DictionaryConfig
	Planner    PlannerConfig
	Executor   ExecutorConfig
	Log        LogConfig
	Trace      TraceConfig
	Metrics    MetricConfig
}

func (cfg *Config) Verify() error {
	if !slices.Contains(Engines, cfg.Datastore.Engine) {
		return fmt.Errorf("config 'datastore.engine' must be one of %v", Engines)
	}
	if cfg.Datastore.Engine != "memory" && cfg.Datastore.URI == "" {
		return fmt.Errorf("config 'datastore.uri' must be set for the '%s' engine", cfg.Datastore.Engine)
	}

	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("config 'log.format' must be one of ['text', 'json']")
	}

	if cfg.Log.Level != "none" &&
		cfg.Log.Level != "debug" &&
		cfg.Log.Level != "info" &&
		cfg.Log.Level != "warn" &&
		cfg.Log.Level != "error" &&
		cfg.Log.Level != "panic" &&
		cfg.Log.Level != "fatal" {
		return fmt.Errorf(
			"config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error', 'panic', 'fatal']",
		)
	}

	if cfg.Log.TimestampFormat != "Unix" && cfg.Log.TimestampFormat != "ISO8601" {
		return fmt.Errorf("config 'log.TimestampFormat' must be one of ['Unix', 'ISO8601']")
	}

	if cfg.Planner.MaxAnchors < 1 {
		return errors.New("config 'planner.maxAnchors' must be at least 1")
	}
	if cfg.Planner.DefaultCardinality < 1 {
		return errors.New("config 'planner.defaultCardinality' must be positive")
	}

	if cfg.Executor.MaxConcurrentShards < 1 {
		return errors.New("config 'executor.maxConcurrentShards' must be at least 1")
	}
	if cfg.Executor.ShardBuffer < 0 {
		return errors.New("config 'executor.shardBuffer' must not be negative")
	}
	if cfg.Datastore.MaxConcurrentScans == 0 {
		return errors.New("config 'datastore.maxConcurrentScans' must be at least 1")
	}

	if cfg.Trace.Enabled {
		if cfg.Trace.OTLP.Endpoint == "" {
			return errors.New("config 'trace.otlp.endpoint' must be set when tracing is enabled")
		}
		if cfg.Trace.SampleRatio < 0 || cfg.Trace.SampleRatio > 1 {
			return errors.New("config 'trace.sampleRatio' must be between 0 and 1")
		}
	}

	return nil
}

// PlannerOptions returns the planner options the config describes.
func (cfg *Config) PlannerOptions() []planner.PlannerOption {
	defaults := planner.DefaultCostDefaults()
	defaults.Base = cfg.Planner.DefaultCardinality
	return []planner.PlannerOption{
		planner.WithFullScan(cfg.Planner.AllowFullScan),
		planner.WithAncestorJoin(cfg.Planner.AncestorJoin),
		planner.WithMaxAnchors(cfg.Planner.MaxAnchors),
		planner.WithCostDefaults(defaults),
	}
}

// ExecutorOptions returns the executor options the config describes.
func (cfg *Config) ExecutorOptions() []executor.ExecutorOption {
	return []executor.ExecutorOption{
		executor.WithMaxConcurrentShards(cfg.Executor.MaxConcurrentShards),
		executor.WithShardBuffer(cfg.Executor.ShardBuffer),
		executor.WithScanBatchSize(cfg.Datastore.ScanBatchSize),
		executor.WithIntersector(uid.NewIntersector(uid.WithRadixThreshold(cfg.Executor.RadixThreshold))),
	}
}

func DefaultConfig() *Config {
	return &Config{
		Datastore: DatastoreConfig{
			Engine:             "memory",
			ScanBatchSize:      storage.DefaultScanBatchSize,
			MaxEntriesPerWrite: 100,
			MaxIdleConns:       10,
			MaxOpenConns:       30,
			MaxConcurrentScans: DefaultMaxConcurrentScans,
			MaxRetries:         DefaultMaxRetries,
			RetryInterval:      DefaultRetryInterval,
		},
		Dictionary: DictionaryConfig{
			CacheTTL:     DefaultDictionaryCacheTTL,
			MaxCacheSize: DefaultDictionaryCacheMax,
		},
		Planner: PlannerConfig{
			AllowFullScan:      false,
			MaxAnchors:         DefaultMaxAnchors,
			DefaultCardinality: planner.DefaultCostDefaults().Base,
		},
		Executor: ExecutorConfig{
			MaxConcurrentShards: executor.DefaultMaxConcurrentShards,
			ShardBuffer:         64,
			RadixThreshold:      uid.DefaultRadixThreshold,
		},
		Log: LogConfig{
			Format:          "text",
			Level:           "info",
			TimestampFormat: "Unix",
		},
		Trace: TraceConfig{
			Enabled: false,
			OTLP: OTLPTraceConfig{
				Endpoint: "0.0.0.0:4317",
				TLS: OTLPTraceTLSConfig{
					Enabled: false,
				},
			},
			SampleRatio: 0.2,
			ServiceName: "shardquery",
		},
	}
}
