package util

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/shardquery/shardquery/internal/build"
	"github.com/shardquery/shardquery/internal/config"
	"github.com/shardquery/shardquery/pkg/logger"
	"github.com/shardquery/shardquery/pkg/metadata"
	"github.com/shardquery/shardquery/pkg/storage"
	"github.com/shardquery/shardquery/pkg/storage/memory"
	"github.com/shardquery/shardquery/pkg/storage/mysql"
	"github.com/shardquery/shardquery/pkg/storage/postgres"
	"github.com/shardquery/shardquery/pkg/storage/sqlcommon"
	"github.com/shardquery/shardquery/pkg/storage/sqlite"
	"github.com/shardquery/shardquery/pkg/storage/storagewrappers"
	"github.com/shardquery/shardquery/pkg/telemetry"
)

var ErrNoDictionary = errors.New("no field dictionary: set 'dictionary.file' or use a sql datastore")

// DictionaryStore is a store that keeps its own field dictionary.
type DictionaryStore interface {
	storage.Store
	metadata.Provider
	WriteFields(ctx context.Context, dataType string, fields []metadata.Field) error
}

func BuildLogger(cfg *config.Config) (logger.Logger, error) {
	return logger.NewLogger(cfg.Log.Format, cfg.Log.Level, cfg.Log.TimestampFormat)
}

// OpenDatastore opens the store the datastore config describes.
func OpenDatastore(cfg *config.Config, l logger.Logger) (storage.Store, error) {
	dsCfg := cfg.Datastore
	opts := []sqlcommon.DatastoreOption{
		sqlcommon.WithUsername(dsCfg.Username),
		sqlcommon.WithPassword(dsCfg.Password),
		sqlcommon.WithLogger(l),
		sqlcommon.WithMaxEntriesPerWrite(dsCfg.MaxEntriesPerWrite),
		sqlcommon.WithScanBatchSize(dsCfg.ScanBatchSize),
		sqlcommon.WithMaxOpenConns(dsCfg.MaxOpenConns),
		sqlcommon.WithMaxIdleConns(dsCfg.MaxIdleConns),
		sqlcommon.WithConnMaxIdleTime(dsCfg.ConnMaxIdleTime),
		sqlcommon.WithConnMaxLifetime(dsCfg.ConnMaxLifetime),
	}
	if dsCfg.Metrics.Enabled {
		opts = append(opts, sqlcommon.WithMetrics())
	}
	sqlCfg := sqlcommon.NewConfig(opts...)

	var (
		store storage.Store
		err   error
	)
	switch dsCfg.Engine {
	case "memory":
		store = memory.New(memory.WithScanBatchSize(dsCfg.ScanBatchSize))
	case "sqlite":
		store, err = sqlite.New(dsCfg.URI, sqlCfg)
	case "postgres":
		store, err = postgres.New(dsCfg.URI, sqlCfg)
	case "mysql":
		store, err = mysql.New(dsCfg.URI, sqlCfg)
	default:
		return nil, fmt.Errorf("datastore engine '%s' is unsupported", dsCfg.Engine)
	}
	if err != nil {
		return nil, fmt.Errorf("initialize %s datastore: %w", dsCfg.Engine, err)
	}
	l.Info(fmt.Sprintf("using '%v' engine", dsCfg.Engine))
	return store, nil
}

// OpenDictionary returns the cached field dictionary queries are planned
// against: the dictionary file when set, otherwise the metadata table of
// the store. The returned func releases the cache.
func OpenDictionary(cfg *config.Config, store storage.Store) (metadata.Provider, func(), error) {
	var inner metadata.Provider
	if s, ok := store.(DictionaryStore); ok {
		inner = s
	}
	if cfg.Dictionary.File != "" {
		p, err := metadata.LoadFile(cfg.Dictionary.File)
		if err != nil {
			return nil, nil, err
		}
		inner = p
	}
	if inner == nil {
		return nil, nil, ErrNoDictionary
	}

	cached, err := metadata.NewCachedProvider(inner,
		metadata.WithCacheTTL(cfg.Dictionary.CacheTTL),
		metadata.WithMaxCacheSize(cfg.Dictionary.MaxCacheSize),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize dictionary cache: %w", err)
	}
	return cached, cached.Close, nil
}

// QueryReader wraps store with the concurrency bound, the retry policy and
// the scan counters used while executing queries.
func QueryReader(cfg *config.Config, store storage.Reader, l logger.Logger) *storagewrappers.InstrumentedReader {
	bounded := storagewrappers.NewBoundedConcurrencyReader(store, cfg.Datastore.MaxConcurrentScans)
	retrying := storagewrappers.NewRetryingReader(bounded,
		storagewrappers.WithMaxRetries(cfg.Datastore.MaxRetries),
		storagewrappers.WithInitialInterval(cfg.Datastore.RetryInterval),
		storagewrappers.WithLogger(l),
	)
	return storagewrappers.NewInstrumentedReader(retrying)
}

// SetupTracing installs the global tracer provider. The returned func
// flushes and shuts it down.
func SetupTracing(cfg *config.Config, l logger.Logger) (func() error, error) {
	if !cfg.Trace.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func() error { return nil }, nil
	}

	l.Info(fmt.Sprintf("🕵 tracing enabled: sampling ratio is %v and sending traces to '%s', tls: %t", cfg.Trace.SampleRatio, cfg.Trace.OTLP.Endpoint, cfg.Trace.OTLP.TLS.Enabled))

	options := []telemetry.TracerOption{
		telemetry.WithOTLPEndpoint(cfg.Trace.OTLP.Endpoint),
		telemetry.WithServiceName(cfg.Trace.ServiceName),
		telemetry.WithServiceVersion(build.Version),
		telemetry.WithSamplingRatio(cfg.Trace.SampleRatio),
		telemetry.WithSlowTraceThreshold(cfg.Trace.SlowQueryThreshold),
	}
	if !cfg.Trace.OTLP.TLS.Enabled {
		options = append(options, telemetry.WithOTLPInsecure())
	}
	tp, err := telemetry.NewTracerProvider(options...)
	if err != nil {
		return nil, fmt.Errorf("initialize tracer provider: %w", err)
	}

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
	}, nil
}

// DumpMetrics writes the registered prometheus metrics to w when metrics
// are enabled.
func DumpMetrics(cfg *config.Config, w io.Writer, l logger.Logger) {
	if !cfg.Metrics.Enabled {
		return
	}
	if err := telemetry.WriteMetrics(w, prometheus.DefaultGatherer); err != nil {
		l.Warn("failed to write metrics", zap.Error(err))
	}
}
