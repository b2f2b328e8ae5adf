package util

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/shardquery/shardquery/internal/config"
)

// ConfigFlag ties a command line flag to a config key.
type ConfigFlag struct {
	Flag string
	Key  string
}

// EnvName returns the environment variable a config key is read from.
func EnvName(key string) string {
	return "SHARDQUERY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// BindOnPreRun binds flags to their config keys right before the command
// runs. Commands share config keys, so binding at construction would let
// the last constructed command win.
func BindOnPreRun(command *cobra.Command, flags []ConfigFlag) {
	command.PreRun = func(cmd *cobra.Command, _ []string) {
		for _, f := range flags {
			MustBindPFlag(f.Key, cmd.Flags().Lookup(f.Flag))
			MustBindEnv(f.Key, EnvName(f.Key))
		}
	}
}

func AddDatastoreFlags(flags *pflag.FlagSet) []ConfigFlag {
	defaultConfig := config.DefaultConfig()

	flags.String("datastore-engine", defaultConfig.Datastore.Engine, "the datastore engine that will be used for persistence")
	flags.String("datastore-uri", defaultConfig.Datastore.URI, "the connection uri to use to connect to the datastore (for any engine other than 'memory')")
	flags.String("datastore-username", "", "the connection username to use to connect to the datastore (overwrites any username provided in the connection uri)")
	flags.String("datastore-password", "", "the connection password to use to connect to the datastore (overwrites any password provided in the connection uri)")
	flags.Int("datastore-scan-batch-size", defaultConfig.Datastore.ScanBatchSize, "the number of entries fetched from the datastore per round trip")
	flags.Int("datastore-max-entries-per-write", defaultConfig.Datastore.MaxEntriesPerWrite, "the maximum number of entries upserted by one statement")
	flags.Int("datastore-max-open-conns", defaultConfig.Datastore.MaxOpenConns, "the maximum number of open connections to the datastore")
	flags.Int("datastore-max-idle-conns", defaultConfig.Datastore.MaxIdleConns, "the maximum number of connections to the datastore in the idle connection pool")
	flags.Duration("datastore-conn-max-idle-time", defaultConfig.Datastore.ConnMaxIdleTime, "the maximum amount of time a connection to the datastore may be idle")
	flags.Duration("datastore-conn-max-lifetime", defaultConfig.Datastore.ConnMaxLifetime, "the maximum amount of time a connection to the datastore may be reused")
	flags.Uint32("datastore-max-concurrent-scans", defaultConfig.Datastore.MaxConcurrentScans, "the maximum number of scans open against the datastore at once")
	flags.Uint64("datastore-max-retries", defaultConfig.Datastore.MaxRetries, "the number of times a transient datastore error is retried")
	flags.Duration("datastore-retry-interval", defaultConfig.Datastore.RetryInterval, "the initial backoff between datastore retries")
	flags.Bool("datastore-metrics-enabled", defaultConfig.Datastore.Metrics.Enabled, "enable/disable sql connection pool metrics")

	return []ConfigFlag{
		{"datastore-engine", "datastore.engine"},
		{"datastore-uri", "datastore.uri"},
		{"datastore-username", "datastore.username"},
		{"datastore-password", "datastore.password"},
		{"datastore-scan-batch-size", "datastore.scanBatchSize"},
		{"datastore-max-entries-per-write", "datastore.maxEntriesPerWrite"},
		{"datastore-max-open-conns", "datastore.maxOpenConns"},
		{"datastore-max-idle-conns", "datastore.maxIdleConns"},
		{"datastore-conn-max-idle-time", "datastore.connMaxIdleTime"},
		{"datastore-conn-max-lifetime", "datastore.connMaxLifetime"},
		{"datastore-max-concurrent-scans", "datastore.maxConcurrentScans"},
		{"datastore-max-retries", "datastore.maxRetries"},
		{"datastore-retry-interval", "datastore.retryInterval"},
		{"datastore-metrics-enabled", "datastore.metrics.enabled"},
	}
}

func AddDictionaryFlags(flags *pflag.FlagSet) []ConfigFlag {
	defaultConfig := config.DefaultConfig()

	flags.String("dictionary-file", defaultConfig.Dictionary.File, "a YAML or JSON field dictionary (defaults to the metadata table of a sql datastore)")
	flags.Duration("dictionary-cache-ttl", defaultConfig.Dictionary.CacheTTL, "how long a loaded field dictionary is cached")
	flags.Int64("dictionary-max-cache-size", defaultConfig.Dictionary.MaxCacheSize, "the number of field dictionaries kept in the cache")

	return []ConfigFlag{
		{"dictionary-file", "dictionary.file"},
		{"dictionary-cache-ttl", "dictionary.cacheTTL"},
		{"dictionary-max-cache-size", "dictionary.maxCacheSize"},
	}
}

func AddPlannerFlags(flags *pflag.FlagSet) []ConfigFlag {
	defaultConfig := config.DefaultConfig()

	flags.Bool("planner-allow-full-scan", defaultConfig.Planner.AllowFullScan, "scan every record when no term of the query can be driven from the index")
	flags.Bool("planner-ancestor-join", defaultConfig.Planner.AncestorJoin, "intersect query terms across the record hierarchy")
	flags.Int("planner-max-anchors", defaultConfig.Planner.MaxAnchors, "the number of index-driven terms per intersection")
	flags.Int64("planner-default-cardinality", defaultConfig.Planner.DefaultCardinality, "the estimated index size of a field without dictionary cardinality")

	return []ConfigFlag{
		{"planner-allow-full-scan", "planner.allowFullScan"},
		{"planner-ancestor-join", "planner.ancestorJoin"},
		{"planner-max-anchors", "planner.maxAnchors"},
		{"planner-default-cardinality", "planner.defaultCardinality"},
	}
}

func AddExecutorFlags(flags *pflag.FlagSet) []ConfigFlag {
	defaultConfig := config.DefaultConfig()

	flags.Int("executor-max-concurrent-shards", defaultConfig.Executor.MaxConcurrentShards, "the maximum number of shards scanned at once")
	flags.Int("executor-shard-buffer", defaultConfig.Executor.ShardBuffer, "the number of documents a shard may produce ahead of the output")
	flags.Int("executor-radix-threshold", defaultConfig.Executor.RadixThreshold, "the input size above which ancestor intersection groups uids in a radix tree")

	return []ConfigFlag{
		{"executor-max-concurrent-shards", "executor.maxConcurrentShards"},
		{"executor-shard-buffer", "executor.shardBuffer"},
		{"executor-radix-threshold", "executor.radixThreshold"},
	}
}

func AddObservabilityFlags(flags *pflag.FlagSet) []ConfigFlag {
	defaultConfig := config.DefaultConfig()

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in")
	flags.String("log-level", defaultConfig.Log.Level, "the log level to use")
	flags.String("log-timestamp-format", defaultConfig.Log.TimestampFormat, "the timestamp format to use for log messages")
	flags.Bool("trace-enabled", defaultConfig.Trace.Enabled, "enable tracing")
	flags.String("trace-otlp-endpoint", defaultConfig.Trace.OTLP.Endpoint, "the endpoint of the trace collector")
	flags.Bool("trace-otlp-tls-enabled", defaultConfig.Trace.OTLP.TLS.Enabled, "use TLS connection for trace collector")
	flags.Float64("trace-sample-ratio", defaultConfig.Trace.SampleRatio, "the fraction of traces to sample. 1 means all, 0 means none.")
	flags.String("trace-service-name", defaultConfig.Trace.ServiceName, "the service name included in sampled traces.")
	flags.Duration("trace-slow-query-threshold", defaultConfig.Trace.SlowQueryThreshold, "only export traces of queries that took at least this long")
	flags.Bool("metrics-enabled", defaultConfig.Metrics.Enabled, "write prometheus metrics to stderr when the command ends")

	return []ConfigFlag{
		{"log-format", "log.format"},
		{"log-level", "log.level"},
		{"log-timestamp-format", "log.timestampFormat"},
		{"trace-enabled", "trace.enabled"},
		{"trace-otlp-endpoint", "trace.otlp.endpoint"},
		{"trace-otlp-tls-enabled", "trace.otlp.tls.enabled"},
		{"trace-sample-ratio", "trace.sampleRatio"},
		{"trace-service-name", "trace.serviceName"},
		{"trace-slow-query-threshold", "trace.slowQueryThreshold"},
		{"metrics-enabled", "metrics.enabled"},
	}
}
