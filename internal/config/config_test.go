package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shardquery/shardquery/pkg/ast"
	"github.com/shardquery/shardquery/pkg/metadata"
	"github.com/shardquery/shardquery/pkg/planner"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Verify())
}

func TestVerifyConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		err    string
	}{
		{
			name:   "unknown_engine",
			modify: func(c *Config) { c.Datastore.Engine = "cassandra" },
			err:    "config 'datastore.engine' must be one of [memory sqlite postgres mysql]",
		},
		{
			name:   "sql_engine_requires_uri",
			modify: func(c *Config) { c.Datastore.Engine = "postgres" },
			err:    "config 'datastore.uri' must be set for the 'postgres' engine",
		},
		{
			name:   "log_format",
			modify: func(c *Config) { c.Log.Format = "xml" },
			err:    "config 'log.format' must be one of ['text', 'json']",
		},
		{
			name:   "log_level",
			modify: func(c *Config) { c.Log.Level = "verbose" },
			err:    "config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error', 'panic', 'fatal']",
		},
		{
			name:   "log_timestamp_format",
			modify: func(c *Config) { c.Log.TimestampFormat = "RFC3339" },
			err:    "config 'log.TimestampFormat' must be one of ['Unix', 'ISO8601']",
		},
		{
			name:   "max_anchors",
			modify: func(c *Config) { c.Planner.MaxAnchors = 0 },
			err:    "config 'planner.maxAnchors' must be at least 1",
		},
		{
			name:   "default_cardinality",
			modify: func(c *Config) { c.Planner.DefaultCardinality = 0 },
			err:    "config 'planner.defaultCardinality' must be positive",
		},
		{
			name:   "max_concurrent_shards",
			modify: func(c *Config) { c.Executor.MaxConcurrentShards = 0 },
			err:    "config 'executor.maxConcurrentShards' must be at least 1",
		},
		{
			name:   "shard_buffer",
			modify: func(c *Config) { c.Executor.ShardBuffer = -1 },
			err:    "config 'executor.shardBuffer' must not be negative",
		},
		{
			name:   "max_concurrent_scans",
			modify: func(c *Config) { c.Datastore.MaxConcurrentScans = 0 },
			err:    "config 'datastore.maxConcurrentScans' must be at least 1",
		},
		{
			name: "trace_endpoint",
			modify: func(c *Config) {
				c.Trace.Enabled = true
				c.Trace.OTLP.Endpoint = ""
			},
			err: "config 'trace.otlp.endpoint' must be set when tracing is enabled",
		},
		{
			name: "trace_sample_ratio",
			modify: func(c *Config) {
				c.Trace.Enabled = true
				c.Trace.SampleRatio = 1.5
			},
			err: "config 'trace.sampleRatio' must be between 0 and 1",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := DefaultConfig()
			test.modify(cfg)
			require.EqualError(t, cfg.Verify(), test.err)
		})
	}

	t.Run("sql_engine_with_uri", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Datastore.Engine = "sqlite"
		cfg.Datastore.URI = "file:shardquery.db"
		cfg.Datastore.ConnMaxLifetime = time.Minute
		require.NoError(t, cfg.Verify())
	})
}

func TestPlannerOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Planner.AllowFullScan = true
	cfg.Planner.AncestorJoin = true

	snapshot := metadata.NewSnapshot([]string{"event"}, metadata.Field{Name: "BODY"})
	plan, err := planner.New(cfg.PlannerOptions()...).Plan(ast.Eq("BODY", "x"), snapshot)
	require.NoError(t, err)
	require.True(t, plan.FullScan())
	require.True(t, plan.AncestorJoin())

	cfg.Planner.AllowFullScan = false
	_, err = planner.New(cfg.PlannerOptions()...).Plan(ast.Eq("BODY", "x"), snapshot)
	var planningErr *planner.PlanningError
	require.ErrorAs(t, err, &planningErr)

	require.Len(t, cfg.ExecutorOptions(), 4)
}
