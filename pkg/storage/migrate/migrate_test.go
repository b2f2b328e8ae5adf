package migrate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sqliteConfig(t *testing.T) MigrationConfig {
	return MigrationConfig{
		Engine:  "sqlite",
		URI:     "file:" + filepath.Join(t.TempDir(), "shardquery.db"),
		Timeout: 5 * time.Second,
	}
}

func TestRunMigrationsSqlite(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	cfg := sqliteConfig(t)

	require.NoError(t, registry.RunMigrations(ctx, cfg))

	version, err := registry.CurrentVersion(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, int64(2), version)

	t.Run("down_to_target", func(t *testing.T) {
		cfg := cfg
		cfg.TargetVersion = 1
		require.NoError(t, registry.RunMigrations(ctx, cfg))

		version, err := registry.CurrentVersion(ctx, cfg)
		require.NoError(t, err)
		require.Equal(t, int64(1), version)
	})

	t.Run("up_to_target", func(t *testing.T) {
		cfg := cfg
		cfg.TargetVersion = 2
		require.NoError(t, registry.RunMigrations(ctx, cfg))

		version, err := registry.CurrentVersion(ctx, cfg)
		require.NoError(t, err)
		require.Equal(t, int64(2), version)
	})
}

func TestRunMigrationsMemoryIsNoop(t *testing.T) {
	require.NoError(t, RunMigrations(context.Background(), MigrationConfig{Engine: "memory"}))
}

func TestRunMigrationsUnknownEngine(t *testing.T) {
	err := RunMigrations(context.Background(), MigrationConfig{Engine: "cassandra"})
	require.ErrorContains(t, err, "cassandra")
}

func TestRegistryEngines(t *testing.T) {
	require.Equal(t, []string{"mysql", "postgres", "sqlite"}, NewRegistry().Engines())
}
