// Package migrate applies the embedded schema migrations to the SQL stores.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/shardquery/shardquery/assets"
	"github.com/shardquery/shardquery/pkg/logger"
	"github.com/shardquery/shardquery/pkg/storage/mysql"
	"github.com/shardquery/shardquery/pkg/storage/postgres"
	"github.com/shardquery/shardquery/pkg/storage/sqlite"
)

// MigrationConfig contains the configuration needed for running migrations.
type MigrationConfig struct {
	Engine        string
	URI           string
	TargetVersion uint
	Timeout       time.Duration
	Verbose       bool
	Username      string
	Password      string
	Logger        logger.Logger
}

// Provider migrates one SQL engine.
type Provider struct {
	engine     string
	driver     string
	dialect    goose.Dialect
	dir        string
	prepareURI func(MigrationConfig) (string, error)
}

// Engine returns the engine name the provider migrates.
func (p *Provider) Engine() string {
	return p.engine
}

// Registry maps engine names to migration providers.
type Registry struct {
	providers map[string]*Provider
}

// NewRegistry returns a registry holding the built-in sqlite, postgres and
// mysql providers.
func NewRegistry() *Registry {
	r := &Registry{providers: map[string]*Provider{}}
	r.Register(&Provider{
		engine:  "sqlite",
		driver:  "sqlite",
		dialect: goose.DialectSQLite3,
		dir:     assets.SqliteMigrationDir,
		prepareURI: func(cfg MigrationConfig) (string, error) {
			return sqlite.PrepareDSN(cfg.URI)
		},
	})
	r.Register(&Provider{
		engine:  "postgres",
		driver:  "pgx",
		dialect: goose.DialectPostgres,
		dir:     assets.PostgresMigrationDir,
		prepareURI: func(cfg MigrationConfig) (string, error) {
			return postgres.PrepareURI(cfg.URI, cfg.Username, cfg.Password)
		},
	})
	r.Register(&Provider{
		engine:  "mysql",
		driver:  "mysql",
		dialect: goose.DialectMySQL,
		dir:     assets.MySQLMigrationDir,
		prepareURI: func(cfg MigrationConfig) (string, error) {
			return mysql.PrepareDSN(cfg.URI, cfg.Username, cfg.Password)
		},
	})
	return r
}

// Register adds or replaces the provider for its engine.
func (r *Registry) Register(p *Provider) {
	r.providers[p.engine] = p
}

// Provider looks up the provider for engine.
func (r *Registry) Provider(engine string) (*Provider, bool) {
	p, ok := r.providers[engine]
	return p, ok
}

// Engines returns the registered engine names, sorted.
func (r *Registry) Engines() []string {
	engines := make([]string, 0, len(r.providers))
	for e := range r.providers {
		engines = append(engines, e)
	}
	sort.Strings(engines)
	return engines
}

// RunMigrations migrates the store cfg points at, up to the latest revision
// or to cfg.TargetVersion when set. The memory engine has nothing to migrate.
func (r *Registry) RunMigrations(ctx context.Context, cfg MigrationConfig) error {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoopLogger()
	}
	if cfg.Engine == "memory" {
		cfg.Logger.Info("no migrations to run for `memory` datastore")
		return nil
	}

	p, ok := r.Provider(cfg.Engine)
	if !ok {
		return fmt.Errorf("no migration provider registered for engine: %s", cfg.Engine)
	}
	return p.RunMigrations(ctx, cfg)
}

// CurrentVersion reports the revision the store cfg points at is on.
func (r *Registry) CurrentVersion(ctx context.Context, cfg MigrationConfig) (int64, error) {
	p, ok := r.Provider(cfg.Engine)
	if !ok {
		return 0, fmt.Errorf("no migration provider registered for engine: %s", cfg.Engine)
	}
	return p.CurrentVersion(ctx, cfg)
}

// RunMigrations runs migrations with the built-in providers.
func RunMigrations(ctx context.Context, cfg MigrationConfig) error {
	return NewRegistry().RunMigrations(ctx, cfg)
}

func (p *Provider) open(ctx context.Context, cfg MigrationConfig) (*sql.DB, *goose.Provider, error) {
	uri, err := p.prepareURI(cfg)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open(p.driver, uri)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s connection: %w", p.engine, err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.Timeout
	err = backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to initialize %s connection: %w", p.engine, err)
	}

	migrationsFS, err := fs.Sub(assets.EmbedMigrations, p.dir)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create %s migrations filesystem: %w", p.engine, err)
	}

	provider, err := goose.NewProvider(p.dialect, db, migrationsFS, goose.WithVerbose(cfg.Verbose))
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create goose provider: %w", err)
	}
	return db, provider, nil
}

// CurrentVersion returns the current migration version.
func (p *Provider) CurrentVersion(ctx context.Context, cfg MigrationConfig) (int64, error) {
	db, provider, err := p.open(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return provider.GetDBVersion(ctx)
}

// RunMigrations executes the migrations.
func (p *Provider) RunMigrations(ctx context.Context, cfg MigrationConfig) error {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoopLogger()
	}
	log := cfg.Logger.With(zap.String("engine", p.engine))

	db, provider, err := p.open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	currentVersion, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get %s db version: %w", p.engine, err)
	}
	log.Info("current version", zap.Int64("version", currentVersion))

	if cfg.TargetVersion == 0 {
		log.Info("running all migrations")
		if _, err := provider.Up(ctx); err != nil {
			return fmt.Errorf("failed to run %s migrations: %w", p.engine, err)
		}
		log.Info("migration done")
		return nil
	}

	target := int64(cfg.TargetVersion)
	log.Info("migrating", zap.Int64("target", target))

	switch {
	case target < currentVersion:
		if _, err := provider.DownTo(ctx, target); err != nil {
			return fmt.Errorf("failed to run %s migrations down to %v: %w", p.engine, target, err)
		}
	case target > currentVersion:
		if _, err := provider.UpTo(ctx, target); err != nil {
			return fmt.Errorf("failed to run %s migrations up to %v: %w", p.engine, target, err)
		}
	default:
		log.Info("nothing to do")
		return nil
	}

	log.Info("migration done")
	return nil
}
