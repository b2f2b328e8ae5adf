// Package postgres provides a PostgreSQL based store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver.
	"go.uber.org/zap"

	"github.com/shardquery/shardquery/pkg/storage"
	"github.com/shardquery/shardquery/pkg/storage/sqlcommon"
)

// Datastore provides a PostgreSQL based implementation of [storage.Store].
type Datastore struct {
	*sqlcommon.Datastore
}

// Ensures that Datastore implements the Store interface.
var _ storage.Store = (*Datastore)(nil)

// Dialect is the PostgreSQL flavour of the shared SQL store.
var Dialect = sqlcommon.Dialect{
	Name:           "postgres",
	Placeholder:    sq.Dollar,
	UpsertEntries:  "ON CONFLICT (shard, entry_key) DO UPDATE SET entry_value = EXCLUDED.entry_value, visibility = EXCLUDED.visibility",
	UpsertFields:   "ON CONFLICT (data_type, field_name) DO UPDATE SET field_type = EXCLUDED.field_type, indexed = EXCLUDED.indexed, index_only = EXCLUDED.index_only, reverse_indexed = EXCLUDED.reverse_indexed, cardinality = EXCLUDED.cardinality",
	HandleSQLError: HandleSQLError,
}

// PrepareURI applies username and password overrides to a connection uri.
func PrepareURI(uri, username, password string) (string, error) {
	if username == "" && password == "" {
		return uri, nil
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse postgres connection uri: %w", err)
	}

	if username == "" && parsed.User != nil {
		username = parsed.User.Username()
	}

	switch {
	case password != "":
		parsed.User = url.UserPassword(username, password)
	case parsed.User != nil:
		if existing, ok := parsed.User.Password(); ok {
			parsed.User = url.UserPassword(username, existing)
		} else {
			parsed.User = url.User(username)
		}
	default:
		parsed.User = url.User(username)
	}

	return parsed.String(), nil
}

// New creates a new [Datastore] storage.
func New(uri string, cfg *sqlcommon.Config) (*Datastore, error) {
	uri, err := PrepareURI(uri, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", uri)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres connection: %w", err)
	}
	sqlcommon.ApplyPoolSettings(db, cfg)

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 1 * time.Minute
	attempt := 1
	err = backoff.Retry(func() error {
		err = db.PingContext(context.Background())
		if err != nil {
			cfg.Logger.Info("waiting for database", zap.Int("attempt", attempt))
			attempt++
			return err
		}
		return nil
	}, policy)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	ds, err := sqlcommon.NewDatastore(db, Dialect, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Datastore{Datastore: ds}, nil
}

// serialization failures and deadlocks are safe to retry
var transientCodes = map[string]struct{}{
	"40001": {},
	"40P01": {},
	"57P03": {},
}

// HandleSQLError processes an SQL error and converts it into a more
// specific error type based on the nature of the SQL error.
func HandleSQLError(err error, _ ...interface{}) error {
	if mapped := sqlcommon.CommonSQLError(err); mapped != nil {
		return mapped
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := transientCodes[pgErr.Code]; ok {
			return storage.TransientError(err)
		}
	}

	return fmt.Errorf("sql error: %w", err)
}
