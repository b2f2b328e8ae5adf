// Package mysql provides a MySQL based store.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/shardquery/shardquery/pkg/storage"
	"github.com/shardquery/shardquery/pkg/storage/sqlcommon"
)

// MySQL provides a MySQL based implementation of [storage.Store].
type MySQL struct {
	*sqlcommon.Datastore
}

// Ensures that MySQL implements the Store interface.
var _ storage.Store = (*MySQL)(nil)

// Dialect is the MySQL flavour of the shared SQL store.
var Dialect = sqlcommon.Dialect{
	Name:           "mysql",
	Placeholder:    sq.Question,
	UpsertEntries:  "ON DUPLICATE KEY UPDATE entry_value = VALUES(entry_value), visibility = VALUES(visibility)",
	UpsertFields:   "ON DUPLICATE KEY UPDATE field_type = VALUES(field_type), indexed = VALUES(indexed), index_only = VALUES(index_only), reverse_indexed = VALUES(reverse_indexed), cardinality = VALUES(cardinality)",
	HandleSQLError: HandleSQLError,
}

// PrepareDSN applies username and password overrides to a DSN.
func PrepareDSN(uri, username, password string) (string, error) {
	dsnCfg, err := mysql.ParseDSN(uri)
	if err != nil {
		return "", fmt.Errorf("failed to parse mysql connection dsn: %w", err)
	}

	if username != "" {
		dsnCfg.User = username
	}
	if password != "" {
		dsnCfg.Passwd = password
	}
	return dsnCfg.FormatDSN(), nil
}

// New creates a new [MySQL] storage.
func New(uri string, cfg *sqlcommon.Config) (*MySQL, error) {
	uri, err := PrepareDSN(uri, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mysql connection: %w", err)
	}
	sqlcommon.ApplyPoolSettings(db, cfg)

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 1 * time.Minute
	attempt := 1
	err = backoff.Retry(func() error {
		err = db.PingContext(context.Background())
		if err != nil {
			cfg.Logger.Info("waiting for mysql", zap.Int("attempt", attempt))
			attempt++
			return err
		}
		return nil
	}, policy)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize mysql connection: %w", err)
	}

	ds, err := sqlcommon.NewDatastore(db, Dialect, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &MySQL{Datastore: ds}, nil
}

// lock wait timeouts and deadlocks are safe to retry
var transientCodes = map[uint16]struct{}{
	1205: {},
	1213: {},
}

// HandleSQLError processes an SQL error and converts it into a more
// specific error type based on the nature of the SQL error.
func HandleSQLError(err error, _ ...interface{}) error {
	if mapped := sqlcommon.CommonSQLError(err); mapped != nil {
		return mapped
	}

	var me *mysql.MySQLError
	if errors.As(err, &me) {
		if _, ok := transientCodes[me.Number]; ok {
			return storage.TransientError(err)
		}
	}

	return fmt.Errorf("sql error: %w", err)
}
