// Package sqlite provides a SQLite based store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/shardquery/shardquery/pkg/storage"
	"github.com/shardquery/shardquery/pkg/storage/sqlcommon"
)

var tracer = otel.Tracer("shardquery/pkg/storage/sqlite")

func startTrace(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "sqlite."+name)
}

// Datastore provides a SQLite based implementation of [storage.Store].
type Datastore struct {
	*sqlcommon.Datastore
}

// Ensures that SQLite implements the Store interface.
var _ storage.Store = (*Datastore)(nil)

// Dialect is the SQLite flavour of the shared SQL store.
var Dialect = sqlcommon.Dialect{
	Name:           "sqlite",
	Placeholder:    sq.Question,
	UpsertEntries:  "ON CONFLICT (shard, entry_key) DO UPDATE SET entry_value = excluded.entry_value, visibility = excluded.visibility",
	UpsertFields:   "ON CONFLICT (data_type, field_name) DO UPDATE SET field_type = excluded.field_type, indexed = excluded.indexed, index_only = excluded.index_only, reverse_indexed = excluded.reverse_indexed, cardinality = excluded.cardinality",
	HandleSQLError: HandleSQLError,
}

// PrepareDSN prepares a raw DSN from config for use with SQLite, specifying defaults for journal mode and busy timeout.
func PrepareDSN(uri string) (string, error) {
	// Set journal mode and busy timeout pragmas if not specified.
	query := url.Values{}
	var err error

	if i := strings.Index(uri, "?"); i != -1 {
		query, err = url.ParseQuery(uri[i+1:])
		if err != nil {
			return uri, fmt.Errorf("error parsing dsn: %w", err)
		}

		uri = uri[:i]
	}

	foundJournalMode := false
	foundBusyTimeout := false
	for _, val := range query["_pragma"] {
		if strings.HasPrefix(val, "journal_mode") {
			foundJournalMode = true
		} else if strings.HasPrefix(val, "busy_timeout") {
			foundBusyTimeout = true
		}
	}

	if !foundJournalMode {
		query.Add("_pragma", "journal_mode(WAL)")
	}
	if !foundBusyTimeout {
		query.Add("_pragma", "busy_timeout(100)")
	}

	// Set transaction mode to immediate if not specified
	if !query.Has("_txlock") {
		query.Set("_txlock", "immediate")
	}

	uri += "?" + query.Encode()

	return uri, nil
}

// New creates a new [Datastore] storage.
func New(uri string, cfg *sqlcommon.Config) (*Datastore, error) {
	uri, err := PrepareDSN(uri)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, fmt.Errorf("initialize sqlite connection: %w", err)
	}
	sqlcommon.ApplyPoolSettings(db, cfg)

	ds, err := sqlcommon.NewDatastore(db, Dialect, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Datastore{Datastore: ds}, nil
}

// Write see [storage.Writer].Write. SQLite reports a busy database instead
// of waiting for the lock, so writes are retried a few times.
func (s *Datastore) Write(ctx context.Context, shard string, entries []storage.Entry) error {
	ctx, span := startTrace(ctx, "Write")
	defer span.End()

	return busyRetry(func() error {
		return s.Datastore.Write(ctx, shard, entries)
	})
}

// HandleSQLError processes an SQL error and converts it into a more
// specific error type based on the nature of the SQL error.
func HandleSQLError(err error, _ ...interface{}) error {
	if mapped := sqlcommon.CommonSQLError(err); mapped != nil {
		return mapped
	}

	if isBusyError(err) {
		return storage.TransientError(err)
	}

	return fmt.Errorf("sql error: %w", err)
}

// SQLite will return an SQLITE_BUSY error when the database is locked rather than waiting for the lock.
// This function retries the operation up to maxRetries times before returning the error.
func busyRetry(fn func() error) error {
	const maxRetries = 10
	for retries := 0; ; retries++ {
		err := fn()
		if err == nil {
			return nil
		}

		if isBusyError(err) {
			if retries < maxRetries {
				continue
			}

			return fmt.Errorf("sqlite busy error after %d retries: %w", maxRetries, err)
		}

		return err
	}
}

var busyErrors = map[int]struct{}{
	sqlite3.SQLITE_BUSY_RECOVERY:      {},
	sqlite3.SQLITE_BUSY_SNAPSHOT:      {},
	sqlite3.SQLITE_BUSY_TIMEOUT:       {},
	sqlite3.SQLITE_BUSY:               {},
	sqlite3.SQLITE_LOCKED_SHAREDCACHE: {},
	sqlite3.SQLITE_LOCKED:             {},
}

func isBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	_, ok := busyErrors[sqliteErr.Code()]
	return ok
}
