// Package sqlcommon holds the parts of the SQL stores shared by every
// dialect: configuration, paginated range scans, batched upserts and the
// field metadata table.
package sqlcommon

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shardquery/shardquery/pkg/logger"
	"github.com/shardquery/shardquery/pkg/storage"
)

var tracer = otel.Tracer("shardquery/pkg/storage/sqlcommon")

const (
	// MinimumSupportedSchemaRevision is the lowest migration revision the
	// stores can serve from.
	MinimumSupportedSchemaRevision = 2

	DefaultMaxEntriesPerWrite = 100

	entriesTable = "entries"
)

// Config defines the configuration parameters
// for setting up and managing a sql connection.
type Config struct {
	Username           string
	Password           string
	Logger             logger.Logger
	MaxEntriesPerWrite int
	ScanBatchSize      int

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	ExportMetrics bool
}

// DatastoreOption defines a function type
// used for configuring a Config object.
type DatastoreOption func(*Config)

// WithUsername returns a DatastoreOption that sets the username in the Config.
func WithUsername(username string) DatastoreOption {
	return func(config *Config) {
		config.Username = username
	}
}

// WithPassword returns a DatastoreOption that sets the password in the Config.
func WithPassword(password string) DatastoreOption {
	return func(config *Config) {
		config.Password = password
	}
}

// WithLogger returns a DatastoreOption that sets the Logger in the Config.
func WithLogger(l logger.Logger) DatastoreOption {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

// WithMaxEntriesPerWrite returns a DatastoreOption that sets the
// number of rows written per statement.
func WithMaxEntriesPerWrite(n int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxEntriesPerWrite = n
	}
}

// WithScanBatchSize returns a DatastoreOption that sets the
// number of rows fetched per scan query.
func WithScanBatchSize(n int) DatastoreOption {
	return func(cfg *Config) {
		cfg.ScanBatchSize = n
	}
}

// WithMaxOpenConns returns a DatastoreOption that sets the
// maximum number of open connections in the Config.
func WithMaxOpenConns(c int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxOpenConns = c
	}
}

// WithMaxIdleConns returns a DatastoreOption that sets the
// maximum number of idle connections in the Config.
func WithMaxIdleConns(c int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxIdleConns = c
	}
}

// WithConnMaxIdleTime returns a DatastoreOption that sets
// the maximum idle time for a connection in the Config.
func WithConnMaxIdleTime(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnMaxIdleTime = d
	}
}

// WithConnMaxLifetime returns a DatastoreOption that sets
// the maximum lifetime for a connection in the Config.
func WithConnMaxLifetime(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnMaxLifetime = d
	}
}

// WithMetrics returns a DatastoreOption that
// enables the export of metrics in the Config.
func WithMetrics() DatastoreOption {
	return func(cfg *Config) {
		cfg.ExportMetrics = true
	}
}

// NewConfig creates a new Config instance with default values
// and applies any provided DatastoreOption modifications.
func NewConfig(opts ...DatastoreOption) *Config {
	cfg := &Config{}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoopLogger()
	}

	if cfg.MaxEntriesPerWrite <= 0 {
		cfg.MaxEntriesPerWrite = DefaultMaxEntriesPerWrite
	}

	if cfg.ScanBatchSize <= 0 {
		cfg.ScanBatchSize = storage.DefaultScanBatchSize
	}

	return cfg
}

// ApplyPoolSettings copies the connection pool settings of cfg onto db.
func ApplyPoolSettings(db *sql.DB, cfg *Config) {
	if cfg.MaxOpenConns != 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if cfg.MaxIdleConns != 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if cfg.ConnMaxIdleTime != 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if cfg.ConnMaxLifetime != 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

type errorHandlerFn func(error, ...interface{}) error

// Dialect captures what differs between SQL engines.
type Dialect struct {
	// Name is the goose dialect name.
	Name        string
	Placeholder sq.PlaceholderFormat
	// UpsertEntries and UpsertFields are appended to the insert statements
	// to overwrite existing rows.
	UpsertEntries  string
	UpsertFields   string
	HandleSQLError errorHandlerFn
}

// DBInfo encapsulates DB information for use in common method.
type DBInfo struct {
	db             *sql.DB
	stbl           sq.StatementBuilderType
	dialect        Dialect
	HandleSQLError errorHandlerFn
}

// NewDBInfo constructs a [DBInfo] object.
func NewDBInfo(db *sql.DB, dialect Dialect) *DBInfo {
	if err := goose.SetDialect(dialect.Name); err != nil {
		panic("failed to set database dialect: " + err.Error())
	}

	return &DBInfo{
		db:             db,
		stbl:           sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder).RunWith(db),
		dialect:        dialect,
		HandleSQLError: dialect.HandleSQLError,
	}
}

// Datastore is a [storage.Store] over any SQL engine with a [Dialect].
type Datastore struct {
	dbInfo             *DBInfo
	logger             logger.Logger
	dbStatsCollector   prometheus.Collector
	scanBatchSize      int
	maxEntriesPerWrite int
}

var _ storage.Store = (*Datastore)(nil)

// NewDatastore wraps an open database.
func NewDatastore(db *sql.DB, dialect Dialect, cfg *Config) (*Datastore, error) {
	var collector prometheus.Collector
	if cfg.ExportMetrics {
		collector = collectors.NewDBStatsCollector(db, "shardquery")
		if err := prometheus.Register(collector); err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	return &Datastore{
		dbInfo:             NewDBInfo(db, dialect),
		logger:             cfg.Logger,
		dbStatsCollector:   collector,
		scanBatchSize:      cfg.ScanBatchSize,
		maxEntriesPerWrite: cfg.MaxEntriesPerWrite,
	}, nil
}

// DB returns the underlying database handle.
func (s *Datastore) DB() *sql.DB {
	return s.dbInfo.db
}

// Close see [storage.Store].Close.
func (s *Datastore) Close() {
	if s.dbStatsCollector != nil {
		prometheus.Unregister(s.dbStatsCollector)
	}
	s.dbInfo.db.Close()
}

// IsReady see [storage.Store].IsReady.
func (s *Datastore) IsReady(ctx context.Context) (storage.ReadinessStatus, error) {
	return IsReady(ctx, false, s.dbInfo.db)
}

// Scan see [storage.Reader].Scan.
func (s *Datastore) Scan(ctx context.Context, req storage.ScanRequest) (storage.EntryIterator, error) {
	ctx, span := tracer.Start(ctx, "sqlcommon.Scan", trace.WithAttributes(attribute.String("shard", req.Shard)))
	defer span.End()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if req.Range.Empty() {
		return storage.NewEmptyIterator[storage.Entry](), nil
	}

	batchSize := s.scanBatchSize
	if req.BatchSize > 0 {
		batchSize = req.BatchSize
	}
	iter := NewSQLEntryIterator(s.dbInfo, req.Shard, req.Range, batchSize)
	return storage.NewVisibilityFilteredIterator(iter, req.Filters), nil
}

// Shards see [storage.Reader].Shards.
func (s *Datastore) Shards(ctx context.Context, r storage.ShardRange) ([]string, error) {
	ctx, span := tracer.Start(ctx, "sqlcommon.Shards")
	defer span.End()

	sb := s.dbInfo.stbl.
		Select("shard").
		Distinct().
		From(entriesTable).
		OrderBy("shard")
	if r.Start != "" {
		sb = sb.Where(sq.GtOrEq{"shard": r.Start})
	}
	if r.End != "" {
		sb = sb.Where(sq.LtOrEq{"shard": r.End})
	}

	rows, err := sb.QueryContext(ctx)
	if err != nil {
		return nil, s.dbInfo.HandleSQLError(err)
	}
	defer rows.Close()

	var shards []string
	for rows.Next() {
		var shard string
		if err := rows.Scan(&shard); err != nil {
			return nil, s.dbInfo.HandleSQLError(err)
		}
		shards = append(shards, shard)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dbInfo.HandleSQLError(err)
	}
	return shards, nil
}

// Write see [storage.Writer].Write.
func (s *Datastore) Write(ctx context.Context, shard string, entries []storage.Entry) error {
	ctx, span := tracer.Start(ctx, "sqlcommon.Write", trace.WithAttributes(
		attribute.String("shard", shard),
		attribute.Int("entries", len(entries)),
	))
	defer span.End()

	if shard == "" {
		return fmt.Errorf("write requires a shard")
	}
	if len(entries) == 0 {
		return nil
	}

	txn, err := s.dbInfo.db.BeginTx(ctx, nil)
	if err != nil {
		return s.dbInfo.HandleSQLError(err)
	}
	defer func() {
		_ = txn.Rollback()
	}()

	for start := 0; start < len(entries); start += s.maxEntriesPerWrite {
		end := min(start+s.maxEntriesPerWrite, len(entries))

		ib := s.dbInfo.stbl.
			Insert(entriesTable).
			Columns("shard", "entry_key", "entry_value", "visibility").
			Suffix(s.dbInfo.dialect.UpsertEntries).
			RunWith(txn)
		for _, e := range entries[start:end] {
			ib = ib.Values(shard, e.Key, e.Value, e.Visibility)
		}
		if _, err := ib.ExecContext(ctx); err != nil {
			return s.dbInfo.HandleSQLError(err)
		}
	}

	if err := txn.Commit(); err != nil {
		return s.dbInfo.HandleSQLError(err)
	}
	s.logger.Debug("wrote entries", zap.String("shard", shard), zap.Int("count", len(entries)))
	return nil
}

// SQLEntryIterator pages through a key range of one shard, fetching
// batchSize rows per query.
type SQLEntryIterator struct {
	dbInfo    *DBInfo
	shard     string
	end       []byte
	batchSize int

	buffer    []storage.Entry // GUARDED_BY(mu)
	next      []byte          // GUARDED_BY(mu)
	exhausted bool            // GUARDED_BY(mu)
	stopped   bool            // GUARDED_BY(mu)
	mu        sync.Mutex
}

// Ensures that SQLEntryIterator implements the EntryIterator interface.
var _ storage.EntryIterator = (*SQLEntryIterator)(nil)

// NewSQLEntryIterator returns a SQL entry iterator.
func NewSQLEntryIterator(dbInfo *DBInfo, shard string, r storage.Range, batchSize int) *SQLEntryIterator {
	return &SQLEntryIterator{
		dbInfo:    dbInfo,
		shard:     shard,
		end:       r.End,
		batchSize: batchSize,
		next:      r.Start,
	}
}

func (t *SQLEntryIterator) fetchBuffer(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "sqlcommon.fetchBuffer")
	defer span.End()

	sb := t.dbInfo.stbl.
		Select("entry_key", "entry_value", "visibility").
		From(entriesTable).
		Where(sq.Eq{"shard": t.shard}).
		Where(sq.GtOrEq{"entry_key": nonNil(t.next)}).
		OrderBy("entry_key").
		Limit(uint64(t.batchSize))
	if t.end != nil {
		sb = sb.Where(sq.Lt{"entry_key": t.end})
	}

	rows, err := sb.QueryContext(ctx)
	if err != nil {
		return t.dbInfo.HandleSQLError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var e storage.Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.Visibility); err != nil {
			return t.dbInfo.HandleSQLError(err)
		}
		t.buffer = append(t.buffer, e)
	}
	if err := rows.Err(); err != nil {
		return t.dbInfo.HandleSQLError(err)
	}

	if len(t.buffer) < t.batchSize {
		t.exhausted = true
		return nil
	}
	last := t.buffer[len(t.buffer)-1].Key
	t.next = append(bytes.Clone(last), 0)
	return nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func (t *SQLEntryIterator) head(ctx context.Context) (storage.Entry, error) {
	if ctx.Err() != nil {
		return storage.Entry{}, ctx.Err()
	}
	if t.stopped {
		return storage.Entry{}, storage.ErrIteratorDone
	}
	if len(t.buffer) == 0 && !t.exhausted {
		if err := t.fetchBuffer(ctx); err != nil {
			return storage.Entry{}, err
		}
	}
	if len(t.buffer) == 0 {
		return storage.Entry{}, storage.ErrIteratorDone
	}
	return t.buffer[0], nil
}

// Next will return the next available entry.
func (t *SQLEntryIterator) Next(ctx context.Context) (storage.Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, err := t.head(ctx)
	if err != nil {
		return e, err
	}
	t.buffer = t.buffer[1:]
	return e, nil
}

// Head will return the first available entry.
func (t *SQLEntryIterator) Head(ctx context.Context) (storage.Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.head(ctx)
}

// Stop terminates iteration.
func (t *SQLEntryIterator) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.buffer = nil
}

// IsReady returns true if connection to datastore is successful AND
// (the datastore has the latest migration applied OR skipVersionCheck).
func IsReady(ctx context.Context, skipVersionCheck bool, db *sql.DB) (storage.ReadinessStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	// do ping first to ensure we have better error message
	// if error is due to connection issue.
	if pingErr := db.PingContext(ctx); pingErr != nil {
		return storage.ReadinessStatus{}, pingErr
	}

	if skipVersionCheck {
		return storage.ReadinessStatus{
			IsReady: true,
		}, nil
	}

	revision, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return storage.ReadinessStatus{}, err
	}

	if revision < MinimumSupportedSchemaRevision {
		return storage.ReadinessStatus{
			Message: "datastore requires migrations: at revision '" +
				strconv.FormatInt(revision, 10) +
				"', but requires '" +
				strconv.FormatInt(MinimumSupportedSchemaRevision, 10) +
				"'. Run 'shardquery migrate'.",
			IsReady: false,
		}, nil
	}
	return storage.ReadinessStatus{
		IsReady: true,
	}, nil
}

// CommonSQLError maps errors every engine reports the same way. It returns
// nil when err needs engine specific handling.
func CommonSQLError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return storage.ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", storage.ErrCancelled, err)
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, sql.ErrTxDone):
		return storage.TransientError(err)
	}
	return nil
}
