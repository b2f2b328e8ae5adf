// Package storagewrappers holds decorators over the storage interfaces.
package storagewrappers

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/shardquery/shardquery/pkg/logger"
	"github.com/shardquery/shardquery/pkg/storage"
)

const (
	DefaultMaxRetries      = 3
	DefaultInitialInterval = 50 * time.Millisecond
)

var _ storage.Reader = (*RetryingReader)(nil)

// RetryingReader retries Scan and Shards calls that fail with
// [storage.ErrTransient]. Other errors are returned as is.
type RetryingReader struct {
	storage.Reader
	maxRetries      uint64
	initialInterval time.Duration
	logger          logger.Logger
}

type RetryOption func(*RetryingReader)

func WithMaxRetries(n uint64) RetryOption {
	return func(r *RetryingReader) {
		r.maxRetries = n
	}
}

func WithInitialInterval(d time.Duration) RetryOption {
	return func(r *RetryingReader) {
		r.initialInterval = d
	}
}

func WithLogger(l logger.Logger) RetryOption {
	return func(r *RetryingReader) {
		r.logger = l
	}
}

func NewRetryingReader(wrapped storage.Reader, opts ...RetryOption) *RetryingReader {
	r := &RetryingReader{
		Reader:          wrapped,
		maxRetries:      DefaultMaxRetries,
		initialInterval: DefaultInitialInterval,
		logger:          logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RetryingReader) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	return backoff.WithContext(backoff.WithMaxRetries(b, r.maxRetries), ctx)
}

func retry[T any](ctx context.Context, r *RetryingReader, op string, fn func() (T, error)) (T, error) {
	attempt := 0
	return backoff.RetryWithData(func() (T, error) {
		attempt++
		v, err := fn()
		if err != nil && !errors.Is(err, storage.ErrTransient) {
			return v, backoff.Permanent(err)
		}
		if err != nil {
			r.logger.WarnWithContext(ctx, "transient storage error", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		}
		return v, err
	}, r.policy(ctx))
}

// Scan see [storage.Reader].Scan.
func (r *RetryingReader) Scan(ctx context.Context, req storage.ScanRequest) (storage.EntryIterator, error) {
	return retry(ctx, r, "scan", func() (storage.EntryIterator, error) {
		return r.Reader.Scan(ctx, req)
	})
}

// Shards see [storage.Reader].Shards.
func (r *RetryingReader) Shards(ctx context.Context, sr storage.ShardRange) ([]string, error) {
	return retry(ctx, r, "shards", func() ([]string, error) {
		return r.Reader.Shards(ctx, sr)
	})
}
