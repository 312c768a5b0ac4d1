package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is one attempt of a write that may lose a uniqueness race.
type Operation func(ctx context.Context) error

// RetryableFunc reports whether err warrants another attempt.
type RetryableFunc func(err error) bool

const DefaultMaxRetries = 3

// Try runs op, retrying up to DefaultMaxRetries times while it fails with a
// Mongo duplicate-key error. Callers write op so that a retry re-reads the
// row that won the race instead of inserting again.
func Try(ctx context.Context, op Operation) error {
	return WithRetries(ctx, op, DefaultMaxRetries, IsDuplicateKeyError)
}

// WithRetries runs op once plus at most maxRetries more times. Errors that
// retryable rejects are returned immediately. The wait between attempts
// grows linearly and is cut short when ctx is done.
func WithRetries(ctx context.Context, op Operation, maxRetries int, retryable RetryableFunc) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt == maxRetries || !retryable(err) {
			return err
		}

		timer := time.NewTimer(time.Duration(25*(attempt+1)) * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}

// IsDuplicateKeyError reports whether err carries Mongo error code 11000,
// either directly or inside a (bulk) write exception.
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, e := range bwe.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return false
}
