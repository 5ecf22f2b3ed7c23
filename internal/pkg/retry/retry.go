package retry

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Psantium/walkaround/internal/pkg/dbutil"
	apperr "github.com/Psantium/walkaround/internal/pkg/errors"
)

const (
	maxRetries      = 8
	initialInterval = 20 * time.Millisecond
	maxInterval     = 2 * time.Second
)

// Transactional runs body inside a transaction, re-running the whole unit
// (including a fresh transaction) on transient failure with exponential
// backoff. Permanent failures abort immediately. A body must be safe to
// re-run from scratch: no side effects outside the transaction it is given.
func Transactional(ctx context.Context, db *sql.DB, body func(tx *sql.Tx) error) error {
	attempt := 0
	op := func() error {
		attempt++
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := body(tx); err != nil {
			_ = tx.Rollback()
			return classify(ctx, attempt, err)
		}
		if err := tx.Commit(); err != nil {
			return classify(ctx, attempt, err)
		}
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval
	bo.MaxInterval = maxInterval
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
}

func classify(ctx context.Context, attempt int, err error) error {
	if apperr.IsPermanent(err) {
		return backoff.Permanent(err)
	}
	if apperr.IsRetryable(err) || dbutil.IsConflict(err) {
		logutil.GetLogger(ctx).Debug("transient failure, will retry",
			zap.Int("attempt", attempt), zap.Error(err))
		return err
	}
	return backoff.Permanent(err)
}
