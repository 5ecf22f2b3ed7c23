package importer

import (
	"context"
	"database/sql"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Psantium/walkaround/internal/convert"
	apperr "github.com/Psantium/walkaround/internal/pkg/errors"
	"github.com/Psantium/walkaround/internal/pkg/retry"
	"github.com/Psantium/walkaround/internal/slob"
)

// EnsureParticipant makes sure userAddress participates in an existing,
// finished shared import. The appended operation reuses the document's
// last-modified time so that joining does not reorder recency-based views
// for other consumers.
func (p *Processor) EnsureParticipant(ctx context.Context, userAddress, slobID string) error {
	logger := logutil.GetLogger(ctx).With(zap.String("slob_id", slobID), zap.String("user", userAddress))
	return retry.Transactional(ctx, p.db, func(tx *sql.Tx) error {
		meta, err := p.meta.Get(ctx, tx, slobID)
		if err != nil {
			return err
		}
		if meta.Import == nil {
			return apperr.Permanentf("%s: metadata has no import", slobID)
		}
		if !meta.Import.ImportFinished {
			return apperr.Permanentf("%s: still importing", slobID)
		}
		sv, err := p.facilities.Reconstruct(ctx, tx, slobID)
		if err != nil {
			return err
		}
		if sv.Version == 0 {
			return apperr.Permanentf("%s at version 0", slobID)
		}
		if sv.State.Contains(userAddress) {
			logger.Info("already a participant", zap.Int64("version", sv.Version))
			return nil
		}
		op := convert.NewAddParticipant(userAddress, sv.State.LastModifiedMillis(), userAddress)
		logger.Info("not a participant, adding", zap.Int64("version", sv.Version))
		appender := p.facilities.PrepareAppender(sv, slobID)
		if err := appender.Append(slob.ImportClientID, op); err != nil {
			return apperr.Permanent(err)
		}
		if err := appender.Finish(ctx, tx); err != nil {
			return err
		}
		if err := p.facilities.RunPreCommit(ctx, tx, slobID, appender); err != nil {
			return err
		}
		return p.facilities.SchedulePostCommit(ctx, tx, slobID)
	})
}
