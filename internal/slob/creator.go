package slob

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"

	"github.com/Psantium/walkaround/internal/model"
	apperr "github.com/Psantium/walkaround/internal/pkg/errors"
	"github.com/Psantium/walkaround/internal/pkg/retry"
	"github.com/Psantium/walkaround/internal/pkg/timeutil"
	"github.com/Psantium/walkaround/internal/repo"
)

// Creator creates new slobs seeded with a full history.
type Creator struct {
	db         *sql.DB
	logRepo    *repo.MutationLogRepo
	metaRepo   *repo.MetadataRepo
	facilities *Facilities
}

func NewCreator(db *sql.DB, logRepo *repo.MutationLogRepo, metaRepo *repo.MetadataRepo, facilities *Facilities) *Creator {
	return &Creator{db: db, logRepo: logRepo, metaRepo: metaRepo, facilities: facilities}
}

// NewWithGeneratedID creates a slob with a fresh opaque id, the given
// history as deltas 1..n, and the given metadata, all in one retried
// transaction. With inhibitPostCommit the caller owns post-commit
// scheduling (the import workflow schedules during its unlock
// transaction instead).
func (c *Creator) NewWithGeneratedID(ctx context.Context, history []model.WaveletOperation, meta *model.ConvMetadata, inhibitPostCommit bool) (string, error) {
	var slobID string
	err := retry.Transactional(ctx, c.db, func(tx *sql.Tx) error {
		// Fresh id per attempt: an id collision is a conflict and must not
		// be replayed verbatim.
		slobID = newID()
		if err := c.logRepo.CreateSlob(ctx, tx, slobID, timeutil.NowUnix()); err != nil {
			return err
		}
		appender := c.facilities.PrepareAppender(&StateAndVersion{State: NewWaveletState()}, slobID)
		for _, op := range history {
			if err := appender.Append(ImportClientID, op); err != nil {
				return apperr.Permanent(err)
			}
		}
		if err := appender.Finish(ctx, tx); err != nil {
			return err
		}
		m := *meta
		m.SlobID = slobID
		if err := c.metaRepo.Create(ctx, tx, &m); err != nil {
			return err
		}
		if err := c.facilities.RunPreCommit(ctx, tx, slobID, appender); err != nil {
			return err
		}
		if !inhibitPostCommit {
			if err := c.facilities.SchedulePostCommit(ctx, tx, slobID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return slobID, nil
}

func newID() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
