// Package job holds the periodic maintenance jobs run by the scheduler.
package job

import (
	"context"
	"database/sql"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Psantium/walkaround/internal/pkg/retry"
	"github.com/Psantium/walkaround/internal/repo"
	"github.com/Psantium/walkaround/internal/slob"
)

const postCommitBatchSize = 64

// PostCommitJob drains the post-commit queue: for each pending slob it
// re-derives the reader-facing index row from the mutation log and acks.
// Each slob runs in its own transaction so one bad entry cannot wedge the
// queue behind it.
type PostCommitJob struct {
	db         *sql.DB
	logRepo    *repo.MutationLogRepo
	facilities *slob.Facilities
}

func NewPostCommitJob(db *sql.DB, logRepo *repo.MutationLogRepo, facilities *slob.Facilities) *PostCommitJob {
	return &PostCommitJob{db: db, logRepo: logRepo, facilities: facilities}
}

func (j *PostCommitJob) Name() string {
	return "post_commit"
}

func (j *PostCommitJob) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	for {
		ids, err := j.logRepo.ListPostCommit(ctx, j.db, postCommitBatchSize)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		var failed int
		for _, slobID := range ids {
			if err := j.runOne(ctx, slobID); err != nil {
				logger.Error("post-commit failed, leaving queued",
					zap.String("slob_id", slobID), zap.Error(err))
				failed++
			}
		}
		// Everything left in the queue just failed; let the next tick retry.
		if failed == len(ids) {
			return nil
		}
	}
}

func (j *PostCommitJob) runOne(ctx context.Context, slobID string) error {
	return retry.Transactional(ctx, j.db, func(tx *sql.Tx) error {
		if err := j.facilities.RefreshIndex(ctx, tx, slobID); err != nil {
			return err
		}
		return j.logRepo.AckPostCommit(ctx, tx, slobID)
	})
}
