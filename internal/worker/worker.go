// Package worker polls the task queue and drives task execution.
package worker

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Psantium/walkaround/internal/attachment"
	"github.com/Psantium/walkaround/internal/importer"
	"github.com/Psantium/walkaround/internal/model"
	apperr "github.com/Psantium/walkaround/internal/pkg/errors"
	"github.com/Psantium/walkaround/internal/pkg/retry"
	"github.com/Psantium/walkaround/internal/pkg/timeutil"
	"github.com/Psantium/walkaround/internal/repo"
)

// maxAttempts bounds redelivery of a task that keeps failing transiently.
// Past it the task is dropped with an error log instead of poisoning the
// queue forever.
const maxAttempts = 20

type Worker struct {
	db           *sql.DB
	tasks        *repo.TaskRepo
	processor    *importer.Processor
	fetcher      *attachment.Fetcher
	pollInterval time.Duration
	lease        time.Duration
	batchSize    int
}

func New(db *sql.DB, tasks *repo.TaskRepo, processor *importer.Processor, fetcher *attachment.Fetcher,
	pollInterval, lease time.Duration, batchSize int) *Worker {
	return &Worker{
		db:           db,
		tasks:        tasks,
		processor:    processor,
		fetcher:      fetcher,
		pollInterval: pollInterval,
		lease:        lease,
		batchSize:    batchSize,
	}
}

// Run polls until ctx is cancelled. Tasks that fail transiently are left
// leased; the expired lease brings them back.
func (w *Worker) Run(ctx context.Context) {
	logger := logutil.GetLogger(ctx)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return
		case <-ticker.C:
		}
		if err := w.poll(ctx); err != nil {
			logger.Error("poll failed", zap.Error(err))
		}
	}
}

func (w *Worker) poll(ctx context.Context) error {
	now := timeutil.NowUnix()
	claimed, err := w.tasks.ClaimDue(ctx, w.db, now, now+int64(w.lease.Seconds()), w.batchSize)
	if err != nil {
		return err
	}
	if len(claimed) > 0 {
		due, leased, err := w.tasks.Depth(ctx, w.db, timeutil.NowUnix())
		if err == nil {
			logutil.GetLogger(ctx).Info("claimed tasks",
				zap.Int("claimed", len(claimed)), zap.Int64("due", due), zap.Int64("leased", leased))
		}
	}
	for _, task := range claimed {
		w.handle(ctx, task)
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, task model.QueuedTask) {
	logger := logutil.GetLogger(ctx).With(zap.String("task_id", task.ID), zap.Int("attempts", task.Attempts))
	var payload model.TaskPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		logger.Error("undecodable task, dropping", zap.Error(err))
		w.ack(ctx, task.ID)
		return
	}
	followups, err := w.dispatch(ctx, payload)
	if err != nil {
		if apperr.IsPermanent(err) {
			logger.Error("task failed permanently, dropping", zap.Error(err))
			w.ack(ctx, task.ID)
			return
		}
		if task.Attempts >= maxAttempts {
			logger.Error("task exhausted retries, dropping", zap.Error(err))
			w.ack(ctx, task.ID)
			return
		}
		logger.Warn("task failed, will redeliver after lease", zap.Error(err))
		return
	}
	// Followups and the ack commit together: either the task is replaced by
	// its successors or it is redelivered whole.
	err = retry.Transactional(ctx, w.db, func(tx *sql.Tx) error {
		for _, f := range followups {
			encoded, err := json.Marshal(f)
			if err != nil {
				return apperr.Permanent(err)
			}
			if err := w.tasks.Enqueue(ctx, tx, newTaskID(), string(encoded), timeutil.NowUnix()); err != nil {
				return err
			}
		}
		return w.tasks.Ack(ctx, tx, task.ID)
	})
	if err != nil {
		logger.Error("task completion not recorded, will redeliver", zap.Error(err))
		return
	}
	if len(followups) > 0 {
		logger.Info("task done, followups enqueued", zap.Int("followups", len(followups)))
	} else {
		logger.Info("task done")
	}
}

func (w *Worker) dispatch(ctx context.Context, payload model.TaskPayload) ([]model.TaskPayload, error) {
	switch {
	case payload.ImportWavelet != nil:
		return w.processor.ImportWavelet(ctx, payload.ImportWavelet)
	case payload.FetchAttachments != nil:
		return w.fetcher.FetchAll(ctx, payload.FetchAttachments)
	default:
		return nil, apperr.Permanentf("task payload has no body")
	}
}

func (w *Worker) ack(ctx context.Context, id string) {
	if err := w.tasks.Ack(ctx, w.db, id); err != nil {
		logutil.GetLogger(ctx).Error("ack failed", zap.String("task_id", id), zap.Error(err))
	}
}

// Submit enqueues a fresh task outside any worker transaction.
func Submit(ctx context.Context, db *sql.DB, tasks *repo.TaskRepo, payload model.TaskPayload) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	id := newTaskID()
	err = retry.Transactional(ctx, db, func(tx *sql.Tx) error {
		return tasks.Enqueue(ctx, tx, id, string(encoded), timeutil.NowUnix())
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func newTaskID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
