package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/Psantium/walkaround/internal/model"
	"github.com/Psantium/walkaround/internal/pkg/dbutil"
	apperr "github.com/Psantium/walkaround/internal/pkg/errors"
)

// MutationLogRepo is the append-only delta table plus the derived index
// row maintained by the pre-commit hook.
type MutationLogRepo struct{}

func NewMutationLogRepo() *MutationLogRepo {
	return &MutationLogRepo{}
}

func (r *MutationLogRepo) CreateSlob(ctx context.Context, q dbutil.Queryer, slobID string, ctime int64) error {
	data := map[string]interface{}{"id": slobID, "ctime": ctime}
	sqlStr, args, err := builder.BuildInsert("slobs", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = q.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *MutationLogRepo) AppendDeltas(ctx context.Context, q dbutil.Queryer, deltas []model.SlobDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(deltas))
	for _, d := range deltas {
		rows = append(rows, map[string]interface{}{
			"slob_id":   d.SlobID,
			"version":   d.Version,
			"client_id": d.ClientID,
			"payload":   d.Payload,
			"ctime":     d.Ctime,
		})
	}
	sqlStr, args, err := builder.BuildInsert("slob_deltas", rows)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = q.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *MutationLogRepo) ListDeltasSince(ctx context.Context, q dbutil.Queryer, slobID string, afterVersion int64, limit uint) ([]model.SlobDelta, error) {
	where := map[string]interface{}{
		"slob_id":    slobID,
		"version >": afterVersion,
		"_orderby":   "version asc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	cols := []string{"slob_id", "version", "client_id", "payload", "ctime"}
	sqlStr, args, err := builder.BuildSelect("slob_deltas", where, cols)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]model.SlobDelta, 0)
	for rows.Next() {
		var d model.SlobDelta
		if err := rows.Scan(&d.SlobID, &d.Version, &d.ClientID, &d.Payload, &d.Ctime); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *MutationLogRepo) HeadVersion(ctx context.Context, q dbutil.Queryer, slobID string) (int64, error) {
	const query = `SELECT COALESCE(MAX(version), 0) FROM slob_deltas WHERE slob_id = $1`
	var head int64
	if err := q.QueryRowContext(ctx, query, slobID).Scan(&head); err != nil {
		return 0, err
	}
	return head, nil
}

// UpsertIndex refreshes the reader-facing index row for a slob.
func (r *MutationLogRepo) UpsertIndex(ctx context.Context, q dbutil.Queryer, slobID string, version, lastModifiedMillis int64, participantsJSON string) error {
	const query = `
		INSERT INTO slob_index (slob_id, version, last_modified_millis, participants)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (slob_id) DO UPDATE
		SET version = EXCLUDED.version,
		    last_modified_millis = EXCLUDED.last_modified_millis,
		    participants = EXCLUDED.participants
	`
	_, err := q.ExecContext(ctx, query, slobID, version, lastModifiedMillis, participantsJSON)
	return err
}

func (r *MutationLogRepo) GetIndex(ctx context.Context, q dbutil.Queryer, slobID string) (version int64, lastModifiedMillis int64, participantsJSON string, err error) {
	const query = `SELECT version, last_modified_millis, participants FROM slob_index WHERE slob_id = $1`
	err = q.QueryRowContext(ctx, query, slobID).Scan(&version, &lastModifiedMillis, &participantsJSON)
	if err == sql.ErrNoRows {
		err = apperr.ErrNotFound
	}
	return
}

// SchedulePostCommit enqueues downstream post-commit work for a slob.
// Idempotent: re-scheduling an already-pending slob is a no-op.
func (r *MutationLogRepo) SchedulePostCommit(ctx context.Context, q dbutil.Queryer, slobID string, at int64) error {
	const query = `
		INSERT INTO post_commit_tasks (slob_id, scheduled_at)
		VALUES ($1, $2)
		ON CONFLICT (slob_id) DO NOTHING
	`
	_, err := q.ExecContext(ctx, query, slobID, at)
	return err
}

func (r *MutationLogRepo) ListPostCommit(ctx context.Context, q dbutil.Queryer, limit uint) ([]string, error) {
	const query = `SELECT slob_id FROM post_commit_tasks ORDER BY scheduled_at ASC LIMIT $1`
	rows, err := q.QueryContext(ctx, query, int64(limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *MutationLogRepo) AckPostCommit(ctx context.Context, q dbutil.Queryer, slobID string) error {
	const query = `DELETE FROM post_commit_tasks WHERE slob_id = $1`
	_, err := q.ExecContext(ctx, query, slobID)
	return err
}
