package repo

import (
	"context"

	"github.com/didi/gendry/builder"

	"github.com/Psantium/walkaround/internal/model"
	"github.com/Psantium/walkaround/internal/pkg/dbutil"
)

// TaskRepo is the lease-based task queue. Claimed tasks hold a lease and
// are redelivered after it expires, so delivery is at-least-once; the
// workflow itself is responsible for making redelivery harmless.
type TaskRepo struct{}

func NewTaskRepo() *TaskRepo {
	return &TaskRepo{}
}

func (r *TaskRepo) Enqueue(ctx context.Context, q dbutil.Queryer, id, payload string, ctime int64) error {
	data := map[string]interface{}{
		"id":      id,
		"payload": payload,
		"ctime":   ctime,
	}
	sqlStr, args, err := builder.BuildInsert("import_tasks", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = q.ExecContext(ctx, sqlStr, args...)
	return err
}

// ClaimDue leases up to limit due tasks. SKIP LOCKED keeps concurrent
// workers from blocking on each other's claims.
func (r *TaskRepo) ClaimDue(ctx context.Context, q dbutil.Queryer, now, leaseUntil int64, limit int) ([]model.QueuedTask, error) {
	const query = `
		UPDATE import_tasks
		SET lease_until = $1, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM import_tasks
			WHERE lease_until < $2
			ORDER BY ctime ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, payload, attempts, lease_until, ctime
	`
	rows, err := q.QueryContext(ctx, query, leaseUntil, now, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]model.QueuedTask, 0)
	for rows.Next() {
		var t model.QueuedTask
		if err := rows.Scan(&t.ID, &t.Payload, &t.Attempts, &t.LeaseUntil, &t.Ctime); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TaskRepo) Ack(ctx context.Context, q dbutil.Queryer, id string) error {
	where := map[string]interface{}{"id": id}
	sqlStr, args, err := builder.BuildDelete("import_tasks", where)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = q.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *TaskRepo) Depth(ctx context.Context, q dbutil.Queryer, now int64) (due int64, leased int64, err error) {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE lease_until < $1),
			COUNT(*) FILTER (WHERE lease_until >= $1)
		FROM import_tasks
	`
	err = q.QueryRowContext(ctx, query, now).Scan(&due, &leased)
	return
}
