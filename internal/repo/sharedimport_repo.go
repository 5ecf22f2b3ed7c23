package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/Psantium/walkaround/internal/model"
	"github.com/Psantium/walkaround/internal/pkg/dbutil"
	apperr "github.com/Psantium/walkaround/internal/pkg/errors"
	"github.com/Psantium/walkaround/internal/pkg/timeutil"
	"github.com/Psantium/walkaround/internal/wave"
)

// SharedImportRepo records the single canonical local copy of a remote
// wavelet imported in shared mode. The primary key makes concurrent claims
// collide; the loser's unique violation surfaces as a conflict.
type SharedImportRepo struct{}

func NewSharedImportRepo() *SharedImportRepo {
	return &SharedImportRepo{}
}

func (r *SharedImportRepo) Get(ctx context.Context, q dbutil.Queryer, instance string, name wave.WaveletName) (*model.SharedImportRecord, error) {
	where := map[string]interface{}{
		"source_instance":   instance,
		"remote_wave_id":    name.WaveID,
		"remote_wavelet_id": name.WaveletID,
	}
	cols := []string{"source_instance", "remote_wave_id", "remote_wavelet_id", "local_id", "ctime"}
	sqlStr, args, err := builder.BuildSelect("shared_imports", where, cols)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := q.QueryRowContext(ctx, sqlStr, args...)
	rec := &model.SharedImportRecord{}
	err = row.Scan(&rec.Instance, &rec.WaveID, &rec.WaveletID, &rec.LocalID, &rec.Ctime)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *SharedImportRepo) Put(ctx context.Context, q dbutil.Queryer, instance string, name wave.WaveletName, localID string) error {
	data := map[string]interface{}{
		"source_instance":   instance,
		"remote_wave_id":    name.WaveID,
		"remote_wavelet_id": name.WaveletID,
		"local_id":          localID,
		"ctime":             timeutil.NowUnix(),
	}
	sqlStr, args, err := builder.BuildInsert("shared_imports", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = q.ExecContext(ctx, sqlStr, args...)
	return err
}

// Replace swaps the canonical id only if it still equals oldID. Losing the
// compare-and-set is a transient conflict: the caller's transaction re-runs
// and re-reads.
func (r *SharedImportRepo) Replace(ctx context.Context, q dbutil.Queryer, instance string, name wave.WaveletName, oldID, newID string) error {
	where := map[string]interface{}{
		"source_instance":   instance,
		"remote_wave_id":    name.WaveID,
		"remote_wavelet_id": name.WaveletID,
		"local_id":          oldID,
	}
	update := map[string]interface{}{"local_id": newID}
	sqlStr, args, err := builder.BuildUpdate("shared_imports", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := q.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.Retryable(apperr.ErrConflict)
	}
	return nil
}
