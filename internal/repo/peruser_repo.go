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

var perUserColumns = []string{
	"user_id", "source_instance", "remote_wave_id", "remote_wavelet_id",
	"private_local_id", "shared_local_id", "ctime", "mtime",
}

// PerUserRepo is the per-(user, instance, remote wavelet) dedup table.
// Every method runs against the supplied Queryer, so callers control
// whether it participates in a transaction.
type PerUserRepo struct{}

func NewPerUserRepo() *PerUserRepo {
	return &PerUserRepo{}
}

func (r *PerUserRepo) Get(ctx context.Context, q dbutil.Queryer, userID, instance string, name wave.WaveletName) (*model.RemoteWaveletRecord, error) {
	where := map[string]interface{}{
		"user_id":           userID,
		"source_instance":   instance,
		"remote_wave_id":    name.WaveID,
		"remote_wavelet_id": name.WaveletID,
	}
	sqlStr, args, err := builder.BuildSelect("per_user_wavelets", where, perUserColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := q.QueryRowContext(ctx, sqlStr, args...)
	rec := &model.RemoteWaveletRecord{}
	err = row.Scan(&rec.UserID, &rec.Instance, &rec.WaveID, &rec.WaveletID,
		&rec.PrivateLocalID, &rec.SharedLocalID, &rec.Ctime, &rec.Mtime)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SetLocalID records localID in the record's slot for mode, creating the
// record if absent. A conflicting prior entry in the slot is overwritten
// unconditionally: last write wins.
func (r *PerUserRepo) SetLocalID(ctx context.Context, q dbutil.Queryer, userID, instance string, name wave.WaveletName, mode model.SharingMode, localID string) error {
	slot := "private_local_id"
	if mode == model.SharingModeShared {
		slot = "shared_local_id"
	}
	now := timeutil.NowUnix()
	where := map[string]interface{}{
		"user_id":           userID,
		"source_instance":   instance,
		"remote_wave_id":    name.WaveID,
		"remote_wavelet_id": name.WaveletID,
	}
	update := map[string]interface{}{
		slot:    localID,
		"mtime": now,
	}
	sqlStr, args, err := builder.BuildUpdate("per_user_wavelets", where, update)
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
	if affected > 0 {
		return nil
	}
	data := map[string]interface{}{
		"user_id":           userID,
		"source_instance":   instance,
		"remote_wave_id":    name.WaveID,
		"remote_wavelet_id": name.WaveletID,
		slot:                localID,
		"ctime":             now,
		"mtime":             now,
	}
	sqlStr, args, err = builder.BuildInsert("per_user_wavelets", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = q.ExecContext(ctx, sqlStr, args...)
	return err
}
