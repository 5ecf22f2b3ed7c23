package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/Psantium/walkaround/internal/model"
	"github.com/Psantium/walkaround/internal/pkg/dbutil"
	apperr "github.com/Psantium/walkaround/internal/pkg/errors"
)

// MetadataRepo stores per-slob import lock metadata.
type MetadataRepo struct{}

func NewMetadataRepo() *MetadataRepo {
	return &MetadataRepo{}
}

func (r *MetadataRepo) Create(ctx context.Context, q dbutil.Queryer, meta *model.ConvMetadata) error {
	if meta.Import == nil {
		return apperr.ErrInvalid
	}
	data := map[string]interface{}{
		"slob_id":           meta.SlobID,
		"import_finished":   meta.Import.ImportFinished,
		"importer":          meta.Import.Importer,
		"source_instance":   meta.Import.SourceInstance,
		"remote_wave_id":    meta.Import.RemoteWaveID,
		"remote_wavelet_id": meta.Import.RemoteWaveletID,
		"begin_time_millis": meta.Import.BeginTimeMillis,
	}
	sqlStr, args, err := builder.BuildInsert("conv_metadata", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = q.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *MetadataRepo) Get(ctx context.Context, q dbutil.Queryer, slobID string) (*model.ConvMetadata, error) {
	where := map[string]interface{}{"slob_id": slobID}
	cols := []string{"slob_id", "import_finished", "importer", "source_instance",
		"remote_wave_id", "remote_wavelet_id", "begin_time_millis"}
	sqlStr, args, err := builder.BuildSelect("conv_metadata", where, cols)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := q.QueryRowContext(ctx, sqlStr, args...)
	meta := &model.ConvMetadata{Import: &model.ImportMetadata{}}
	err = row.Scan(&meta.SlobID, &meta.Import.ImportFinished, &meta.Import.Importer,
		&meta.Import.SourceInstance, &meta.Import.RemoteWaveID,
		&meta.Import.RemoteWaveletID, &meta.Import.BeginTimeMillis)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// SetFinished flips import_finished to true. Callers decide idempotence by
// reading first; flipping an already-true flag is harmless.
func (r *MetadataRepo) SetFinished(ctx context.Context, q dbutil.Queryer, slobID string) error {
	where := map[string]interface{}{"slob_id": slobID}
	update := map[string]interface{}{"import_finished": true}
	sqlStr, args, err := builder.BuildUpdate("conv_metadata", where, update)
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
		return apperr.ErrNotFound
	}
	return nil
}
