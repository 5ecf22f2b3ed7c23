package importer

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Psantium/walkaround/internal/model"
	apperr "github.com/Psantium/walkaround/internal/pkg/errors"
	"github.com/Psantium/walkaround/internal/repo"
	"github.com/Psantium/walkaround/internal/slob"
	"github.com/Psantium/walkaround/internal/testutil"
)

// Re-running the finish step after its commit must change nothing: the
// unlock reports the document already live and the per-user write and
// post-commit scheduling are skipped.
func TestFinishImportRerunAfterCommitIsInert(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	logRepo := repo.NewMutationLogRepo()
	metaRepo := repo.NewMetadataRepo()
	facilities := slob.NewFacilities(logRepo)
	creator := slob.NewCreator(db, logRepo, metaRepo, facilities)
	p := &Processor{
		db:         db,
		perUser:    repo.NewPerUserRepo(),
		shared:     repo.NewSharedImportRepo(),
		meta:       metaRepo,
		facilities: facilities,
	}

	name := claimName(t)
	slobID, err := creator.NewWithGeneratedID(ctx, nil, &model.ConvMetadata{
		Import: &model.ImportMetadata{
			Importer:        "carol",
			SourceInstance:  "remote",
			RemoteWaveID:    name.WaveID,
			RemoteWaveletID: name.WaveletID,
			BeginTimeMillis: 1234,
		},
	}, true)
	require.NoError(t, err)

	task := &model.ImportTask{
		UserID:      "carol",
		UserAddress: "carol@example.com",
		Instance:    "remote",
		WaveID:      name.WaveID,
		WaveletID:   name.WaveletID,
		SharingMode: model.SharingModePrivate,
	}
	lost, err := p.finishImport(ctx, privatePolicy{}, task, "remote", name, slobID)
	require.NoError(t, err)
	require.False(t, lost)

	meta, err := metaRepo.Get(ctx, db, slobID)
	require.NoError(t, err)
	require.True(t, meta.Import.ImportFinished)
	rec, err := p.perUser.Get(ctx, db, "carol", "remote", name)
	require.NoError(t, err)
	require.Equal(t, slobID, rec.PrivateLocalID)

	// Drain the scheduled post-commit entry and clear the per-user row so
	// that a rerun writing either would be visible.
	require.NoError(t, logRepo.AckPostCommit(ctx, db, slobID))
	_, err = db.ExecContext(ctx,
		`DELETE FROM per_user_wavelets WHERE user_id = $1 AND remote_wave_id = $2`,
		"carol", name.WaveID)
	require.NoError(t, err)

	err = inTx(t, db, func(tx *sql.Tx) error {
		unlocked, err := p.unlockWavelet(ctx, tx, slobID)
		require.NoError(t, err)
		require.False(t, unlocked)
		return nil
	})
	require.NoError(t, err)

	lost, err = p.finishImport(ctx, privatePolicy{}, task, "remote", name, slobID)
	require.NoError(t, err)
	require.False(t, lost)

	after, err := metaRepo.Get(ctx, db, slobID)
	require.NoError(t, err)
	require.Equal(t, meta, after)
	_, err = p.perUser.Get(ctx, db, "carol", "remote", name)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	pending, err := logRepo.ListPostCommit(ctx, db, 100)
	require.NoError(t, err)
	require.NotContains(t, pending, slobID)
}
