package importer

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Psantium/walkaround/internal/pkg/dbutil"
	"github.com/Psantium/walkaround/internal/repo"
	"github.com/Psantium/walkaround/internal/testutil"
	"github.com/Psantium/walkaround/internal/wave"
)

func claimName(t *testing.T) wave.WaveletName {
	t.Helper()
	buf := make([]byte, 8)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	name, err := wave.NewWaveletName("example.com!w+"+hex.EncodeToString(buf), "example.com!conv+root")
	require.NoError(t, err)
	return name
}

func inTx(t *testing.T, db *sql.DB, body func(tx *sql.Tx) error) error {
	t.Helper()
	tx, err := db.Begin()
	require.NoError(t, err)
	if err := body(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func TestSharedClaimFirstWriterWins(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	p := &Processor{shared: repo.NewSharedImportRepo()}
	name := claimName(t)

	err := inTx(t, db, func(tx *sql.Tx) error {
		lost, err := sharedPolicy{}.claim(ctx, tx, p, "remote", name, "", "slob-1")
		require.NoError(t, err)
		require.False(t, lost)
		return nil
	})
	require.NoError(t, err)

	// A later claimer re-reads inside its transaction, sees the winner and
	// reports the race as lost without writing anything.
	err = inTx(t, db, func(tx *sql.Tx) error {
		lost, err := sharedPolicy{}.claim(ctx, tx, p, "remote", name, "", "slob-2")
		require.NoError(t, err)
		require.True(t, lost)
		return nil
	})
	require.NoError(t, err)

	rec, err := p.shared.Get(ctx, db, "remote", name)
	require.NoError(t, err)
	require.Equal(t, "slob-1", rec.LocalID)
}

func TestSharedClaimSupersedesIgnoredID(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	p := &Processor{shared: repo.NewSharedImportRepo()}
	name := claimName(t)
	require.NoError(t, p.shared.Put(ctx, db, "remote", name, "slob-old"))

	err := inTx(t, db, func(tx *sql.Tx) error {
		lost, err := sharedPolicy{}.claim(ctx, tx, p, "remote", name, "slob-old", "slob-new")
		require.NoError(t, err)
		require.False(t, lost)
		return nil
	})
	require.NoError(t, err)

	rec, err := p.shared.Get(ctx, db, "remote", name)
	require.NoError(t, err)
	require.Equal(t, "slob-new", rec.LocalID)
}

func TestSharedClaimConcurrentInsertCollides(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	p := &Processor{shared: repo.NewSharedImportRepo()}
	name := claimName(t)

	tx1, err := db.Begin()
	require.NoError(t, err)
	lost, err := sharedPolicy{}.claim(ctx, tx1, p, "remote", name, "", "slob-1")
	require.NoError(t, err)
	require.False(t, lost)

	// The second claimer cannot see tx1's uncommitted row, so its insert
	// blocks on the primary key until tx1 commits, then surfaces the unique
	// violation as a conflict.
	type claimResult struct {
		lost bool
		err  error
	}
	results := make(chan claimResult, 1)
	go func() {
		tx2, err := db.Begin()
		if err != nil {
			results <- claimResult{err: err}
			return
		}
		defer func() { _ = tx2.Rollback() }()
		lost, err := sharedPolicy{}.claim(ctx, tx2, p, "remote", name, "", "slob-2")
		results <- claimResult{lost: lost, err: err}
	}()
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, tx1.Commit())

	res := <-results
	if res.err != nil {
		require.True(t, dbutil.IsConflict(res.err))
	} else {
		require.True(t, res.lost)
	}

	// The loser's transaction re-runs, re-reads, and reports the race lost
	// without writing anything.
	err = inTx(t, db, func(tx *sql.Tx) error {
		lost, err := sharedPolicy{}.claim(ctx, tx, p, "remote", name, "", "slob-2")
		require.NoError(t, err)
		require.True(t, lost)
		return nil
	})
	require.NoError(t, err)

	rec, err := p.shared.Get(ctx, db, "remote", name)
	require.NoError(t, err)
	require.Equal(t, "slob-1", rec.LocalID)
}

func TestPrivateClaimNeverContends(t *testing.T) {
	p := &Processor{}
	lost, err := privatePolicy{}.claim(context.Background(), nil, p, "remote", wave.WaveletName{}, "", "slob-1")
	require.NoError(t, err)
	require.False(t, lost)
}
