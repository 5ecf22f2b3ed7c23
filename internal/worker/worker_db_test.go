package worker_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Psantium/walkaround/internal/model"
	"github.com/Psantium/walkaround/internal/pkg/timeutil"
	"github.com/Psantium/walkaround/internal/repo"
	"github.com/Psantium/walkaround/internal/testutil"
	"github.com/Psantium/walkaround/internal/worker"
)

func TestSubmitEnqueuesDecodablePayload(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	tasks := repo.NewTaskRepo()
	task := &model.ImportTask{
		UserID:      "carol",
		UserAddress: "carol@example.com",
		Instance:    "remote",
		WaveID:      "example.com!w+abc",
		WaveletID:   "example.com!conv+root",
		SharingMode: model.SharingModeShared,
	}
	id, err := worker.Submit(ctx, db, tasks, model.TaskPayload{ImportWavelet: task})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	defer func() { _ = tasks.Ack(ctx, db, id) }()

	now := timeutil.NowUnix()
	claimed, err := tasks.ClaimDue(ctx, db, now, now+60, 1000)
	require.NoError(t, err)
	var payload string
	for _, c := range claimed {
		if c.ID == id {
			payload = c.Payload
		}
	}
	require.NotEmpty(t, payload)

	var decoded model.TaskPayload
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	require.Nil(t, decoded.FetchAttachments)
	require.NotNil(t, decoded.ImportWavelet)
	require.Equal(t, *task, *decoded.ImportWavelet)
}
