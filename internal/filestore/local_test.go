package filestore_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Psantium/walkaround/internal/config"
	"github.com/Psantium/walkaround/internal/filestore"
)

type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

func TestLocalStoreSaveAndOpen(t *testing.T) {
	store, err := filestore.New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": t.TempDir()},
	})
	require.NoError(t, err)

	ctx := context.Background()
	payload := []byte("attachment bytes")
	require.NoError(t, store.Save(ctx, "att-1", memFile{bytes.NewReader(payload)}, int64(len(payload))))

	rc, err := store.Open(ctx, "att-1")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestLocalStoreRejectsPathKeys(t *testing.T) {
	store, err := filestore.New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": t.TempDir()},
	})
	require.NoError(t, err)

	ctx := context.Background()
	err = store.Save(ctx, "../escape", memFile{bytes.NewReader(nil)}, 0)
	require.Error(t, err)
	_, err = store.Open(ctx, "a/b")
	require.Error(t, err)
	err = store.Save(ctx, "", memFile{bytes.NewReader(nil)}, 0)
	require.Error(t, err)
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := filestore.New(config.FileStoreConfig{Type: "gcs"})
	require.Error(t, err)
	_, err = filestore.New(config.FileStoreConfig{Type: ""})
	require.Error(t, err)
}
