package fetch_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Psantium/walkaround/internal/config"
	"github.com/Psantium/walkaround/internal/fetch"
	"github.com/Psantium/walkaround/internal/model"
	apperr "github.com/Psantium/walkaround/internal/pkg/errors"
	"github.com/Psantium/walkaround/internal/wave"
)

func testInstance(t *testing.T, apiURL string) fetch.SourceInstance {
	t.Helper()
	factory := fetch.NewInstanceFactory(map[string]config.InstanceConfig{
		"remote": {APIURL: apiURL},
	})
	instance, err := factory.Parse("remote")
	require.NoError(t, err)
	return instance
}

func TestInstanceFactoryRejectsUnknownInstance(t *testing.T) {
	factory := fetch.NewInstanceFactory(map[string]config.InstanceConfig{})
	_, err := factory.Parse("nope")
	require.Error(t, err)
}

func TestGetSnapshot(t *testing.T) {
	wavelet := model.RemoteWavelet{
		WaveID:       "example.com!w+abc",
		WaveletID:    "example.com!conv+root",
		Creator:      "alice@example.com",
		Participants: []string{"alice@example.com"},
		Version:      7,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/robot/snapshot", r.URL.Path)
		require.Equal(t, "example.com!w+abc", r.URL.Query().Get("wave"))
		require.Equal(t, "example.com!conv+root", r.URL.Query().Get("wavelet"))
		require.Equal(t, "alice@example.com", r.Header.Get("X-Acting-User"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"wavelet": wavelet,
			"documents": []model.RemoteDocument{
				{DocumentID: "b+blip1"},
			},
		})
	}))
	defer server.Close()

	api := fetch.NewHTTPFactory().Create(testInstance(t, server.URL), "alice@example.com")
	name, err := wave.NewWaveletName("example.com!w+abc", "example.com!conv+root")
	require.NoError(t, err)
	got, docs, err := api.GetSnapshot(context.Background(), name)
	require.NoError(t, err)
	require.Equal(t, wavelet, got)
	require.Len(t, docs, 1)
	require.Equal(t, "b+blip1", docs[0].DocumentID)
}

func TestGetSnapshotAccessDenied(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	api := fetch.NewHTTPFactory().Create(testInstance(t, server.URL), "alice@example.com")
	name, err := wave.NewWaveletName("w", "conv")
	require.NoError(t, err)
	_, _, err = api.GetSnapshot(context.Background(), name)
	require.True(t, apperr.IsAccessDenied(err))
}

func TestFetchAttachment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/attachment/one" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		require.Equal(t, "att1", r.URL.Query().Get("id"))
		require.Equal(t, "alice@example.com", r.Header.Get("X-Acting-User"))
		_, _ = w.Write([]byte("attachment body"))
	}))
	defer server.Close()

	api := fetch.NewHTTPFactory().Create(testInstance(t, server.URL), "alice@example.com")
	rc, err := api.FetchAttachment(context.Background(), "/attachment/one?id=att1")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "attachment body", string(body))

	_, err = api.FetchAttachment(context.Background(), "/missing")
	require.Error(t, err)
}
