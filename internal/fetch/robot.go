// Package fetch talks to the remote instance's robot API.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Psantium/walkaround/internal/model"
	apperr "github.com/Psantium/walkaround/internal/pkg/errors"
	"github.com/Psantium/walkaround/internal/wave"
)

// RobotAPI fetches remote wavelet state on behalf of one user. A fetch
// doubles as the access-control check: it fails if the user cannot read
// the wavelet on the remote instance.
type RobotAPI interface {
	GetSnapshot(ctx context.Context, name wave.WaveletName) (model.RemoteWavelet, []model.RemoteDocument, error)
	FetchAttachment(ctx context.Context, path string) (io.ReadCloser, error)
}

// Factory creates a RobotAPI bound to an instance and an acting user.
type Factory interface {
	Create(instance SourceInstance, userAddress string) RobotAPI
}

type HTTPFactory struct {
	client *http.Client
}

func NewHTTPFactory() *HTTPFactory {
	return &HTTPFactory{client: &http.Client{Timeout: 30 * time.Second}}
}

func (f *HTTPFactory) Create(instance SourceInstance, userAddress string) RobotAPI {
	return &httpRobotAPI{
		client:      f.client,
		baseURL:     strings.TrimSuffix(instance.APIURL(), "/"),
		userAddress: userAddress,
	}
}

type httpRobotAPI struct {
	client      *http.Client
	baseURL     string
	userAddress string
}

type snapshotResponse struct {
	Wavelet   model.RemoteWavelet    `json:"wavelet"`
	Documents []model.RemoteDocument `json:"documents"`
}

func (r *httpRobotAPI) GetSnapshot(ctx context.Context, name wave.WaveletName) (model.RemoteWavelet, []model.RemoteDocument, error) {
	endpoint := fmt.Sprintf("%s/robot/snapshot?wave=%s&wavelet=%s",
		r.baseURL, url.QueryEscape(name.WaveID), url.QueryEscape(name.WaveletID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.RemoteWavelet{}, nil, err
	}
	req.Header.Set("X-Acting-User", r.userAddress)
	resp, err := r.client.Do(req)
	if err != nil {
		return model.RemoteWavelet{}, nil, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return model.RemoteWavelet{}, nil, fmt.Errorf("%w: snapshot fetch for %s returned %d", apperr.ErrAccessDenied, name, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return model.RemoteWavelet{}, nil, fmt.Errorf("snapshot fetch for %s returned %d", name, resp.StatusCode)
	}
	var decoded snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return model.RemoteWavelet{}, nil, fmt.Errorf("decode snapshot for %s: %w", name, err)
	}
	return decoded.Wavelet, decoded.Documents, nil
}

func (r *httpRobotAPI) FetchAttachment(ctx context.Context, path string) (io.ReadCloser, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Acting-User", r.userAddress)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("attachment fetch %s returned %d", path, resp.StatusCode)
	}
	return resp.Body, nil
}
