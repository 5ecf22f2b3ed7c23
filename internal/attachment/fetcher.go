// Package attachment copies remote attachment payloads into the local
// file store. Fetching runs as its own task so that the import task stays
// cheap to retry once the copies exist.
package attachment

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Psantium/walkaround/internal/fetch"
	"github.com/Psantium/walkaround/internal/filestore"
	"github.com/Psantium/walkaround/internal/model"
	apperr "github.com/Psantium/walkaround/internal/pkg/errors"
)

// maxAttachmentBytes bounds how much of a remote attachment we are willing
// to copy. Larger payloads are treated like failed fetches: the import
// proceeds without them.
const maxAttachmentBytes = 64 << 20

type Fetcher struct {
	store           filestore.Store
	robotFactory    fetch.Factory
	instanceFactory *fetch.InstanceFactory
}

func NewFetcher(store filestore.Store, robotFactory fetch.Factory, instanceFactory *fetch.InstanceFactory) *Fetcher {
	return &Fetcher{
		store:           store,
		robotFactory:    robotFactory,
		instanceFactory: instanceFactory,
	}
}

// FetchAll copies every requested attachment, then re-emits the original
// import task with the fetch results attached. A failed copy is recorded
// as an entry without a local id rather than failing the task; the import
// decides what an unresolved attachment means.
func (f *Fetcher) FetchAll(ctx context.Context, task *model.FetchAttachmentsTask) ([]model.TaskPayload, error) {
	instance, err := f.instanceFactory.Parse(task.Original.Instance)
	if err != nil {
		return nil, apperr.Permanent(err)
	}
	logger := logutil.GetLogger(ctx).With(
		zap.String("user", task.Original.UserAddress),
		zap.String("instance", instance.Serialize()),
		zap.Int("attachments", len(task.ToImport)))
	api := f.robotFactory.Create(instance, task.Original.UserAddress)

	imported := make([]model.ImportedAttachment, 0, len(task.ToImport))
	for _, info := range task.ToImport {
		localID, err := f.fetchOne(ctx, api, info)
		if err != nil {
			logger.Warn("attachment fetch failed, importing without it",
				zap.String("remote_id", info.RemoteID), zap.Error(err))
			imported = append(imported, model.ImportedAttachment{RemoteID: info.RemoteID})
			continue
		}
		logger.Info("attachment stored",
			zap.String("remote_id", info.RemoteID), zap.String("local_id", localID))
		imported = append(imported, model.ImportedAttachment{RemoteID: info.RemoteID, LocalID: localID})
	}

	resumed := task.Original
	resumed.Attachments = imported
	return []model.TaskPayload{{ImportWavelet: &resumed}}, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, api fetch.RobotAPI, info model.RemoteAttachmentInfo) (string, error) {
	body, err := api.FetchAttachment(ctx, info.Path)
	if err != nil {
		return "", err
	}
	defer body.Close()
	data, err := io.ReadAll(io.LimitReader(body, maxAttachmentBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxAttachmentBytes {
		return "", apperr.Permanentf("attachment %s exceeds %d bytes", info.RemoteID, maxAttachmentBytes)
	}
	localID := newID()
	if err := f.store.Save(ctx, localID, newMemoryFile(data), int64(len(data))); err != nil {
		return "", err
	}
	return localID, nil
}

func newID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

type memoryFile struct {
	*bytes.Reader
}

func newMemoryFile(data []byte) *memoryFile {
	return &memoryFile{Reader: bytes.NewReader(data)}
}

func (m *memoryFile) Close() error { return nil }
