package importer

import (
	"context"

	"github.com/Psantium/walkaround/internal/convert"
	"github.com/Psantium/walkaround/internal/model"
	"github.com/Psantium/walkaround/internal/pkg/dbutil"
	apperr "github.com/Psantium/walkaround/internal/pkg/errors"
	"github.com/Psantium/walkaround/internal/wave"
)

// sharingPolicy is the closed variant behind the two sharing modes. The
// workflow body stays mode-agnostic; everything that differs between
// PRIVATE and SHARED lives here.
type sharingPolicy interface {
	mode() model.SharingMode

	// recordedLocalID returns the per-user slot this mode uses.
	recordedLocalID(rec *model.RemoteWaveletRecord) string

	// findReusable looks for an existing canonical copy to reuse instead
	// of creating one. Runs outside any transaction, after the remote
	// fetch has verified access.
	findReusable(ctx context.Context, p *Processor, instance string, name wave.WaveletName, ignoreID string) (string, error)

	// fixParticipation appends synthetic participant operations so the
	// replayed history ends with the mode's required participant set.
	fixParticipation(history []model.WaveletOperation, w model.RemoteWavelet, userAddress string) []model.WaveletOperation

	// claim re-checks and claims canonical ownership for newID inside the
	// unlock transaction. Returns lost=true when another writer won.
	claim(ctx context.Context, q dbutil.Queryer, p *Processor, instance string, name wave.WaveletName, ignoreID, newID string) (lost bool, err error)
}

func policyFor(mode model.SharingMode) (sharingPolicy, error) {
	switch mode {
	case model.SharingModePrivate:
		return privatePolicy{}, nil
	case model.SharingModeShared:
		return sharedPolicy{}, nil
	default:
		return nil, apperr.Permanentf("unexpected sharing mode %q", mode)
	}
}

type privatePolicy struct{}

func (privatePolicy) mode() model.SharingMode { return model.SharingModePrivate }

func (privatePolicy) recordedLocalID(rec *model.RemoteWaveletRecord) string {
	return rec.PrivateLocalID
}

func (privatePolicy) findReusable(ctx context.Context, p *Processor, instance string, name wave.WaveletName, ignoreID string) (string, error) {
	// Private copies are never shared between users.
	return "", nil
}

// A private copy holds exactly the importing user, regardless of the
// remote participant list.
func (privatePolicy) fixParticipation(history []model.WaveletOperation, w model.RemoteWavelet, userAddress string) []model.WaveletOperation {
	for _, participant := range w.Participants {
		history = append(history,
			convert.NewRemoveParticipant(userAddress, w.LastModifiedTimeMillis, participant))
	}
	return append(history,
		convert.NewAddParticipant(userAddress, w.LastModifiedTimeMillis, userAddress))
}

func (privatePolicy) claim(ctx context.Context, q dbutil.Queryer, p *Processor, instance string, name wave.WaveletName, ignoreID, newID string) (bool, error) {
	// Nothing to claim; private imports never contend.
	return false, nil
}

type sharedPolicy struct{}

func (sharedPolicy) mode() model.SharingMode { return model.SharingModeShared }

func (sharedPolicy) recordedLocalID(rec *model.RemoteWaveletRecord) string {
	return rec.SharedLocalID
}

func (sharedPolicy) findReusable(ctx context.Context, p *Processor, instance string, name wave.WaveletName, ignoreID string) (string, error) {
	rec, err := p.shared.Get(ctx, p.db, instance, name)
	if apperr.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if ignoreID != "" && rec.LocalID == ignoreID {
		return "", nil
	}
	return rec.LocalID, nil
}

// The importing user joins the shared copy only if absent.
func (sharedPolicy) fixParticipation(history []model.WaveletOperation, w model.RemoteWavelet, userAddress string) []model.WaveletOperation {
	for _, participant := range w.Participants {
		if participant == userAddress {
			return history
		}
	}
	return append(history,
		convert.NewAddParticipant(userAddress, w.LastModifiedTimeMillis, userAddress))
}

func (sharedPolicy) claim(ctx context.Context, q dbutil.Queryer, p *Processor, instance string, name wave.WaveletName, ignoreID, newID string) (bool, error) {
	rec, err := p.shared.Get(ctx, q, instance, name)
	if err != nil && !apperr.IsNotFound(err) {
		return false, err
	}
	if rec != nil {
		if ignoreID == "" || rec.LocalID != ignoreID {
			return true, nil
		}
		// The recorded copy is the one this task was told to supersede.
		if err := p.shared.Replace(ctx, q, instance, name, rec.LocalID, newID); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := p.shared.Put(ctx, q, instance, name, newID); err != nil {
		// A concurrent claim hits the primary key here; the conflict is
		// retryable and the re-run observes the winner.
		return false, err
	}
	return false, nil
}
