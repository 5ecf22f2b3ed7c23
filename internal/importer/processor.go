// Package importer runs the wavelet import workflow: one invocation per
// task delivery, returning the follow-up tasks (if any) as its result.
package importer

import (
	"context"
	"database/sql"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Psantium/walkaround/internal/convert"
	"github.com/Psantium/walkaround/internal/fetch"
	"github.com/Psantium/walkaround/internal/model"
	apperr "github.com/Psantium/walkaround/internal/pkg/errors"
	"github.com/Psantium/walkaround/internal/pkg/retry"
	"github.com/Psantium/walkaround/internal/pkg/timeutil"
	"github.com/Psantium/walkaround/internal/repo"
	"github.com/Psantium/walkaround/internal/slob"
	"github.com/Psantium/walkaround/internal/wave"
)

type Processor struct {
	db              *sql.DB
	perUser         *repo.PerUserRepo
	shared          *repo.SharedImportRepo
	meta            *repo.MetadataRepo
	facilities      *slob.Facilities
	creator         *slob.Creator
	synthesizer     *convert.Synthesizer
	robotFactory    fetch.Factory
	instanceFactory *fetch.InstanceFactory
}

func NewProcessor(db *sql.DB, perUser *repo.PerUserRepo, shared *repo.SharedImportRepo,
	meta *repo.MetadataRepo, facilities *slob.Facilities, creator *slob.Creator,
	robotFactory fetch.Factory, instanceFactory *fetch.InstanceFactory) *Processor {
	return &Processor{
		db:              db,
		perUser:         perUser,
		shared:          shared,
		meta:            meta,
		facilities:      facilities,
		creator:         creator,
		synthesizer:     convert.NewSynthesizer(),
		robotFactory:    robotFactory,
		instanceFactory: instanceFactory,
	}
}

// ImportWavelet executes one import attempt. The returned payload list is
// the invocation's result, not an error channel: nil means the task is
// fully satisfied, a single entry means the scheduler must deliver that
// follow-up (a resumed import or an attachment fetch).
func (p *Processor) ImportWavelet(ctx context.Context, task *model.ImportTask) ([]model.TaskPayload, error) {
	if task.UserID == "" || task.UserAddress == "" {
		return nil, apperr.Permanentf("task missing importing user")
	}
	policy, err := policyFor(task.SharingMode)
	if err != nil {
		return nil, err
	}
	instance, err := p.instanceFactory.Parse(task.Instance)
	if err != nil {
		return nil, apperr.Permanent(err)
	}
	name, err := wave.NewWaveletName(task.WaveID, task.WaveletID)
	if err != nil {
		return nil, apperr.Permanent(err)
	}
	logger := logutil.GetLogger(ctx).With(
		zap.String("user", task.UserAddress),
		zap.String("instance", instance.Serialize()),
		zap.String("wavelet", name.String()),
		zap.String("mode", string(task.SharingMode)))

	// Step 1: if the per-user table already records a copy for this mode,
	// the task is satisfied.
	alreadyImported := false
	err = retry.Transactional(ctx, p.db, func(tx *sql.Tx) error {
		alreadyImported = false
		rec, err := p.perUser.Get(ctx, tx, task.UserID, instance.Serialize(), name)
		if apperr.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		localID := policy.recordedLocalID(rec)
		if localID != "" && localID != task.ExistingSlobIDToIgnore {
			alreadyImported = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if alreadyImported {
		logger.Info("import already exists, nothing to do")
		return nil, nil
	}

	// Step 2: fetch. Even when a shared copy exists, the fetch must happen
	// first: it verifies the user can read the wavelet remotely.
	api := p.robotFactory.Create(instance, task.UserAddress)
	wavelet, docs, err := api.GetSnapshot(ctx, name)
	if err != nil {
		if apperr.IsAccessDenied(err) {
			return nil, apperr.Permanent(err)
		}
		return nil, err
	}
	wavelet, docs = wave.NormalizeSnapshot(wavelet, docs)
	logger.Info("snapshot fetched",
		zap.Int64("version", wavelet.Version),
		zap.Int("participants", len(wavelet.Participants)),
		zap.Int("documents", len(docs)))

	// Step 3: shared-mode reuse.
	if existingID, err := policy.findReusable(ctx, p, instance.Serialize(), name, task.ExistingSlobIDToIgnore); err != nil {
		return nil, err
	} else if existingID != "" {
		logger.Info("re-using existing shared import", zap.String("slob_id", existingID))
		if err := p.EnsureParticipant(ctx, task.UserAddress, existingID); err != nil {
			return nil, err
		}
		if err := p.setPerUserRecord(ctx, task, instance.Serialize(), name, existingID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	// Step 4: two-phase attachment split.
	mapping, followup, err := p.resolveAttachments(ctx, task, docs)
	if err != nil {
		return nil, err
	}
	if followup != nil {
		logger.Info("attachments unresolved, splitting task",
			zap.Int("attachments", len(followup.FetchAttachments.ToImport)))
		return []model.TaskPayload{*followup}, nil
	}

	// Steps 5 and 6: synthesize, convert, fix up participation.
	history := p.synthesizer.SynthesizeHistory(wavelet, docs)
	history, err = convert.ConvertHistory(history, mapping)
	if err != nil {
		return nil, err
	}
	history = policy.fixParticipation(history, wavelet, task.UserAddress)
	logger.Info("history synthesized", zap.Int("ops", len(history)))

	// Step 7: create the locked document. Not transactional with step 8;
	// a failure after this point leaves an orphan that is never unlocked.
	meta := &model.ConvMetadata{Import: &model.ImportMetadata{
		ImportFinished:  false,
		Importer:        task.UserID,
		SourceInstance:  instance.Serialize(),
		RemoteWaveID:    name.WaveID,
		RemoteWaveletID: name.WaveletID,
		BeginTimeMillis: timeutil.NowMillis(),
	}}
	newID, err := p.creator.NewWithGeneratedID(ctx, history, meta, true)
	if err != nil {
		return nil, err
	}
	logger.Info("created local document", zap.String("slob_id", newID))

	// Step 8: claim ownership, unlock, record, schedule. One transaction.
	lostRace, err := p.finishImport(ctx, policy, task, instance.Serialize(), name, newID)
	if err != nil {
		return nil, err
	}
	if lostRace {
		logger.Warn("lost shared-import race, abandoning and retrying",
			zap.String("abandoned_slob_id", newID))
		return []model.TaskPayload{{ImportWavelet: task}}, nil
	}
	logger.Info("import completed", zap.String("slob_id", newID))
	return nil, nil
}

// finishImport is the step that makes the new document visible: claim
// shared ownership, unlock, record the per-user copy, schedule post-commit
// work. One transaction, so a crash leaves either a still-locked orphan or
// a fully published document, never a half-published one. Re-running it
// after a commit it could not observe is inert: the claim either reports a
// lost race or the unlock reports the document already live.
func (p *Processor) finishImport(ctx context.Context, policy sharingPolicy, task *model.ImportTask,
	instance string, name wave.WaveletName, newID string) (bool, error) {
	lostRace := false
	err := retry.Transactional(ctx, p.db, func(tx *sql.Tx) error {
		lostRace = false
		lost, err := policy.claim(ctx, tx, p, instance, name, task.ExistingSlobIDToIgnore, newID)
		if err != nil {
			return err
		}
		if lost {
			lostRace = true
			return nil
		}
		unlocked, err := p.unlockWavelet(ctx, tx, newID)
		if err != nil {
			return err
		}
		if !unlocked {
			// Already unlocked: this transaction is a spurious retry of a
			// commit we could not observe. Nothing left to do.
			return nil
		}
		if err := p.perUser.SetLocalID(ctx, tx, task.UserID, instance, name, task.SharingMode, newID); err != nil {
			return err
		}
		// Post-commit actions run in their own task so their crashes
		// cannot fail this one.
		return p.facilities.SchedulePostCommit(ctx, tx, newID)
	})
	return lostRace, err
}

// unlockWavelet flips the import lock. Returns false iff already unlocked.
func (p *Processor) unlockWavelet(ctx context.Context, tx *sql.Tx, slobID string) (bool, error) {
	meta, err := p.meta.Get(ctx, tx, slobID)
	if err != nil {
		return false, err
	}
	if meta.Import == nil {
		return false, apperr.Permanentf("%s: metadata has no import", slobID)
	}
	if meta.Import.ImportFinished {
		logutil.GetLogger(ctx).Info("already unlocked", zap.String("slob_id", slobID))
		return false, nil
	}
	if err := p.meta.SetFinished(ctx, tx, slobID); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Processor) setPerUserRecord(ctx context.Context, task *model.ImportTask, instance string, name wave.WaveletName, localID string) error {
	return retry.Transactional(ctx, p.db, func(tx *sql.Tx) error {
		return p.perUser.SetLocalID(ctx, tx, task.UserID, instance, name, task.SharingMode, localID)
	})
}
