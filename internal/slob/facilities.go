package slob

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Psantium/walkaround/internal/model"
	"github.com/Psantium/walkaround/internal/pkg/dbutil"
	"github.com/Psantium/walkaround/internal/pkg/timeutil"
	"github.com/Psantium/walkaround/internal/repo"
)

const (
	replayPageSize = 200
	stateCacheSize = 256
	stateCacheTTL  = 10 * time.Minute
)

// ClientID used for deltas appended by the importer itself rather than by
// a connected client.
const ImportClientID = ""

type StateAndVersion struct {
	State   *WaveletState
	Version int64
}

type cachedState struct {
	state   *WaveletState
	version int64
}

// Facilities bundles mutation-log access for one slob store. The state
// cache only ever holds committed prefixes; Reconstruct replays the tail
// past the cached version, so a stale entry costs a partial replay, never
// a wrong answer.
type Facilities struct {
	logRepo *repo.MutationLogRepo
	cache   *expirable.LRU[string, cachedState]
}

func NewFacilities(logRepo *repo.MutationLogRepo) *Facilities {
	return &Facilities{
		logRepo: logRepo,
		cache:   expirable.NewLRU[string, cachedState](stateCacheSize, nil, stateCacheTTL),
	}
}

// Reconstruct replays the mutation log into the state as of the latest
// version visible to q.
func (f *Facilities) Reconstruct(ctx context.Context, q dbutil.Queryer, slobID string) (*StateAndVersion, error) {
	state := NewWaveletState()
	var version int64
	if cached, ok := f.cache.Get(slobID); ok {
		state = cached.state.Clone()
		version = cached.version
	}
	for {
		deltas, err := f.logRepo.ListDeltasSince(ctx, q, slobID, version, replayPageSize)
		if err != nil {
			return nil, err
		}
		if len(deltas) == 0 {
			break
		}
		for _, d := range deltas {
			op, err := Codec.Decode(d.Payload)
			if err != nil {
				return nil, fmt.Errorf("decode delta %s@%d: %w", slobID, d.Version, err)
			}
			if err := state.Apply(op); err != nil {
				return nil, fmt.Errorf("replay delta %s@%d: %w", slobID, d.Version, err)
			}
			version = d.Version
		}
	}
	f.cache.Add(slobID, cachedState{state: state.Clone(), version: version})
	return &StateAndVersion{State: state, Version: version}, nil
}

// Appender stages deltas on top of a reconstructed state, validating each
// operation against the evolving state before it is accepted.
type Appender struct {
	logRepo *repo.MutationLogRepo
	slobID  string
	state   *WaveletState
	version int64
	staged  []model.SlobDelta
}

func (f *Facilities) PrepareAppender(sv *StateAndVersion, slobID string) *Appender {
	return &Appender{
		logRepo: f.logRepo,
		slobID:  slobID,
		state:   sv.State,
		version: sv.Version,
	}
}

func (a *Appender) Append(clientID string, op model.WaveletOperation) error {
	if err := a.state.Apply(op); err != nil {
		return err
	}
	payload, err := Codec.Encode(op)
	if err != nil {
		return err
	}
	a.version++
	a.staged = append(a.staged, model.SlobDelta{
		SlobID:   a.slobID,
		Version:  a.version,
		ClientID: clientID,
		Payload:  payload,
		Ctime:    timeutil.NowUnix(),
	})
	return nil
}

func (a *Appender) Version() int64 {
	return a.version
}

func (a *Appender) State() *WaveletState {
	return a.state
}

// Finish writes the staged deltas through q.
func (a *Appender) Finish(ctx context.Context, q dbutil.Queryer) error {
	return a.logRepo.AppendDeltas(ctx, q, a.staged)
}

// RunPreCommit refreshes the reader-facing index row from the appender's
// final state. Must run in the same transaction as Finish.
func (f *Facilities) RunPreCommit(ctx context.Context, q dbutil.Queryer, slobID string, a *Appender) error {
	participants, err := json.Marshal(a.state.Participants())
	if err != nil {
		return err
	}
	return f.logRepo.UpsertIndex(ctx, q, slobID, a.version, a.state.LastModifiedMillis(), string(participants))
}

// RefreshIndex re-derives the index row from the mutation log. Used by the
// post-commit job, which runs without an appender in hand.
func (f *Facilities) RefreshIndex(ctx context.Context, q dbutil.Queryer, slobID string) error {
	sv, err := f.Reconstruct(ctx, q, slobID)
	if err != nil {
		return err
	}
	participants, err := json.Marshal(sv.State.Participants())
	if err != nil {
		return err
	}
	return f.logRepo.UpsertIndex(ctx, q, slobID, sv.Version, sv.State.LastModifiedMillis(), string(participants))
}

// SchedulePostCommit records that downstream post-commit work should run
// for slobID. Idempotent; the post-commit job owns execution and retry.
func (f *Facilities) SchedulePostCommit(ctx context.Context, q dbutil.Queryer, slobID string) error {
	return f.logRepo.SchedulePostCommit(ctx, q, slobID, timeutil.NowUnix())
}
