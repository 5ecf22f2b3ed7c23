package slob

import (
	"fmt"

	"github.com/Psantium/walkaround/internal/model"
	apperr "github.com/Psantium/walkaround/internal/pkg/errors"
)

// WaveletState is the reconstructed view of a wavelet that the import
// workflow needs: the participant set and the last-modified time. Content
// trees are carried in the log but not materialized here.
type WaveletState struct {
	participants       []string
	lastModifiedMillis int64
}

func NewWaveletState() *WaveletState {
	return &WaveletState{}
}

// Apply replays one operation. A rejected operation leaves the state
// unchanged.
func (s *WaveletState) Apply(op model.WaveletOperation) error {
	switch op.Type {
	case model.OpAddParticipant:
		if s.Contains(op.Participant) {
			return fmt.Errorf("%w: participant %s already present", apperr.ErrChangeRejected, op.Participant)
		}
		s.participants = append(s.participants, op.Participant)
	case model.OpRemoveParticipant:
		idx := s.indexOf(op.Participant)
		if idx < 0 {
			return fmt.Errorf("%w: participant %s not present", apperr.ErrChangeRejected, op.Participant)
		}
		s.participants = append(s.participants[:idx], s.participants[idx+1:]...)
	case model.OpDocMutation:
		if op.DocID == "" {
			return fmt.Errorf("%w: doc mutation without doc id", apperr.ErrChangeRejected)
		}
	default:
		return fmt.Errorf("%w: unknown op type %q", apperr.ErrChangeRejected, op.Type)
	}
	if op.TimestampMillis > s.lastModifiedMillis {
		s.lastModifiedMillis = op.TimestampMillis
	}
	return nil
}

func (s *WaveletState) indexOf(addr string) int {
	for i, p := range s.participants {
		if p == addr {
			return i
		}
	}
	return -1
}

func (s *WaveletState) Contains(addr string) bool {
	return s.indexOf(addr) >= 0
}

func (s *WaveletState) Participants() []string {
	out := make([]string, len(s.participants))
	copy(out, s.participants)
	return out
}

func (s *WaveletState) LastModifiedMillis() int64 {
	return s.lastModifiedMillis
}

func (s *WaveletState) Clone() *WaveletState {
	return &WaveletState{
		participants:       s.Participants(),
		lastModifiedMillis: s.lastModifiedMillis,
	}
}
