package convert

import (
	"github.com/Psantium/walkaround/internal/model"
)

func NewAddParticipant(author string, timestampMillis int64, participant string) model.WaveletOperation {
	return model.WaveletOperation{
		Type:            model.OpAddParticipant,
		Author:          author,
		TimestampMillis: timestampMillis,
		Participant:     participant,
	}
}

func NewRemoveParticipant(author string, timestampMillis int64, participant string) model.WaveletOperation {
	return model.WaveletOperation{
		Type:            model.OpRemoveParticipant,
		Author:          author,
		TimestampMillis: timestampMillis,
		Participant:     participant,
	}
}

func NewDocMutation(author string, timestampMillis int64, docID string, components []model.DocComponent) model.WaveletOperation {
	return model.WaveletOperation{
		Type:            model.OpDocMutation,
		Author:          author,
		TimestampMillis: timestampMillis,
		DocID:           docID,
		Components:      components,
	}
}

// Synthesizer produces an ordered local-format history from a remote
// snapshot: the participant list first, then one content mutation per
// sub-document.
type Synthesizer struct{}

func NewSynthesizer() *Synthesizer {
	return &Synthesizer{}
}

func (s *Synthesizer) SynthesizeHistory(wavelet model.RemoteWavelet, docs []model.RemoteDocument) []model.WaveletOperation {
	history := make([]model.WaveletOperation, 0, len(wavelet.Participants)+len(docs))
	for _, p := range wavelet.Participants {
		history = append(history, NewAddParticipant(wavelet.Creator, wavelet.CreationTimeMillis, p))
	}
	for _, doc := range docs {
		author := doc.Author
		if author == "" {
			author = wavelet.Creator
		}
		history = append(history, NewDocMutation(author, wavelet.LastModifiedTimeMillis, doc.DocumentID, doc.Content))
	}
	return history
}
