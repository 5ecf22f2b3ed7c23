package model

// OpType discriminates the three wavelet operation kinds.
type OpType string

const (
	OpAddParticipant    OpType = "add_participant"
	OpRemoveParticipant OpType = "remove_participant"
	OpDocMutation       OpType = "doc_mutation"
)

// WaveletOperation is a single structured edit against a wavelet.
// Timestamps are milliseconds; synthetic operations reuse the remote
// last-modified time rather than wall clock so that recency-based ordering
// downstream is not perturbed.
type WaveletOperation struct {
	Type            OpType         `json:"type"`
	Author          string         `json:"author"`
	TimestampMillis int64          `json:"timestamp_millis"`
	Participant     string         `json:"participant,omitempty"`
	DocID           string         `json:"doc_id,omitempty"`
	Components      []DocComponent `json:"components,omitempty"`
}
