package slob

import (
	"encoding/json"

	"github.com/Psantium/walkaround/internal/model"
)

// DeltaCodec serializes wavelet operations for the mutation log. Stateless;
// the process shares the single Codec value below.
type DeltaCodec struct{}

// Codec is the process-wide delta serializer.
var Codec = DeltaCodec{}

func (DeltaCodec) Encode(op model.WaveletOperation) (string, error) {
	data, err := json.Marshal(op)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (DeltaCodec) Decode(payload string) (model.WaveletOperation, error) {
	var op model.WaveletOperation
	if err := json.Unmarshal([]byte(payload), &op); err != nil {
		return model.WaveletOperation{}, err
	}
	return op, nil
}
