// Package convert rewrites remote-identifier-space histories into local
// identifier space.
package convert

import (
	"github.com/Psantium/walkaround/internal/model"
)

// Rewriter is one stage of the conversion pipeline. Stages see the output
// of the previous stage; order is significant.
type Rewriter interface {
	Name() string
	Rewrite(docID string, components []model.DocComponent) ([]model.DocComponent, error)
}

// Pipeline is the fixed, ordered rewriter chain for conversational
// wavelets. Namespace-marker stripping must precede attachment-id
// rewriting: attachment references may still carry the legacy marker.
type Pipeline struct {
	stages []Rewriter
}

func NewConvPipeline(attachmentMapping map[string]string) *Pipeline {
	return &Pipeline{stages: []Rewriter{
		stripWColonFilter{},
		fixLinkAnnotationsFilter{},
		privateReplyAnchorFilter{},
		attachmentIDFilter{mapping: attachmentMapping},
	}}
}

// Apply converts one operation. Participant operations carry no content
// and pass through unchanged.
func (p *Pipeline) Apply(op model.WaveletOperation) (model.WaveletOperation, error) {
	if op.Type != model.OpDocMutation {
		return op, nil
	}
	components := op.Components
	var err error
	for _, stage := range p.stages {
		components, err = stage.Rewrite(op.DocID, components)
		if err != nil {
			return model.WaveletOperation{}, err
		}
	}
	out := op
	out.Components = components
	return out, nil
}

// ConvertHistory applies the conversion pipeline to every operation of a
// synthesized history.
func ConvertHistory(history []model.WaveletOperation, attachmentMapping map[string]string) ([]model.WaveletOperation, error) {
	pipeline := NewConvPipeline(attachmentMapping)
	out := make([]model.WaveletOperation, 0, len(history))
	for _, op := range history {
		converted, err := pipeline.Apply(op)
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}
	return out, nil
}
