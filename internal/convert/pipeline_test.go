package convert_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Psantium/walkaround/internal/convert"
	"github.com/Psantium/walkaround/internal/model"
	apperr "github.com/Psantium/walkaround/internal/pkg/errors"
)

func docMutation(docID string, components ...model.DocComponent) model.WaveletOperation {
	return convert.NewDocMutation("alice@example.com", 1000, docID, components)
}

func TestParticipantOpsPassThrough(t *testing.T) {
	pipeline := convert.NewConvPipeline(nil)
	op := convert.NewAddParticipant("alice@example.com", 1000, "bob@example.com")
	out, err := pipeline.Apply(op)
	require.NoError(t, err)
	require.Equal(t, op, out)
}

func TestStripLegacyNamespaceMarker(t *testing.T) {
	pipeline := convert.NewConvPipeline(nil)
	op := docMutation("b+doc",
		model.DocComponent{ElementStart: &model.ElementStart{
			Type: "w:line",
			Attributes: []model.KeyValue{
				{Key: "t", Value: "w:h1"},
			},
		}},
		model.DocComponent{AnnotationBoundary: &model.AnnotationBoundary{
			Changes: []model.KeyValue{{Key: "w:style", Value: "bold"}},
			Ends:    []string{"w:other"},
		}},
	)
	out, err := pipeline.Apply(op)
	require.NoError(t, err)
	require.Equal(t, "line", out.Components[0].ElementStart.Type)
	require.Equal(t, "h1", out.Components[0].ElementStart.Attributes[0].Value)
	require.Equal(t, "style", out.Components[1].AnnotationBoundary.Changes[0].Key)
	require.Equal(t, "other", out.Components[1].AnnotationBoundary.Ends[0])
}

func TestFixLinkAnnotations(t *testing.T) {
	pipeline := convert.NewConvPipeline(nil)
	op := docMutation("b+doc",
		model.DocComponent{AnnotationBoundary: &model.AnnotationBoundary{
			Changes: []model.KeyValue{
				{Key: "link/manual", Value: "waveid://example.com/w+abc"},
				{Key: "link/auto", Value: "http://example.com"},
				{Key: "style/fontWeight", Value: "bold"},
			},
			Ends: []string{"link/manual", "style/color"},
		}},
	)
	out, err := pipeline.Apply(op)
	require.NoError(t, err)
	changes := out.Components[0].AnnotationBoundary.Changes
	require.Equal(t, model.KeyValue{Key: "link/wave", Value: "wave://example.com/w+abc"}, changes[0])
	require.Equal(t, model.KeyValue{Key: "link/wave", Value: "http://example.com"}, changes[1])
	require.Equal(t, model.KeyValue{Key: "style/fontWeight", Value: "bold"}, changes[2])
	require.Equal(t, []string{"link/wave", "style/color"}, out.Components[0].AnnotationBoundary.Ends)
}

func TestPrivateReplyAnchorsGetQualified(t *testing.T) {
	pipeline := convert.NewConvPipeline(nil)
	op := docMutation("b+conv",
		model.DocComponent{ElementStart: &model.ElementStart{
			Type:       "reply",
			Attributes: []model.KeyValue{{Key: "anchor", Value: "t1"}},
		}},
		model.DocComponent{ElementStart: &model.ElementStart{
			Type:       "reply",
			Attributes: []model.KeyValue{{Key: "anchor", Value: "b+other+t2"}},
		}},
		model.DocComponent{ElementStart: &model.ElementStart{
			Type:       "line",
			Attributes: []model.KeyValue{{Key: "anchor", Value: "t3"}},
		}},
	)
	out, err := pipeline.Apply(op)
	require.NoError(t, err)
	require.Equal(t, "b+conv+t1", out.Components[0].ElementStart.Attributes[0].Value)
	require.Equal(t, "b+other+t2", out.Components[1].ElementStart.Attributes[0].Value)
	require.Equal(t, "t3", out.Components[2].ElementStart.Attributes[0].Value)
}

func TestAttachmentIDsRewrittenThroughMapping(t *testing.T) {
	pipeline := convert.NewConvPipeline(map[string]string{"remote-1": "local-1"})
	op := docMutation("b+doc",
		model.DocComponent{ElementStart: &model.ElementStart{
			Type:       "image",
			Attributes: []model.KeyValue{{Key: "attachment", Value: "remote-1"}},
		}},
	)
	out, err := pipeline.Apply(op)
	require.NoError(t, err)
	require.Equal(t, "local-1", out.Components[0].ElementStart.Attributes[0].Value)
}

func TestUnmappedAttachmentIDIsPermanent(t *testing.T) {
	pipeline := convert.NewConvPipeline(map[string]string{})
	op := docMutation("b+doc",
		model.DocComponent{ElementStart: &model.ElementStart{
			Type:       "attachment",
			Attributes: []model.KeyValue{{Key: "attachment", Value: "remote-unknown"}},
		}},
	)
	_, err := pipeline.Apply(op)
	require.Error(t, err)
	require.True(t, apperr.IsPermanent(err))
}

// The namespace stripper must run before the attachment rewriter so that
// legacy-marked attachment references resolve through the mapping.
func TestStageOrderStripsMarkerBeforeAttachmentLookup(t *testing.T) {
	pipeline := convert.NewConvPipeline(map[string]string{"remote-1": "local-1"})
	op := docMutation("b+doc",
		model.DocComponent{ElementStart: &model.ElementStart{
			Type:       "w:image",
			Attributes: []model.KeyValue{{Key: "attachment", Value: "w:remote-1"}},
		}},
	)
	out, err := pipeline.Apply(op)
	require.NoError(t, err)
	require.Equal(t, "image", out.Components[0].ElementStart.Type)
	require.Equal(t, "local-1", out.Components[0].ElementStart.Attributes[0].Value)
}

func TestConvertHistoryStopsAtFirstFailure(t *testing.T) {
	history := []model.WaveletOperation{
		convert.NewAddParticipant("alice@example.com", 1000, "alice@example.com"),
		docMutation("b+doc",
			model.DocComponent{ElementStart: &model.ElementStart{
				Type:       "image",
				Attributes: []model.KeyValue{{Key: "attachment", Value: "missing"}},
			}},
		),
	}
	_, err := convert.ConvertHistory(history, nil)
	require.Error(t, err)
	require.True(t, apperr.IsPermanent(err))
}
