package importer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Psantium/walkaround/internal/model"
	apperr "github.com/Psantium/walkaround/internal/pkg/errors"
)

func metadataDoc(docID string, pairs map[string]string) model.RemoteDocument {
	doc := model.RemoteDocument{DocumentID: docID}
	for key, value := range pairs {
		doc.Content = append(doc.Content, model.DocComponent{
			ElementStart: &model.ElementStart{
				Type: metadataElementType,
				Attributes: []model.KeyValue{
					{Key: metadataKeyAttr, Value: key},
					{Key: metadataValueAttr, Value: value},
				},
			},
		}, model.DocComponent{ElementEnd: true})
	}
	return doc
}

func TestBuildAttachmentMappingSkipsFailedFetches(t *testing.T) {
	task := &model.ImportTask{Attachments: []model.ImportedAttachment{
		{RemoteID: "a1", LocalID: "l1"},
		{RemoteID: "a2"},
		{RemoteID: "a3", LocalID: "l3"},
	}}
	mapping := buildAttachmentMapping(task)
	require.Equal(t, map[string]string{"a1": "l1", "a3": "l3"}, mapping)
}

func TestAttachmentDocs(t *testing.T) {
	docs := []model.RemoteDocument{
		{DocumentID: "b+conv"},
		{DocumentID: "attach+a1"},
		{DocumentID: "attach+a2"},
	}
	out, err := attachmentDocs(docs)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "attach+a1", out["a1"].DocumentID)

	_, err = attachmentDocs([]model.RemoteDocument{
		{DocumentID: "attach+a1"},
		{DocumentID: "attach+a1"},
	})
	require.Error(t, err)
	require.True(t, apperr.IsPermanent(err))
}

func TestMakeMapFromDocument(t *testing.T) {
	doc := metadataDoc("attach+a1", map[string]string{
		"filename": "cat.png",
	})
	// Last write wins on duplicate keys.
	doc.Content = append(doc.Content, model.DocComponent{
		ElementStart: &model.ElementStart{
			Type: metadataElementType,
			Attributes: []model.KeyValue{
				{Key: metadataKeyAttr, Value: "filename"},
				{Key: metadataValueAttr, Value: "dog.png"},
			},
		},
	})
	out, err := makeMapFromDocument(doc, metadataElementType, metadataKeyAttr, metadataValueAttr)
	require.NoError(t, err)
	require.Equal(t, "dog.png", out["filename"])
}

func TestMakeMapFromDocumentRejectsMalformedElements(t *testing.T) {
	badType := model.RemoteDocument{DocumentID: "attach+a1", Content: []model.DocComponent{
		{ElementStart: &model.ElementStart{Type: "other"}},
	}}
	_, err := makeMapFromDocument(badType, metadataElementType, metadataKeyAttr, metadataValueAttr)
	require.True(t, apperr.IsPermanent(err))

	badAttrs := model.RemoteDocument{DocumentID: "attach+a1", Content: []model.DocComponent{
		{ElementStart: &model.ElementStart{
			Type:       metadataElementType,
			Attributes: []model.KeyValue{{Key: metadataKeyAttr, Value: "x"}},
		}},
	}}
	_, err = makeMapFromDocument(badAttrs, metadataElementType, metadataKeyAttr, metadataValueAttr)
	require.True(t, apperr.IsPermanent(err))

	wrongKeys := model.RemoteDocument{DocumentID: "attach+a1", Content: []model.DocComponent{
		{ElementStart: &model.ElementStart{
			Type: metadataElementType,
			Attributes: []model.KeyValue{
				{Key: "foo", Value: "x"},
				{Key: "bar", Value: "y"},
			},
		}},
	}}
	_, err = makeMapFromDocument(wrongKeys, metadataElementType, metadataKeyAttr, metadataValueAttr)
	require.True(t, apperr.IsPermanent(err))
}

func TestResolveAttachmentsNoAttachmentDocs(t *testing.T) {
	p := &Processor{}
	task := &model.ImportTask{}
	mapping, followup, err := p.resolveAttachments(context.Background(), task, []model.RemoteDocument{
		{DocumentID: "b+conv"},
	})
	require.NoError(t, err)
	require.Nil(t, followup)
	require.Empty(t, mapping)
}

func TestResolveAttachmentsEmitsFollowup(t *testing.T) {
	p := &Processor{}
	task := &model.ImportTask{WaveID: "w", WaveletID: "conv"}
	docs := []model.RemoteDocument{
		metadataDoc("attach+a2", map[string]string{
			metadataURLField:      "/attachment/two?id=a2",
			metadataFilenameField: "two.png",
			metadataMimeTypeField: "image/png",
			metadataSizeField:     "123",
		}),
		metadataDoc("attach+a1", map[string]string{
			metadataURLField: "/attachment/one?id=a1",
		}),
	}
	mapping, followup, err := p.resolveAttachments(context.Background(), task, docs)
	require.NoError(t, err)
	require.Nil(t, mapping)
	require.NotNil(t, followup)
	require.NotNil(t, followup.FetchAttachments)
	require.Equal(t, *task, followup.FetchAttachments.Original)

	infos := followup.FetchAttachments.ToImport
	require.Len(t, infos, 2)
	// Deterministic order regardless of map iteration.
	require.Equal(t, "a1", infos[0].RemoteID)
	require.Equal(t, "a2", infos[1].RemoteID)
	require.Equal(t, int64(123), infos[1].SizeBytes)
	require.Equal(t, "image/png", infos[1].MimeType)
}

func TestResolveAttachmentsSkipsIncompleteUploads(t *testing.T) {
	p := &Processor{}
	task := &model.ImportTask{}
	docs := []model.RemoteDocument{
		metadataDoc("attach+a1", map[string]string{metadataFilenameField: "nofetchpath.png"}),
	}
	mapping, followup, err := p.resolveAttachments(context.Background(), task, docs)
	require.NoError(t, err)
	require.Nil(t, followup)
	require.Empty(t, mapping)
}

func TestResolveAttachmentsUsesPreResolvedMapping(t *testing.T) {
	p := &Processor{}
	task := &model.ImportTask{Attachments: []model.ImportedAttachment{
		{RemoteID: "a1", LocalID: "l1"},
	}}
	docs := []model.RemoteDocument{
		metadataDoc("attach+a1", map[string]string{metadataURLField: "/attachment/one"}),
	}
	mapping, followup, err := p.resolveAttachments(context.Background(), task, docs)
	require.NoError(t, err)
	require.Nil(t, followup)
	require.Equal(t, map[string]string{"a1": "l1"}, mapping)
}

func TestResolveAttachmentsRejectsBadSize(t *testing.T) {
	p := &Processor{}
	docs := []model.RemoteDocument{
		metadataDoc("attach+a1", map[string]string{
			metadataURLField:  "/attachment/one",
			metadataSizeField: "not-a-number",
		}),
	}
	_, _, err := p.resolveAttachments(context.Background(), &model.ImportTask{}, docs)
	require.True(t, apperr.IsPermanent(err))
}
