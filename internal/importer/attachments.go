package importer

import (
	"context"
	"sort"
	"strconv"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Psantium/walkaround/internal/model"
	apperr "github.com/Psantium/walkaround/internal/pkg/errors"
	"github.com/Psantium/walkaround/internal/wave"
)

// Attachment metadata sub-documents are flat lists of <node key=... value=...>
// elements, e.g.:
//
//	<node key="attachment_size" value="678"></node>
//	<node key="mime_type" value="application/octet-stream"></node>
//	<node key="filename" value="the-file-name"></node>
//	<node key="attachment_url" value="/attachment/the-file-name?id=..."></node>
const (
	metadataElementType   = "node"
	metadataKeyAttr       = "key"
	metadataValueAttr     = "value"
	metadataURLField      = "attachment_url"
	metadataFilenameField = "filename"
	metadataMimeTypeField = "mime_type"
	metadataSizeField     = "size"
)

// buildAttachmentMapping turns a task's pre-resolved attachment list into
// the conversion mapping. Entries whose fetch failed carry no local id and
// are left out.
func buildAttachmentMapping(task *model.ImportTask) map[string]string {
	out := make(map[string]string, len(task.Attachments))
	for _, a := range task.Attachments {
		if a.LocalID != "" {
			out[a.RemoteID] = a.LocalID
		}
	}
	return out
}

// attachmentDocs maps attachment ids (not doc ids) to their metadata
// sub-documents.
func attachmentDocs(docs []model.RemoteDocument) (map[string]model.RemoteDocument, error) {
	seen := make(map[string]bool, len(docs))
	out := make(map[string]model.RemoteDocument)
	for _, doc := range docs {
		if seen[doc.DocumentID] {
			return nil, apperr.Permanentf("duplicate doc id %s in snapshot", doc.DocumentID)
		}
		seen[doc.DocumentID] = true
		if !wave.IsAttachmentDataDoc(doc.DocumentID) {
			continue
		}
		attachmentID, err := wave.AttachmentIDFromDocID(doc.DocumentID)
		if err != nil {
			return nil, apperr.Permanent(err)
		}
		out[attachmentID] = doc
	}
	return out, nil
}

// makeMapFromDocument flattens a metadata sub-document into key/value
// pairs. Every element must be of the expected type with exactly two
// attributes; on duplicate keys the last value wins.
func makeMapFromDocument(doc model.RemoteDocument, elementType, keyAttr, valueAttr string) (map[string]string, error) {
	out := make(map[string]string)
	for _, c := range doc.Content {
		if c.ElementStart == nil {
			continue
		}
		if c.ElementStart.Type != elementType {
			return nil, apperr.Permanentf("doc %s: unexpected element type %q", doc.DocumentID, c.ElementStart.Type)
		}
		if len(c.ElementStart.Attributes) != 2 {
			return nil, apperr.Permanentf("doc %s: need two attrs, got %d", doc.DocumentID, len(c.ElementStart.Attributes))
		}
		attrs := make(map[string]string, 2)
		for _, attr := range c.ElementStart.Attributes {
			attrs[attr.Key] = attr.Value
		}
		key, keyOK := attrs[keyAttr]
		value, valueOK := attrs[valueAttr]
		if !keyOK || !valueOK {
			return nil, apperr.Permanentf("doc %s: key or value attribute missing", doc.DocumentID)
		}
		out[key] = value
	}
	return out, nil
}

// resolveAttachments implements the two-phase split. It returns either the
// conversion mapping (possibly empty) or the fetch-attachments follow-up
// that must run before any document is created.
func (p *Processor) resolveAttachments(ctx context.Context, task *model.ImportTask, docs []model.RemoteDocument) (map[string]string, *model.TaskPayload, error) {
	logger := logutil.GetLogger(ctx)
	aDocs, err := attachmentDocs(docs)
	if err != nil {
		return nil, nil, err
	}
	if len(aDocs) == 0 {
		return map[string]string{}, nil, nil
	}
	if len(task.Attachments) > 0 {
		mapping := buildAttachmentMapping(task)
		logger.Info("attachments already imported", zap.Int("mapped", len(mapping)))
		return mapping, nil, nil
	}

	infos := make([]model.RemoteAttachmentInfo, 0, len(aDocs))
	for attachmentID, doc := range aDocs {
		meta, err := makeMapFromDocument(doc, metadataElementType, metadataKeyAttr, metadataValueAttr)
		if err != nil {
			return nil, nil, err
		}
		if meta[metadataURLField] == "" {
			logger.Warn("attachment has no fetch path (incomplete upload?), skipping",
				zap.String("attachment_id", attachmentID))
			continue
		}
		info := model.RemoteAttachmentInfo{
			RemoteID: attachmentID,
			Path:     meta[metadataURLField],
			Filename: meta[metadataFilenameField],
			MimeType: meta[metadataMimeTypeField],
		}
		if raw := meta[metadataSizeField]; raw != "" {
			size, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, nil, apperr.Permanentf("attachment %s: bad size %q", attachmentID, raw)
			}
			info.SizeBytes = size
		}
		infos = append(infos, info)
	}
	if len(infos) == 0 {
		logger.Warn("no fetchable attachments, importing without mapping")
		return map[string]string{}, nil, nil
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].RemoteID < infos[j].RemoteID })
	followup := &model.TaskPayload{FetchAttachments: &model.FetchAttachmentsTask{
		Original: *task,
		ToImport: infos,
	}}
	return nil, followup, nil
}
