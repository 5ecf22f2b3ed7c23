package convert

import (
	"strings"

	"github.com/Psantium/walkaround/internal/model"
	apperr "github.com/Psantium/walkaround/internal/pkg/errors"
)

const (
	legacyNamespaceMarker = "w:"

	legacyLinkManualKey = "link/manual"
	legacyLinkAutoKey   = "link/auto"
	linkWaveKey         = "link/wave"
	legacyLinkScheme    = "waveid://"
	linkScheme          = "wave://"

	replyElementType = "reply"
	anchorAttrKey    = "anchor"
	anchorSeparator  = "+"

	imageElementType      = "image"
	attachmentElementType = "attachment"
	attachmentAttrKey     = "attachment"
)

// stripWColonFilter removes the legacy "w:" namespace marker from element
// types, attribute values, and annotation keys.
type stripWColonFilter struct{}

func (stripWColonFilter) Name() string { return "strip-w-colon" }

func (stripWColonFilter) Rewrite(docID string, components []model.DocComponent) ([]model.DocComponent, error) {
	out := make([]model.DocComponent, 0, len(components))
	for _, c := range components {
		if c.ElementStart != nil {
			es := model.ElementStart{
				Type:       strings.TrimPrefix(c.ElementStart.Type, legacyNamespaceMarker),
				Attributes: make([]model.KeyValue, 0, len(c.ElementStart.Attributes)),
			}
			for _, attr := range c.ElementStart.Attributes {
				es.Attributes = append(es.Attributes, model.KeyValue{
					Key:   attr.Key,
					Value: strings.TrimPrefix(attr.Value, legacyNamespaceMarker),
				})
			}
			c.ElementStart = &es
		}
		if c.AnnotationBoundary != nil {
			ab := model.AnnotationBoundary{}
			for _, ch := range c.AnnotationBoundary.Changes {
				ab.Changes = append(ab.Changes, model.KeyValue{
					Key:   strings.TrimPrefix(ch.Key, legacyNamespaceMarker),
					Value: ch.Value,
				})
			}
			for _, end := range c.AnnotationBoundary.Ends {
				ab.Ends = append(ab.Ends, strings.TrimPrefix(end, legacyNamespaceMarker))
			}
			c.AnnotationBoundary = &ab
		}
		out = append(out, c)
	}
	return out, nil
}

// fixLinkAnnotationsFilter rewrites the legacy link annotation encoding
// into the current one.
type fixLinkAnnotationsFilter struct{}

func (fixLinkAnnotationsFilter) Name() string { return "fix-link-annotations" }

func (fixLinkAnnotationsFilter) Rewrite(docID string, components []model.DocComponent) ([]model.DocComponent, error) {
	out := make([]model.DocComponent, 0, len(components))
	for _, c := range components {
		if c.AnnotationBoundary != nil {
			ab := model.AnnotationBoundary{}
			for _, ch := range c.AnnotationBoundary.Changes {
				ab.Changes = append(ab.Changes, model.KeyValue{
					Key:   fixLinkKey(ch.Key),
					Value: fixLinkValue(ch.Key, ch.Value),
				})
			}
			for _, end := range c.AnnotationBoundary.Ends {
				ab.Ends = append(ab.Ends, fixLinkKey(end))
			}
			c.AnnotationBoundary = &ab
		}
		out = append(out, c)
	}
	return out, nil
}

func fixLinkKey(key string) string {
	if key == legacyLinkManualKey || key == legacyLinkAutoKey {
		return linkWaveKey
	}
	return key
}

func fixLinkValue(key, value string) string {
	if key != legacyLinkManualKey && key != legacyLinkAutoKey {
		return value
	}
	if strings.HasPrefix(value, legacyLinkScheme) {
		return linkScheme + strings.TrimPrefix(value, legacyLinkScheme)
	}
	return value
}

// privateReplyAnchorFilter qualifies legacy private-reply anchor ids with
// the owning sub-document's id. Legacy anchors carried only the thread id;
// the current encoding is "<doc id>+<thread id>".
type privateReplyAnchorFilter struct{}

func (privateReplyAnchorFilter) Name() string { return "private-reply-anchor" }

func (privateReplyAnchorFilter) Rewrite(docID string, components []model.DocComponent) ([]model.DocComponent, error) {
	out := make([]model.DocComponent, 0, len(components))
	for _, c := range components {
		if c.ElementStart != nil && c.ElementStart.Type == replyElementType {
			es := *c.ElementStart
			es.Attributes = make([]model.KeyValue, len(c.ElementStart.Attributes))
			copy(es.Attributes, c.ElementStart.Attributes)
			for i, attr := range es.Attributes {
				if attr.Key == anchorAttrKey && !strings.Contains(attr.Value, anchorSeparator) {
					es.Attributes[i].Value = docID + anchorSeparator + attr.Value
				}
			}
			c.ElementStart = &es
		}
		out = append(out, c)
	}
	return out, nil
}

// attachmentIDFilter rewrites remote attachment ids through the mapping.
// An unmapped id fails the whole conversion; the attachment must have been
// resolved by the fetch-attachments split first.
type attachmentIDFilter struct {
	mapping map[string]string
}

func (attachmentIDFilter) Name() string { return "attachment-ids" }

func (f attachmentIDFilter) Rewrite(docID string, components []model.DocComponent) ([]model.DocComponent, error) {
	out := make([]model.DocComponent, 0, len(components))
	for _, c := range components {
		if c.ElementStart != nil && isAttachmentElement(c.ElementStart.Type) {
			es := *c.ElementStart
			es.Attributes = make([]model.KeyValue, len(c.ElementStart.Attributes))
			copy(es.Attributes, c.ElementStart.Attributes)
			for i, attr := range es.Attributes {
				if attr.Key != attachmentAttrKey || attr.Value == "" {
					continue
				}
				localID, ok := f.mapping[attr.Value]
				if !ok {
					return nil, apperr.Permanentf("doc %s references unmapped attachment id %s", docID, attr.Value)
				}
				es.Attributes[i].Value = localID
			}
			c.ElementStart = &es
		}
		out = append(out, c)
	}
	return out, nil
}

func isAttachmentElement(elementType string) bool {
	return elementType == imageElementType || elementType == attachmentElementType
}
