package model

// KeyValue is one attribute or annotation pair.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type ElementStart struct {
	Type       string     `json:"type"`
	Attributes []KeyValue `json:"attributes,omitempty"`
}

type AnnotationBoundary struct {
	Changes []KeyValue `json:"changes,omitempty"`
	Ends    []string   `json:"ends,omitempty"`
}

// DocComponent is one item of a content-tree stream; exactly one field is
// set.
type DocComponent struct {
	ElementStart       *ElementStart       `json:"element_start,omitempty"`
	ElementEnd         bool                `json:"element_end,omitempty"`
	Characters         string              `json:"characters,omitempty"`
	AnnotationBoundary *AnnotationBoundary `json:"annotation_boundary,omitempty"`
}

// RemoteDocument is one named content stream (sub-document) of a fetched
// wavelet.
type RemoteDocument struct {
	DocumentID   string         `json:"document_id"`
	Author       string         `json:"author"`
	Contributors []string       `json:"contributors,omitempty"`
	Content      []DocComponent `json:"content,omitempty"`
}

// RemoteWavelet is the wavelet-level part of a fetched snapshot. Immutable
// within one workflow run once normalized.
type RemoteWavelet struct {
	WaveID                 string   `json:"wave_id"`
	WaveletID              string   `json:"wavelet_id"`
	Creator                string   `json:"creator"`
	Participants           []string `json:"participants,omitempty"`
	Version                int64    `json:"version"`
	CreationTimeMillis     int64    `json:"creation_time_millis"`
	LastModifiedTimeMillis int64    `json:"last_modified_time_millis"`
}
