package model

// ImportMetadata is the lock protocol state attached to every locally
// created imported wavelet. ImportFinished transitions false -> true
// exactly once; a document is not visible as fully imported until then.
type ImportMetadata struct {
	ImportFinished  bool   `json:"import_finished"`
	Importer        string `json:"importer"`
	SourceInstance  string `json:"source_instance"`
	RemoteWaveID    string `json:"remote_wave_id"`
	RemoteWaveletID string `json:"remote_wavelet_id"`
	BeginTimeMillis int64  `json:"begin_time_millis"`
}

// ConvMetadata is the per-slob metadata record. Import is nil for slobs
// that were not created by an import.
type ConvMetadata struct {
	SlobID string          `json:"slob_id"`
	Import *ImportMetadata `json:"import,omitempty"`
}
