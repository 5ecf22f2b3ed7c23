package model

// RemoteWaveletRecord is the per-(user, instance, remote wavelet) dedup
// entry. At most one local id per sharing-mode slot.
type RemoteWaveletRecord struct {
	UserID         string
	Instance       string
	WaveID         string
	WaveletID      string
	PrivateLocalID string
	SharedLocalID  string
	Ctime          int64
	Mtime          int64
}

// LocalID returns the slot for the given sharing mode.
func (r *RemoteWaveletRecord) LocalID(mode SharingMode) string {
	if mode == SharingModeShared {
		return r.SharedLocalID
	}
	return r.PrivateLocalID
}

// SharedImportRecord is the canonical shared copy for a remote wavelet.
// Write-once in practice: later writers must detect and defer to it.
type SharedImportRecord struct {
	Instance  string
	WaveID    string
	WaveletID string
	LocalID   string
	Ctime     int64
}

// SlobDelta is one mutation-log entry.
type SlobDelta struct {
	SlobID   string
	Version  int64
	ClientID string
	Payload  string
	Ctime    int64
}
