package model

// SharingMode determines whether an imported copy is private to the
// importing user or shared across all users importing the same wavelet.
type SharingMode string

const (
	SharingModePrivate SharingMode = "private"
	SharingModeShared  SharingMode = "shared"
)

func (m SharingMode) Valid() bool {
	return m == SharingModePrivate || m == SharingModeShared
}

// ImportedAttachment maps a remote attachment id to its local copy. An
// empty LocalID records a fetch that failed; such entries are skipped when
// building the conversion mapping.
type ImportedAttachment struct {
	RemoteID string `json:"remote_id"`
	LocalID  string `json:"local_id,omitempty"`
}

// ImportTask asks for one remote wavelet to be imported for one user.
// Consumed exactly once per delivery; may be re-emitted as its own
// follow-up.
type ImportTask struct {
	UserID      string      `json:"user_id"`
	UserAddress string      `json:"user_address"`
	Instance    string      `json:"instance"`
	WaveID      string      `json:"wave_id"`
	WaveletID   string      `json:"wavelet_id"`
	SharingMode SharingMode `json:"sharing_mode"`

	// ExistingSlobIDToIgnore is set when this task was re-driven by an
	// earlier attempt of itself; that attempt's partial result must not be
	// treated as a duplicate.
	ExistingSlobIDToIgnore string `json:"existing_slob_id_to_ignore,omitempty"`

	// Attachments is the pre-resolved remote-to-local attachment mapping,
	// present once the fetch-attachments follow-up has run.
	Attachments []ImportedAttachment `json:"attachments,omitempty"`
}

// RemoteAttachmentInfo carries the metadata needed to fetch one attachment
// from the remote instance.
type RemoteAttachmentInfo struct {
	RemoteID  string `json:"remote_id"`
	Path      string `json:"path"`
	Filename  string `json:"filename,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// FetchAttachmentsTask fetches the listed attachments and then re-enqueues
// the original import task with the resolved mapping.
type FetchAttachmentsTask struct {
	Original ImportTask             `json:"original"`
	ToImport []RemoteAttachmentInfo `json:"to_import"`
}

// TaskPayload is the closed one-of carried by the task queue.
type TaskPayload struct {
	ImportWavelet    *ImportTask           `json:"import_wavelet,omitempty"`
	FetchAttachments *FetchAttachmentsTask `json:"fetch_attachments,omitempty"`
}

// QueuedTask is one queue row. Delivery is at-least-once: a claimed task
// holds a lease and is redelivered after the lease expires.
type QueuedTask struct {
	ID         string
	Payload    string
	Attempts   int
	LeaseUntil int64
	Ctime      int64
}
