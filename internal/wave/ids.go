// Package wave holds identifier conventions shared with the remote system.
package wave

import (
	"fmt"
	"strings"
)

// Attachment metadata sub-documents use a reserved id of the form
// "attach+<attachmentID>".
const (
	AttachmentMetadataPrefix = "attach"
	docIDSeparator           = "+"
)

// WaveletName identifies one sub-document (wavelet) of a remote wave.
type WaveletName struct {
	WaveID    string
	WaveletID string
}

func NewWaveletName(waveID, waveletID string) (WaveletName, error) {
	if waveID == "" || waveletID == "" {
		return WaveletName{}, fmt.Errorf("wave id and wavelet id are required")
	}
	return WaveletName{WaveID: waveID, WaveletID: waveletID}, nil
}

func (n WaveletName) String() string {
	return n.WaveID + "/" + n.WaveletID
}

// SplitDocID splits a structured sub-document id into its components,
// e.g. "attach+xyz" -> ["attach", "xyz"]. Returns nil for plain ids.
func SplitDocID(docID string) []string {
	if !strings.Contains(docID, docIDSeparator) {
		return nil
	}
	return strings.Split(docID, docIDSeparator)
}

// IsAttachmentDataDoc reports whether docID names an attachment metadata
// sub-document.
func IsAttachmentDataDoc(docID string) bool {
	return strings.HasPrefix(docID, AttachmentMetadataPrefix+docIDSeparator)
}

// AttachmentIDFromDocID extracts the attachment id from a metadata
// sub-document id.
func AttachmentIDFromDocID(docID string) (string, error) {
	parts := SplitDocID(docID)
	if parts == nil {
		return "", fmt.Errorf("failed to split attachment doc id: %s", docID)
	}
	if len(parts) != 2 {
		return "", fmt.Errorf("bad number of components in attachment doc id %s", docID)
	}
	if parts[0] != AttachmentMetadataPrefix {
		return "", fmt.Errorf("bad first component in attachment doc id %s", docID)
	}
	return parts[1], nil
}

// NormalizeAddress rewrites legacy googlewave.com participant addresses to
// their gmail.com equivalents. Applied to every address in a snapshot
// immediately after fetch.
func NormalizeAddress(addr string) string {
	return strings.Replace(addr, "@googlewave.com", "@gmail.com", 1)
}
