package wave

import "github.com/Psantium/walkaround/internal/model"

// NormalizeSnapshot rewrites every participant address in a fetched
// snapshot into the current identifier domain. Runs once, immediately
// after fetch; the snapshot is immutable afterwards.
func NormalizeSnapshot(w model.RemoteWavelet, docs []model.RemoteDocument) (model.RemoteWavelet, []model.RemoteDocument) {
	out := w
	out.Creator = NormalizeAddress(w.Creator)
	out.Participants = make([]string, 0, len(w.Participants))
	for _, p := range w.Participants {
		out.Participants = append(out.Participants, NormalizeAddress(p))
	}
	outDocs := make([]model.RemoteDocument, 0, len(docs))
	for _, doc := range docs {
		d := doc
		d.Author = NormalizeAddress(doc.Author)
		d.Contributors = make([]string, 0, len(doc.Contributors))
		for _, c := range doc.Contributors {
			d.Contributors = append(d.Contributors, NormalizeAddress(c))
		}
		outDocs = append(outDocs, d)
	}
	return out, outDocs
}
