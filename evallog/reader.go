package evallog

import (
	"bytes"
	"encoding/json"
	"os"
)

// Document is the full on-disk shape Writer produces: the same object
// whether the run finished cleanly or was interrupted mid-write. Fields
// populated by ReadLog beyond "eval"/"plan"/"samples" are only meaningful
// once Status is a terminal value.
type Document struct {
	Version int        `json:"version"`
	Status  Status     `json:"status"`
	Eval    EvalHeader `json:"eval"`
	Plan    Plan       `json:"plan"`
	Samples []EvalSample `json:"samples"`
	Results *Results   `json:"results,omitempty"`
	Stats   Stats      `json:"stats,omitempty"`
	Error   *RunError  `json:"error,omitempty"`
}

// ReadLog loads a log file written by Writer. A log left behind by a
// process killed mid-run is not valid JSON (the samples array and the
// enclosing object were never closed); ReadLog falls back to a tolerant
// token-by-token decode that keeps every fully-written sample and stops at
// the first truncated one, mirroring how the teacher's run snapshots are
// "recomputed from the canonical append-only run log" rather than trusted
// as a single well-formed blob (runtime/agent/run/snapshot.go).
func ReadLog(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err == nil {
		return doc, nil
	}
	return recoverTruncated(data)
}

func recoverTruncated(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var doc Document

	if _, err := dec.Token(); err != nil { // '{'
		return doc, err
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return doc, nil
		}
		key, _ := keyTok.(string)
		switch key {
		case "version":
			_ = dec.Decode(&doc.Version)
		case "status":
			_ = dec.Decode(&doc.Status)
		case "eval":
			_ = dec.Decode(&doc.Eval)
		case "plan":
			_ = dec.Decode(&doc.Plan)
		case "samples":
			if _, err := dec.Token(); err != nil { // '['
				return doc, nil
			}
			for dec.More() {
				var s EvalSample
				if err := dec.Decode(&s); err != nil {
					// Last element was cut off mid-write; everything
					// decoded so far is durable per the writer's
					// fsync-per-sample discipline.
					return doc, nil
				}
				doc.Samples = append(doc.Samples, s)
			}
			_, _ = dec.Token() // ']', absent on a truncated file
		case "results":
			var r Results
			if err := dec.Decode(&r); err == nil {
				doc.Results = &r
			}
		case "stats":
			_ = dec.Decode(&doc.Stats)
		case "error":
			var e RunError
			if err := dec.Decode(&e); err == nil {
				doc.Error = &e
			}
		default:
			var skip any
			if err := dec.Decode(&skip); err != nil {
				return doc, nil
			}
		}
	}
	if doc.Status == "" {
		doc.Status = StatusError
	}
	return doc, nil
}
