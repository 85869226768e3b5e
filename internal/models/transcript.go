// Package models defines the data structures for transcript events and
// recognized words.
package models

// Word is the minimal timestamped recognition unit within a segment.
// Times are seconds from the start of the recording; both may be absent
// on providers that do not emit word timings. Once Committed is true the
// text and times never change again.
type Word struct {
	ID        string   `json:"wid"`
	Text      string   `json:"text"`
	StartTime *float64 `json:"t0"`
	EndTime   *float64 `json:"t1"`
	SegmentID string   `json:"segmentId"`
	Committed bool     `json:"committed"`
}

// HasTimes reports whether both word timestamps are present.
func (w Word) HasTimes() bool {
	return w.StartTime != nil && w.EndTime != nil
}

// PatchWord is the wire form of a word inside a transcript patch event.
type PatchWord struct {
	ID         string   `json:"wid"`
	Text       string   `json:"text"`
	StartTime  *float64 `json:"t0"`
	EndTime    *float64 `json:"t1"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// TranscriptPatch carries a word-level update for one segment. Interim
// patches replace the segment's word list wholesale; a final patch freezes
// it.
type TranscriptPatch struct {
	SessionID string      `json:"sessionId"`
	SegmentID string      `json:"segmentId"`
	IsFinal   bool        `json:"isFinal"`
	Words     []PatchWord `json:"words"`
}

// TranscriptPartial is the display-text form of an interim result.
type TranscriptPartial struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// TranscriptFinal is the display-text form of a finalized transcript.
type TranscriptFinal struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// CommittedUpdate is published whenever the committed transcript grows.
type CommittedUpdate struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	AutoSync  bool   `json:"autoSync"`
	Timestamp int64  `json:"timestamp"`
}

// SyncResolution is published when a pending update is resolved by the user.
type SyncResolution struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Action    string `json:"action"` // append, replace, ignore
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// SegmentRecord is the persisted form of a finalized segment.
type SegmentRecord struct {
	SessionID string `json:"sessionId"`
	SegmentID string `json:"segmentId"`
	IsFinal   bool   `json:"isFinal"`
	Words     []Word `json:"words"`
}

// SessionSnapshot is what the persistence layer exchanges on save and load.
type SessionSnapshot struct {
	SessionID  string          `json:"sessionId"`
	FinalText  string          `json:"finalText"`
	Document   []byte          `json:"structuredDocument,omitempty"`
	Segments   []SegmentRecord `json:"segments"`
	DurationMs int64           `json:"durationMs"`
	AudioPath  string          `json:"audioPath,omitempty"`
	Mime       string          `json:"mime,omitempty"`
	Digest     string          `json:"digest,omitempty"`
	Status     string          `json:"status,omitempty"`
}
