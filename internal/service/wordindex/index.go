// Package wordindex maintains the set of recognized words keyed by segment,
// and the time-ordered committed-word sequence used for playback lookup.
package wordindex

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	"transcript-sync-service/internal/models"
)

// ErrSegmentFinalized is returned when an update arrives for a segment that
// already received its final word list. Finalized segments are immutable.
var ErrSegmentFinalized = errors.New("segment already finalized")

// Segment is one contiguous recognition unit covering a single utterance.
type Segment struct {
	ID      string
	Words   []models.Word
	IsFinal bool
	seq     int
}

// Index maps segment IDs to their latest word lists. Interim segments are
// replaced wholesale on every update; finalized segments never change.
type Index struct {
	mu       sync.RWMutex
	segments map[string]*Segment
	version  uint64
}

// New creates an empty index.
func New() *Index {
	return &Index{segments: make(map[string]*Segment)}
}

// SequenceNumber extracts the numeric suffix of a segment ID ("seg_3" -> 3).
// IDs without a parseable suffix sort first (0), matching how the upstream
// recognizer numbers segments.
func SequenceNumber(segmentID string) int {
	i := strings.LastIndexByte(segmentID, '_')
	if i < 0 || i == len(segmentID)-1 {
		return 0
	}
	n, err := strconv.Atoi(segmentID[i+1:])
	if err != nil {
		return 0
	}
	return n
}

// ApplySegment inserts or updates a segment from a patch event.
//   - Unseen segment: inserted.
//   - Existing interim segment: word list replaced wholesale.
//   - Existing finalized segment: rejected with ErrSegmentFinalized.
//
// Words are stored with Committed equal to isFinal.
func (ix *Index) ApplySegment(segmentID string, words []models.PatchWord, isFinal bool) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if existing, ok := ix.segments[segmentID]; ok && existing.IsFinal {
		return ErrSegmentFinalized
	}

	seg := &Segment{
		ID:      segmentID,
		IsFinal: isFinal,
		seq:     SequenceNumber(segmentID),
		Words:   make([]models.Word, 0, len(words)),
	}
	for _, w := range words {
		seg.Words = append(seg.Words, models.Word{
			ID:        w.ID,
			Text:      w.Text,
			StartTime: w.StartTime,
			EndTime:   w.EndTime,
			SegmentID: segmentID,
			Committed: isFinal,
		})
	}
	ix.segments[segmentID] = seg
	ix.version++
	return nil
}

// Restore loads previously persisted segments, e.g. when a stored session is
// reopened. Existing state is discarded.
func (ix *Index) Restore(records []models.SegmentRecord) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.segments = make(map[string]*Segment, len(records))
	for _, rec := range records {
		seg := &Segment{
			ID:      rec.SegmentID,
			IsFinal: rec.IsFinal,
			seq:     SequenceNumber(rec.SegmentID),
			Words:   append([]models.Word(nil), rec.Words...),
		}
		ix.segments[rec.SegmentID] = seg
	}
	ix.version++
}

// Reset empties the index for a new session.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.segments = make(map[string]*Segment)
	ix.version++
}

// Version increments on every mutation. Callers that cache a flattened view
// can use it to detect staleness.
func (ix *Index) Version() uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.version
}

// Len returns the number of segments currently held.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.segments)
}

// ordered returns segments sorted by sequence number ascending.
// Caller must hold at least a read lock.
func (ix *Index) ordered() []*Segment {
	segs := make([]*Segment, 0, len(ix.segments))
	for _, s := range ix.segments {
		segs = append(segs, s)
	}
	sort.Slice(segs, func(i, j int) bool {
		if segs[i].seq != segs[j].seq {
			return segs[i].seq < segs[j].seq
		}
		return segs[i].ID < segs[j].ID
	})
	return segs
}

// FinalSegments returns the finalized segments in sequence order.
func (ix *Index) FinalSegments() []*Segment {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]*Segment, 0, len(ix.segments))
	for _, s := range ix.ordered() {
		if s.IsFinal {
			out = append(out, s)
		}
	}
	return out
}

// FlattenOrdered returns the committed words that carry both timestamps,
// ordered by segment sequence number. This is the sequence PlaybackSync
// searches; it is recomputed on demand since the index is bounded by the
// utterance count of one recording session.
func (ix *Index) FlattenOrdered() []models.Word {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []models.Word
	for _, seg := range ix.ordered() {
		if !seg.IsFinal {
			continue
		}
		for _, w := range seg.Words {
			if w.Committed && w.HasTimes() {
				out = append(out, w)
			}
		}
	}
	return out
}

// FlattenAllWords returns every word in sequence order, committed and
// interim, for display. Committed words are always retained; only the
// trailing interim run changes between calls, because each interim patch
// replaces its segment's words wholesale and finalized segments reject
// updates.
func (ix *Index) FlattenAllWords() []models.Word {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []models.Word
	for _, seg := range ix.ordered() {
		out = append(out, seg.Words...)
	}
	return out
}

// Records returns the finalized segments in persisted form.
func (ix *Index) Records(sessionID string) []models.SegmentRecord {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []models.SegmentRecord
	for _, seg := range ix.ordered() {
		if !seg.IsFinal {
			continue
		}
		out = append(out, models.SegmentRecord{
			SessionID: sessionID,
			SegmentID: seg.ID,
			IsFinal:   true,
			Words:     append([]models.Word(nil), seg.Words...),
		})
	}
	return out
}
