// Package schema validates inbound event payloads before they reach the
// engine. Malformed payloads are rejected at the transport edge so the
// session state machines only ever see well-formed input.
package schema

import (
	"errors"
	"fmt"

	"transcript-sync-service/internal/models"
)

var (
	ErrMissingSessionID = errors.New("missing sessionId")
	ErrMissingSegmentID = errors.New("missing segmentId")
)

// ValidatePatch checks a transcript patch for structural defects.
func ValidatePatch(p models.TranscriptPatch) error {
	if p.SessionID == "" {
		return ErrMissingSessionID
	}
	if p.SegmentID == "" {
		return ErrMissingSegmentID
	}
	for i, w := range p.Words {
		if err := validateWord(w); err != nil {
			return fmt.Errorf("word %d: %w", i, err)
		}
	}
	return nil
}

func validateWord(w models.PatchWord) error {
	if w.ID == "" {
		return errors.New("missing wid")
	}
	if w.Text == "" {
		return errors.New("empty text")
	}
	// Words carry both timestamps or neither.
	if (w.StartTime == nil) != (w.EndTime == nil) {
		return errors.New("one-sided timestamps")
	}
	if w.StartTime != nil && *w.EndTime < *w.StartTime {
		return fmt.Errorf("end %v before start %v", *w.EndTime, *w.StartTime)
	}
	if w.Confidence != nil && (*w.Confidence < 0 || *w.Confidence > 1) {
		return fmt.Errorf("confidence %v out of range", *w.Confidence)
	}
	return nil
}

// ValidateResolve checks a resolution payload.
func ValidateResolve(sessionID, action string) error {
	if sessionID == "" {
		return ErrMissingSessionID
	}
	switch action {
	case "append", "replace", "ignore":
		return nil
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}
