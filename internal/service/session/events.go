package session

import (
	"transcript-sync-service/internal/models"
	"transcript-sync-service/internal/service/document"
)

// Event is the closed union of inbound events a session consumes. Every
// variant carries the session ID it belongs to; events for any other
// session are discarded without side effects.
type Event interface {
	EventSessionID() string
	isEvent()
}

// PatchEvent delivers a word-level segment update from the recognizer.
type PatchEvent struct {
	Patch models.TranscriptPatch
}

func (e PatchEvent) EventSessionID() string { return e.Patch.SessionID }
func (e PatchEvent) isEvent()               {}

// PartialTextEvent delivers interim display text. It never touches
// committed state; it is forwarded to the display surface only.
type PartialTextEvent struct {
	SessionID string
	Text      string
}

func (e PartialTextEvent) EventSessionID() string { return e.SessionID }
func (e PartialTextEvent) isEvent()               {}

// FinalTextEvent delivers the finalized display text for an utterance.
// Committed state is derived from word patches; this is display-only.
type FinalTextEvent struct {
	SessionID string
	Text      string
}

func (e FinalTextEvent) EventSessionID() string { return e.SessionID }
func (e FinalTextEvent) isEvent()               {}

// UserEditedEvent records a structural edit from the user-edit surface.
// Blocks may be nil when the surface only signals divergence. Selection
// changes must not be reported as edits.
type UserEditedEvent struct {
	SessionID string
	Blocks    []document.Block
}

func (e UserEditedEvent) EventSessionID() string { return e.SessionID }
func (e UserEditedEvent) isEvent()               {}

// Resolution actions for a pending committed-text update.
const (
	ActionAppend  = "append"
	ActionReplace = "replace"
	ActionIgnore  = "ignore"
)

// ResolveEvent carries the user's decision about a pending update.
type ResolveEvent struct {
	SessionID string
	Action    string
}

func (e ResolveEvent) EventSessionID() string { return e.SessionID }
func (e ResolveEvent) isEvent()               {}

// Player event kinds from the playback surface.
const (
	PlayerPlay   = "play"
	PlayerPause  = "pause"
	PlayerEnded  = "ended"
	PlayerSeeked = "seeked"
	PlayerTick   = "timeupdate"
)

// PlayerEvent carries a playback surface event with the position at which
// it occurred.
type PlayerEvent struct {
	SessionID string
	Kind      string
	Time      float64
}

func (e PlayerEvent) EventSessionID() string { return e.SessionID }
func (e PlayerEvent) isEvent()               {}
