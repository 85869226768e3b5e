// Package dirty tracks whether the user has diverged from the last
// automatically synced transcript, and holds the pending committed text
// while they decide what to do with it.
package dirty

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// State represents the divergence state of the document.
type State int

const (
	// StateClean - document matches the last synced committed text;
	// new committed text is applied automatically.
	StateClean State = iota
	// StateDirtyNoPending - the user has edited; no unapplied committed
	// text is waiting.
	StateDirtyNoPending
	// StateDirtyPending - the user has edited and newer committed text
	// arrived that has not been applied.
	StateDirtyPending
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClean:
		return "CLEAN"
	case StateDirtyNoPending:
		return "DIRTY_NO_PENDING"
	case StateDirtyPending:
		return "DIRTY_PENDING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// ErrNoPendingUpdate is returned when a resolution is requested but no
// pending committed text is waiting.
var ErrNoPendingUpdate = errors.New("no pending update to resolve")

// Resolution is the outcome of resolving a pending update.
type Resolution struct {
	// Text is the pending committed text being resolved.
	Text string
	// Delta is the trimmed suffix of Text past the last synced committed
	// text. Only meaningful when IsPrefix is true.
	Delta string
	// IsPrefix reports whether Text extends the last synced text. When
	// false the update is discontinuous and an append resolution must be
	// treated as a full-replace candidate.
	IsPrefix bool
}

// Machine is the dirty/conflict state machine.
//
// State transitions:
//
//	CLEAN ── user edit ──→ DIRTY_NO_PENDING ── new committed text ──→ DIRTY_PENDING
//	  │                          ↑    ↑                                    │
//	  │ new committed text       │    └──── append / ignore resolution ────┤
//	  │ (auto-synced, stays      │                                         │
//	  │  CLEAN)                  └────────────── replace resolution ───────┘ → CLEAN
//
// Only the most recent pending text is retained; earlier pending texts are
// superseded, not queued.
type Machine struct {
	mu          sync.RWMutex
	state       State
	lastSynced  string
	pendingText string
}

// New creates a machine in CLEAN state with an empty synced text.
func New() *Machine {
	return &Machine{}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsDirty reports whether the user has diverged from the synced text.
func (m *Machine) IsDirty() bool {
	return m.State() != StateClean
}

// LastSynced returns the last committed text the engine synced or the user
// acknowledged.
func (m *Machine) LastSynced() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSynced
}

// Pending returns the pending committed text, if any.
func (m *Machine) Pending() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pendingText, m.state == StateDirtyPending
}

// MarkEdited records a structural edit by the user. Selection-only changes
// must not reach this method. A pending update, if any, stays pending.
func (m *Machine) MarkEdited() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClean {
		m.state = StateDirtyNoPending
	}
}

// CommittedTextArrived records new committed text. It returns true when the
// caller should reconcile the document automatically (CLEAN state); in that
// case the text is recorded as synced. While dirty the text is parked as
// the pending update, superseding any earlier one, and false is returned.
func (m *Machine) CommittedTextArrived(text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if text == m.lastSynced {
		return false
	}

	switch m.state {
	case StateClean:
		m.lastSynced = text
		return true
	default:
		m.pendingText = text
		m.state = StateDirtyPending
		return false
	}
}

// ResolveAppend resolves the pending update by handing the caller the delta
// to append to the document's projection. The user stays in manual-edit
// mode, so the machine remains dirty.
func (m *Machine) ResolveAppend() (Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateDirtyPending {
		return Resolution{}, ErrNoPendingUpdate
	}

	res := Resolution{Text: m.pendingText}
	if strings.HasPrefix(m.pendingText, m.lastSynced) {
		res.IsPrefix = true
		res.Delta = strings.TrimSpace(m.pendingText[len(m.lastSynced):])
	}

	m.lastSynced = m.pendingText
	m.pendingText = ""
	m.state = StateDirtyNoPending
	return res, nil
}

// ResolveReplace resolves the pending update by discarding the user's edits;
// the caller replaces the document with the returned text. The document is
// back in sync, so the machine returns to CLEAN.
func (m *Machine) ResolveReplace() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateDirtyPending {
		return "", ErrNoPendingUpdate
	}

	text := m.pendingText
	m.lastSynced = text
	m.pendingText = ""
	m.state = StateClean
	return text, nil
}

// ResolveIgnore dismisses the pending update without touching the document.
// The text is treated as acknowledged so the same update is not offered
// again; the user remains in manual-edit mode.
func (m *Machine) ResolveIgnore() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateDirtyPending {
		return ErrNoPendingUpdate
	}

	m.lastSynced = m.pendingText
	m.pendingText = ""
	m.state = StateDirtyNoPending
	return nil
}

// SetSynced force-records the synced text, e.g. after loading a stored
// session. State is left untouched.
func (m *Machine) SetSynced(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSynced = text
}

// Reset returns the machine to CLEAN with an empty synced text, for a new
// session.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateClean
	m.lastSynced = ""
	m.pendingText = ""
}
