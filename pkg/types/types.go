package types

import (
	"fmt"
	"strings"
	"time"
)

const (
	// BlankStatePrefix is the naming prefix reserved for per-slot blank states
	BlankStatePrefix = "blank-"

	// SessionStatePrefix is the naming prefix for states restored from a session snapshot
	SessionStatePrefix = "session-"
)

// BlankStateName returns the reserved blank state name for a slot
func BlankStateName(slot string) string {
	return BlankStatePrefix + slot
}

// SessionStateName returns the state name a session snapshot is restored into
func SessionStateName(sessionID string) string {
	return SessionStatePrefix + sessionID
}

// ValidateName validates a slot, state, or snapshot name.
// Names are used as ZFS dataset components and as path components,
// so they must be non-empty and free of '/' and '@'.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if strings.ContainsAny(name, "/@") {
		return fmt.Errorf("name %q cannot contain '/' or '@'", name)
	}
	return nil
}

// Snapshot identifies an immutable point-in-time copy of a state,
// named by the session that produced it
type Snapshot struct {
	Pool    string
	Dataset string
	Name    string
}

// FullName returns the full snapshot name (pool/dataset@name)
func (s Snapshot) FullName() string {
	return fmt.Sprintf("%s/%s@%s", s.Pool, s.Dataset, s.Name)
}

// StateName returns the last path component of the snapshot's parent dataset
func (s Snapshot) StateName() string {
	if idx := strings.LastIndex(s.Dataset, "/"); idx >= 0 {
		return s.Dataset[idx+1:]
	}
	return s.Dataset
}

// SlotPhase represents where a slot is in the borrow/return cycle
type SlotPhase string

const (
	// SlotPhaseBound means the slot is at rest, bound to exactly one state
	SlotPhaseBound SlotPhase = "bound"

	// SlotPhaseBorrowing means a borrow is mutating the slot's storage
	SlotPhaseBorrowing SlotPhase = "borrowing"

	// SlotPhaseReturning means a return is mutating the slot's storage
	SlotPhaseReturning SlotPhase = "returning"
)

// SlotStatus is the engine's explicit view of a slot. A slot is always
// bound to some state after any successful operation; the transitional
// phases exist only while an operation holds the slot's lock.
type SlotStatus struct {
	Slot      string    `json:"slot"`
	State     string    `json:"state"`
	Phase     SlotPhase `json:"phase"`
	SessionID string    `json:"session_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SlotInfo describes a slot for listing: its assignment and whether
// the bound VM process is running
type SlotInfo struct {
	Slot    string
	State   string
	Running bool
}

// StateInfo describes a state dataset for listing
type StateInfo struct {
	Name           string
	Dataset        string
	UsedBytes      uint64
	AvailableBytes uint64
}

// SnapshotInfo describes a snapshot for listing
type SnapshotInfo struct {
	Snapshot  Snapshot
	UsedBytes uint64
}
