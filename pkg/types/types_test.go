package types

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple name", "slot1", false},
		{"with dashes", "session-abc123", false},
		{"empty", "", true},
		{"with slash", "a/b", true},
		{"with at sign", "state@snap", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestStateNames(t *testing.T) {
	if got := BlankStateName("slot1"); got != "blank-slot1" {
		t.Errorf("BlankStateName = %q, want blank-slot1", got)
	}
	if got := SessionStateName("abc123"); got != "session-abc123" {
		t.Errorf("SessionStateName = %q, want session-abc123", got)
	}
}

func TestSnapshotFullName(t *testing.T) {
	snap := Snapshot{
		Pool:    "microvms",
		Dataset: "storage/states/blank-slot1",
		Name:    "abc123",
	}

	if got := snap.FullName(); got != "microvms/storage/states/blank-slot1@abc123" {
		t.Errorf("FullName = %q", got)
	}
	if got := snap.StateName(); got != "blank-slot1" {
		t.Errorf("StateName = %q, want blank-slot1", got)
	}
}

func TestErrorPredicates(t *testing.T) {
	invalid := NewInvalidRequest("missing slot id")
	storage := NewStorageError("clone", "zfs clone x y", errors.New("boom"))
	notFound := &SnapshotNotFoundError{Name: "abc"}
	procErr := &ProcessControlError{Action: "start", Slot: "slot1", Err: errors.New("unit failed")}

	if !IsInvalidRequest(invalid) || IsInvalidRequest(storage) {
		t.Error("IsInvalidRequest misclassified")
	}
	if !IsStorageError(storage) || IsStorageError(invalid) {
		t.Error("IsStorageError misclassified")
	}
	if !IsSnapshotNotFound(notFound) || IsSnapshotNotFound(storage) {
		t.Error("IsSnapshotNotFound misclassified")
	}
	if !IsProcessError(procErr) || IsProcessError(notFound) {
		t.Error("IsProcessError misclassified")
	}
}

func TestStorageErrorCarriesCommand(t *testing.T) {
	err := NewStorageError("snapshot", "zfs snapshot p/d@s", errors.New("dataset already exists"))

	msg := err.Error()
	if want := "zfs snapshot p/d@s"; !strings.Contains(msg, want) {
		t.Errorf("error %q does not carry command %q", msg, want)
	}
	if !strings.Contains(msg, "dataset already exists") {
		t.Errorf("error %q does not carry underlying message", msg)
	}
}

func TestWrappedErrorsMatch(t *testing.T) {
	inner := NewStorageError("destroy", "", errors.New("busy"))
	wrapped := errors.Join(errors.New("context"), inner)

	if !IsStorageError(wrapped) {
		t.Error("IsStorageError should see through wrapping")
	}
}
