package engine

import (
	"strings"
	"testing"

	"github.com/slotpool/slotpool/pkg/types"
)

func TestCreateState(t *testing.T) {
	h := newHarness(t)

	if err := h.engine.CreateState("golden"); err != nil {
		t.Fatalf("CreateState failed: %v", err)
	}

	exists, err := h.backend.DatasetExists("golden")
	if err != nil {
		t.Fatalf("DatasetExists failed: %v", err)
	}
	if !exists {
		t.Error("state dataset was not created")
	}

	err = h.engine.CreateState("golden")
	if err == nil {
		t.Fatal("duplicate create should fail")
	}
	if !types.IsStorageError(err) {
		t.Errorf("expected StorageOperationError, got %T", err)
	}

	if err := h.engine.CreateState("bad/name"); !types.IsInvalidRequest(err) {
		t.Errorf("expected InvalidRequestError for bad name, got %v", err)
	}
}

func TestDeleteStateRefusesAssigned(t *testing.T) {
	h := newHarness(t)

	if _, err := h.engine.Borrow("slot1", "abc123"); err != nil {
		t.Fatalf("borrow failed: %v", err)
	}

	err := h.engine.DeleteState("blank-slot1")
	if err == nil {
		t.Fatal("deleting an assigned state should fail")
	}
	if !types.IsInvalidRequest(err) {
		t.Errorf("expected InvalidRequestError, got %T", err)
	}
	if !strings.Contains(err.Error(), "slot1") {
		t.Errorf("error %q should name the slot holding the state", err)
	}

	exists, err := h.backend.DatasetExists("blank-slot1")
	if err != nil {
		t.Fatalf("DatasetExists failed: %v", err)
	}
	if !exists {
		t.Error("refused delete must not destroy the dataset")
	}
}

func TestDeleteStateDestroysUnassigned(t *testing.T) {
	h := newHarness(t)

	if err := h.engine.CreateState("orphan"); err != nil {
		t.Fatalf("CreateState failed: %v", err)
	}
	if err := h.backend.CreateSnapshot("orphan", "keepsake"); err != nil {
		t.Fatalf("CreateSnapshot failed: %v", err)
	}

	if err := h.engine.DeleteState("orphan"); err != nil {
		t.Fatalf("DeleteState failed: %v", err)
	}

	exists, err := h.backend.DatasetExists("orphan")
	if err != nil {
		t.Fatalf("DatasetExists failed: %v", err)
	}
	if exists {
		t.Error("dataset should be gone")
	}
	snap, err := h.backend.FindSnapshot("keepsake")
	if err != nil {
		t.Fatalf("FindSnapshot failed: %v", err)
	}
	if snap != nil {
		t.Error("snapshots should be destroyed with the state")
	}
}

func TestSnapshotSlot(t *testing.T) {
	h := newHarness(t)

	if _, err := h.engine.Borrow("slot1", "abc123"); err != nil {
		t.Fatalf("borrow failed: %v", err)
	}
	h.writeImage(t, "blank-slot1", "checkpoint content")

	if err := h.engine.SnapshotSlot("slot1", "checkpoint"); err != nil {
		t.Fatalf("SnapshotSlot failed: %v", err)
	}

	snap, err := h.backend.FindSnapshot("checkpoint")
	if err != nil {
		t.Fatalf("FindSnapshot failed: %v", err)
	}
	if snap == nil {
		t.Fatal("snapshot was not created")
	}
	if snap.StateName() != "blank-slot1" {
		t.Errorf("snapshot taken of %q, want the bound state", snap.StateName())
	}
}

func TestAssignStateCreatesMissing(t *testing.T) {
	h := newHarness(t)

	if err := h.engine.AssignState("slot1", "custom"); err != nil {
		t.Fatalf("AssignState failed: %v", err)
	}

	exists, err := h.backend.DatasetExists("custom")
	if err != nil {
		t.Fatalf("DatasetExists failed: %v", err)
	}
	if !exists {
		t.Error("missing state should have been created")
	}

	state, err := h.registry.GetOrDefault("slot1")
	if err != nil {
		t.Fatalf("registry lookup failed: %v", err)
	}
	if state != "custom" {
		t.Errorf("slot bound to %q, want custom", state)
	}

	// assignment alone must not restart anything
	if n := h.proc.callCount(); n != 0 {
		t.Errorf("process controller was touched %d times", n)
	}
}

func TestCloneState(t *testing.T) {
	h := newHarness(t)

	if err := h.engine.CreateState("golden"); err != nil {
		t.Fatalf("CreateState failed: %v", err)
	}
	h.writeImage(t, "golden", "golden image")

	if err := h.engine.CloneState("golden", "copy"); err != nil {
		t.Fatalf("CloneState failed: %v", err)
	}

	if got := h.readImage(t, "copy"); got != "golden image" {
		t.Errorf("clone content = %q", got)
	}

	if err := h.engine.CloneState("golden", "copy"); err == nil {
		t.Error("cloning onto an existing state should fail")
	}
	if err := h.engine.CloneState("missing", "copy2"); err == nil {
		t.Error("cloning a missing state should fail")
	}
}

func TestRestoreSnapshot(t *testing.T) {
	h := newHarness(t)

	if err := h.engine.CreateState("golden"); err != nil {
		t.Fatalf("CreateState failed: %v", err)
	}
	h.writeImage(t, "golden", "v1 bytes")
	if err := h.backend.CreateSnapshot("golden", "v1"); err != nil {
		t.Fatalf("CreateSnapshot failed: %v", err)
	}

	if err := h.engine.RestoreSnapshot("v1", "golden-v1"); err != nil {
		t.Fatalf("RestoreSnapshot failed: %v", err)
	}
	if got := h.readImage(t, "golden-v1"); got != "v1 bytes" {
		t.Errorf("restored content = %q", got)
	}

	err := h.engine.RestoreSnapshot("never-taken", "whatever")
	if !types.IsSnapshotNotFound(err) {
		t.Errorf("expected SnapshotNotFoundError, got %v", err)
	}
}

func TestListSlots(t *testing.T) {
	h := newHarness(t)

	if _, err := h.engine.Borrow("slot1", "session-a"); err != nil {
		t.Fatalf("borrow failed: %v", err)
	}
	if _, err := h.engine.Borrow("slot2", "session-b"); err != nil {
		t.Fatalf("borrow failed: %v", err)
	}
	if err := h.engine.StopSlot("slot2"); err != nil {
		t.Fatalf("StopSlot failed: %v", err)
	}

	infos, err := h.engine.ListSlots()
	if err != nil {
		t.Fatalf("ListSlots failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(infos))
	}
	if infos[0].Slot != "slot1" || !infos[0].Running {
		t.Errorf("infos[0] = %+v, want running slot1", infos[0])
	}
	if infos[1].Slot != "slot2" || infos[1].Running {
		t.Errorf("infos[1] = %+v, want stopped slot2", infos[1])
	}
}
