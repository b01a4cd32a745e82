package engine

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/slotpool/slotpool/pkg/log"
	"github.com/slotpool/slotpool/pkg/types"
	"github.com/slotpool/slotpool/pkg/zfs"
)

// State management operations beyond the borrow/return protocol.
// These back the slotpool CLI verbs and share the same collaborators
// and per-slot locking discipline as the webhook path.

// ListSlots returns every assigned slot with its bound state and
// whether its VM process is running
func (e *Engine) ListSlots() ([]types.SlotInfo, error) {
	slots, err := e.registry.Slots()
	if err != nil {
		return nil, err
	}

	var infos []types.SlotInfo
	for _, slot := range slots {
		state, err := e.registry.GetOrDefault(slot)
		if err != nil {
			return nil, err
		}
		running, err := e.proc.IsRunning(slot)
		if err != nil {
			return nil, err
		}
		infos = append(infos, types.SlotInfo{
			Slot:    slot,
			State:   state,
			Running: running,
		})
	}
	return infos, nil
}

// ListStates returns every state dataset in the namespace
func (e *Engine) ListStates() ([]types.StateInfo, error) {
	return e.backend.ListDatasets()
}

// ListSnapshots returns every snapshot in the namespace
func (e *Engine) ListSnapshots() ([]types.SnapshotInfo, error) {
	return e.backend.ListSnapshots()
}

// CreateState creates a new empty state dataset
func (e *Engine) CreateState(name string) error {
	if err := types.ValidateName(name); err != nil {
		return types.NewInvalidRequest("state name: %v", err)
	}

	exists, err := e.backend.DatasetExists(name)
	if err != nil {
		return err
	}
	if exists {
		return types.NewStorageError("create", "", fmt.Errorf("state %q already exists", name))
	}

	mountpoint := filepath.Join(e.statesDir, name)
	if err := e.backend.CreateDataset(name, mountpoint); err != nil {
		return err
	}
	return zfs.SetOwnership(mountpoint, e.owner)
}

// DeleteState destroys a state dataset and its snapshots. States
// currently bound to a slot cannot be deleted.
func (e *Engine) DeleteState(name string) error {
	if err := types.ValidateName(name); err != nil {
		return types.NewInvalidRequest("state name: %v", err)
	}

	exists, err := e.backend.DatasetExists(name)
	if err != nil {
		return err
	}
	if !exists {
		return types.NewStorageError("destroy", "", fmt.Errorf("state %q does not exist", name))
	}

	assignments, err := e.registry.All()
	if err != nil {
		return err
	}
	for slot, state := range assignments {
		if state == name {
			return types.NewInvalidRequest("state %q is assigned to %s, reassign it first", name, slot)
		}
	}

	return e.backend.DestroyDataset(name, true)
}

// SnapshotSlot snapshots the state currently bound to a slot under an
// arbitrary name
func (e *Engine) SnapshotSlot(slot, name string) error {
	if err := types.ValidateName(slot); err != nil {
		return types.NewInvalidRequest("slot id: %v", err)
	}
	if err := types.ValidateName(name); err != nil {
		return types.NewInvalidRequest("snapshot name: %v", err)
	}

	lock := e.slotLock(slot)
	lock.Lock()
	defer lock.Unlock()

	state, err := e.registry.GetOrDefault(slot)
	if err != nil {
		return err
	}

	if running, err := e.proc.IsRunning(slot); err == nil && running {
		log.WithSlot(slot).Warn().Msg("slot is running, snapshot will be crash-consistent")
	}

	return e.backend.CreateSnapshot(state, name)
}

// AssignState binds a state to a slot, creating the state if it does
// not exist yet. The slot's process is not restarted; a running VM
// keeps its current image until restarted.
func (e *Engine) AssignState(slot, state string) error {
	if err := types.ValidateName(slot); err != nil {
		return types.NewInvalidRequest("slot id: %v", err)
	}
	if err := types.ValidateName(state); err != nil {
		return types.NewInvalidRequest("state name: %v", err)
	}

	lock := e.slotLock(slot)
	lock.Lock()
	defer lock.Unlock()

	exists, err := e.backend.DatasetExists(state)
	if err != nil {
		return err
	}
	if !exists {
		log.WithSlot(slot).Warn().Str("state", state).Msg("state does not exist yet, creating it")
		mountpoint := filepath.Join(e.statesDir, state)
		if err := e.backend.CreateDataset(state, mountpoint); err != nil {
			return err
		}
		if err := zfs.SetOwnership(mountpoint, e.owner); err != nil {
			return err
		}
	}

	return e.registry.Set(slot, state)
}

// CloneState copies a state to a new name via snapshot + clone +
// promote, leaving the destination fully independent
func (e *Engine) CloneState(source, destination string) error {
	if err := types.ValidateName(source); err != nil {
		return types.NewInvalidRequest("source state: %v", err)
	}
	if err := types.ValidateName(destination); err != nil {
		return types.NewInvalidRequest("destination state: %v", err)
	}

	exists, err := e.backend.DatasetExists(source)
	if err != nil {
		return err
	}
	if !exists {
		return types.NewStorageError("clone", "", fmt.Errorf("state %q does not exist", source))
	}
	exists, err = e.backend.DatasetExists(destination)
	if err != nil {
		return err
	}
	if exists {
		return types.NewStorageError("clone", "", fmt.Errorf("state %q already exists", destination))
	}

	snapName := "clone-for-" + destination
	if err := e.backend.CreateSnapshot(source, snapName); err != nil {
		return err
	}

	snap := types.Snapshot{
		Pool:    e.zfsPool,
		Dataset: fmt.Sprintf("%s/%s", e.baseDS, source),
		Name:    snapName,
	}
	mountpoint := filepath.Join(e.statesDir, destination)
	if err := e.backend.CloneSnapshot(snap, destination, mountpoint); err != nil {
		return err
	}
	if err := e.backend.PromoteDataset(destination); err != nil {
		return err
	}
	return zfs.SetOwnership(mountpoint, e.owner)
}

// RestoreSnapshot restores a named snapshot into a new independent
// state without touching any slot
func (e *Engine) RestoreSnapshot(snapshotName, stateName string) error {
	if err := types.ValidateName(snapshotName); err != nil {
		return types.NewInvalidRequest("snapshot name: %v", err)
	}
	if err := types.ValidateName(stateName); err != nil {
		return types.NewInvalidRequest("state name: %v", err)
	}

	exists, err := e.backend.DatasetExists(stateName)
	if err != nil {
		return err
	}
	if exists {
		return types.NewStorageError("clone", "", fmt.Errorf("state %q already exists", stateName))
	}

	snap, err := e.backend.FindSnapshot(snapshotName)
	if err != nil {
		return err
	}
	if snap == nil {
		return &types.SnapshotNotFoundError{Name: snapshotName}
	}

	mountpoint := filepath.Join(e.statesDir, stateName)
	if err := e.backend.CloneSnapshot(*snap, stateName, mountpoint); err != nil {
		return err
	}
	if err := e.backend.PromoteDataset(stateName); err != nil {
		return err
	}
	return zfs.SetOwnership(mountpoint, e.owner)
}

// MigrateState stops a slot, assigns a state to it, and starts it
func (e *Engine) MigrateState(state, slot string) error {
	if err := types.ValidateName(slot); err != nil {
		return types.NewInvalidRequest("slot id: %v", err)
	}
	if err := types.ValidateName(state); err != nil {
		return types.NewInvalidRequest("state name: %v", err)
	}

	if running, err := e.proc.IsRunning(slot); err == nil && running {
		if err := e.proc.Stop(slot); err != nil {
			return err
		}
		// Give the VM a moment to release the image
		time.Sleep(2 * time.Second)
	}

	if err := e.AssignState(slot, state); err != nil {
		return err
	}

	return e.proc.Start(slot)
}

// StartSlot starts a slot's VM process
func (e *Engine) StartSlot(slot string) error {
	return e.proc.Start(slot)
}

// StopSlot stops a slot's VM process
func (e *Engine) StopSlot(slot string) error {
	return e.proc.Stop(slot)
}

// RestartSlot restarts a slot's VM process
func (e *Engine) RestartSlot(slot string) error {
	return e.proc.Restart(slot)
}
