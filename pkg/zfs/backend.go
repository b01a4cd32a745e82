package zfs

import (
	"fmt"
	"os/exec"

	"github.com/slotpool/slotpool/pkg/types"
)

// Backend is the capability set the lifecycle engine needs from the
// copy-on-write storage engine. Dataset names are relative to the
// configured <pool>/<base> namespace. Callers never observe which
// concrete implementation serves a call.
type Backend interface {
	// DatasetExists reports whether a dataset exists
	DatasetExists(name string) (bool, error)

	// CreateDataset creates a dataset mounted at mountpoint.
	// Fails if the dataset already exists.
	CreateDataset(name, mountpoint string) error

	// SnapshotExists reports whether any snapshot in the namespace
	// carries the given name
	SnapshotExists(name string) (bool, error)

	// FindSnapshot scans the namespace for a snapshot with the given
	// name and returns the first match, or nil if none exists
	FindSnapshot(name string) (*types.Snapshot, error)

	// ListSnapshots returns all snapshots under the base dataset.
	// Ordering is not guaranteed.
	ListSnapshots() ([]types.SnapshotInfo, error)

	// ListDatasets returns all datasets under the base dataset with
	// usage figures
	ListDatasets() ([]types.StateInfo, error)

	// CreateSnapshot snapshots a dataset. Fails if a snapshot of that
	// name already exists under the dataset; snapshots are immutable
	// history and are never silently overwritten.
	CreateSnapshot(dataset, name string) error

	// CloneSnapshot creates a dependent clone of a snapshot. The clone
	// is not self-sufficient until promoted.
	CloneSnapshot(snap types.Snapshot, newDataset, mountpoint string) error

	// PromoteDataset makes a clone independent of its origin snapshot
	PromoteDataset(name string) error

	// DestroyDataset destroys a dataset. With recursive set, descendant
	// clones and snapshots are destroyed too; without it, the operation
	// fails if descendants exist.
	DestroyDataset(name string, recursive bool) error
}

// Detect selects a backend implementation for the given namespace.
// The CLI implementation is preferred whenever the zfs binary is
// present; there is no separate native path, every capability is
// served through the one selected backend.
func Detect(pool, baseDataset string) (Backend, error) {
	if _, err := exec.LookPath("zfs"); err != nil {
		return nil, fmt.Errorf("zfs binary not found in PATH: %w", err)
	}
	return NewCLIBackend(pool, baseDataset), nil
}
