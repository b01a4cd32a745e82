package zfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/slotpool/slotpool/pkg/types"
)

// MemoryBackend is an in-memory Backend implementation. Dataset
// metadata lives in maps while mountpoints are real directories, so
// image files behave the way they do under ZFS: a snapshot captures
// the data.img content at snapshot time and a clone materializes it
// again. Used by tests and by dry-run tooling; never selected for a
// real pool.
type MemoryBackend struct {
	mu   sync.Mutex
	pool string
	base string

	datasets  map[string]*memDataset
	snapshots map[string]map[string][]byte // dataset -> snapshot name -> data.img content
}

type memDataset struct {
	mountpoint string
	origin     string // "dataset@snapshot" while still a dependent clone
}

// NewMemoryBackend creates an empty in-memory backend for the
// <pool>/<baseDataset> namespace
func NewMemoryBackend(pool, baseDataset string) *MemoryBackend {
	return &MemoryBackend{
		pool:      pool,
		base:      baseDataset,
		datasets:  make(map[string]*memDataset),
		snapshots: make(map[string]map[string][]byte),
	}
}

// DatasetExists reports whether a dataset exists
func (b *MemoryBackend) DatasetExists(name string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.datasets[name]
	return ok, nil
}

// CreateDataset creates a dataset and its mountpoint directory
func (b *MemoryBackend) CreateDataset(name, mountpoint string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.datasets[name]; ok {
		return types.NewStorageError("create", "", fmt.Errorf("dataset %s already exists", name))
	}
	if err := os.MkdirAll(mountpoint, 0755); err != nil {
		return types.NewStorageError("create", "", err)
	}
	b.datasets[name] = &memDataset{mountpoint: mountpoint}
	return nil
}

// SnapshotExists reports whether any snapshot carries the given name
func (b *MemoryBackend) SnapshotExists(name string) (bool, error) {
	snap, err := b.FindSnapshot(name)
	return snap != nil, err
}

// FindSnapshot returns the first snapshot with the given name, or nil
func (b *MemoryBackend) FindSnapshot(name string) (*types.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for dataset, snaps := range b.snapshots {
		if _, ok := snaps[name]; ok {
			return &types.Snapshot{
				Pool:    b.pool,
				Dataset: fmt.Sprintf("%s/%s", b.base, dataset),
				Name:    name,
			}, nil
		}
	}
	return nil, nil
}

// ListSnapshots returns all snapshots in the namespace
func (b *MemoryBackend) ListSnapshots() ([]types.SnapshotInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var infos []types.SnapshotInfo
	for dataset, snaps := range b.snapshots {
		for name := range snaps {
			infos = append(infos, types.SnapshotInfo{
				Snapshot: types.Snapshot{
					Pool:    b.pool,
					Dataset: fmt.Sprintf("%s/%s", b.base, dataset),
					Name:    name,
				},
			})
		}
	}
	return infos, nil
}

// ListDatasets returns all datasets in the namespace
func (b *MemoryBackend) ListDatasets() ([]types.StateInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var infos []types.StateInfo
	for name := range b.datasets {
		infos = append(infos, types.StateInfo{
			Name:    name,
			Dataset: fmt.Sprintf("%s/%s/%s", b.pool, b.base, name),
		})
	}
	return infos, nil
}

// CreateSnapshot captures the dataset's data.img content under the
// given snapshot name. Fails on a name collision under the same
// dataset; snapshots are immutable.
func (b *MemoryBackend) CreateSnapshot(dataset, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ds, ok := b.datasets[dataset]
	if !ok {
		return types.NewStorageError("snapshot", "", fmt.Errorf("dataset %s does not exist", dataset))
	}
	if _, ok := b.snapshots[dataset][name]; ok {
		return types.NewStorageError("snapshot", "",
			fmt.Errorf("snapshot %s@%s already exists", dataset, name))
	}

	content, err := os.ReadFile(filepath.Join(ds.mountpoint, "data.img"))
	if err != nil && !os.IsNotExist(err) {
		return types.NewStorageError("snapshot", "", err)
	}

	if b.snapshots[dataset] == nil {
		b.snapshots[dataset] = make(map[string][]byte)
	}
	b.snapshots[dataset][name] = content
	return nil
}

// CloneSnapshot materializes a snapshot's content as a new dataset
func (b *MemoryBackend) CloneSnapshot(snap types.Snapshot, newDataset, mountpoint string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	parent := filepath.Base(snap.Dataset)
	snaps, ok := b.snapshots[parent]
	if !ok {
		return types.NewStorageError("clone", "", fmt.Errorf("snapshot %s does not exist", snap.FullName()))
	}
	content, ok := snaps[snap.Name]
	if !ok {
		return types.NewStorageError("clone", "", fmt.Errorf("snapshot %s does not exist", snap.FullName()))
	}
	if _, ok := b.datasets[newDataset]; ok {
		return types.NewStorageError("clone", "", fmt.Errorf("dataset %s already exists", newDataset))
	}

	if err := os.MkdirAll(mountpoint, 0755); err != nil {
		return types.NewStorageError("clone", "", err)
	}
	if content != nil {
		if err := os.WriteFile(filepath.Join(mountpoint, "data.img"), content, 0644); err != nil {
			return types.NewStorageError("clone", "", err)
		}
	}

	b.datasets[newDataset] = &memDataset{
		mountpoint: mountpoint,
		origin:     fmt.Sprintf("%s@%s", parent, snap.Name),
	}
	return nil
}

// PromoteDataset makes a clone independent of its origin snapshot
func (b *MemoryBackend) PromoteDataset(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ds, ok := b.datasets[name]
	if !ok {
		return types.NewStorageError("promote", "", fmt.Errorf("dataset %s does not exist", name))
	}
	ds.origin = ""
	return nil
}

// DestroyDataset removes a dataset, its mountpoint, and (recursively)
// its snapshots. Non-recursive destroy fails if snapshots or dependent
// clones exist.
func (b *MemoryBackend) DestroyDataset(name string, recursive bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ds, ok := b.datasets[name]
	if !ok {
		return types.NewStorageError("destroy", "", fmt.Errorf("dataset %s does not exist", name))
	}

	if !recursive {
		if len(b.snapshots[name]) > 0 {
			return types.NewStorageError("destroy", "",
				fmt.Errorf("dataset %s has snapshots", name))
		}
		for other, d := range b.datasets {
			if strings.HasPrefix(d.origin, name+"@") {
				return types.NewStorageError("destroy", "",
					fmt.Errorf("dataset %s has dependent clone %s", name, other))
			}
		}
	}

	if err := os.RemoveAll(ds.mountpoint); err != nil {
		return types.NewStorageError("destroy", "", err)
	}
	delete(b.datasets, name)
	delete(b.snapshots, name)
	return nil
}

// Mountpoint returns the mountpoint of a dataset, for tests
func (b *MemoryBackend) Mountpoint(name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ds, ok := b.datasets[name]; ok {
		return ds.mountpoint
	}
	return ""
}
