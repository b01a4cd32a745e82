package zfs

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/slotpool/slotpool/pkg/log"
	"github.com/slotpool/slotpool/pkg/types"
)

// CLIBackend implements Backend by running the zfs command line tool
type CLIBackend struct {
	pool string
	base string

	// run executes a command and returns stdout; swapped out in tests
	run func(name string, args ...string) (string, error)
}

// runCommand executes a command, returning stdout on success and a
// command-and-stderr error on failure
func runCommand(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			stderr := strings.TrimSpace(string(exitErr.Stderr))
			return "", fmt.Errorf("%s", stderr)
		}
		return "", err
	}
	return string(out), nil
}

// NewCLIBackend creates a CLI-backed storage backend for the
// <pool>/<baseDataset> namespace
func NewCLIBackend(pool, baseDataset string) *CLIBackend {
	return &CLIBackend{
		pool: pool,
		base: baseDataset,
		run:  runCommand,
	}
}

// baseDataset returns the namespace root (pool/base)
func (b *CLIBackend) baseDataset() string {
	return fmt.Sprintf("%s/%s", b.pool, b.base)
}

// datasetPath returns the full dataset path for a relative name
func (b *CLIBackend) datasetPath(name string) string {
	return fmt.Sprintf("%s/%s", b.baseDataset(), name)
}

func (b *CLIBackend) zfs(op string, args ...string) (string, error) {
	logger := log.WithComponent("zfs")
	logger.Debug().Str("op", op).Strs("args", args).Msg("running zfs")

	out, err := b.run("zfs", args...)
	if err != nil {
		command := "zfs " + strings.Join(args, " ")
		return "", types.NewStorageError(op, command, err)
	}
	return out, nil
}

// DatasetExists reports whether a dataset exists
func (b *CLIBackend) DatasetExists(name string) (bool, error) {
	_, err := b.run("zfs", "list", "-H", b.datasetPath(name))
	// zfs list exits nonzero when the dataset is missing; that is the
	// answer, not a failure
	return err == nil, nil
}

// CreateDataset creates a dataset mounted at mountpoint
func (b *CLIBackend) CreateDataset(name, mountpoint string) error {
	_, err := b.zfs("create",
		"create",
		"-o", fmt.Sprintf("mountpoint=%s", mountpoint),
		b.datasetPath(name),
	)
	return err
}

// SnapshotExists reports whether any snapshot in the namespace carries
// the given name
func (b *CLIBackend) SnapshotExists(name string) (bool, error) {
	snap, err := b.FindSnapshot(name)
	if err != nil {
		return false, err
	}
	return snap != nil, nil
}

// FindSnapshot scans the namespace and returns the first snapshot with
// the given name, or nil
func (b *CLIBackend) FindSnapshot(name string) (*types.Snapshot, error) {
	snaps, err := b.ListSnapshots()
	if err != nil {
		return nil, err
	}
	for _, info := range snaps {
		if info.Snapshot.Name == name {
			snap := info.Snapshot
			return &snap, nil
		}
	}
	return nil, nil
}

// ListSnapshots returns all snapshots under the base dataset
func (b *CLIBackend) ListSnapshots() ([]types.SnapshotInfo, error) {
	out, err := b.zfs("list-snapshots",
		"list", "-H", "-t", "snapshot", "-o", "name,used", "-r", b.baseDataset(),
	)
	if err != nil {
		return nil, err
	}
	return parseSnapshotList(out), nil
}

// ListDatasets returns all datasets under the base dataset
func (b *CLIBackend) ListDatasets() ([]types.StateInfo, error) {
	out, err := b.zfs("list-datasets",
		"list", "-H", "-o", "name,used,avail", "-r", b.baseDataset(),
	)
	if err != nil {
		return nil, err
	}
	return parseDatasetList(out, b.baseDataset()), nil
}

// CreateSnapshot snapshots a dataset under the given name
func (b *CLIBackend) CreateSnapshot(dataset, name string) error {
	_, err := b.zfs("snapshot",
		"snapshot", fmt.Sprintf("%s@%s", b.datasetPath(dataset), name),
	)
	return err
}

// CloneSnapshot creates a dependent clone of a snapshot
func (b *CLIBackend) CloneSnapshot(snap types.Snapshot, newDataset, mountpoint string) error {
	_, err := b.zfs("clone",
		"clone",
		"-o", fmt.Sprintf("mountpoint=%s", mountpoint),
		snap.FullName(),
		b.datasetPath(newDataset),
	)
	return err
}

// PromoteDataset makes a clone independent of its origin snapshot
func (b *CLIBackend) PromoteDataset(name string) error {
	_, err := b.zfs("promote", "promote", b.datasetPath(name))
	return err
}

// DestroyDataset destroys a dataset, recursively if requested
func (b *CLIBackend) DestroyDataset(name string, recursive bool) error {
	args := []string{"destroy"}
	if recursive {
		args = append(args, "-r")
	}
	args = append(args, b.datasetPath(name))
	_, err := b.zfs("destroy", args...)
	return err
}
