package pool

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/slotpool/slotpool/pkg/log"
	"github.com/slotpool/slotpool/pkg/types"
	"github.com/slotpool/slotpool/pkg/zfs"
)

// Pool guarantees each slot a dedicated reusable blank state named
// blank-<slot>, used whenever no prior session state exists for a
// borrow or after every return.
type Pool struct {
	backend   zfs.Backend
	statesDir string
	owner     string
}

// New creates a blank state pool over the given backend
func New(backend zfs.Backend, statesDir, owner string) *Pool {
	return &Pool{
		backend:   backend,
		statesDir: statesDir,
		owner:     owner,
	}
}

// Ensure makes the slot's blank state ready for use and returns its
// name. The dataset is created once; on subsequent calls it is kept
// (destroying an independent dataset just to recreate it empty would
// be wasted churn) and instead reset by discarding its disk image, so
// the next boot starts from an empty image.
func (p *Pool) Ensure(slot string) (string, error) {
	name := types.BlankStateName(slot)
	logger := log.WithSlot(slot)

	exists, err := p.backend.DatasetExists(name)
	if err != nil {
		return "", err
	}

	if !exists {
		mountpoint := filepath.Join(p.statesDir, name)
		logger.Info().Str("state", name).Msg("creating blank state")
		if err := p.backend.CreateDataset(name, mountpoint); err != nil {
			return "", err
		}
		if err := zfs.SetOwnership(mountpoint, p.owner); err != nil {
			return "", fmt.Errorf("failed to set blank state ownership: %w", err)
		}
		return name, nil
	}

	if err := p.Reset(slot); err != nil {
		return "", err
	}
	return name, nil
}

// Reset discards the blank state's disk image content. This is a
// lightweight content wipe, not a dataset-level operation.
func (p *Pool) Reset(slot string) error {
	name := types.BlankStateName(slot)
	dataImg := filepath.Join(p.statesDir, name, "data.img")

	err := os.Remove(dataImg)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to reset blank state: %w", err)
	}

	log.WithSlot(slot).Info().Str("state", name).Msg("reset blank state image")
	return nil
}
