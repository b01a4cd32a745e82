package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"

	"github.com/slotpool/slotpool/pkg/log"
)

// Registry is the durable slot-to-state assignment store. The mapping
// is persisted as a single pretty-printed JSON object (slot id ->
// state id) and every Set also re-materializes the slot's runtime
// data.img symlink so the file and the filesystem never diverge.
//
// Mutation is whole-file read-modify-write, serialized by an
// in-process mutex plus a cross-process file lock.
type Registry struct {
	mu        sync.Mutex
	path      string
	statesDir string
	slotsDir  string
	lock      *flock.Flock
}

// New creates a Registry persisting to path, materializing symlinks
// from slotsDir into statesDir
func New(path, statesDir, slotsDir string) *Registry {
	return &Registry{
		path:      path,
		statesDir: statesDir,
		slotsDir:  slotsDir,
		lock:      flock.New(path + ".lock"),
	}
}

// load reads the whole mapping from disk. A missing file is an empty
// mapping, not an error.
func (r *Registry) load() (map[string]string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read assignments file: %w", err)
	}

	assignments := map[string]string{}
	if err := json.Unmarshal(data, &assignments); err != nil {
		return nil, fmt.Errorf("failed to parse assignments file: %w", err)
	}
	return assignments, nil
}

// save atomically replaces the mapping on disk
func (r *Registry) save(assignments map[string]string) error {
	data, err := json.MarshalIndent(assignments, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode assignments: %w", err)
	}

	if err := atomic.WriteFile(r.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write assignments file: %w", err)
	}
	return nil
}

// Get returns the state bound to a slot, or false if no assignment
// exists yet
func (r *Registry) Get(slot string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	assignments, err := r.load()
	if err != nil {
		return "", false, err
	}
	state, ok := assignments[slot]
	return state, ok, nil
}

// GetOrDefault returns the state bound to a slot, falling back to the
// slot id itself when no assignment exists (the first-use case, before
// any borrow or return has run for the slot)
func (r *Registry) GetOrDefault(slot string) (string, error) {
	state, ok, err := r.Get(slot)
	if err != nil {
		return "", err
	}
	if !ok {
		return slot, nil
	}
	return state, nil
}

// All returns the full slot-to-state mapping
func (r *Registry) All() (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// Slots returns the assigned slot ids in sorted order
func (r *Registry) Slots() ([]string, error) {
	assignments, err := r.All()
	if err != nil {
		return nil, err
	}
	slots := make([]string, 0, len(assignments))
	for slot := range assignments {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	return slots, nil
}

// Set binds a slot to a state: the mapping is updated durably and the
// slot's runtime data.img is re-pointed at the state's image. The two
// writes happen under one lock so a reader never observes them apart.
func (r *Registry) Set(slot, state string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock assignments file: %w", err)
	}
	defer func() {
		if err := r.lock.Unlock(); err != nil {
			log.WithComponent("registry").Warn().Err(err).Msg("failed to unlock assignments file")
		}
	}()

	assignments, err := r.load()
	if err != nil {
		return err
	}
	assignments[slot] = state
	if err := r.save(assignments); err != nil {
		return err
	}

	return r.materialize(slot, state)
}

// materialize points <slotsDir>/<slot>/data.img at
// <statesDir>/<state>/data.img
func (r *Registry) materialize(slot, state string) error {
	slotDir := filepath.Join(r.slotsDir, slot)
	slotData := filepath.Join(slotDir, "data.img")
	stateData := filepath.Join(r.statesDir, state, "data.img")

	if err := os.MkdirAll(slotDir, 0755); err != nil {
		return fmt.Errorf("failed to create slot directory: %w", err)
	}

	// Replace an existing symlink; preserve anything else under a
	// backup name rather than deleting it, the layout is unexpected
	// and the data may matter.
	if info, err := os.Lstat(slotData); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if err := os.Remove(slotData); err != nil {
				return fmt.Errorf("failed to remove old symlink: %w", err)
			}
		} else {
			backup := slotData + ".backup"
			log.WithSlot(slot).Warn().
				Str("backup", backup).
				Msg("data.img is not a symlink, preserving under backup name")
			if err := os.Rename(slotData, backup); err != nil {
				return fmt.Errorf("failed to back up data.img: %w", err)
			}
		}
	}

	if err := os.Symlink(stateData, slotData); err != nil {
		return fmt.Errorf("failed to create symlink: %w", err)
	}

	log.WithSlot(slot).Debug().
		Str("state", state).
		Str("target", stateData).
		Msg("materialized slot data.img")
	return nil
}

// Resolve returns the state id the slot's runtime data.img currently
// points to, or "" when no symlink exists. Used to verify the mapping
// and the filesystem agree.
func (r *Registry) Resolve(slot string) (string, error) {
	slotData := filepath.Join(r.slotsDir, slot, "data.img")
	target, err := os.Readlink(slotData)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read slot symlink: %w", err)
	}
	// target is <statesDir>/<state>/data.img
	return filepath.Base(filepath.Dir(target)), nil
}
