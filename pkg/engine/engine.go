package engine

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/slotpool/slotpool/pkg/events"
	"github.com/slotpool/slotpool/pkg/log"
	"github.com/slotpool/slotpool/pkg/metrics"
	"github.com/slotpool/slotpool/pkg/pool"
	"github.com/slotpool/slotpool/pkg/process"
	"github.com/slotpool/slotpool/pkg/registry"
	"github.com/slotpool/slotpool/pkg/types"
	"github.com/slotpool/slotpool/pkg/zfs"
)

// Config holds the engine's collaborators and namespace settings
type Config struct {
	Backend  zfs.Backend
	Registry *registry.Registry
	Pool     *pool.Pool
	Process  process.Controller
	Broker   *events.Broker // optional

	// Pool and BaseDataset name the ZFS namespace states live in
	ZFSPool     string
	BaseDataset string

	// StatesDir is where state datasets are mounted
	StatesDir string

	// Owner, if set, is applied to mountpoints created by restores
	Owner string
}

// Engine orchestrates the slot state lifecycle: the two-phase
// borrow/return protocol, the snapshot/clone/promote state machine,
// and the consistency of the slot-to-state binding.
//
// Every operation for a given slot runs under that slot's lock, held
// for the full stop / storage mutation / registry update / start
// sequence. Operations on different slots proceed in parallel.
type Engine struct {
	backend  zfs.Backend
	registry *registry.Registry
	pool     *pool.Pool
	proc     process.Controller
	broker   *events.Broker

	zfsPool   string
	baseDS    string
	statesDir string
	owner     string

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	status map[string]*types.SlotStatus
}

// Result reports a completed borrow or return
type Result struct {
	Slot      string `json:"slot"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// New creates a lifecycle engine
func New(cfg *Config) *Engine {
	return &Engine{
		backend:   cfg.Backend,
		registry:  cfg.Registry,
		pool:      cfg.Pool,
		proc:      cfg.Process,
		broker:    cfg.Broker,
		zfsPool:   cfg.ZFSPool,
		baseDS:    cfg.BaseDataset,
		statesDir: cfg.StatesDir,
		owner:     cfg.Owner,
		locks:     make(map[string]*sync.Mutex),
		status:    make(map[string]*types.SlotStatus),
	}
}

// slotLock returns the mutex serializing operations for one slot
func (e *Engine) slotLock(slot string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[slot]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[slot] = lock
	}
	return lock
}

// setStatus records the slot's explicit lifecycle state
func (e *Engine) setStatus(slot, state string, phase types.SlotPhase, sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.status[slot] = &types.SlotStatus{
		Slot:      slot,
		State:     state,
		Phase:     phase,
		SessionID: sessionID,
		UpdatedAt: time.Now(),
	}
}

// Status returns the engine's view of a slot, or nil if the slot has
// not been operated on since startup
func (e *Engine) Status(slot string) *types.SlotStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	status, ok := e.status[slot]
	if !ok {
		return nil
	}
	copied := *status
	return &copied
}

// publish emits an event if a broker is configured
func (e *Engine) publish(event *events.Event) {
	if e.broker != nil {
		e.broker.Publish(event)
	}
}

// validate checks the two request ids. Both must be non-empty and
// usable as dataset name components; nothing has been touched yet when
// validation fails.
func validate(slot, sessionID string) error {
	if slot == "" || sessionID == "" {
		return types.NewInvalidRequest("missing slot id or sessionId")
	}
	if err := types.ValidateName(slot); err != nil {
		return types.NewInvalidRequest("slot id: %v", err)
	}
	if err := types.ValidateName(sessionID); err != nil {
		return types.NewInvalidRequest("sessionId: %v", err)
	}
	return nil
}

// stopSlot stops the slot's VM process before storage mutation.
// Failure is logged and swallowed: a slot whose process would not stop
// cleanly is still safe to mutate storage under, the expected case is
// that nothing is using the disk.
func (e *Engine) stopSlot(slot string) {
	if err := e.proc.Stop(slot); err != nil {
		log.WithSlot(slot).Warn().Err(err).Msg("failed to stop slot, continuing")
	}
}

// Borrow attaches a session's prior state, or a fresh blank state, to
// a slot. If a snapshot named sessionID exists anywhere in the lineage
// it is cloned into session-<sessionID> (overwriting any stale state
// of that name), promoted to an independent dataset, and bound to the
// slot; otherwise the slot's blank state is ensured and bound.
func (e *Engine) Borrow(slot, sessionID string) (*Result, error) {
	if err := validate(slot, sessionID); err != nil {
		metrics.BorrowsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	lock := e.slotLock(slot)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	logger := log.WithSlot(slot)
	logger.Info().Str("session_id", sessionID).Msg("handling borrow")

	e.setStatus(slot, "", types.SlotPhaseBorrowing, sessionID)

	result, err := e.borrow(slot, sessionID, logger)
	metrics.OperationDuration.WithLabelValues("borrow").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BorrowsTotal.WithLabelValues("error").Inc()
		e.recordFailure(slot, sessionID, err)
		return nil, err
	}

	metrics.BorrowsTotal.WithLabelValues("success").Inc()
	e.publish(&events.Event{
		Type:      events.EventSlotBorrowed,
		Slot:      slot,
		SessionID: sessionID,
		State:     e.Status(slot).State,
		Message:   result.Message,
	})
	return result, nil
}

func (e *Engine) borrow(slot, sessionID string, logger zerolog.Logger) (*Result, error) {
	e.stopSlot(slot)

	snap, err := e.backend.FindSnapshot(sessionID)
	if err != nil {
		return nil, err
	}

	var state string
	if snap != nil {
		logger.Info().Str("snapshot", snap.FullName()).Msg("snapshot exists, restoring")
		state, err = e.restore(slot, sessionID, *snap)
	} else {
		logger.Info().Str("session_id", sessionID).Msg("no snapshot for session, mounting blank state")
		state, err = e.mountBlank(slot)
	}
	if err != nil {
		return nil, err
	}

	// Storage mutation is durable at this point and is not rolled back
	// if the start fails; the binding on disk is consistent either way.
	e.setStatus(slot, state, types.SlotPhaseBound, sessionID)

	if err := e.proc.Start(slot); err != nil {
		return nil, err
	}

	return &Result{
		Slot:      slot,
		SessionID: sessionID,
		Message:   fmt.Sprintf("Borrowed %s for session %s", slot, sessionID),
	}, nil
}

// restore clones a session snapshot into session-<sessionID>,
// destroying any stale materialized state of that name first, promotes
// the clone so the origin snapshot's dataset can later be destroyed
// independently, and binds the slot to it.
func (e *Engine) restore(slot, sessionID string, snap types.Snapshot) (string, error) {
	state := types.SessionStateName(sessionID)
	mountpoint := filepath.Join(e.statesDir, state)
	logger := log.WithSlot(slot)

	exists, err := e.backend.DatasetExists(state)
	if err != nil {
		return "", err
	}
	if exists {
		// Stale state from an earlier restore; the clone below is
		// authoritative
		logger.Info().Str("state", state).Msg("destroying stale restored state")
		if err := e.backend.DestroyDataset(state, true); err != nil {
			return "", err
		}
	}

	if err := e.backend.CloneSnapshot(snap, state, mountpoint); err != nil {
		// The snapshot was found moments ago; if it is gone now the
		// lineage changed underneath us
		if found, ferr := e.backend.SnapshotExists(sessionID); ferr == nil && !found {
			return "", &types.SnapshotNotFoundError{Name: sessionID}
		}
		return "", err
	}

	if err := e.backend.PromoteDataset(state); err != nil {
		return "", err
	}

	if err := zfs.SetOwnership(mountpoint, e.owner); err != nil {
		return "", types.NewStorageError("ownership", "", err)
	}

	if err := e.registry.Set(slot, state); err != nil {
		return "", err
	}

	metrics.StatesRestored.Inc()
	e.publish(&events.Event{
		Type:      events.EventStateRestored,
		Slot:      slot,
		SessionID: sessionID,
		State:     state,
		Message:   fmt.Sprintf("restored snapshot %s into %s", snap.FullName(), state),
	})
	return state, nil
}

// mountBlank ensures the slot's blank state and binds the slot to it
func (e *Engine) mountBlank(slot string) (string, error) {
	existed, err := e.backend.DatasetExists(types.BlankStateName(slot))
	if err != nil {
		return "", err
	}

	state, err := e.pool.Ensure(slot)
	if err != nil {
		return "", err
	}
	if err := e.registry.Set(slot, state); err != nil {
		return "", err
	}

	metrics.BlankMounts.Inc()
	if !existed {
		e.publish(&events.Event{
			Type:    events.EventBlankStateCreated,
			Slot:    slot,
			State:   state,
			Message: fmt.Sprintf("created blank state %s", state),
		})
	}
	return state, nil
}

// Return persists the slot's current state as an immutable snapshot
// named sessionID, then resets the slot to its blank state.
func (e *Engine) Return(slot, sessionID string) (*Result, error) {
	if err := validate(slot, sessionID); err != nil {
		metrics.ReturnsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	lock := e.slotLock(slot)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	logger := log.WithSlot(slot)
	logger.Info().Str("session_id", sessionID).Msg("handling return")

	e.setStatus(slot, "", types.SlotPhaseReturning, sessionID)

	result, err := e.doReturn(slot, sessionID, logger)
	metrics.OperationDuration.WithLabelValues("return").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ReturnsTotal.WithLabelValues("error").Inc()
		e.recordFailure(slot, sessionID, err)
		return nil, err
	}

	metrics.ReturnsTotal.WithLabelValues("success").Inc()
	e.publish(&events.Event{
		Type:      events.EventSlotReturned,
		Slot:      slot,
		SessionID: sessionID,
		State:     e.Status(slot).State,
		Message:   result.Message,
	})
	return result, nil
}

func (e *Engine) doReturn(slot, sessionID string, logger zerolog.Logger) (*Result, error) {
	e.stopSlot(slot)

	state, err := e.registry.GetOrDefault(slot)
	if err != nil {
		return nil, err
	}

	// Session names must stay unique across the whole lineage: the
	// scan-based restore treats the first match as canonical, so a
	// second snapshot under the same name anywhere is a
	// misconfiguration. Reject it here; the primitive's own
	// same-dataset collision failure remains as backstop.
	if existing, err := e.backend.FindSnapshot(sessionID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, types.NewStorageError("snapshot", "",
			fmt.Errorf("snapshot %q already exists under %s", sessionID, existing.Dataset))
	}

	logger.Info().Str("state", state).Str("session_id", sessionID).Msg("creating session snapshot")
	if err := e.backend.CreateSnapshot(state, sessionID); err != nil {
		return nil, err
	}
	metrics.SnapshotsCreated.Inc()
	e.publish(&events.Event{
		Type:      events.EventSnapshotCreated,
		Slot:      slot,
		SessionID: sessionID,
		State:     state,
		Message:   fmt.Sprintf("snapshot %s@%s created", state, sessionID),
	})

	blank, err := e.mountBlank(slot)
	if err != nil {
		return nil, err
	}

	e.setStatus(slot, blank, types.SlotPhaseBound, sessionID)

	if err := e.proc.Start(slot); err != nil {
		return nil, err
	}

	return &Result{
		Slot:      slot,
		SessionID: sessionID,
		Message:   fmt.Sprintf("Returned %s, snapshot saved as %s", slot, sessionID),
	}, nil
}

// errorKind buckets an operation error for the error counter
func errorKind(err error) string {
	switch {
	case types.IsInvalidRequest(err):
		return "invalid_request"
	case types.IsSnapshotNotFound(err):
		return "snapshot_not_found"
	case types.IsStorageError(err):
		return "storage"
	case types.IsProcessError(err):
		return "process"
	default:
		return "other"
	}
}

// recordFailure reconciles the in-memory status with the durable
// registry after a failed operation and publishes the failure event
func (e *Engine) recordFailure(slot, sessionID string, opErr error) {
	metrics.ErrorsTotal.WithLabelValues(errorKind(opErr)).Inc()

	state, err := e.registry.GetOrDefault(slot)
	if err != nil {
		state = slot
	}
	e.setStatus(slot, state, types.SlotPhaseBound, sessionID)

	e.publish(&events.Event{
		Type:      events.EventSlotOperationFailed,
		Slot:      slot,
		SessionID: sessionID,
		State:     state,
		Message:   opErr.Error(),
	})
}
