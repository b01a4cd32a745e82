/*
Package types defines the core data model shared across slotpool.

A Slot is a reusable execution unit that runs one VM bound to exactly
one State at a time. A State is a copy-on-write ZFS dataset holding the
VM's disk image. A Snapshot is an immutable, named point-in-time copy
of a state, keyed by session id. State names of the form "blank-<slot>"
are reserved for the blank state pool and "session-<id>" for states
restored from a session snapshot.

The package also defines the error taxonomy used throughout:

  - InvalidRequestError: client error, no side effects attempted
  - SnapshotNotFoundError: restore requested with no matching snapshot
  - StorageOperationError: a ZFS primitive failed (carries the command)
  - ProcessControlError: stopping or starting a slot's VM failed

Errors are matched with the Is* helpers (errors.As under the hood) so
callers never need to depend on concrete types.
*/
package types
