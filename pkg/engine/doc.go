/*
Package engine implements the slot state lifecycle.

The engine owns the two-phase protocol the webhook surface exposes:

Borrow binds a session's state to a slot. The slot's VM is stopped
(best-effort), the snapshot lineage is scanned for the session id, and
either the snapshot is cloned into session-<id> (stale copies
destroyed first, clone promoted to independence) or the slot's blank
state is ensured; the assignment registry is updated and the VM
started.

Return persists the slot's current state as an immutable snapshot
named by the session id, then rebinds the slot to its freshly reset
blank state and restarts the VM. Snapshot name collisions fail loudly;
immutable history is never overwritten.

Consistency model:

  - Single flight per slot: the whole stop/mutate/bind/start sequence
    runs under a per-slot mutex. Different slots are independent.
  - A slot is always bound to something after any successful
    operation; there is no unbound state reachable from normal
    operation.
  - Stop failures are logged and swallowed; any other failure aborts
    the remaining steps and surfaces to the caller. Storage mutations
    already made stay durable and are not rolled back.
  - No automatic retries. Every step except snapshot creation is
    idempotent (create-if-absent, destroy-before-recreate,
    reset-in-place), so the caller may safely repeat the whole call.

The engine also exposes the direct state management operations behind
the CLI (list, create, clone, delete, assign, migrate, restore), built
on the same collaborators.
*/
package engine
