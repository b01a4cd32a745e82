/*
Package registry persists the slot-to-state assignments.

The assignment registry is the single source of truth for "what is
this slot running". It is stored as one pretty-printed JSON object
mapping slot id to state id, the exact file layout the microvm hosts
already carry at /etc/vm-state-assignments.json.

Every Set does two things under one lock: it rewrites the mapping
(atomic whole-file replace) and re-points the slot's runtime
<slotsDir>/<slot>/data.img symlink at <statesDir>/<state>/data.img.
If an old data.img exists and is not a symlink it is preserved as
data.img.backup instead of being deleted.

The whole-file read-modify-write is not safe under concurrent writers,
so the registry holds an in-process mutex and a cross-process flock for
the duration of each mutation. Per-slot operation ordering is the
engine's responsibility.
*/
package registry
