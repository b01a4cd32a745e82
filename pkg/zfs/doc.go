/*
Package zfs is the storage backend adapter for slotpool.

The Backend interface is the capability set the lifecycle engine
depends on: dataset existence and creation, snapshot creation and
lineage scans, clone + promote, and destroy. Dataset names are always
relative to a configured <pool>/<baseDataset> namespace
(e.g. microvms/storage/states), so callers never build full ZFS paths.

Two implementations exist:

  - CLIBackend runs the zfs command line tool. This is the
    implementation Detect selects on a real host.
  - MemoryBackend keeps dataset metadata in maps while using real
    directories as mountpoints, giving tests faithful
    snapshot/clone/promote content semantics without a pool.

Snapshot lookups (SnapshotExists, FindSnapshot) scan the full namespace
under the base dataset. The scan is O(total snapshot count) per call,
which is acceptable at pool sizes of tens to low hundreds of states.
The scan returns the first match; name uniqueness across datasets is
enforced at snapshot creation time by the engine, not resolved here by
precedence.

Snapshot creation never overwrites: creating a snapshot whose name
already exists under the same dataset fails with a
StorageOperationError. Snapshots are immutable history.
*/
package zfs
