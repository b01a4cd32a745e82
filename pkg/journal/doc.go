// Package journal records completed and failed slot operations in a
// BoltDB-backed append-only log. Entries arrive through the event
// broker so the engine never blocks on journal writes; the history
// command reads them back newest first.
package journal
