package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/slotpool/slotpool/pkg/events"
	"github.com/slotpool/slotpool/pkg/log"
)

var bucketOperations = []byte("operations")

// Entry is one recorded slot operation
type Entry struct {
	Seq       uint64    `json:"seq"`
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Slot      string    `json:"slot"`
	SessionID string    `json:"session_id,omitempty"`
	State     string    `json:"state,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Journal is a durable, append-only record of borrow/return operations
// backed by BoltDB. It exists so a failed or suspect operation can be
// diagnosed after the fact without re-running it.
type Journal struct {
	db     *bolt.DB
	stopCh chan struct{}
	doneCh chan struct{}
}

// Open opens (creating if needed) the journal under dataDir
func Open(dataDir string) (*Journal, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "journal.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketOperations)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal bucket: %w", err)
	}

	return &Journal{
		db:     db,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Close closes the underlying database
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append records one entry
func (j *Journal) Append(entry *Entry) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketOperations)

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}
		entry.Seq = seq

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to encode journal entry: %w", err)
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bucket.Put(key, data)
	})
}

// List returns up to limit entries, newest first. limit <= 0 returns
// everything.
func (j *Journal) List(limit int) ([]*Entry, error) {
	var entries []*Entry

	err := j.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketOperations).Cursor()
		for k, v := cursor.Last(); k != nil; k, v = cursor.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("failed to decode journal entry: %w", err)
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListBySlot returns up to limit entries for one slot, newest first
func (j *Journal) ListBySlot(slot string, limit int) ([]*Entry, error) {
	all, err := j.List(0)
	if err != nil {
		return nil, err
	}

	var entries []*Entry
	for _, entry := range all {
		if entry.Slot != slot {
			continue
		}
		if limit > 0 && len(entries) >= limit {
			break
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Consume subscribes to the broker and persists every event until the
// journal is stopped. Runs in its own goroutine.
func (j *Journal) Consume(broker *events.Broker) {
	sub := broker.Subscribe()
	logger := log.WithComponent("journal")

	go func() {
		defer close(j.doneCh)
		for {
			select {
			case event, ok := <-sub:
				if !ok {
					return
				}
				entry := &Entry{
					EventID:   event.ID,
					Type:      string(event.Type),
					Timestamp: event.Timestamp,
					Slot:      event.Slot,
					SessionID: event.SessionID,
					State:     event.State,
					Message:   event.Message,
				}
				if err := j.Append(entry); err != nil {
					logger.Error().Err(err).Msg("failed to append journal entry")
				}
			case <-j.stopCh:
				broker.Unsubscribe(sub)
				return
			}
		}
	}()
}

// StopConsuming stops the Consume goroutine and waits for it to drain
func (j *Journal) StopConsuming() {
	close(j.stopCh)
	<-j.doneCh
}
