package journal

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/slotpool/slotpool/pkg/events"
	"github.com/slotpool/slotpool/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendAndList(t *testing.T) {
	j := openTestJournal(t)

	for i, typ := range []string{"slot.borrowed", "snapshot.created", "slot.returned"} {
		err := j.Append(&Entry{
			EventID:   "event-" + string(rune('a'+i)),
			Type:      typ,
			Timestamp: time.Now(),
			Slot:      "slot1",
			SessionID: "abc123",
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	entries, err := j.List(0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	// newest first
	if entries[0].Type != "slot.returned" {
		t.Errorf("entries[0].Type = %q, want slot.returned", entries[0].Type)
	}
	if entries[2].Type != "slot.borrowed" {
		t.Errorf("entries[2].Type = %q, want slot.borrowed", entries[2].Type)
	}

	// sequence numbers are assigned monotonically
	if entries[0].Seq <= entries[1].Seq || entries[1].Seq <= entries[2].Seq {
		t.Errorf("sequences not monotonic: %d, %d, %d",
			entries[0].Seq, entries[1].Seq, entries[2].Seq)
	}
}

func TestListLimit(t *testing.T) {
	j := openTestJournal(t)

	for i := 0; i < 10; i++ {
		if err := j.Append(&Entry{Type: "slot.borrowed", Slot: "slot1"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	entries, err := j.List(4)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("expected 4 entries, got %d", len(entries))
	}
}

func TestListBySlot(t *testing.T) {
	j := openTestJournal(t)

	for _, slot := range []string{"slot1", "slot2", "slot1", "slot3", "slot1"} {
		if err := j.Append(&Entry{Type: "slot.borrowed", Slot: slot}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	entries, err := j.ListBySlot("slot1", 0)
	if err != nil {
		t.Fatalf("ListBySlot failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries for slot1, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.Slot != "slot1" {
			t.Errorf("entry for wrong slot: %q", entry.Slot)
		}
	}
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := j.Append(&Entry{Type: "slot.returned", Slot: "slot1", SessionID: "abc123"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	j, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer j.Close()

	entries, err := j.List(0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 || entries[0].SessionID != "abc123" {
		t.Errorf("entries after reopen = %+v", entries)
	}
}

func TestConsumePersistsEvents(t *testing.T) {
	j := openTestJournal(t)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	j.Consume(broker)

	broker.Publish(&events.Event{
		Type:      events.EventSlotBorrowed,
		Slot:      "slot1",
		SessionID: "abc123",
		Message:   "Borrowed slot1 for session abc123",
	})

	// the event travels broker -> subscriber -> bolt asynchronously
	deadline := time.After(2 * time.Second)
	for {
		entries, err := j.List(0)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(entries) == 1 {
			entry := entries[0]
			if entry.Type != string(events.EventSlotBorrowed) {
				t.Errorf("Type = %q", entry.Type)
			}
			if entry.Slot != "slot1" || entry.SessionID != "abc123" {
				t.Errorf("entry = %+v", entry)
			}
			if entry.EventID == "" {
				t.Error("event ID should have been filled by the broker")
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("event was never journaled")
		case <-time.After(10 * time.Millisecond):
		}
	}

	j.StopConsuming()
}
