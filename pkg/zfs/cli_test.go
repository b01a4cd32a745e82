package zfs

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/slotpool/slotpool/pkg/log"
	"github.com/slotpool/slotpool/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

// fakeRun records zfs invocations and plays back canned responses
type fakeRun struct {
	commands []string
	out      string
	err      error
}

func (f *fakeRun) run(name string, args ...string) (string, error) {
	f.commands = append(f.commands, name+" "+strings.Join(args, " "))
	return f.out, f.err
}

func newTestBackend(fake *fakeRun) *CLIBackend {
	b := NewCLIBackend("microvms", "storage/states")
	b.run = fake.run
	return b
}

func TestCLICreateDataset(t *testing.T) {
	fake := &fakeRun{}
	b := newTestBackend(fake)

	if err := b.CreateDataset("blank-slot1", "/var/lib/microvms/states/blank-slot1"); err != nil {
		t.Fatalf("CreateDataset failed: %v", err)
	}

	want := "zfs create -o mountpoint=/var/lib/microvms/states/blank-slot1 microvms/storage/states/blank-slot1"
	if len(fake.commands) != 1 || fake.commands[0] != want {
		t.Errorf("commands = %v, want [%s]", fake.commands, want)
	}
}

func TestCLICreateSnapshot(t *testing.T) {
	fake := &fakeRun{}
	b := newTestBackend(fake)

	if err := b.CreateSnapshot("blank-slot1", "abc123"); err != nil {
		t.Fatalf("CreateSnapshot failed: %v", err)
	}

	want := "zfs snapshot microvms/storage/states/blank-slot1@abc123"
	if fake.commands[0] != want {
		t.Errorf("command = %q, want %q", fake.commands[0], want)
	}
}

func TestCLICloneSnapshot(t *testing.T) {
	fake := &fakeRun{}
	b := newTestBackend(fake)

	snap := types.Snapshot{Pool: "microvms", Dataset: "storage/states/blank-slot1", Name: "abc123"}
	err := b.CloneSnapshot(snap, "session-abc123", "/var/lib/microvms/states/session-abc123")
	if err != nil {
		t.Fatalf("CloneSnapshot failed: %v", err)
	}

	want := "zfs clone -o mountpoint=/var/lib/microvms/states/session-abc123 " +
		"microvms/storage/states/blank-slot1@abc123 microvms/storage/states/session-abc123"
	if fake.commands[0] != want {
		t.Errorf("command = %q, want %q", fake.commands[0], want)
	}
}

func TestCLIDestroyDataset(t *testing.T) {
	fake := &fakeRun{}
	b := newTestBackend(fake)

	if err := b.DestroyDataset("session-abc123", true); err != nil {
		t.Fatalf("DestroyDataset failed: %v", err)
	}
	if want := "zfs destroy -r microvms/storage/states/session-abc123"; fake.commands[0] != want {
		t.Errorf("command = %q, want %q", fake.commands[0], want)
	}

	fake.commands = nil
	if err := b.DestroyDataset("session-abc123", false); err != nil {
		t.Fatalf("DestroyDataset failed: %v", err)
	}
	if want := "zfs destroy microvms/storage/states/session-abc123"; fake.commands[0] != want {
		t.Errorf("command = %q, want %q", fake.commands[0], want)
	}
}

func TestCLIDatasetExistsTreatsExitAsAnswer(t *testing.T) {
	fake := &fakeRun{err: errors.New("cannot open 'microvms/storage/states/nope': dataset does not exist")}
	b := newTestBackend(fake)

	exists, err := b.DatasetExists("nope")
	if err != nil {
		t.Fatalf("DatasetExists returned error: %v", err)
	}
	if exists {
		t.Error("missing dataset reported as existing")
	}
}

func TestCLIFindSnapshot(t *testing.T) {
	fake := &fakeRun{out: `microvms/storage/states/blank-slot1@abc123	1M
microvms/storage/states/blank-slot2@def456	2M
`}
	b := newTestBackend(fake)

	snap, err := b.FindSnapshot("def456")
	if err != nil {
		t.Fatalf("FindSnapshot failed: %v", err)
	}
	if snap == nil {
		t.Fatal("snapshot not found")
	}
	if snap.Dataset != "storage/states/blank-slot2" {
		t.Errorf("dataset = %q", snap.Dataset)
	}

	missing, err := b.FindSnapshot("nonexistent")
	if err != nil {
		t.Fatalf("FindSnapshot failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing snapshot, got %+v", missing)
	}
}

func TestCLIErrorsCarryCommand(t *testing.T) {
	fake := &fakeRun{err: errors.New("dataset already exists")}
	b := newTestBackend(fake)

	err := b.CreateSnapshot("blank-slot1", "abc123")
	if err == nil {
		t.Fatal("expected error")
	}
	if !types.IsStorageError(err) {
		t.Errorf("expected StorageOperationError, got %T", err)
	}
	if !strings.Contains(err.Error(), "zfs snapshot microvms/storage/states/blank-slot1@abc123") {
		t.Errorf("error %q does not carry the failed command", err)
	}
}
