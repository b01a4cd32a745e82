package zfs

import (
	"testing"
)

func TestParseSnapshotList(t *testing.T) {
	out := `microvms/storage/states/blank-slot1@abc123	1.5M
microvms/storage/states/session-def456@def456	500K
microvms/storage/states/blank-slot2	-
garbage-line
`

	snaps := parseSnapshotList(out)
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}

	first := snaps[0]
	if first.Snapshot.Pool != "microvms" {
		t.Errorf("pool = %q, want microvms", first.Snapshot.Pool)
	}
	if first.Snapshot.Dataset != "storage/states/blank-slot1" {
		t.Errorf("dataset = %q", first.Snapshot.Dataset)
	}
	if first.Snapshot.Name != "abc123" {
		t.Errorf("name = %q, want abc123", first.Snapshot.Name)
	}
	if first.UsedBytes != uint64(1.5*float64(1<<20)) {
		t.Errorf("used = %d", first.UsedBytes)
	}

	if snaps[1].Snapshot.Name != "def456" {
		t.Errorf("second name = %q, want def456", snaps[1].Snapshot.Name)
	}
}

func TestParseDatasetList(t *testing.T) {
	base := "microvms/storage/states"
	out := `microvms/storage/states	10M	50G
microvms/storage/states/blank-slot1	1G	49G
microvms/storage/states/session-abc123	2.5G	49G
microvms/storage/states/blank-slot1@abc123	1M	-
`

	states := parseDatasetList(out, base)
	if len(states) != 2 {
		t.Fatalf("expected 2 states, got %d", len(states))
	}

	if states[0].Name != "blank-slot1" {
		t.Errorf("name = %q, want blank-slot1", states[0].Name)
	}
	if states[0].Dataset != "microvms/storage/states/blank-slot1" {
		t.Errorf("dataset = %q", states[0].Dataset)
	}
	if states[0].UsedBytes != 1<<30 {
		t.Errorf("used = %d, want %d", states[0].UsedBytes, uint64(1)<<30)
	}
	if states[1].Name != "session-abc123" {
		t.Errorf("second name = %q", states[1].Name)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input string
		want  uint64
	}{
		{"0B", 0},
		{"512B", 512},
		{"1K", 1 << 10},
		{"1.5M", uint64(1.5 * float64(1<<20))},
		{"2G", 2 << 30},
		{"1T", 1 << 40},
		{"-", 0},
		{"", 0},
		{"junk", 0},
	}

	for _, tt := range tests {
		if got := ParseSize(tt.input); got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		input uint64
		want  string
	}{
		{0, "0B"},
		{512, "512B"},
		{1 << 10, "1.0K"},
		{3 << 20, "3.0M"},
		{uint64(1.5 * float64(1<<30)), "1.5G"},
		{2 << 40, "2.0T"},
	}

	for _, tt := range tests {
		if got := FormatSize(tt.input); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSizeRoundTrip(t *testing.T) {
	for _, size := range []uint64{1 << 10, 5 << 20, 3 << 30} {
		if got := ParseSize(FormatSize(size)); got != size {
			t.Errorf("round trip of %d gave %d", size, got)
		}
	}
}
