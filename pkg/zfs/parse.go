package zfs

import (
	"strconv"
	"strings"

	"github.com/slotpool/slotpool/pkg/types"
)

// parseSnapshotList parses `zfs list -H -t snapshot -o name,used`
// output into SnapshotInfo values. Lines that do not look like
// pool/dataset@name are skipped.
func parseSnapshotList(out string) []types.SnapshotInfo {
	var snapshots []types.SnapshotInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 1 {
			continue
		}
		full := fields[0]
		dataset, name, ok := strings.Cut(full, "@")
		if !ok {
			continue
		}
		pool, path, ok := strings.Cut(dataset, "/")
		if !ok {
			continue
		}

		var used uint64
		if len(fields) >= 2 {
			used = ParseSize(fields[1])
		}

		snapshots = append(snapshots, types.SnapshotInfo{
			Snapshot: types.Snapshot{
				Pool:    pool,
				Dataset: path,
				Name:    name,
			},
			UsedBytes: used,
		})
	}
	return snapshots
}

// parseDatasetList parses `zfs list -H -o name,used,avail` output into
// StateInfo values, skipping the base dataset itself and any snapshots.
func parseDatasetList(out, base string) []types.StateInfo {
	var states []types.StateInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		name := fields[0]
		if name == base || strings.Contains(name, "@") {
			continue
		}

		short := name
		if idx := strings.LastIndex(name, "/"); idx >= 0 {
			short = name[idx+1:]
		}

		states = append(states, types.StateInfo{
			Name:           short,
			Dataset:        name,
			UsedBytes:      ParseSize(fields[1]),
			AvailableBytes: ParseSize(fields[2]),
		})
	}
	return states
}

// ParseSize parses zfs size strings like "1.5G", "500M", "10K" into
// bytes. "-" and unparseable values yield 0.
func ParseSize(s string) uint64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0
	}

	multiplier := uint64(1)
	switch {
	case strings.HasSuffix(s, "T"):
		multiplier = 1 << 40
		s = strings.TrimSuffix(s, "T")
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
		s = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return uint64(n * float64(multiplier))
}

// FormatSize renders bytes in the short human form zfs uses
func FormatSize(bytes uint64) string {
	const (
		kb = uint64(1) << 10
		mb = kb << 10
		gb = mb << 10
		tb = gb << 10
	)

	switch {
	case bytes >= tb:
		return formatFloat(float64(bytes)/float64(tb), "T")
	case bytes >= gb:
		return formatFloat(float64(bytes)/float64(gb), "G")
	case bytes >= mb:
		return formatFloat(float64(bytes)/float64(mb), "M")
	case bytes >= kb:
		return formatFloat(float64(bytes)/float64(kb), "K")
	default:
		return strconv.FormatUint(bytes, 10) + "B"
	}
}

func formatFloat(v float64, unit string) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + unit
}
