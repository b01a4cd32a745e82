package zfs

import (
	"fmt"
	"os/exec"
)

// SetOwnership applies owner (user:group) and mode 0755 to a state
// mountpoint. The VM supervisor runs unprivileged, so freshly created
// or cloned mountpoints need the fixup before a slot can boot from
// them. An empty owner disables the fixup.
func SetOwnership(path, owner string) error {
	if owner == "" {
		return nil
	}
	if out, err := exec.Command("chown", owner, path).CombinedOutput(); err != nil {
		return fmt.Errorf("failed to chown %s: %s", path, string(out))
	}
	if out, err := exec.Command("chmod", "755", path).CombinedOutput(); err != nil {
		return fmt.Errorf("failed to chmod %s: %s", path, string(out))
	}
	return nil
}
