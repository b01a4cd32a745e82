package process

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/slotpool/slotpool/pkg/log"
	"github.com/slotpool/slotpool/pkg/types"
)

// Controller stops and starts the VM process bound to a slot. The
// engine invokes it around storage mutation; process supervision
// itself lives outside slotpool.
type Controller interface {
	// Start starts the slot's VM process
	Start(slot string) error

	// Stop stops the slot's VM process
	Stop(slot string) error

	// Restart restarts the slot's VM process
	Restart(slot string) error

	// IsRunning reports whether the slot's VM process is active
	IsRunning(slot string) (bool, error)
}

// SystemdController controls slots through systemd units. The unit
// name is derived from a template, e.g. "microvm@%s.service".
type SystemdController struct {
	template string

	// run executes systemctl; swapped out in tests
	run func(args ...string) error
}

// NewSystemdController creates a Controller backed by systemctl
func NewSystemdController(template string) *SystemdController {
	return &SystemdController{
		template: template,
		run:      runSystemctl,
	}
}

func runSystemctl(args ...string) error {
	out, err := exec.Command("systemctl", args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return err
		}
		return errors.New(msg)
	}
	return nil
}

func (c *SystemdController) unit(slot string) string {
	return fmt.Sprintf(c.template, slot)
}

// Start starts the slot's systemd unit
func (c *SystemdController) Start(slot string) error {
	log.WithSlot(slot).Info().Msg("starting slot")
	if err := c.run("start", c.unit(slot)); err != nil {
		return &types.ProcessControlError{Action: "start", Slot: slot, Err: err}
	}
	return nil
}

// Stop stops the slot's systemd unit
func (c *SystemdController) Stop(slot string) error {
	log.WithSlot(slot).Info().Msg("stopping slot")
	if err := c.run("stop", c.unit(slot)); err != nil {
		return &types.ProcessControlError{Action: "stop", Slot: slot, Err: err}
	}
	return nil
}

// Restart restarts the slot's systemd unit
func (c *SystemdController) Restart(slot string) error {
	log.WithSlot(slot).Info().Msg("restarting slot")
	if err := c.run("restart", c.unit(slot)); err != nil {
		return &types.ProcessControlError{Action: "restart", Slot: slot, Err: err}
	}
	return nil
}

// IsRunning reports whether the slot's systemd unit is active
func (c *SystemdController) IsRunning(slot string) (bool, error) {
	err := c.run("is-active", "--quiet", c.unit(slot))
	// is-active exits nonzero for inactive units; that is the answer
	return err == nil, nil
}
