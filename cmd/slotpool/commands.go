package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/slotpool/slotpool/pkg/engine"
	"github.com/slotpool/slotpool/pkg/journal"
	"github.com/slotpool/slotpool/pkg/zfs"
)

// cliEngine builds an engine for the one-shot state management
// commands (no broker, no journal consumer)
func cliEngine() (*engine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return buildEngine(cfg, nil)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List slots, states, and snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := cliEngine()
		if err != nil {
			return err
		}

		slots, err := eng.ListSlots()
		if err != nil {
			return err
		}

		fmt.Printf("%-15s %-20s %-10s\n", "SLOT", "STATE", "RUNNING")
		for _, info := range slots {
			running := "no"
			if info.Running {
				running = "yes"
			}
			fmt.Printf("%-15s %-20s %-10s\n", info.Slot, info.State, running)
		}

		states, err := eng.ListStates()
		if err != nil {
			return err
		}
		fmt.Println()
		if len(states) == 0 {
			fmt.Println("(no states created yet)")
		} else {
			fmt.Printf("%-20s %-10s %-10s\n", "STATE", "USED", "AVAIL")
			for _, info := range states {
				fmt.Printf("%-20s %-10s %-10s\n",
					info.Name, zfs.FormatSize(info.UsedBytes), zfs.FormatSize(info.AvailableBytes))
			}
		}

		snapshots, err := eng.ListSnapshots()
		if err != nil {
			return err
		}
		fmt.Println()
		if len(snapshots) == 0 {
			fmt.Println("(no snapshots)")
		} else {
			fmt.Println("SNAPSHOTS")
			for _, info := range snapshots {
				fmt.Printf("  %s\n", info.Snapshot.FullName())
			}
		}
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a new empty state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := cliEngine()
		if err != nil {
			return err
		}
		if err := eng.CreateState(args[0]); err != nil {
			return err
		}
		fmt.Printf("State %q created\n", args[0])
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot SLOT NAME",
	Short: "Snapshot the state currently bound to a slot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := cliEngine()
		if err != nil {
			return err
		}
		if err := eng.SnapshotSlot(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Snapshot %q created from %s\n", args[1], args[0])
		return nil
	},
}

var assignCmd = &cobra.Command{
	Use:   "assign SLOT STATE",
	Short: "Assign a state to a slot",
	Long: `Bind a state to a slot, creating the state if it does not exist.
A running slot keeps its current image until it is restarted.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := cliEngine()
		if err != nil {
			return err
		}
		if err := eng.AssignState(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Assigned state %q to %s\n", args[1], args[0])
		return nil
	},
}

var cloneCmd = &cobra.Command{
	Use:   "clone SOURCE DESTINATION",
	Short: "Clone a state to a new name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := cliEngine()
		if err != nil {
			return err
		}
		if err := eng.CloneState(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("State %q cloned to %q\n", args[0], args[1])
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a state (must not be in use)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := cliEngine()
		if err != nil {
			return err
		}

		fmt.Printf("This will permanently delete state %q and all its data!\n", args[0])
		fmt.Print("Type 'DELETE' to confirm: ")

		reader := bufio.NewReader(os.Stdin)
		input, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		if strings.TrimSpace(input) != "DELETE" {
			return fmt.Errorf("aborted")
		}

		if err := eng.DeleteState(args[0]); err != nil {
			return err
		}
		fmt.Printf("State %q deleted\n", args[0])
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate STATE SLOT",
	Short: "Stop slot, assign state, start slot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := cliEngine()
		if err != nil {
			return err
		}
		if err := eng.MigrateState(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Migration complete. %s is now running state %q\n", args[1], args[0])
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore SNAPSHOT STATE",
	Short: "Restore a snapshot to a new state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := cliEngine()
		if err != nil {
			return err
		}
		if err := eng.RestoreSnapshot(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Snapshot %q restored to state %q\n", args[0], args[1])
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start SLOT",
	Short: "Start a slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := cliEngine()
		if err != nil {
			return err
		}
		return eng.StartSlot(args[0])
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop SLOT",
	Short: "Stop a slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := cliEngine()
		if err != nil {
			return err
		}
		return eng.StopSlot(args[0])
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart SLOT",
	Short: "Restart a slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := cliEngine()
		if err != nil {
			return err
		}
		return eng.RestartSlot(args[0])
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded borrow/return operations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		slot, _ := cmd.Flags().GetString("slot")
		limit, _ := cmd.Flags().GetInt("limit")

		jnl, err := journal.Open(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer jnl.Close()

		var entries []*journal.Entry
		if slot != "" {
			entries, err = jnl.ListBySlot(slot, limit)
		} else {
			entries, err = jnl.List(limit)
		}
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("(no recorded operations)")
			return nil
		}

		fmt.Printf("%-25s %-24s %-10s %-15s %s\n", "TIME", "TYPE", "SLOT", "SESSION", "MESSAGE")
		for _, entry := range entries {
			fmt.Printf("%-25s %-24s %-10s %-15s %s\n",
				entry.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
				entry.Type, entry.Slot, entry.SessionID, entry.Message)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().String("slot", "", "only show operations for this slot")
	historyCmd.Flags().Int("limit", 50, "maximum number of entries (0 for all)")
}
