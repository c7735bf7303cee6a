package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var changesStats bool

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "List tracked code changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		defer c.Close()

		if changesStats {
			printHeader("📈 forgeloop Change Stats")
			s := c.Tracker.Stats()
			fmt.Printf("Total changes: %d\n", s.TotalChanges)
			fmt.Printf("Changelog entries: %d\n", s.TotalEntries)
			for kind, n := range s.ByKind {
				fmt.Printf("  kind %-13s %d\n", kind, n)
			}
			for status, n := range s.ByStatus {
				fmt.Printf("  status %-11s %d\n", status, n)
			}
			if s.TestedWithValue > 0 {
				fmt.Printf("Test pass rate: %.1f%% (%d with results)\n", s.TestPassRate, s.TestedWithValue)
			}
			return nil
		}

		printHeader("🔧 forgeloop Changes")
		changes := c.Tracker.List()
		if len(changes) == 0 {
			fmt.Println("No changes tracked yet.")
			return nil
		}
		for _, chg := range changes {
			fmt.Printf("%s  %-12s %-11s %s\n", chg.ChangeID, chg.Kind, chg.Status, chg.ArtifactPath)
		}
		return nil
	},
}

var changelogLimit int

var changelogCmd = &cobra.Command{
	Use:   "changelog",
	Short: "Print the rendered changelog",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		defer c.Close()
		fmt.Print(c.Tracker.RenderChangelog(changelogLimit))
		return nil
	},
}

var rollbackReason string

var rollbackCmd = &cobra.Command{
	Use:   "rollback <change-id>",
	Short: "Revert an applied change to its before snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Rollback(args[0], rollbackReason); err != nil {
			return err
		}
		fmt.Printf("Rolled back %s\n", args[0])
		return nil
	},
}

func init() {
	changesCmd.Flags().BoolVar(&changesStats, "stats", false, "Show aggregate change statistics")
	changelogCmd.Flags().IntVar(&changelogLimit, "limit", 0, "Only render the most recent N entries")
	rollbackCmd.Flags().StringVar(&rollbackReason, "reason", "manual rollback", "Reason recorded on the change")
}
