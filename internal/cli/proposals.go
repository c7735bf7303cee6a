package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var proposalsLimit int

var proposalsCmd = &cobra.Command{
	Use:   "proposals",
	Short: "List open improvement proposals by priority",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		defer c.Close()

		printHeader("💡 forgeloop Proposals")
		props := c.Engine.TopPriorities(proposalsLimit)
		if len(props) == 0 {
			fmt.Println("No open proposals.")
			return nil
		}
		for _, p := range props {
			assigned := ""
			if p.AssignedTo != "" {
				assigned = " → " + p.AssignedTo
			}
			fmt.Printf("%s  [%s] %-12s %s%s\n", p.ProposalID, p.Priority, p.Status, p.Title, assigned)
		}
		return nil
	},
}

var gapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "List detected capability gaps",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		defer c.Close()

		printHeader("🕳️ forgeloop Capability Gaps")
		gaps := c.Engine.Gaps()
		if len(gaps) == 0 {
			fmt.Println("No gaps detected.")
			return nil
		}
		for _, g := range gaps {
			fmt.Printf("%s  [%s] x%d  %s\n", g.GapID, g.Severity, g.Frequency, g.Description)
		}
		return nil
	},
}
