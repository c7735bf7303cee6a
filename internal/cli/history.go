package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	historyAgent string
	historyKind  string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show journaled message history",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		defer c.Close()

		if c.Journal == nil {
			return fmt.Errorf("journal is disabled in config")
		}

		printHeader("📜 forgeloop Message History")
		entries, err := c.Journal.Recent(historyAgent, historyKind, historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No messages recorded.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %-13s %s → %s  %s\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.Kind, e.From, e.To, e.MessageID)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyAgent, "agent", "", "Filter by agent (either endpoint)")
	historyCmd.Flags().StringVar(&historyKind, "kind", "", "Filter by message kind")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum entries to show")
}
