package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgeloop/forgeloop/internal/config"
	"github.com/forgeloop/forgeloop/internal/core"
)

// openCore loads config and wires the runtime for a one-shot command.
func openCore() (*core.Core, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return core.New(cfg)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ forgeloop Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 forgeloop Status")
		fmt.Printf("Version: %s\n", version)

		configPath, err := config.ConfigPath()
		if err == nil {
			if _, serr := os.Stat(configPath); serr == nil {
				fmt.Println("Config:  ✓ Found (" + configPath + ")")
			} else {
				fmt.Println("Config:  ✗ Not found (defaults in effect)")
			}
		}

		c, err := openCore()
		if err != nil {
			fmt.Printf("State:   ✗ %v\n", err)
			return
		}
		defer c.Close()

		fmt.Println("State:   ✓ " + c.Config.Paths.StateRoot)
		if c.Journal != nil {
			if n, err := c.Journal.Count(); err == nil {
				fmt.Printf("Journal: ✓ %d message(s)\n", n)
			} else {
				fmt.Printf("Journal: ✗ %v\n", err)
			}
		} else {
			fmt.Println("Journal: ✗ Disabled")
		}
		if c.Relay != nil {
			fmt.Printf("Relay:   ✓ Enabled (node %s)\n", c.Relay.NodeID())
		} else {
			fmt.Println("Relay:   ✗ Disabled")
		}

		ts := c.Tracker.Stats()
		es := c.Engine.Stats()
		fmt.Printf("Changes: %d tracked, %d changelog entries\n", ts.TotalChanges, ts.TotalEntries)
		fmt.Printf("Engine:  %d gap(s), %d proposal(s)\n", es.TotalGaps, es.TotalProposals)
		fmt.Println("Status:  Ready")
	},
}
