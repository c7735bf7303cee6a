// Package cli implements the forgeloop command line.
package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/forgeloop/forgeloop/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"   __                      _                   \n" +
		"  / _| ___  _ __ __ _  ___| | ___   ___  _ __  \n" +
		" | |_ / _ \\| '__/ _` |/ _ \\ |/ _ \\ / _ \\| '_ \\ \n" +
		" |  _| (_) | | | (_| |  __/ | (_) | (_) | |_) |\n" +
		" |_|  \\___/|_|  \\__, |\\___|_|\\___/ \\___/| .__/ \n" +
		"                |___/                   |_|    \n"
)

var rootCmd = &cobra.Command{
	Use:   "forgeloop",
	Short: "forgeloop - multi-agent coordination core",
	Long:  color.CyanString(logo) + "\nMessage brokering, change tracking, and self-improvement for agent teams.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(changesCmd)
	rootCmd.AddCommand(changelogCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(proposalsCmd)
	rootCmd.AddCommand(gapsCmd)
	rootCmd.AddCommand(historyCmd)
}
