// Package main is the entry point for the forgeloop CLI.
package main

import (
	"os"

	"github.com/forgeloop/forgeloop/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
