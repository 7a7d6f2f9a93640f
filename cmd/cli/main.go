// Package main is the entry point for the crmforge CLI.
// The CLI is the developer terminal tool for interacting with the crmforge API.
package main

import (
	"os"

	"crmforge/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
