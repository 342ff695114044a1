// Package main provides the entry point for the continuity handoff service and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "handoff_agent",
	Short: "Continuity handoff HTTP API server and CLI",
	Long:  "Continuity handoff distills a long conversation into a compact document a fresh assistant session can resume from, via REST API or from the command line.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
