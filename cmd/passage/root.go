package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "passage",
	Short: "Passage is a guarded state machine engine",
	Long: `Passage runs workflow graphs with guarded transitions, optimistic
version checks and a per-entity transition log, exposed over a JSON API.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "passage.yaml", "Path to the workflow configuration file")
}
