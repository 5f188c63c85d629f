package main

import (
	"fmt"
	"strings"

	"github.com/gatewright/passage"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of passage",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("passage version %s\n", strings.TrimSpace(passage.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
