package main

import (
	"fmt"
	"os"

	"github.com/gatewright/passage/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the workflow configuration",
	Long:  `Compiles the configuration file and reports errors and lint findings without starting a server.`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")

		compiled, err := config.Load(configPath)
		if err != nil {
			fmt.Printf("Invalid: %v\n", err)
			os.Exit(1)
		}

		for _, g := range compiled.Graphs {
			fmt.Printf("Graph %q: %d states, %d transitions, initial %q\n",
				g.Name(), len(g.States()), len(g.Transitions()), g.Initial())
		}

		warnings := compiled.Lint()
		for _, w := range warnings {
			fmt.Printf("Warning: %s\n", w)
		}
		if len(warnings) == 0 {
			fmt.Println("Configuration is valid")
		}
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
