package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flowline",
	Short: "Flowline is a scenario state machine and migration engine",
	Long: `Flowline tracks which step of which versioned workflow graph each
conversation is in, and reconciles live sessions when a graph is edited.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to flowline.yaml (defaults apply when empty)")
}
