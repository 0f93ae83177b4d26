package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mroche14/flowline/pkg/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate <scenario.yaml> [more.yaml...]",
	Short: "Check scenario files for structural consistency",
	Long: `Parses each scenario file and validates its graph: exactly one entry
step, no dangling transition targets, and no dead-end non-terminal steps.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		failed := false
		for _, path := range args {
			if err := runValidate(path); err != nil {
				fmt.Printf("%s: %v\n", path, err)
				failed = true
				continue
			}
			fmt.Printf("%s: OK\n", path)
		}
		if failed {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(path string) error {
	sc, err := schema.Load(path)
	if err != nil {
		return err
	}
	g, err := sc.ToGraph()
	if err != nil {
		return err
	}
	fmt.Printf("  scenario %s v%d: %d steps, entry '%s'\n", g.ID(), g.Version(), len(g.Steps()), g.EntryStep().ID)
	return nil
}
