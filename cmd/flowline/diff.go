package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mroche14/flowline/internal/planner"
	"github.com/mroche14/flowline/pkg/domain"
	"github.com/mroche14/flowline/pkg/schema"
)

var diffCmd = &cobra.Command{
	Use:   "diff <old.yaml> <new.yaml>",
	Short: "Generate the migration plan between two scenario versions",
	Long: `Diffs two versions of a scenario into a migration plan and prints it
for review. Nothing is published; use this before rolling a new version out.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		if err := runDiff(args[0], args[1], asJSON); err != nil {
			fmt.Printf("Diff failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().Bool("json", false, "Print the full plan as JSON")
}

func loadGraph(path string) (*domain.ScenarioGraph, error) {
	sc, err := schema.Load(path)
	if err != nil {
		return nil, err
	}
	return sc.ToGraph()
}

func runDiff(oldPath, newPath string, asJSON bool) error {
	oldG, err := loadGraph(oldPath)
	if err != nil {
		return fmt.Errorf("old: %w", err)
	}
	newG, err := loadGraph(newPath)
	if err != nil {
		return fmt.Errorf("new: %w", err)
	}

	plan, err := planner.NewGenerator().Generate(context.Background(), oldG, newG)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}

	fmt.Printf("Migration plan: %s v%d -> v%d\n\n", plan.ScenarioID, plan.FromVersion, plan.ToVersion)

	steps := make([]string, 0, len(plan.StepActions))
	for id := range plan.StepActions {
		steps = append(steps, id)
	}
	sort.Strings(steps)

	for _, id := range steps {
		action := plan.StepActions[id]
		fmt.Printf("  %-20s %s%s\n", id, action.Type, describeAction(action))
	}

	fmt.Println()
	for actionType, count := range plan.Summary.Counts {
		fmt.Printf("  %d %s\n", count, actionType)
	}
	for _, w := range plan.Summary.Warnings {
		fmt.Printf("  WARNING: %s\n", w)
	}
	return nil
}

func describeAction(a domain.StepAction) string {
	switch a.Type {
	case domain.ActionRelocate:
		return fmt.Sprintf(" -> %s", a.Target)
	case domain.ActionTeleport:
		return fmt.Sprintf(" -> %s when %q", a.Target, a.Condition)
	case domain.ActionCollect:
		return fmt.Sprintf(" %v", a.Fields)
	case domain.ActionExecute:
		return fmt.Sprintf(" %v", a.RequiredActionIDs)
	default:
		return ""
	}
}
