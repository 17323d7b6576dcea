package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cumulus-iac/cumulus/internal/engine"
	"github.com/cumulus-iac/cumulus/internal/provider"
)

var planOutFile string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute the change set without applying it",
	Long: `Parses the stack template, diffs the desired configuration
against recorded state, and prints the changes that an apply would
perform.

Exit codes: 0 when no changes are pending, 2 when changes are pending,
1 on error.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planOutFile, "out", "o", "", "Write the plan as JSON to a file")
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, params, err := loadDesiredConfig()
	if err != nil {
		return err
	}

	backend, err := openStateBackend()
	if err != nil {
		return err
	}

	// A plan must not observe state mid-apply.
	if err := backend.Lock(); err != nil {
		return err
	}
	defer backend.Unlock()

	currentState, err := backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	if stackName != "" {
		currentState.Stack = stackName
	}

	registry := provider.NewRegistry()
	eng := engine.NewEngine(registry)

	plan, err := eng.CreatePlan(ctx, cfg, currentState)
	if err != nil {
		return fmt.Errorf("plan generation failed: %w", err)
	}
	plan.Metadata.Parameters = params

	if planOutFile != "" {
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize plan: %w", err)
		}
		if err := os.WriteFile(planOutFile, data, 0644); err != nil {
			return fmt.Errorf("failed to write plan file: %w", err)
		}
	}

	if plan.Empty() {
		fmt.Println("No changes. Stack is up-to-date.")
		return nil
	}

	fmt.Println("Cumulus will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	return &ExitCodeError{Code: 2}
}
