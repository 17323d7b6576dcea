package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cumulus-iac/cumulus/internal/engine"
	"github.com/cumulus-iac/cumulus/internal/ir"
	"github.com/cumulus-iac/cumulus/internal/provider"
)

var destroyAutoApprove bool

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Destroy every resource recorded in state",
	Long: `Deletes all resources tracked in the state file, in reverse
dependency order: dependents go before their dependencies. Resources
with preventDestroy set abort the run before anything is deleted.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval before destroying")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	backend, err := openStateBackend()
	if err != nil {
		return err
	}
	if err := backend.Lock(); err != nil {
		return err
	}
	defer backend.Unlock()

	currentState, err := backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if len(currentState.Resources) == 0 {
		fmt.Println("Nothing to destroy: state is empty.")
		return nil
	}

	registry := provider.NewRegistry()
	eng := engine.NewEngine(registry)

	// A destroy is a plan against an empty desired configuration.
	plan, err := eng.CreatePlan(ctx, &ir.Config{}, currentState)
	if err != nil {
		return fmt.Errorf("destroy plan generation failed: %w", err)
	}

	fmt.Println("Cumulus will destroy the following resources:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !destroyAutoApprove && !confirmOrCancel("\nDo you really want to destroy these resources? (y/n): ") {
		fmt.Println("Destroy cancelled.")
		return nil
	}

	fmt.Printf("\nDestroying %d resources...\n", len(plan.Changes))

	report, applyErr := eng.ApplyPlan(ctx, plan, currentState)

	if writeErr := backend.Write(ctx, currentState); writeErr != nil {
		if applyErr != nil {
			return fmt.Errorf("destroy failed (%v) and state could not be written: %w", applyErr, writeErr)
		}
		return fmt.Errorf("failed to write state: %w", writeErr)
	}

	if applyErr != nil {
		return fmt.Errorf("destroy failed: %w", applyErr)
	}

	fmt.Printf("\nDestroy complete! %s.\n", report.Summary())
	return nil
}
