package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cumulus-iac/cumulus/internal/engine"
	"github.com/cumulus-iac/cumulus/internal/provider"
)

var (
	applyAutoApprove     bool
	applyParallelism     int
	applyContinueOnError bool
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the template's change set to the target environment",
	Long: `Computes the change set like plan, then executes it: creates,
updates, and deletes run in dependency order, independent branches in
parallel. State is written after the run, including after failures, so
completed work is never lost.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of the plan before applying")
	applyCmd.Flags().IntVar(&applyParallelism, "parallelism", engine.DefaultParallelism, "Maximum number of concurrent resource operations")
	applyCmd.Flags().BoolVar(&applyContinueOnError, "continue-on-error", false, "Keep applying unaffected branches after a failure")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, params, err := loadDesiredConfig()
	if err != nil {
		return err
	}

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
	if stackName != "" {
		currentState.Stack = stackName
	}

	registry := provider.NewRegistry()
	eng := engine.NewEngine(registry)
	eng.Parallelism = applyParallelism
	eng.ContinueOnError = applyContinueOnError

	plan, err := eng.CreatePlan(ctx, cfg, currentState)
	if err != nil {
		return fmt.Errorf("plan generation failed: %w", err)
	}
	plan.Metadata.Parameters = params

	if plan.Empty() {
		fmt.Println("No changes. Stack is up-to-date.")
		return nil
	}

	fmt.Println("Cumulus will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !applyAutoApprove && !confirmOrCancel("\nDo you want to perform these actions? (y/n): ") {
		fmt.Println("Apply cancelled.")
		return nil
	}

	fmt.Printf("\nApplying %d changes...\n", len(plan.Changes))

	report, applyErr := eng.ApplyPlanWithCallback(ctx, plan, currentState, func(event engine.ApplyEvent) {
		switch event.Status {
		case "completed":
			fmt.Printf("  %s: %s complete (%s)\n", event.Address, event.Action, event.Duration.Round(time.Millisecond))
		case "failed":
			fmt.Printf("  %s: %s failed: %v\n", event.Address, event.Action, event.Error)
		case "skipped":
			fmt.Printf("  %s: skipped (dependency failed or run cancelled)\n", event.Address)
		}
	})

	// Completed work must survive a partial failure.
	if writeErr := backend.Write(ctx, currentState); writeErr != nil {
		if applyErr != nil {
			return fmt.Errorf("apply failed (%v) and state could not be written: %w", applyErr, writeErr)
		}
		return fmt.Errorf("failed to write state: %w", writeErr)
	}

	if applyErr != nil {
		return fmt.Errorf("apply failed: %w", applyErr)
	}

	fmt.Printf("\nApply complete! %s.\n", report.Summary())

	if len(currentState.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		for k, v := range currentState.Outputs {
			fmt.Printf("  %s = %v\n", k, v)
		}
	}

	return nil
}

// confirmOrCancel is shared by apply and destroy.
func confirmOrCancel(prompt string) bool {
	fmt.Print(prompt)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "yes"
}
