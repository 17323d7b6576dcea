package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cumulus-iac/cumulus/internal/engine"
	"github.com/cumulus-iac/cumulus/internal/provider"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reconcile recorded state with the target environment",
	Long: `Reads every tracked resource back through its provider and updates
the state file to match reality: drifted outputs are recorded, and
resources deleted outside of cumulus are dropped from state. The
template is consulted for provider settings only.`,
	RunE: runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, _, err := loadDesiredConfig()
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

	if len(currentState.Resources) == 0 {
		fmt.Println("State is empty. Nothing to refresh.")
		return nil
	}

	eng := engine.NewEngine(provider.NewRegistry())
	updated, removed, err := eng.RefreshState(ctx, cfg, currentState)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	if len(updated) == 0 && len(removed) == 0 {
		fmt.Println("State is up-to-date. No drift detected.")
		return nil
	}

	if err := backend.Write(ctx, currentState); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	for _, name := range updated {
		fmt.Printf("  %s: outputs updated\n", name)
	}
	for _, name := range removed {
		fmt.Printf("  %s: removed from state (no longer exists)\n", name)
	}
	fmt.Printf("\nRefresh complete! %d updated, %d removed.\n", len(updated), len(removed))

	return nil
}
