package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cumulus-iac/cumulus/internal/engine"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the stack template",
	Long: `Parses the stack template, resolves parameters and conditions,
and checks that the resource reference graph is acyclic. No state is
read and nothing is applied.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadDesiredConfig()
	if err != nil {
		return err
	}

	if _, err := engine.BuildDAG(cfg.Resources); err != nil {
		return err
	}

	fmt.Printf("Template is valid: %d resources, %d outputs.\n", len(cfg.Resources), len(cfg.Outputs))
	return nil
}
