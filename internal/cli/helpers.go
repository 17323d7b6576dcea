package cli

import (
	"fmt"

	"github.com/cumulus-iac/cumulus/internal/ir"
	"github.com/cumulus-iac/cumulus/internal/state"
	"github.com/cumulus-iac/cumulus/internal/template"
)

// loadDesiredConfig parses the stack template and evaluates parameters
// and conditions into the desired resource set.
func loadDesiredConfig() (*ir.Config, map[string]string, error) {
	tpl, err := template.Load(templateFile)
	if err != nil {
		return nil, nil, err
	}
	return template.Evaluate(tpl, paramFlags)
}

// openStateBackend resolves the --backend flags into a state backend.
// The local backend defaults its path from --state.
func openStateBackend() (state.Backend, error) {
	cfg := make(map[string]string, len(backendConfig)+1)
	for k, v := range backendConfig {
		cfg[k] = v
	}
	if (backendType == "" || backendType == "local") && cfg["path"] == "" {
		cfg["path"] = statePath
	}
	return state.NewBackend(&state.BackendConfig{Type: backendType, Config: cfg})
}

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
)

func actionSymbol(action ir.Action) (symbol, color string) {
	switch action {
	case ir.ActionCreate:
		return "+", colorGreen
	case ir.ActionDelete:
		return "-", colorRed
	case ir.ActionUpdate:
		return "~", colorYellow
	default:
		return " ", colorReset
	}
}

// renderPlanChanges prints the detailed change list for a plan.
func renderPlanChanges(plan *ir.Plan) {
	for _, change := range plan.Changes {
		symbol, color := actionSymbol(change.Action)

		var resourceType string
		if change.Desired != nil {
			resourceType = change.Desired.Type
		} else if change.Prior != nil {
			resourceType = change.Prior.Type
		}

		fmt.Printf("\n%s  # %s will be %s%s\n", color, change.Address, change.Action, colorReset)
		fmt.Printf("%s  %s resource %q %q {\n", color, symbol, resourceType, change.Address)
		renderPropertyDiff(change, color)
		fmt.Printf("%s  }%s\n", color, colorReset)
	}
}

// renderPropertyDiff prints structured per-property diffs.
func renderPropertyDiff(change *ir.ResourceChange, color string) {
	if len(change.Diff) == 0 {
		fmt.Printf("%s      ...\n", color)
		return
	}
	for key, diff := range change.Diff {
		switch diff.Action {
		case ir.ActionCreate:
			fmt.Printf("%s      + %s = %v%s\n", colorGreen, key, formatValue(diff.After), colorReset)
		case ir.ActionDelete:
			fmt.Printf("%s      - %s = %v%s\n", colorRed, key, formatValue(diff.Before), colorReset)
		case ir.ActionUpdate:
			fmt.Printf("%s      ~ %s = %v -> %v%s\n", colorYellow, key, formatValue(diff.Before), formatValue(diff.After), colorReset)
		default:
			fmt.Printf("%s        %s = %v\n", color, key, formatValue(diff.After))
		}
	}
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(plan *ir.Plan) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create: %d\n", plan.Summary.Create)
	fmt.Printf("  Update: %d\n", plan.Summary.Update)
	fmt.Printf("  Delete: %d\n", plan.Summary.Delete)
	fmt.Printf("  NoOp:   %d\n", plan.Summary.NoOp)
}
