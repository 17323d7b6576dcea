package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cumulus-iac/cumulus/internal/engine"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Output the dependency graph in DOT format",
	Long: `Generates a visual representation of the resource dependency
graph in Graphviz DOT format. Pipe the output to 'dot' to generate an
image:

  cumulus graph | dot -Tpng > graph.png`,
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadDesiredConfig()
	if err != nil {
		return err
	}

	dag, err := engine.BuildDAG(cfg.Resources)
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}

	fmt.Println("digraph cumulus {")
	fmt.Println("  rankdir = \"BT\";")
	fmt.Println("  node [shape = rect];")
	fmt.Println()

	for _, res := range cfg.Resources {
		fmt.Printf("  %q;\n", res.Name)
	}
	fmt.Println()

	for _, res := range cfg.Resources {
		for _, dep := range dag.Dependencies(res.Name) {
			fmt.Printf("  %q -> %q;\n", res.Name, dep)
		}
	}

	fmt.Println("}")
	return nil
}
