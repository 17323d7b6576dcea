package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resources recorded in state",
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")
}

func runShow(cmd *cobra.Command, args []string) error {
	backend, err := openStateBackend()
	if err != nil {
		return err
	}

	s, err := backend.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if showJSON {
		data, _ := json.MarshalIndent(s, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	if len(s.Resources) == 0 {
		fmt.Println("State is empty.")
		return nil
	}

	fmt.Printf("Stack: %s (serial %d)\n", s.Stack, s.Serial)
	for _, rs := range s.Resources {
		fmt.Printf("\n%s (%s, provider %s)\n", rs.Name, rs.Type, rs.Provider)
		fmt.Printf("  id: %s\n", rs.ID)
		if len(rs.Dependencies) > 0 {
			fmt.Printf("  depends on: %v\n", rs.Dependencies)
		}
		if rs.Protected {
			fmt.Println("  preventDestroy: true")
		}
	}
	return nil
}
