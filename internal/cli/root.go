package cli

import (
	"github.com/spf13/cobra"

	"github.com/cumulus-iac/cumulus/internal/logging"
)

var (
	templateFile  string
	statePath     string
	stackName     string
	logLevel      string
	paramFlags    map[string]string
	backendType   string
	backendConfig map[string]string
)

var rootCmd = &cobra.Command{
	Use:   "cumulus",
	Short: "Declarative deployment orchestration for static-site stacks",
	Long: `Cumulus turns a declarative stack template into a sequence of
control-plane operations: it parses the template, resolves resource
dependencies, diffs the desired configuration against recorded state,
and applies the minimal change set in dependency order.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&templateFile, "template", "t", "stack.yaml", "Path to the stack template")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", ".cumulus/state.json", "Path to the state file")
	rootCmd.PersistentFlags().StringVar(&stackName, "stack", "", "Stack name recorded in state and plans")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringToStringVarP(&paramFlags, "param", "p", nil, "Override template parameters (format: name=value)")
	rootCmd.PersistentFlags().StringVar(&backendType, "backend", "local", "State backend type (local, s3)")
	rootCmd.PersistentFlags().StringToStringVar(&backendConfig, "backend-config", nil, "Backend settings (format: key=value, e.g. bucket=my-states)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(versionCmd)
}
