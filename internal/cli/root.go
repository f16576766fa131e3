package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "notebridge",
	Short: "Drive an AI data agent against a local notebook",
	Long: `notebridge connects a question-answering AI agent to a notebook
document: it streams the agent's events, surfaces clarification questions,
applies the agent's block actions, and reports execution outcomes back.

Running 'notebridge' without a subcommand is equivalent to 'notebridge ask'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return askCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to notebridge.json config file (default: search up directory tree)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
