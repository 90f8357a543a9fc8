// Package cmd implements the sqlsage command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sqlsage",
	Short: "sqlsage - conversational SQL assistant for PostgreSQL",
	Long: `sqlsage answers natural-language questions about a PostgreSQL database.

It classifies each question, retrieves the relevant schema and conversation
history, generates and runs SQL, and explains the results. Running sqlsage
with no arguments enters the interactive chat.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

var (
	debugFlag bool
	jsonLog   bool
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "write logs as JSON")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
