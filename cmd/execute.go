package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sqlsage/sqlsage/internal/app"
	"github.com/sqlsage/sqlsage/internal/config"
)

var executeCmd = &cobra.Command{
	Use:   "execute <sql>",
	Short: "Run one SQL statement and print the result",
	Long: `Run a single SQL statement against the configured database without
entering the chat loop. A failing statement prints its database error and
exits zero; execution failures are results, not crashes.`,
	Args: cobra.ExactArgs(1),
	RunE: runExecute,
}

func init() {
	rootCmd.AddCommand(executeCmd)
}

func runExecute(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	tbl := a.Agent.RunQuery(ctx, uuid.NewString(), args[0])
	fmt.Println(tbl.Preview())
	if tbl.Err == "" {
		fmt.Printf("(%d rows)\n", len(tbl.Rows))
	}
	return nil
}
