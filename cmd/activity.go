// File: cmd/activity.go
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/villagebot/api/schemas"
	"github.com/xkilldash9x/villagebot/internal/observability"
)

const defaultActivityLimit = 50

func newActivityCmd() *cobra.Command {
	var (
		account string
		limit   int
	)

	activityCmd := &cobra.Command{
		Use:   "activity",
		Short: "Prints the most recent activity log entries of an account as JSON",
		Long: `Reads the activity log from the configured database, newest entry first.
Bot start, pause and stop events carry no account; list them with --account "".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			if loadedConfig.Database.URL == "" {
				return errors.New("no database configured (set database.url or VILLAGEBOT_DATABASE_URL)")
			}

			components, err := componentFactory(true).Create(ctx, loadedConfig, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()
			if components.Store == nil {
				return errors.New("activity store is not available")
			}

			entries, err := components.Store.Recent(ctx, account, limit)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []schemas.ActivityEntry{}
			}
			logger.Debug("Read activity log.", observability.Account(account), zap.Int("entries", len(entries)))
			return writeJSON(cmd, entries)
		},
	}
	activityCmd.Flags().StringVarP(&account, "account", "a", "", "account email the entries belong to (required)")
	activityCmd.Flags().IntVarP(&limit, "limit", "n", defaultActivityLimit, "maximum number of entries to print")
	_ = activityCmd.MarkFlagRequired("account")
	return activityCmd
}
