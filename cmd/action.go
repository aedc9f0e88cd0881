// File: cmd/action.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/villagebot/api/schemas"
	"github.com/xkilldash9x/villagebot/internal/observability"
)

func newActionCmd() *cobra.Command {
	var (
		flags    accountFlags
		village  string
		building string
		troop    string
		quantity int
	)

	actionCmd := &cobra.Command{
		Use:       "action [build|train|farm|evacuate]",
		Short:     "Logs in and performs a single village action",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(schemas.ActionBuild), string(schemas.ActionTrain), string(schemas.ActionFarm), string(schemas.ActionEvacuate)},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			kind, err := schemas.ParseActionKind(args[0])
			if err != nil {
				return err
			}
			req := schemas.ActionRequest{
				Kind:         kind,
				VillageID:    village,
				BuildingType: building,
				TroopType:    troop,
				Quantity:     quantity,
			}
			// Reject bad input before logging in.
			if err := req.Validate(); err != nil {
				return err
			}
			creds, err := flags.credentials()
			if err != nil {
				return err
			}

			components, err := componentFactory(false).Create(ctx, loadedConfig, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			sess, _, err := components.Authenticator.Authenticate(ctx, creds)
			if err != nil {
				return err
			}
			result, err := components.Executor.Execute(ctx, sess, req)
			if err != nil {
				return err
			}
			logger.Info("Action completed.", zap.String("kind", string(result.Kind)), zap.String("message", result.Message))
			return writeJSON(cmd, result)
		},
	}

	flags.register(actionCmd)
	actionCmd.Flags().StringVar(&village, "village", "", "village id to act on (default: the active village)")
	actionCmd.Flags().StringVar(&building, "building", "", "building to construct or upgrade (build)")
	actionCmd.Flags().StringVar(&troop, "troop", "", "troop type to train (train)")
	actionCmd.Flags().IntVar(&quantity, "quantity", 0, "number of troops to train (train)")
	return actionCmd
}
