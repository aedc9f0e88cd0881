// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/villagebot/api/schemas"
	"github.com/xkilldash9x/villagebot/internal/bot"
	"github.com/xkilldash9x/villagebot/internal/config"
	"github.com/xkilldash9x/villagebot/internal/observability"
	"github.com/xkilldash9x/villagebot/internal/scheduler"
)

// toggleSignal pauses a running bot and resumes a paused or stopped one.
var toggleSignal os.Signal = syscall.SIGHUP

func newRunCmd() *cobra.Command {
	var start bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the periodic scheduler for every configured account",
		Long: `Runs farm, train and build tasks for every account in the config file.
Send SIGHUP to toggle between running and paused. Interrupt to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := loadedConfig

			creds, err := accountCredentials(cfg.Accounts)
			if err != nil {
				return err
			}

			components, err := componentFactory(true).Create(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			schedulers := make([]*scheduler.Scheduler, 0, len(creds))
			for _, c := range creds {
				s, err := components.NewScheduler(c)
				if err != nil {
					return fmt.Errorf("failed to create scheduler for %s: %w", c.Email, err)
				}
				schedulers = append(schedulers, s)
			}

			controller := components.Controller
			if start || cfg.Bot.AutoStart {
				if err := controller.Start(); err != nil {
					return err
				}
			} else {
				logger.Info("Bot is stopped; send SIGHUP to start.")
			}

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go watchToggle(runCtx, controller, logger)

			logger.Info("Scheduler running.", zap.Int("accounts", len(schedulers)))
			err = scheduler.RunAll(runCtx, schedulers...)
			_ = controller.Stop()
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("Scheduler shut down.")
			return nil
		},
	}
	runCmd.Flags().BoolVar(&start, "start", false, "start the bot immediately (overrides bot.auto_start)")
	return runCmd
}

// accountCredentials resolves every account's password from its environment variable.
func accountCredentials(accounts []config.AccountConfig) ([]schemas.Credentials, error) {
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts configured")
	}
	creds := make([]schemas.Credentials, 0, len(accounts))
	for _, acc := range accounts {
		password := os.Getenv(acc.PasswordEnv)
		if password == "" {
			return nil, fmt.Errorf("password for %s not found in $%s", acc.Email, acc.PasswordEnv)
		}
		creds = append(creds, schemas.Credentials{Email: acc.Email, ServerURL: acc.ServerURL, Password: password})
	}
	return creds, nil
}

func watchToggle(ctx context.Context, controller *bot.Controller, logger *zap.Logger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, toggleSignal)
	defer signal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			var err error
			if controller.State() == bot.Stopped {
				err = controller.Start()
			} else {
				err = controller.Pause()
			}
			if err != nil {
				logger.Warn("Ignoring toggle signal.", zap.Error(err))
			}
		}
	}
}
