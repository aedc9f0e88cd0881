// File: cmd/login.go
package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/villagebot/api/schemas"
	"github.com/xkilldash9x/villagebot/internal/observability"
	"github.com/xkilldash9x/villagebot/internal/service"
)

// passwordEnv is read when --password is not given.
const passwordEnv = envPrefix + "_PASSWORD"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// componentFactory is swapped in tests.
var componentFactory = service.NewComponentFactory

// accountFlags are shared by the single-account commands.
type accountFlags struct {
	server   string
	email    string
	password string
}

func (f *accountFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.server, "server", "s", "", "game server URL, e.g. https://ts1.example.com (required)")
	cmd.Flags().StringVarP(&f.email, "email", "e", "", "account email or login name (required)")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "account password (default $"+passwordEnv+")")
	_ = cmd.MarkFlagRequired("server")
	_ = cmd.MarkFlagRequired("email")
}

func (f *accountFlags) credentials() (schemas.Credentials, error) {
	password := f.password
	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	if password == "" {
		return schemas.Credentials{}, fmt.Errorf("no password given (use --password or %s)", passwordEnv)
	}
	return schemas.Credentials{ServerURL: f.server, Email: f.email, Password: password}, nil
}

func newLoginCmd() *cobra.Command {
	var flags accountFlags

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Logs in to an account and prints the player state as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			creds, err := flags.credentials()
			if err != nil {
				return err
			}

			components, err := componentFactory(false).Create(ctx, loadedConfig, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			sess, player, err := components.Authenticator.Authenticate(ctx, creds)
			if err != nil {
				return err
			}
			logger.Info("Logged in.", zap.String("session", sess.ID()), observability.Account(creds.Email))

			return writeJSON(cmd, player)
		},
	}
	flags.register(loginCmd)
	return loginCmd
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
