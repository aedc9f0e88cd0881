// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "villagebot", cfg.Logger.ServiceName)
	assert.Equal(t, 60*time.Second, cfg.Network.OperationTimeout)
	assert.Equal(t, 10, cfg.Network.MaxRedirects)
	assert.Equal(t, "/login.php", cfg.Game.Paths.Login)
	assert.Equal(t, "newdid", cfg.Game.Paths.VillageParam)
	assert.Equal(t, "t1", cfg.Game.Fields.Quantity)
	assert.Len(t, cfg.Game.Markup.Resources, 4)
	assert.Equal(t, 30*time.Minute, cfg.Bot.FarmInterval)
	assert.Empty(t, cfg.Database.URL)

	require.NoError(t, cfg.Validate(), "defaults must be valid")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Network Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Network.RequestsPerSecond = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "network.requests_per_second must be positive")

		cfg = NewDefaultConfig()
		cfg.Network.Burst = 0
		assert.ErrorContains(t, cfg.Validate(), "network.burst")
	})

	t.Run("Game Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Game.Markup.Resources = cfg.Game.Markup.Resources[:3]
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exactly 4 selectors")

		cfg = NewDefaultConfig()
		cfg.Game.Paths.RallyPoint = " "
		assert.ErrorContains(t, cfg.Validate(), "paths.rally_point is required")
	})

	t.Run("Bot Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Bot.TrainQuantity = 10
		assert.ErrorContains(t, cfg.Validate(), "train_troop is required")

		cfg.Bot.TrainTroop = "Phalanx"
		assert.NoError(t, cfg.Validate())

		cfg.Bot.TickInterval = 0
		assert.ErrorContains(t, cfg.Validate(), "tick_interval")
	})

	t.Run("Account Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Accounts = []AccountConfig{{Email: "a@b.c", ServerURL: "ts1.example.com", PasswordEnv: "PW"}}
		assert.ErrorContains(t, cfg.Validate(), "server_url must be an absolute URL")

		cfg.Accounts[0].ServerURL = "https://ts1.example.com"
		assert.NoError(t, cfg.Validate())

		cfg.Accounts[0].PasswordEnv = ""
		assert.ErrorContains(t, cfg.Validate(), "accounts[0] invalid: password_env is required")
	})
}

// -- Viper Loading Tests --

func TestNewConfigFromViper(t *testing.T) {
	yamlConfig := []byte(`
logger:
  level: debug
network:
  requests_per_second: 0.5
bot:
  farm_interval: 45m
  build_queue: [Granary, Warehouse]
accounts:
  - email: player@example.com
    server_url: https://ts3.example.com
    password_env: TS3_PASSWORD
game:
  markup:
    race: "//div[@id='tribe']"
`)

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 0.5, cfg.Network.RequestsPerSecond)
	assert.Equal(t, 45*time.Minute, cfg.Bot.FarmInterval)
	assert.Equal(t, []string{"Granary", "Warehouse"}, cfg.Bot.BuildQueue)
	require.Len(t, cfg.Accounts, 1)
	assert.Equal(t, "TS3_PASSWORD", cfg.Accounts[0].PasswordEnv)
	assert.Equal(t, "//div[@id='tribe']", cfg.Game.Markup.Race)
	// Untouched keys keep their defaults.
	assert.Equal(t, "//*[contains(@class,'coordinates')]", cfg.Game.Markup.Coordinates)
}

func TestNewConfigFromViper_Invalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("network.burst", -1)

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
