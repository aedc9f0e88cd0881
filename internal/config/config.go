// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Network  NetworkConfig   `mapstructure:"network" yaml:"network"`
	Game     GameConfig      `mapstructure:"game" yaml:"game"`
	Bot      BotConfig       `mapstructure:"bot" yaml:"bot"`
	Database DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Accounts []AccountConfig `mapstructure:"accounts" yaml:"accounts"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
	// MaskAccounts shortens account emails in log fields to their first and
	// last character, e.g. "c***r@example.com".
	MaskAccounts bool `mapstructure:"mask_accounts" yaml:"mask_accounts"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// NetworkConfig tunes how the bot talks to the game server.
type NetworkConfig struct {
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
	// OperationTimeout bounds one login or action call. It is the only request
	// deadline; the transport bounds just the dial and TLS handshake.
	OperationTimeout  time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	MaxRedirects      int           `mapstructure:"max_redirects" yaml:"max_redirects"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ForceHTTP2        bool          `mapstructure:"force_http2" yaml:"force_http2"`
	ProxyURL          string        `mapstructure:"proxy_url" yaml:"proxy_url"`
}

// GameConfig describes where things live on the game server and how its markup looks.
type GameConfig struct {
	Paths  PathsConfig  `mapstructure:"paths" yaml:"paths"`
	Fields FieldsConfig `mapstructure:"fields" yaml:"fields"`
	Markup MarkupConfig `mapstructure:"markup" yaml:"markup"`
	// SessionCookie names the JWT cookie used as an expiry hint.
	SessionCookie string `mapstructure:"session_cookie" yaml:"session_cookie"`
}

// PathsConfig lists the server-relative pages the bot visits.
type PathsConfig struct {
	Landing    string `mapstructure:"landing" yaml:"landing"`
	Login      string `mapstructure:"login" yaml:"login"`
	Game       string `mapstructure:"game" yaml:"game"`
	Build      string `mapstructure:"build" yaml:"build"`
	Barracks   string `mapstructure:"barracks" yaml:"barracks"`
	Stable     string `mapstructure:"stable" yaml:"stable"`
	Workshop   string `mapstructure:"workshop" yaml:"workshop"`
	RallyPoint string `mapstructure:"rally_point" yaml:"rally_point"`
	Evacuation string `mapstructure:"evacuation" yaml:"evacuation"`
	// VillageParam is the query parameter that selects the active village.
	VillageParam string `mapstructure:"village_param" yaml:"village_param"`
}

// FieldsConfig names the form fields the bot fills in itself.
type FieldsConfig struct {
	LoginName     string `mapstructure:"login_name" yaml:"login_name"`
	LoginPassword string `mapstructure:"login_password" yaml:"login_password"`
	LoginMarker   string `mapstructure:"login_marker" yaml:"login_marker"`
	Quantity      string `mapstructure:"quantity" yaml:"quantity"`
	Building      string `mapstructure:"building" yaml:"building"`
}

// MarkupConfig holds the XPath selectors used to read game state.
type MarkupConfig struct {
	Race          string   `mapstructure:"race" yaml:"race"`
	Coordinates   string   `mapstructure:"coordinates" yaml:"coordinates"`
	Population    string   `mapstructure:"population" yaml:"population"`
	Resources     []string `mapstructure:"resources" yaml:"resources"`
	VillageName   string   `mapstructure:"village_name" yaml:"village_name"`
	VillageList   string   `mapstructure:"village_list" yaml:"village_list"`
	BuildingSlots string   `mapstructure:"building_slots" yaml:"building_slots"`
	TroopRows     string   `mapstructure:"troop_rows" yaml:"troop_rows"`
	SendTroops    string   `mapstructure:"send_troops" yaml:"send_troops"`
}

// BotConfig drives the scheduler that runs while the bot is in the Running state.
type BotConfig struct {
	TickInterval          time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	FarmInterval          time.Duration `mapstructure:"farm_interval" yaml:"farm_interval"`
	TrainInterval         time.Duration `mapstructure:"train_interval" yaml:"train_interval"`
	BuildInterval         time.Duration `mapstructure:"build_interval" yaml:"build_interval"`
	TrainTroop            string        `mapstructure:"train_troop" yaml:"train_troop"`
	TrainQuantity         int           `mapstructure:"train_quantity" yaml:"train_quantity"`
	BuildQueue            []string      `mapstructure:"build_queue" yaml:"build_queue"`
	VillageID             string        `mapstructure:"village_id" yaml:"village_id"`
	EvacuationDestination string        `mapstructure:"evacuation_destination" yaml:"evacuation_destination"`
	AutoStart             bool          `mapstructure:"auto_start" yaml:"auto_start"`
}

// DatabaseConfig holds the activity log connection details. An empty URL disables it.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// AccountConfig identifies one account driven by the run command.
// The password itself is read from the environment variable PasswordEnv.
type AccountConfig struct {
	Email       string `mapstructure:"email" yaml:"email"`
	ServerURL   string `mapstructure:"server_url" yaml:"server_url"`
	PasswordEnv string `mapstructure:"password_env" yaml:"password_env"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "villagebot")
	v.SetDefault("logger.log_file", "villagebot.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.mask_accounts", false)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Network --
	v.SetDefault("network.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	v.SetDefault("network.operation_timeout", "60s")
	v.SetDefault("network.requests_per_second", 1.0)
	v.SetDefault("network.burst", 2)
	v.SetDefault("network.max_redirects", 10)
	v.SetDefault("network.ignore_tls_errors", false)
	v.SetDefault("network.force_http2", true)

	// -- Game --
	v.SetDefault("game.session_cookie", "JWT")
	v.SetDefault("game.paths.landing", "/")
	v.SetDefault("game.paths.login", "/login.php")
	v.SetDefault("game.paths.game", "/dorf1.php")
	v.SetDefault("game.paths.build", "/build.php")
	v.SetDefault("game.paths.barracks", "/build.php?gid=19")
	v.SetDefault("game.paths.stable", "/build.php?gid=20")
	v.SetDefault("game.paths.workshop", "/build.php?gid=21")
	v.SetDefault("game.paths.rally_point", "/build.php?id=39&tt=2")
	v.SetDefault("game.paths.evacuation", "/build.php?id=39&tt=1")
	v.SetDefault("game.paths.village_param", "newdid")
	v.SetDefault("game.fields.login_name", "name")
	v.SetDefault("game.fields.login_password", "password")
	v.SetDefault("game.fields.login_marker", "login")
	v.SetDefault("game.fields.quantity", "t1")
	v.SetDefault("game.fields.building", "building")
	v.SetDefault("game.markup.race", "//*[contains(@class,'nation')]")
	v.SetDefault("game.markup.coordinates", "//*[contains(@class,'coordinates')]")
	v.SetDefault("game.markup.population", "//*[contains(@class,'population')]")
	v.SetDefault("game.markup.resources", []string{"//*[@id='l1']", "//*[@id='l2']", "//*[@id='l3']", "//*[@id='l4']"})
	v.SetDefault("game.markup.village_name", "//*[contains(@class,'villageName')]")
	v.SetDefault("game.markup.village_list", "//*[contains(@class,'listEntry')]")
	v.SetDefault("game.markup.building_slots", "//*[contains(@class,'buildingSlot')]")
	v.SetDefault("game.markup.troop_rows", "//table[@id='troops']//tr")
	v.SetDefault("game.markup.send_troops", "//*[contains(@class,'sendTroops')]")

	// -- Bot --
	v.SetDefault("bot.tick_interval", "30s")
	v.SetDefault("bot.farm_interval", "30m")
	v.SetDefault("bot.train_interval", "1h")
	v.SetDefault("bot.build_interval", "15m")
	v.SetDefault("bot.train_quantity", 0)
	v.SetDefault("bot.evacuation_destination", "")
	v.SetDefault("bot.auto_start", false)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("database.url", "VILLAGEBOT_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Network.RequestsPerSecond <= 0 {
		return fmt.Errorf("network.requests_per_second must be positive")
	}
	if c.Network.Burst <= 0 {
		return fmt.Errorf("network.burst must be a positive integer")
	}
	if c.Network.MaxRedirects < 0 {
		return fmt.Errorf("network.max_redirects must not be negative")
	}
	if c.Network.ProxyURL != "" {
		if _, err := url.Parse(c.Network.ProxyURL); err != nil {
			return fmt.Errorf("network.proxy_url is invalid: %w", err)
		}
	}
	if err := c.Game.Validate(); err != nil {
		return fmt.Errorf("game configuration invalid: %w", err)
	}
	if err := c.Bot.Validate(); err != nil {
		return fmt.Errorf("bot configuration invalid: %w", err)
	}
	for i, acc := range c.Accounts {
		if err := acc.Validate(); err != nil {
			return fmt.Errorf("accounts[%d] invalid: %w", i, err)
		}
	}
	return nil
}

// Validate checks that every page and selector the bot needs is configured.
func (g *GameConfig) Validate() error {
	required := map[string]string{
		"paths.landing":     g.Paths.Landing,
		"paths.login":       g.Paths.Login,
		"paths.game":        g.Paths.Game,
		"paths.build":       g.Paths.Build,
		"paths.barracks":    g.Paths.Barracks,
		"paths.rally_point": g.Paths.RallyPoint,
		"paths.evacuation":  g.Paths.Evacuation,
		"fields.quantity":   g.Fields.Quantity,
		"markup.race":       g.Markup.Race,
	}
	for key, val := range required {
		if strings.TrimSpace(val) == "" {
			return fmt.Errorf("%s is required", key)
		}
	}
	if len(g.Markup.Resources) != 4 {
		return fmt.Errorf("markup.resources needs exactly 4 selectors (wood, clay, iron, crop), got %d", len(g.Markup.Resources))
	}
	return nil
}

// Validate checks the scheduler settings.
func (b *BotConfig) Validate() error {
	if b.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be a positive duration")
	}
	if b.TrainQuantity < 0 {
		return fmt.Errorf("train_quantity must not be negative")
	}
	if b.TrainQuantity > 0 && b.TrainTroop == "" {
		return fmt.Errorf("train_troop is required when train_quantity is set")
	}
	return nil
}

// Validate checks a single account entry.
func (a *AccountConfig) Validate() error {
	if a.Email == "" {
		return fmt.Errorf("email is required")
	}
	u, err := url.Parse(a.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server_url must be an absolute URL, got %q", a.ServerURL)
	}
	if a.PasswordEnv == "" {
		return fmt.Errorf("password_env is required")
	}
	return nil
}
