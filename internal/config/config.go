// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/xkilldash9x/sendlater/api/schemas"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Interaction() InteractionConfig
	Automation() AutomationConfig
	Store() StoreConfig
	Scheduler() SchedulerConfig
	Channel() ChannelConfig
	API() APIConfig

	// Browser Setters
	SetBrowserHeadless(bool)

	// Channel Setters
	SetChannelMode(string)
}

// Config holds the entire application configuration. Sections are read through
// the Interface getters.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	BrowserCfg     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	InteractionCfg InteractionConfig `mapstructure:"interaction" yaml:"interaction"`
	AutomationCfg  AutomationConfig  `mapstructure:"automation" yaml:"automation"`
	StoreCfg       StoreConfig       `mapstructure:"store" yaml:"store"`
	SchedulerCfg   SchedulerConfig   `mapstructure:"scheduler" yaml:"scheduler"`
	ChannelCfg     ChannelConfig     `mapstructure:"channel" yaml:"channel"`
	APICfg         APIConfig         `mapstructure:"api" yaml:"api"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig         { return c.BrowserCfg }
func (c *Config) Interaction() InteractionConfig { return c.InteractionCfg }
func (c *Config) Automation() AutomationConfig   { return c.AutomationCfg }
func (c *Config) Store() StoreConfig             { return c.StoreCfg }
func (c *Config) Scheduler() SchedulerConfig     { return c.SchedulerCfg }
func (c *Config) Channel() ChannelConfig         { return c.ChannelCfg }
func (c *Config) API() APIConfig                 { return c.APICfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }
func (c *Config) SetChannelMode(m string)   { c.ChannelCfg.Mode = m }

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

// BrowserConfig holds settings for the Chromium instance that hosts the chat application.
type BrowserConfig struct {
	Headless bool `mapstructure:"headless" yaml:"headless"`
	// UserDataDir persists the browser profile so that the application login survives restarts.
	UserDataDir       string          `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	ExecPath          string          `mapstructure:"exec_path" yaml:"exec_path"`
	AppURL            string          `mapstructure:"app_url" yaml:"app_url"`
	Args              []string        `mapstructure:"args" yaml:"args"`
	Debug             bool            `mapstructure:"debug" yaml:"debug"`
	NavigationTimeout time.Duration   `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Persona           schemas.Persona `mapstructure:"persona" yaml:"persona"`
}

// InteractionConfig tunes element resolution and event synthesis.
type InteractionConfig struct {
	DefaultTimeout time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	EventPause     time.Duration `mapstructure:"event_pause" yaml:"event_pause"`
	ReadyTimeout   time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout"`
}

// AutomationConfig holds the per-step budgets of a send.
type AutomationConfig struct {
	SearchTimeout   time.Duration `mapstructure:"search_timeout" yaml:"search_timeout"`
	ContactTimeout  time.Duration `mapstructure:"contact_timeout" yaml:"contact_timeout"`
	HeaderTimeout   time.Duration `mapstructure:"header_timeout" yaml:"header_timeout"`
	ComposerTimeout time.Duration `mapstructure:"composer_timeout" yaml:"composer_timeout"`
	SendTimeout     time.Duration `mapstructure:"send_timeout" yaml:"send_timeout"`
	SelectSettle    time.Duration `mapstructure:"select_settle" yaml:"select_settle"`
	SendSettle      time.Duration `mapstructure:"send_settle" yaml:"send_settle"`
	// Verify is one of best_effort, strict or off.
	Verify string `mapstructure:"verify" yaml:"verify"`
}

// StoreConfig selects and configures the durable key-value backend.
type StoreConfig struct {
	Driver   string         `mapstructure:"driver" yaml:"driver"`
	Key      string         `mapstructure:"key" yaml:"key"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
}

// SQLiteConfig configures the embedded store.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresConfig holds the database connection details.
type PostgresConfig struct {
	URL   string `mapstructure:"url" yaml:"url"`
	Table string `mapstructure:"table" yaml:"table"`
}

// RedisConfig holds the redis connection details.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// SchedulerConfig tunes dispatch of scheduled actions.
type SchedulerConfig struct {
	// Deferral is the single settle delay applied after opening an execution context.
	Deferral        time.Duration `mapstructure:"deferral" yaml:"deferral"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout" yaml:"dispatch_timeout"`
	RecoverOnStart  bool          `mapstructure:"recover_on_start" yaml:"recover_on_start"`
}

// ChannelConfig selects how the scheduler reaches an execution context.
type ChannelConfig struct {
	// Mode is "local" (in-process browser worker) or "hub" (remote runners over websocket).
	Mode           string        `mapstructure:"mode" yaml:"mode"`
	HubURL         string        `mapstructure:"hub_url" yaml:"hub_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxReconnect   time.Duration `mapstructure:"max_reconnect" yaml:"max_reconnect"`
}

// APIConfig configures the producer HTTP surface and the client used by the CLI.
type APIConfig struct {
	Listen     string  `mapstructure:"listen" yaml:"listen"`
	BaseURL    string  `mapstructure:"base_url" yaml:"base_url"`
	AuthSecret string  `mapstructure:"auth_secret" yaml:"auth_secret"`
	RateLimit  float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst  int     `mapstructure:"rate_burst" yaml:"rate_burst"`
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
	v.SetDefault("logger.service_name", "sendlater")
	v.SetDefault("logger.log_file", "~/.sendlater/sendlater.log")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_data_dir", "~/.sendlater/profile")
	v.SetDefault("browser.app_url", "https://web.whatsapp.com/")
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.persona.width", schemas.DefaultPersona.Width)
	v.SetDefault("browser.persona.height", schemas.DefaultPersona.Height)
	v.SetDefault("browser.persona.locale", schemas.DefaultPersona.Locale)
	v.SetDefault("browser.persona.languages", schemas.DefaultPersona.Languages)

	// -- Interaction --
	v.SetDefault("interaction.default_timeout", "5s")
	v.SetDefault("interaction.poll_interval", "100ms")
	v.SetDefault("interaction.event_pause", "50ms")
	v.SetDefault("interaction.ready_timeout", "10s")

	// -- Automation --
	v.SetDefault("automation.search_timeout", "2s")
	v.SetDefault("automation.contact_timeout", "5s")
	v.SetDefault("automation.header_timeout", "1s")
	v.SetDefault("automation.composer_timeout", "3s")
	v.SetDefault("automation.send_timeout", "3s")
	v.SetDefault("automation.select_settle", "1500ms")
	v.SetDefault("automation.send_settle", "800ms")
	v.SetDefault("automation.verify", "best_effort")

	// -- Store --
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.key", "scheduledMessages")
	v.SetDefault("store.sqlite.path", "~/.sendlater/sendlater.db")
	v.SetDefault("store.postgres.table", "sendlater_kv")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.prefix", "sendlater:")

	// -- Scheduler --
	v.SetDefault("scheduler.deferral", "10s")
	v.SetDefault("scheduler.dispatch_timeout", "2m")
	v.SetDefault("scheduler.recover_on_start", true)

	// -- Channel --
	v.SetDefault("channel.mode", "local")
	v.SetDefault("channel.hub_url", "ws://127.0.0.1:8420/ws/runner")
	v.SetDefault("channel.request_timeout", "90s")
	v.SetDefault("channel.max_reconnect", "30s")

	// -- API --
	v.SetDefault("api.listen", "127.0.0.1:8420")
	v.SetDefault("api.base_url", "http://127.0.0.1:8420")
	v.SetDefault("api.rate_limit", 5.0)
	v.SetDefault("api.rate_burst", 10)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("api.auth_secret", "SENDLATER_API_SECRET")
	_ = v.BindEnv("store.postgres.url", "SENDLATER_POSTGRES_URL", "DATABASE_URL")
	_ = v.BindEnv("store.redis.password", "SENDLATER_REDIS_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.LoggerCfg.LogFile, &c.BrowserCfg.UserDataDir, &c.StoreCfg.SQLite.Path} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.StoreCfg.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.StoreCfg.Postgres.URL == "" {
			return fmt.Errorf("store.postgres.url is required when store.driver is postgres")
		}
	case "redis":
		if c.StoreCfg.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required when store.driver is redis")
		}
	default:
		return fmt.Errorf("store.driver %q is not one of memory, sqlite, postgres, redis", c.StoreCfg.Driver)
	}
	if c.StoreCfg.Key == "" {
		return fmt.Errorf("store.key must not be empty")
	}
	if c.InteractionCfg.PollInterval <= 0 || c.InteractionCfg.DefaultTimeout <= 0 {
		return fmt.Errorf("interaction.poll_interval and interaction.default_timeout must be positive durations")
	}
	if c.SchedulerCfg.Deferral < 0 {
		return fmt.Errorf("scheduler.deferral must not be negative")
	}
	switch strings.ToLower(c.AutomationCfg.Verify) {
	case "", "best_effort", "strict", "off":
	default:
		return fmt.Errorf("automation.verify %q is not one of best_effort, strict, off", c.AutomationCfg.Verify)
	}
	switch c.ChannelCfg.Mode {
	case "local", "hub":
	default:
		return fmt.Errorf("channel.mode %q is not one of local, hub", c.ChannelCfg.Mode)
	}
	if c.APICfg.RateLimit <= 0 || c.APICfg.RateBurst <= 0 {
		return fmt.Errorf("api.rate_limit and api.rate_burst must be positive")
	}
	return nil
}
