package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/newthinker/nextsignal/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Log       LogConfig                 `mapstructure:"log"`
	Source    SourceConfig              `mapstructure:"source"`
	Supabase  SupabaseConfig            `mapstructure:"supabase"`
	Storage   StorageConfig             `mapstructure:"storage"`
	Generator GeneratorConfig           `mapstructure:"generator"`
	App       AppConfig                 `mapstructure:"app"`
	Display   DisplayConfig             `mapstructure:"display"`
	Notifiers map[string]NotifierConfig `mapstructure:"notifiers"`
	Routing   RoutingConfig             `mapstructure:"routing"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// SourceConfig points at the hosted signal list.
type SourceConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Strict  bool          `mapstructure:"strict"`
}

// SupabaseConfig holds the hosted auth/database connection parameters.
type SupabaseConfig struct {
	URL        string `mapstructure:"url"`
	AnonKey    string `mapstructure:"anon_key"`
	ServiceKey string `mapstructure:"service_key"`
}

type StorageConfig struct {
	Identity IdentityStorageConfig `mapstructure:"identity"`
	Sessions SessionStorageConfig  `mapstructure:"sessions"`
	Archive  ArchiveConfig         `mapstructure:"archive"`
}

type IdentityStorageConfig struct {
	Backend string `mapstructure:"backend"` // "memory", "postgres" or "supabase"
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

type SessionStorageConfig struct {
	Backend string        `mapstructure:"backend"` // "memory" or "redis"
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type ArchiveConfig struct {
	Type      string        `mapstructure:"type"`      // "", "localfs" or "s3"
	Path      string        `mapstructure:"path"`      // For localfs
	S3        S3Config      `mapstructure:"s3"`        // For S3
	Retention time.Duration `mapstructure:"retention"` // 0 keeps every snapshot
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// GeneratorConfig controls the reveal flow.
type GeneratorConfig struct {
	RevealDelay time.Duration `mapstructure:"reveal_delay"`
	Timezone    string        `mapstructure:"timezone"`
	MaxJobs     int           `mapstructure:"max_jobs"`
	JobTTL      time.Duration `mapstructure:"job_ttl"`
}

type AppConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type DisplayConfig struct {
	UserCount int64 `mapstructure:"user_count"`
}

type NotifierConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	BotToken string            `mapstructure:"bot_token"`
	ChatID   string            `mapstructure:"chat_id"`
	URL      string            `mapstructure:"url"`
	Headers  map[string]string `mapstructure:"headers"`
}

// RoutingConfig filters which reveals reach the notifiers.
type RoutingConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
	Markets  []string      `mapstructure:"markets"`
	Actions  []string      `mapstructure:"actions"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file. A .env file in the working
// directory, when present, is loaded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("source.url", d.Source.URL)
	v.SetDefault("source.timeout", d.Source.Timeout)
	v.SetDefault("storage.identity.backend", d.Storage.Identity.Backend)
	v.SetDefault("storage.identity.table", d.Storage.Identity.Table)
	v.SetDefault("storage.sessions.backend", d.Storage.Sessions.Backend)
	v.SetDefault("storage.sessions.ttl", d.Storage.Sessions.TTL)
	v.SetDefault("storage.sessions.redis.prefix", d.Storage.Sessions.Redis.Prefix)
	v.SetDefault("storage.archive.retention", d.Storage.Archive.Retention)
	v.SetDefault("generator.reveal_delay", d.Generator.RevealDelay)
	v.SetDefault("generator.timezone", d.Generator.Timezone)
	v.SetDefault("generator.max_jobs", d.Generator.MaxJobs)
	v.SetDefault("generator.job_ttl", d.Generator.JobTTL)
	v.SetDefault("display.user_count", d.Display.UserCount)
	v.SetDefault("routing.cooldown", d.Routing.Cooldown)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

// DefaultSourceURL is the hosted signal list the web client has always read.
const DefaultSourceURL = "https://dl.dropboxusercontent.com/scl/fi/jrmjs3tkx7hdauvx7frft/SignalList.txt?rlkey=r4hhwrmpm6msoz88fx4nwih4k&st=1ljdyrjn"

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Mode: "release",
		},
		Log: LogConfig{
			Level: "info",
		},
		Source: SourceConfig{
			URL: DefaultSourceURL,
		},
		Storage: StorageConfig{
			Identity: IdentityStorageConfig{
				Backend: "memory",
				Table:   "users",
			},
			Sessions: SessionStorageConfig{
				Backend: "memory",
				TTL:     24 * time.Hour,
				Redis:   RedisConfig{Prefix: "nextsignal"},
			},
		},
		Generator: GeneratorConfig{
			RevealDelay: 5 * time.Second,
			Timezone:    "Local",
			MaxJobs:     100,
			JobTTL:      time.Hour,
		},
		Display: DisplayConfig{
			UserCount: 4493,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if c.Source.URL == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("source url required"))
	}
	if c.Source.Timeout < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("source timeout cannot be negative, got %s", c.Source.Timeout))
	}

	if c.Generator.RevealDelay < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("reveal_delay cannot be negative, got %s", c.Generator.RevealDelay))
	}
	if _, err := c.Generator.Location(); err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	}

	switch c.Storage.Identity.Backend {
	case "", "memory":
	case "postgres":
		if c.Storage.Identity.DSN == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("identity dsn required when backend is postgres"))
		}
	case "supabase":
		if c.Supabase.URL == "" || c.Supabase.ServiceKey == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("supabase url and service_key required when identity backend is supabase"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown identity backend %q", c.Storage.Identity.Backend))
	}

	switch c.Storage.Sessions.Backend {
	case "", "memory":
	case "redis":
		if c.Storage.Sessions.Redis.Addr == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("redis addr required when session backend is redis"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown session backend %q", c.Storage.Sessions.Backend))
	}

	if c.Storage.Archive.Retention < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("archive retention must not be negative"))
	}

	switch c.Storage.Archive.Type {
	case "":
	case "localfs":
		if c.Storage.Archive.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("archive path required when type is localfs"))
		}
	case "s3":
		if c.Storage.Archive.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("archive s3 bucket required when type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown archive type %q", c.Storage.Archive.Type))
	}

	for name, n := range c.Notifiers {
		if !n.Enabled {
			continue
		}
		switch name {
		case "telegram":
			if n.BotToken == "" || n.ChatID == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("telegram bot_token and chat_id required"))
			}
		case "webhook":
			if n.URL == "" {
				return core.WrapError(core.ErrConfigMissing, fmt.Errorf("webhook url required"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown notifier %q", name))
		}
	}

	if c.Routing.Cooldown < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("routing cooldown cannot be negative, got %s", c.Routing.Cooldown))
	}
	for _, m := range c.Routing.Markets {
		if _, err := core.ParseMarket(m); err != nil {
			return core.WrapError(core.ErrConfigInvalid, err)
		}
	}
	for _, a := range c.Routing.Actions {
		if !core.Action(strings.ToUpper(a)).Valid() {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown routing action %q", a))
		}
	}

	return nil
}

// Location resolves the timezone used for "now" when a request gives no explicit time.
func (g GeneratorConfig) Location() (*time.Location, error) {
	if g.Timezone == "" || g.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", g.Timezone, err)
	}
	return loc, nil
}
