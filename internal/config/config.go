package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
	Escrow    EscrowConfig    `yaml:"escrow"`
	Recruit   RecruitConfig   `yaml:"recruit"`
	Directory DirectoryConfig `yaml:"directory"`
	Notify    NotifyConfig    `yaml:"notify"`
	Sentry    SentryConfig    `yaml:"sentry"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MCPPath mounts the operator MCP endpoint; empty disables it.
	MCPPath string `yaml:"mcp_path"`
}

type TransportConfig struct {
	// Mode is "http" or "stdio". Stdio serves only the operator MCP tools.
	Mode string `yaml:"mode"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// File enables rotated file logging instead of stdout.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type EscrowConfig struct {
	ReleaseDelay  time.Duration `yaml:"release_delay"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	ReplayBatch   int           `yaml:"replay_batch"`
}

type RecruitConfig struct {
	InvitationTTL  time.Duration `yaml:"invitation_ttl"`
	ExpiryInterval time.Duration `yaml:"expiry_interval"`
	MaxInvites     int           `yaml:"max_invites"`
}

type DirectoryConfig struct {
	// Driver is "memory" or "postgres".
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	Migrate bool   `yaml:"migrate"`
	// SeedFile loads users into the memory directory.
	SeedFile string `yaml:"seed_file"`
}

type NotifyConfig struct {
	RedisAddr     string     `yaml:"redis_addr"`
	RedisPassword string     `yaml:"redis_password"`
	RedisDB       int        `yaml:"redis_db"`
	ChannelPrefix string     `yaml:"channel_prefix"`
	SMTP          SMTPConfig `yaml:"smtp"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			MCPPath: "/mcp",
		},
		Transport: TransportConfig{
			Mode: "http",
		},
		DB: DBConfig{
			Path: "teamescrow.db",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Auth: AuthConfig{
			Issuer: "marketplace-identity",
		},
		Escrow: EscrowConfig{
			ReleaseDelay:  10 * time.Minute,
			SweepInterval: time.Minute,
			ReplayBatch:   200,
		},
		Recruit: RecruitConfig{
			InvitationTTL:  24 * time.Hour,
			ExpiryInterval: time.Hour,
			MaxInvites:     5,
		},
		Directory: DirectoryConfig{
			Driver: "memory",
		},
		Notify: NotifyConfig{
			ChannelPrefix: "notifications:",
			SMTP: SMTPConfig{
				Port: 587,
			},
		},
	}
}

// Load reads configuration from a .env file, an optional YAML file and
// environment variables, in that order of increasing precedence.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path := os.Getenv("TEAMESCROW_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c Config) Validate() error {
	if c.Transport.Mode != "http" && c.Transport.Mode != "stdio" {
		return fmt.Errorf("unknown transport mode %q", c.Transport.Mode)
	}
	switch c.Directory.Driver {
	case "memory":
	case "postgres":
		if c.Directory.DSN == "" {
			return errors.New("directory.dsn is required for the postgres directory")
		}
	default:
		return fmt.Errorf("unknown directory driver %q", c.Directory.Driver)
	}
	if c.Escrow.ReleaseDelay < 0 {
		return errors.New("escrow.release_delay must not be negative")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString("TEAMESCROW_SERVER_HOST", &cfg.Server.Host)
	setString("TEAMESCROW_MCP_PATH", &cfg.Server.MCPPath)
	setString("TEAMESCROW_TRANSPORT_MODE", &cfg.Transport.Mode)
	setString("TEAMESCROW_DB_PATH", &cfg.DB.Path)
	setString("TEAMESCROW_LOG_LEVEL", &cfg.Log.Level)
	setString("TEAMESCROW_LOG_FILE", &cfg.Log.File)
	setString("TEAMESCROW_JWT_SECRET", &cfg.Auth.JWTSecret)
	setString("TEAMESCROW_JWT_ISSUER", &cfg.Auth.Issuer)
	setString("TEAMESCROW_DIRECTORY_DRIVER", &cfg.Directory.Driver)
	setString("TEAMESCROW_DIRECTORY_DSN", &cfg.Directory.DSN)
	setString("TEAMESCROW_DIRECTORY_SEED_FILE", &cfg.Directory.SeedFile)
	setString("TEAMESCROW_REDIS_ADDR", &cfg.Notify.RedisAddr)
	setString("TEAMESCROW_REDIS_PASSWORD", &cfg.Notify.RedisPassword)
	setString("TEAMESCROW_SMTP_HOST", &cfg.Notify.SMTP.Host)
	setString("TEAMESCROW_SMTP_USERNAME", &cfg.Notify.SMTP.Username)
	setString("TEAMESCROW_SMTP_PASSWORD", &cfg.Notify.SMTP.Password)
	setString("TEAMESCROW_SMTP_FROM", &cfg.Notify.SMTP.From)
	setString("TEAMESCROW_SENTRY_DSN", &cfg.Sentry.DSN)
	setString("TEAMESCROW_SENTRY_ENVIRONMENT", &cfg.Sentry.Environment)

	ints := map[string]*int{
		"TEAMESCROW_SERVER_PORT": &cfg.Server.Port,
		"TEAMESCROW_SMTP_PORT":   &cfg.Notify.SMTP.Port,
		"TEAMESCROW_REDIS_DB":    &cfg.Notify.RedisDB,
		"TEAMESCROW_MAX_INVITES": &cfg.Recruit.MaxInvites,
	}
	for key, dst := range ints {
		if err := setInt(key, dst); err != nil {
			return err
		}
	}

	durations := map[string]*time.Duration{
		"TEAMESCROW_RELEASE_DELAY":   &cfg.Escrow.ReleaseDelay,
		"TEAMESCROW_SWEEP_INTERVAL":  &cfg.Escrow.SweepInterval,
		"TEAMESCROW_INVITATION_TTL":  &cfg.Recruit.InvitationTTL,
		"TEAMESCROW_EXPIRY_INTERVAL": &cfg.Recruit.ExpiryInterval,
	}
	for key, dst := range durations {
		if err := setDuration(key, dst); err != nil {
			return err
		}
	}

	if v := os.Getenv("TEAMESCROW_DIRECTORY_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TEAMESCROW_DIRECTORY_MIGRATE: %w", err)
		}
		cfg.Directory.Migrate = b
	}
	return nil
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
