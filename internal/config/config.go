package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Validation ValidationConfig `mapstructure:"validation"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Lock       LockConfig       `mapstructure:"lock"`
	Billing    BillingConfig    `mapstructure:"billing"`
	Directory  DirectoryConfig  `mapstructure:"directory"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// MigrationsDir overrides the embedded migrations when set
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// ValidationConfig holds the hour limits
type ValidationConfig struct {
	DailyMin        float64 `mapstructure:"daily_min"`
	DailyMax        float64 `mapstructure:"daily_max"`
	WeeklyMax       float64 `mapstructure:"weekly_max"`
	EnforceDailyMax bool    `mapstructure:"enforce_daily_max"`
}

// WorkflowConfig holds approval workflow settings
type WorkflowConfig struct {
	// ReviewMode is "explicit" or "auto_forward"
	ReviewMode         string `mapstructure:"review_mode"`
	MaxConflictRetries int    `mapstructure:"max_conflict_retries"`
	// WeekStart is the weekday name every timesheet week starts on
	WeekStart string `mapstructure:"week_start"`
}

// LockConfig holds per-timesheet writer lock settings
type LockConfig struct {
	// Backend is "none", "local" or "redis"
	Backend       string        `mapstructure:"backend"`
	RedisURL      string        `mapstructure:"redis_url"`
	Prefix        string        `mapstructure:"prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// BillingConfig holds billing worker configuration
type BillingConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	RunTimeout   time.Duration `mapstructure:"run_timeout"`
	StorageDir   string        `mapstructure:"storage_dir"`
	SnapshotDir  string        `mapstructure:"snapshot_dir"`
	CompanyName  string        `mapstructure:"company_name"`
}

// DirectoryConfig seeds the user directory
type DirectoryConfig struct {
	AdminID   string `mapstructure:"admin_id"`
	AdminName string `mapstructure:"admin_name"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Load loads configuration from file and environment variables.
// A .env file next to the config file is loaded into the environment first.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(configPath), "..", ".env")); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads path into the environment without overriding set variables
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/timesheets.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrations_dir", "")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Validation defaults
	v.SetDefault("validation.daily_min", 8)
	v.SetDefault("validation.daily_max", 10)
	v.SetDefault("validation.weekly_max", 56)
	v.SetDefault("validation.enforce_daily_max", true)

	// Workflow defaults
	v.SetDefault("workflow.review_mode", "explicit")
	v.SetDefault("workflow.max_conflict_retries", 3)
	v.SetDefault("workflow.week_start", "monday")

	// Lock defaults
	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.prefix", "lock:")
	v.SetDefault("lock.ttl", 10*time.Second)
	v.SetDefault("lock.retry_interval", 25*time.Millisecond)

	// Billing defaults
	v.SetDefault("billing.enabled", true)
	v.SetDefault("billing.poll_interval", time.Minute)
	v.SetDefault("billing.batch_size", 50)
	v.SetDefault("billing.run_timeout", 2*time.Minute)
	v.SetDefault("billing.storage_dir", "data")
	v.SetDefault("billing.snapshot_dir", "snapshots")
	v.SetDefault("billing.company_name", "")

	// Directory defaults
	v.SetDefault("directory.admin_id", "")
	v.SetDefault("directory.admin_name", "Administrator")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "DATABASE_PATH")
	v.BindEnv("lock.backend", "LOCK_BACKEND")
	v.BindEnv("lock.redis_url", "REDIS_URL")
	v.BindEnv("billing.company_name", "COMPANY_NAME")
	v.BindEnv("logger.level", "LOG_LEVEL")
	v.BindEnv("directory.admin_id", "ADMIN_USER_ID")
}

// WeekStartDay returns the configured week start weekday
func (c *Config) WeekStartDay() time.Weekday {
	return weekdays[strings.ToLower(c.Workflow.WeekStart)]
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Validation.DailyMin < 0 || c.Validation.DailyMax <= 0 || c.Validation.WeeklyMax <= 0 {
		return fmt.Errorf("validation limits must be positive")
	}
	if c.Validation.DailyMin > c.Validation.DailyMax {
		return fmt.Errorf("validation.daily_min (%v) exceeds validation.daily_max (%v)",
			c.Validation.DailyMin, c.Validation.DailyMax)
	}

	switch c.Workflow.ReviewMode {
	case "explicit", "auto_forward":
	default:
		return fmt.Errorf("workflow.review_mode must be explicit or auto_forward, got %q", c.Workflow.ReviewMode)
	}
	if c.Workflow.MaxConflictRetries < 0 {
		return fmt.Errorf("workflow.max_conflict_retries must not be negative")
	}
	if _, ok := weekdays[strings.ToLower(c.Workflow.WeekStart)]; !ok {
		return fmt.Errorf("workflow.week_start %q is not a weekday", c.Workflow.WeekStart)
	}

	switch c.Lock.Backend {
	case "none", "local":
	case "redis":
		if c.Lock.RedisURL == "" {
			return fmt.Errorf("lock.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("lock.backend must be none, local or redis, got %q", c.Lock.Backend)
	}

	if c.Billing.Enabled {
		if c.Billing.PollInterval <= 0 {
			return fmt.Errorf("billing.poll_interval must be positive")
		}
		if c.Billing.StorageDir == "" {
			return fmt.Errorf("billing.storage_dir is required")
		}
	}

	return nil
}
