// Package container provides dependency injection and lifecycle management
// for the timesheet approval service.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Validation ValidationConfig
	Workflow   WorkflowConfig
	Lock       LockConfig
	Billing    BillingConfig
	Directory  DirectoryConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// MigrationsDir replaces the embedded migrations when set
	MigrationsDir string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// ValidationConfig holds the hour limits.
type ValidationConfig struct {
	DailyMin        float64
	DailyMax        float64
	WeeklyMax       float64
	EnforceDailyMax bool
}

// WorkflowConfig holds approval workflow settings.
type WorkflowConfig struct {
	ReviewMode         string
	MaxConflictRetries int
	WeekStart          time.Weekday
}

// LockConfig selects the per-timesheet writer lock.
type LockConfig struct {
	// Backend is none, local or redis
	Backend       string
	RedisURL      string
	Prefix        string
	TTL           time.Duration
	RetryInterval time.Duration
}

// BillingConfig holds billing worker and snapshot settings.
type BillingConfig struct {
	Enabled      bool
	PollInterval time.Duration
	BatchSize    int
	RunTimeout   time.Duration

	// StorageDir is the base directory of file storage
	StorageDir string
	// SnapshotDir is the snapshot folder inside StorageDir
	SnapshotDir string
	CompanyName string
}

// DirectoryConfig seeds the directory on start.
type DirectoryConfig struct {
	// AdminID is created as a management user when missing
	AdminID   string
	AdminName string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/timesheets.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Validation: ValidationConfig{
			DailyMin:        8,
			DailyMax:        10,
			WeeklyMax:       56,
			EnforceDailyMax: true,
		},
		Workflow: WorkflowConfig{
			ReviewMode:         "explicit",
			MaxConflictRetries: 3,
			WeekStart:          time.Monday,
		},
		Lock: LockConfig{
			Backend:       "local",
			Prefix:        "lock:",
			TTL:           10 * time.Second,
			RetryInterval: 25 * time.Millisecond,
		},
		Billing: BillingConfig{
			Enabled:      true,
			PollInterval: time.Minute,
			BatchSize:    50,
			RunTimeout:   2 * time.Minute,
			StorageDir:   "data",
			SnapshotDir:  "snapshots",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Workflow.ReviewMode {
	case "explicit", "auto_forward":
	default:
		return fmt.Errorf("workflow.review_mode %q is not supported", c.Workflow.ReviewMode)
	}

	switch c.Lock.Backend {
	case "", "none", "local":
	case "redis":
		if c.Lock.RedisURL == "" {
			return fmt.Errorf("lock.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("lock.backend %q is not supported", c.Lock.Backend)
	}

	if c.Billing.StorageDir == "" {
		return fmt.Errorf("billing.storage_dir is required")
	}

	return nil
}
