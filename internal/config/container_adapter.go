package config

import (
	"github.com/garyjia/timesheet-approval/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
		},
		Validation: container.ValidationConfig{
			DailyMin:        c.Validation.DailyMin,
			DailyMax:        c.Validation.DailyMax,
			WeeklyMax:       c.Validation.WeeklyMax,
			EnforceDailyMax: c.Validation.EnforceDailyMax,
		},
		Workflow: container.WorkflowConfig{
			ReviewMode:         c.Workflow.ReviewMode,
			MaxConflictRetries: c.Workflow.MaxConflictRetries,
			WeekStart:          c.WeekStartDay(),
		},
		Lock: container.LockConfig{
			Backend:       c.Lock.Backend,
			RedisURL:      c.Lock.RedisURL,
			Prefix:        c.Lock.Prefix,
			TTL:           c.Lock.TTL,
			RetryInterval: c.Lock.RetryInterval,
		},
		Billing: container.BillingConfig{
			Enabled:      c.Billing.Enabled,
			PollInterval: c.Billing.PollInterval,
			BatchSize:    c.Billing.BatchSize,
			RunTimeout:   c.Billing.RunTimeout,
			StorageDir:   c.Billing.StorageDir,
			SnapshotDir:  c.Billing.SnapshotDir,
			CompanyName:  c.Billing.CompanyName,
		},
		Directory: container.DirectoryConfig{
			AdminID:   c.Directory.AdminID,
			AdminName: c.Directory.AdminName,
		},
	}
}
