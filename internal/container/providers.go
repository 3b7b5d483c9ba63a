package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/timesheet-approval/internal/application/dispatcher"
	"github.com/garyjia/timesheet-approval/internal/application/port"
	"github.com/garyjia/timesheet-approval/internal/application/service"
	appwf "github.com/garyjia/timesheet-approval/internal/application/workflow"
	"github.com/garyjia/timesheet-approval/internal/domain/event"
	"github.com/garyjia/timesheet-approval/internal/domain/validation"
	"github.com/garyjia/timesheet-approval/internal/infrastructure/export"
	"github.com/garyjia/timesheet-approval/internal/infrastructure/lock"
	"github.com/garyjia/timesheet-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/timesheet-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/timesheet-approval/internal/infrastructure/storage"
	"github.com/garyjia/timesheet-approval/internal/infrastructure/worker"
	"github.com/garyjia/timesheet-approval/pkg/database"
	"github.com/garyjia/timesheet-approval/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// LockBundle holds the writer lock and the redis client backing it, if any.
type LockBundle struct {
	Locker port.Locker
	Redis  *redis.Client
}

// StorageBundle holds storage-related components.
type StorageBundle struct {
	FileStorage    port.FileStorage
	SnapshotWriter port.SnapshotWriter
}

// ProvideDatabase opens the database and applies pending migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(conn, logger)
	if cfg.MigrationsDir != "" {
		err = migrator.RunMigrations(cfg.MigrationsDir)
	} else {
		err = migrator.Migrate()
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates the sqlite-backed repositories.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Timesheets: repository.NewTimesheetRepository(db, logger),
		Directory:  repository.NewDirectoryRepository(db, logger),
	}, nil
}

// ProvideLocker creates the per-timesheet writer lock. A nil Locker means none.
func ProvideLocker(ctx context.Context, cfg *LockConfig, logger *zap.Logger) (*LockBundle, error) {
	switch cfg.Backend {
	case "", "none":
		logger.Info("Timesheet writer lock disabled")
		return &LockBundle{}, nil
	case "local":
		logger.Info("Using in-process timesheet writer lock")
		return &LockBundle{Locker: lock.NewLocalLocker()}, nil
	case "redis":
		client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		locker := lock.NewRedisLocker(client, lock.RedisOptions{
			Prefix:        cfg.Prefix,
			TTL:           cfg.TTL,
			RetryInterval: cfg.RetryInterval,
		}, logger)
		logger.Info("Using redis timesheet writer lock", zap.Duration("ttl", cfg.TTL))
		return &LockBundle{Locker: locker, Redis: client}, nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}

// ProvideStorage creates file storage and the snapshot writer.
func ProvideStorage(cfg *BillingConfig, logger *zap.Logger) (*StorageBundle, error) {
	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &StorageBundle{
		FileStorage:    storage.NewLocalFileStorage(cfg.StorageDir, logger),
		SnapshotWriter: export.NewExcelSnapshotWriter(cfg.CompanyName, logger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher with the audit log handler.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	kv := utils.NewKVLogger(logger.Named("events"))
	d := dispatcher.NewDispatcher(dispatcher.WithLogger(kv))
	d.SubscribeAll("audit-log", dispatcher.AuditLogHandler(kv))

	return d, nil
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Locker     port.Locker
	Storage    *StorageBundle
	Dispatcher dispatcher.Dispatcher
	Validation *ValidationConfig
	Workflow   *WorkflowConfig
	Billing    *BillingConfig
	Logger     *zap.Logger
}

// ProvideServices creates the application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}

	mode := appwf.ReviewMode(deps.Workflow.ReviewMode)
	if !mode.IsValid() {
		return nil, fmt.Errorf("unknown review mode %q", deps.Workflow.ReviewMode)
	}

	engine := validation.NewEngine(validation.Limits{
		DailyMin:        deps.Validation.DailyMin,
		DailyMax:        deps.Validation.DailyMax,
		WeeklyMax:       deps.Validation.WeeklyMax,
		EnforceDailyMax: deps.Validation.EnforceDailyMax,
	})

	opts := []service.Option{
		service.WithMaxConflictRetries(deps.Workflow.MaxConflictRetries),
		service.WithWeekStart(deps.Workflow.WeekStart),
	}
	if deps.Locker != nil {
		opts = append(opts, service.WithLocker(deps.Locker))
	}

	kv := utils.NewKVLogger(deps.Logger)

	timesheets := service.NewTimesheetService(
		deps.Repos.Timesheets,
		deps.Repos.Directory,
		deps.Repos.Directory,
		deps.TxManager,
		engine,
		appwf.NewApprovalStateMachine(mode),
		deps.Dispatcher,
		kv,
		opts...,
	)

	return &ServiceBundle{
		Timesheets: timesheets,
		Billing: service.NewBillingService(
			timesheets,
			deps.Storage.SnapshotWriter,
			deps.Storage.FileStorage,
			deps.Billing.SnapshotDir,
			kv,
		),
		Directory: service.NewDirectoryService(deps.Repos.Directory, kv),
	}, nil
}

// WorkerDeps holds dependencies for creating workers.
type WorkerDeps struct {
	Billing    service.BillingService
	Dispatcher dispatcher.Dispatcher
	Config     *BillingConfig
	Logger     *zap.Logger
}

// ProvideWorkers creates the worker manager and registers the billing worker.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil || deps.Logger == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}

	manager := worker.NewWorkerManager(deps.Logger)
	if !deps.Config.Enabled {
		deps.Logger.Info("Billing worker disabled")
		return manager, nil
	}

	billing := worker.NewBillingWorker(worker.BillingWorkerConfig{
		PollInterval: deps.Config.PollInterval,
		BatchSize:    deps.Config.BatchSize,
		RunTimeout:   deps.Config.RunTimeout,
	}, deps.Billing, deps.Logger.Named("billing"))

	deps.Dispatcher.SubscribeNamed(event.TypeTimesheetFrozen, "billing-worker", billing.HandleEvent)
	manager.Register(billing)

	return manager, nil
}
