package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/timesheet-approval/internal/application/dispatcher"
	"github.com/garyjia/timesheet-approval/internal/application/port"
	"github.com/garyjia/timesheet-approval/internal/application/service"
	"github.com/garyjia/timesheet-approval/internal/domain/apperr"
	"github.com/garyjia/timesheet-approval/internal/domain/entity"
	"github.com/garyjia/timesheet-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/timesheet-approval/internal/infrastructure/worker"
	httpserver "github.com/garyjia/timesheet-approval/internal/interfaces/http"
	"github.com/garyjia/timesheet-approval/pkg/database"
	"github.com/garyjia/timesheet-approval/pkg/utils"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and are torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	conn         *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - Coordination and storage
	locker  port.Locker
	redis   *redis.Client
	storage *StorageBundle

	// Application
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	// Workers and transport
	workers *worker.WorkerManager
	server  *httpserver.Server

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Timesheets port.TimesheetStore
	Directory  port.Directory
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Timesheets service.TimesheetService
	Billing    service.BillingService
	Directory  service.DirectoryService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins background processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Writer lock
// 3. Storage and snapshot writer
// 4. Event dispatcher
// 5. Application services and the bootstrap admin
// 6. Workers
// 7. HTTP server (built here, run by the caller)
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	steps := []struct {
		name string
		init func() error
	}{
		{"database", c.initDatabase},
		{"lock", c.initLock},
		{"storage", c.initStorage},
		{"dispatcher", c.initDispatcher},
		{"services", c.initServices},
		{"directory", c.bootstrapAdmin},
		{"workers", c.initWorkers},
		{"http server", c.initServer},
	}

	for _, step := range steps {
		if err := step.init(); err != nil {
			c.teardown()
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Info("Component initialized", zap.String("component", step.name))
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	errs := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors: %w", len(errs), errs[0])
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases whatever has been initialized, newest first
func (c *Container) teardown() []error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil && c.workers.IsRunning() {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		c.dispatcher = nil
	}

	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.Error("Failed to close redis client", zap.Error(err))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		c.redis = nil
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.conn = nil
	}

	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	switch {
	case c.conn == nil:
		set("database", false, "not initialized")
	default:
		if err := c.conn.PingContext(ctx); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, "")
		}
	}

	if c.redis != nil {
		if err := c.redis.Ping(ctx).Err(); err != nil {
			set("lock", false, fmt.Sprintf("redis ping failed: %v", err))
		} else {
			set("lock", true, "redis")
		}
	} else {
		set("lock", true, c.config.Lock.Backend)
	}

	if c.workers != nil {
		set("workers", c.workers.IsRunning(), fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()))
	} else {
		set("workers", false, "not initialized")
	}

	set("dispatcher", c.dispatcher != nil, "")

	return status
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.conn = bundle.Conn
	c.db = bundle.TransactionMgr

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		return err
	}
	c.repositories = repos
	return nil
}

// initLock initializes the per-timesheet writer lock.
func (c *Container) initLock() error {
	bundle, err := ProvideLocker(c.ctx, &c.config.Lock, c.logger)
	if err != nil {
		return err
	}
	c.locker = bundle.Locker
	c.redis = bundle.Redis
	return nil
}

// initStorage initializes file storage and the snapshot writer.
func (c *Container) initStorage() error {
	bundle, err := ProvideStorage(&c.config.Billing, c.logger)
	if err != nil {
		return err
	}
	c.storage = bundle
	return nil
}

// initDispatcher initializes the event dispatcher.
func (c *Container) initDispatcher() error {
	d, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = d
	return nil
}

// initServices initializes all application services using providers.
func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Locker:     c.locker,
		Storage:    c.storage,
		Dispatcher: c.dispatcher,
		Validation: &c.config.Validation,
		Workflow:   &c.config.Workflow,
		Billing:    &c.config.Billing,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

// bootstrapAdmin creates the configured management user if it does not exist yet.
func (c *Container) bootstrapAdmin() error {
	cfg := c.config.Directory
	if cfg.AdminID == "" {
		return nil
	}

	_, err := c.repositories.Directory.GetUser(c.ctx, cfg.AdminID)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, apperr.ErrNotFound):
		return err
	}

	admin := &entity.User{ID: cfg.AdminID, Name: cfg.AdminName, Role: entity.RoleManagement}
	if err := c.repositories.Directory.UpsertUser(c.ctx, admin); err != nil {
		return fmt.Errorf("create admin %s: %w", cfg.AdminID, err)
	}
	c.logger.Info("Bootstrap admin created", zap.String("user_id", cfg.AdminID))
	return nil
}

// initWorkers initializes and starts all background workers using providers.
func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Billing:    c.services.Billing,
		Dispatcher: c.dispatcher,
		Config:     &c.config.Billing,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	return nil
}

// initServer builds the HTTP server.
func (c *Container) initServer() error {
	c.server = httpserver.NewServer(
		httpserver.ServerConfig{
			Host:            c.config.Server.Host,
			Port:            c.config.Server.Port,
			ReadTimeout:     c.config.Server.ReadTimeout,
			WriteTimeout:    c.config.Server.WriteTimeout,
			ShutdownTimeout: c.config.Server.ShutdownTimeout,
		},
		c.services.Timesheets,
		c.services.Billing,
		c.services.Directory,
		c.repositories.Directory,
		utils.NewKVLogger(c.logger.Named("http")),
	)
	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Locker returns the writer lock, nil when disabled.
func (c *Container) Locker() port.Locker {
	return c.locker
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// HTTPServer returns the HTTP server.
func (c *Container) HTTPServer() *httpserver.Server {
	return c.server
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}
