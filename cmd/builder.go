package cmd

import (
	"context"
	"errors"
	"fmt"

	"paytx/api"
	"paytx/api/health"
	"paytx/api/job"
	apipayment "paytx/api/payment"
	"paytx/application/batch"
	payapp "paytx/application/payment"
	"paytx/config"
	"paytx/domain/channel"
	"paytx/domain/payment"
	"paytx/infrastructure/gateway"
	"paytx/infrastructure/lock"
	"paytx/infrastructure/persistence/mocks"
	"paytx/infrastructure/persistence/mysql"
	"paytx/infrastructure/persistence/retry"
	"paytx/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store is what a persistence implementation provides to both binaries.
type Store interface {
	payment.Repository
	payment.Backlog
}

// Components is the wired object graph shared by the server and the worker.
type Components struct {
	Config       *config.Config
	DB           *gorm.DB // nil with the in-memory store
	Redis        *redis.Client
	Store        Store
	Locks        *lock.Service
	Channels     *channel.Registry
	Payments     *payapp.Service
	Orchestrator *batch.Orchestrator
}

// AppBuilder builds Components and the HTTP App with overridable parts.
type AppBuilder struct {
	cfg         *config.Config
	controllers []api.ControllerRegister
	store       Store
	channels    *channel.Registry
}

// NewBuilder creates a new AppBuilder
func NewBuilder(cfg *config.Config) *AppBuilder {
	return &AppBuilder{cfg: cfg}
}

// WithController adds a controller next to the default ones.
func (b *AppBuilder) WithController(c api.ControllerRegister) *AppBuilder {
	b.controllers = append(b.controllers, c)
	return b
}

// WithStore replaces the configured persistence.
func (b *AppBuilder) WithStore(s Store) *AppBuilder {
	b.store = s
	return b
}

// WithChannels replaces the registry built from the channel configuration.
func (b *AppBuilder) WithChannels(reg *channel.Registry) *AppBuilder {
	b.channels = reg
	return b
}

// BuildComponents connects backends and wires services. On error every
// resource opened so far is closed.
func (b *AppBuilder) BuildComponents(ctx context.Context) (_ *Components, err error) {
	cfg := b.cfg
	c := &Components{Config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	if err := b.initStore(ctx, c); err != nil {
		return nil, err
	}
	if err := b.initLocks(ctx, c); err != nil {
		return nil, err
	}

	c.Channels = b.channels
	if c.Channels == nil {
		c.Channels = gateway.NewRegistry(cfg.Channel, cfg.Notify)
	}
	logger.Info("Channels registered", zap.Any("tags", c.Channels.Tags()), zap.Bool("simulated", cfg.Channel.Simulated))

	c.Payments, err = payapp.NewService(payapp.Deps{
		Repo:             c.Store,
		Locks:            c.Locks,
		Channels:         c.Channels,
		LeaseTTL:         cfg.Payment.LeaseTTL,
		MaxPayRetries:    cfg.Payment.MaxRetries,
		MaxNotifyRetries: cfg.Notify.MaxRetries,
		Backoff:          retry.Backoff(retry.FromRetryConfig(cfg.Payment.Redrive)),
		Env:              cfg.App.Env,
	})
	if err != nil {
		return nil, err
	}

	c.Orchestrator = batch.NewOrchestrator(c.Locks, lock.NewEstimator(cfg.Lock.PaddingSeconds), cfg.Batch.ChunkSize)
	if err := c.Orchestrator.Register(batch.PayJob(c.Store, c.Payments, sizing(cfg.Batch.Pay))); err != nil {
		return nil, err
	}
	if err := c.Orchestrator.Register(batch.NotifyJob(c.Store, c.Payments, sizing(cfg.Batch.Notify))); err != nil {
		return nil, err
	}
	return c, nil
}

// Build creates the HTTP App on top of BuildComponents.
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	c, err := b.BuildComponents(ctx)
	if err != nil {
		return nil, err
	}

	controllers := []api.ControllerRegister{
		health.NewController(b.cfg, c.HealthChecks()),
		apipayment.NewController(c.Payments),
		job.NewController(c.Orchestrator),
	}
	controllers = append(controllers, b.controllers...)

	router := api.NewRouter(b.cfg, controllers...)
	router.SetupRoutes()
	return newApp(b.cfg, c, router), nil
}

func (b *AppBuilder) initStore(ctx context.Context, c *Components) error {
	if b.store != nil {
		c.Store = b.store
		return nil
	}
	if b.cfg.Database.Type == "mock" {
		logger.Warn("Using in-memory payment store; data is lost on exit")
		c.Store = mocks.NewMockPaymentRepository()
		return nil
	}

	db, err := mysql.FromAppConfig(b.cfg.Database).Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	c.DB = db
	if err := mysql.Ping(ctx, db); err != nil {
		return fmt.Errorf("failed to ping MySQL: %w", err)
	}
	if b.cfg.IsDevelopment() {
		if err := mysql.AutoMigrate(db); err != nil {
			return err
		}
	}
	c.Store = mysql.NewPaymentRepository(db, b.cfg.App.Env, retry.FromRetryConfig(b.cfg.Database.Retry))
	return nil
}

func (b *AppBuilder) initLocks(ctx context.Context, c *Components) error {
	switch b.cfg.Lock.Backend {
	case "redis":
		client, err := lock.NewRedisClient(ctx, b.cfg.Redis)
		if err != nil {
			return err
		}
		c.Redis = client
		c.Locks = lock.NewService(lock.NewRedisBackend(client, b.cfg.Lock.KeyPrefix, b.cfg.Lock.RetryInterval))
	case "local", "":
		logger.Warn("Using process-local locks; run a single instance only")
		c.Locks = lock.NewService(lock.NewLocalBackend())
	default:
		return fmt.Errorf("unknown lock backend %q", b.cfg.Lock.Backend)
	}
	return nil
}

func sizing(j config.BatchJobConfig) batch.Sizing {
	return batch.Sizing{Workers: j.Workers, QueueCapacity: j.QueueCapacity, Throughput: j.Throughput}
}

// HealthChecks probes the backends that were actually wired.
func (c *Components) HealthChecks() map[string]health.CheckFunc {
	checks := map[string]health.CheckFunc{}
	if c.DB != nil {
		db := c.DB
		checks["database"] = func(ctx context.Context) error { return mysql.Ping(ctx, db) }
	}
	if c.Redis != nil {
		client := c.Redis
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}

// Close stops the worker pools and closes every connection.
func (c *Components) Close() error {
	var errs []error
	if c.Orchestrator != nil {
		errs = append(errs, c.Orchestrator.Close())
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
