// Package app wires the repricer together: config, storage, the safety
// controls, the run pipeline and the periodic triggers.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"

	"salla-repricer/api"
	"salla-repricer/auth"
	"salla-repricer/cache"
	"salla-repricer/config"
	"salla-repricer/database"
	"salla-repricer/database/audit"
	"salla-repricer/database/catalog"
	"salla-repricer/database/tenants"
	"salla-repricer/guard"
	"salla-repricer/market"
	"salla-repricer/optimizer"
	"salla-repricer/realtime"
	"salla-repricer/scheduler"
	"salla-repricer/store"
)

// App represents the main application
type App struct {
	config *config.Config

	db    *database.Database
	stats *database.StatsDB
	redis *cache.RedisClient

	tenantRepo  *tenants.Repository
	catalogRepo *catalog.Repository
	auditRepo   *audit.Repository

	broker    *realtime.Broker
	pool      *scheduler.Pool
	scheduler *scheduler.Scheduler
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{config: cfg}
}

// Start wires everything and blocks until shutdown
func (a *App) Start() error {
	if err := a.config.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Database
	log.Info("🗄️ Connecting to database...")
	dbPort, err := strconv.Atoi(a.config.DatabasePort)
	if err != nil {
		return fmt.Errorf("invalid database port: %w", err)
	}
	a.db, err = database.Connect(a.config.DatabaseHost, dbPort, a.config.DatabaseName, a.config.DatabaseUser, a.config.DatabasePassword)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	if err := a.db.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	a.stats, err = database.NewStatsDB(database.StatsConfig{
		Host:     a.config.DatabaseHost,
		Port:     a.config.DatabasePort,
		User:     a.config.DatabaseUser,
		Password: a.config.DatabasePassword,
		DBName:   a.config.DatabaseName,
	})
	if err != nil {
		return fmt.Errorf("stats pool failed: %w", err)
	}

	// 2. Redis (lease backing and stats cache; optional)
	log.Info("🧠 Connecting to Redis...")
	a.redis = cache.NewRedisClient(a.config.RedisHost, a.config.RedisPort, a.config.RedisPassword)
	if a.redis == nil {
		log.Warn("⚠️ Redis unavailable, run leases fall back to in-process locks and stats caching is disabled")
	}

	// 3. Repositories
	gormDB := a.db.DB()
	a.tenantRepo = tenants.NewRepository(gormDB)
	a.catalogRepo = catalog.NewRepository(gormDB)
	a.auditRepo = audit.NewRepository(gormDB)

	// 4. Safety controls, shared by every outbound target
	opt := a.config.Optimizer
	breakers := guard.NewBreakerRegistry(guard.BreakerConfig{
		FailureThreshold: opt.BreakerFailureThreshold,
		FailureWindow:    opt.BreakerFailureWindow,
		RecoveryTimeout:  opt.BreakerRecoveryTimeout,
	})
	limiter := guard.NewRateLimiter(guard.LimiterConfig{
		MinInterval: opt.MinCallInterval,
		MaxWait:     opt.MaxRateWait,
	})
	leases := cache.NewLeaseManager(a.redis)

	// 5. Outbound clients and token ledger
	oauthClient := auth.NewClient(a.config.SallaTokenURL, a.config.SallaClientID, a.config.SallaClientSecret)
	ledger := auth.NewLedger(oauthClient, a.tenantRepo, a.auditRepo, breakers, limiter, opt.TokenRefreshHorizon)

	storeClient := store.NewClient(a.config.SallaAPIBaseURL)
	searchClient := market.NewClient(a.config.SallaSearchURL)
	provider := market.NewProvider(storeClient, searchClient, ledger, breakers, limiter)

	// 6. Run pipeline
	a.broker = realtime.NewBroker()
	go a.broker.Run()

	executor := optimizer.NewExecutor(storeClient, ledger, a.auditRepo, breakers, limiter, opt)
	coordinator := optimizer.NewCoordinator(a.tenantRepo, a.catalogRepo, a.auditRepo, provider, executor, leases, a.broker, opt)

	// 7. Worker pool and scheduler
	a.pool = scheduler.NewPool(coordinator, opt.WorkerCount, opt.QueueSize)
	a.pool.Start(ctx)

	a.scheduler = scheduler.NewScheduler(a.tenantRepo, ledger, a.auditRepo, a.catalogRepo, a.pool, opt)
	go a.scheduler.Start(ctx)

	// 8. API server
	apiServer := api.NewServer(a.tenantRepo, a.catalogRepo, a.auditRepo, a.stats, a.redis, a.scheduler, a.broker)
	go func() {
		if err := apiServer.Start(a.config.APIPort); err != nil {
			log.Errorf("⚠️ API server failed: %v", err)
		}
	}()

	return a.gracefulShutdown(cancel)
}

// gracefulShutdown blocks until an interrupt, then stops the periodic
// triggers, drains the workers and closes the storage handles.
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	log.Info("🛑 Shutdown signal received, initiating graceful shutdown...")

	a.scheduler.Stop()
	cancel()
	a.pool.Wait()

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warnf("⚠️ Redis close failed: %v", err)
		}
	}
	if err := a.stats.Close(); err != nil {
		log.Warnf("⚠️ Stats pool close failed: %v", err)
	}
	if err := a.db.Close(); err != nil {
		log.Warnf("⚠️ Database close failed: %v", err)
	}

	log.Info("👋 Shutdown complete")
	return nil
}
