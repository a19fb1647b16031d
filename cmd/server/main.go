package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/clicklink/config"
	appmodel "github.com/sifan077/clicklink/internal/app/model"
	apprepository "github.com/sifan077/clicklink/internal/app/repository"
	appserver "github.com/sifan077/clicklink/internal/app/server"
	"github.com/sifan077/clicklink/internal/app/service"
	"github.com/sifan077/clicklink/internal/infra/logger"
	infraNATS "github.com/sifan077/clicklink/internal/infra/nats"
	infraPostgres "github.com/sifan077/clicklink/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/clicklink/internal/infra/prometheus"
	infraRedis "github.com/sifan077/clicklink/internal/infra/redis"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("Failed to load config", zap.Error(err))
	}

	log := logger.MustInit(logger.Config{
		Development: cfg.App.Development(),
		Level:       cfg.App.LogLevel,
		Encoding:    cfg.App.LogEncoding,
		Service:     "clicklink",
	})
	defer func() { _ = logger.Sync() }()

	log.Info("Configuration loaded successfully",
		zap.String("env", cfg.App.Env),
		zap.String("addr", cfg.App.Addr),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("nats_url", infraNATS.URL(cfg.NATS)),
		zap.Bool("consume_clicks", cfg.Clicks.Consume),
	)

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open link store", zap.Error(err))
	}
	defer closeStore()

	// A missing queue costs visit counts, never redirects, so the server
	// still starts without NATS.
	var js nats.JetStreamContext
	natsConn, natsJS, err := infraNATS.Connect(cfg.NATS)
	if err != nil {
		log.Error("NATS unavailable, click accounting disabled", zap.Error(err))
	} else {
		defer func() { _ = natsConn.Drain() }()
		stream := infraNATS.ClickStreamFrom(cfg.NATS, cfg.Clicks)
		if err := infraNATS.EnsureClickStream(natsJS, stream); err != nil {
			log.Fatal("Failed to provision click stream", zap.Error(err))
		}
		js = natsJS
		log.Info("Connected to NATS successfully", zap.String("stream", stream.Stream))
	}

	publisher := service.NewClickPublisher(service.ClickPublisherDeps{
		Logger:  log,
		JS:      js,
		Subject: cfg.NATS.Subject,
		Timeout: cfg.Clicks.PublishTimeout,
	})

	allocator := service.NewShortCodeAllocator(service.AllocatorDeps{
		Logger:  log,
		Store:   store,
		BaseURL: cfg.App.BaseURL,
	})

	server := appserver.New(appserver.Dependencies{
		Logger:     log,
		Allocator:  allocator,
		Resolver:   service.NewRedirectResolver(store, log),
		Clicks:     publisher,
		Links:      service.NewLinkService(store),
		CORSOrigin: cfg.App.CORSOrigin,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", cfg.App.Addr))
		if err := server.Listen(cfg.App.Addr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if js != nil && cfg.Clicks.Consume {
		stream := infraNATS.ClickStreamFrom(cfg.NATS, cfg.Clicks)
		sub, err := js.PullSubscribe(stream.Subject, stream.Durable, nats.Bind(stream.Stream, stream.Durable))
		if err != nil {
			log.Fatal("Failed to subscribe to click stream", zap.Error(err))
		}

		consumer := service.NewClickConsumer(service.ClickConsumerDeps{
			Logger:    log,
			Store:     store,
			BatchSize: cfg.Clicks.BatchSize,
			Workers:   cfg.Clicks.Workers,
		})
		g.Go(func() error {
			return consumer.Run(gctx, service.NewJetStreamSource(sub, cfg.Clicks.FetchWait))
		})

		monitor := service.NewLagMonitor(log, js, stream.Stream, stream.Durable, cfg.Monitor.Interval)
		monitor.Start()
		defer monitor.Stop()
	}

	if cfg.Prometheus.Enabled {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		g.Go(func() error {
			log.Info("Starting Prometheus metrics server", zap.String("addr", promServer.Addr))
			return infraPrometheus.Serve(gctx, promServer)
		})
	} else {
		log.Info("Prometheus metrics server disabled")
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Server exited with error", zap.Error(err))
	}

	// Give in-flight click publishes their timeout before the connection drains.
	publisher.Wait()
	log.Info("Server stopped")
}

// openStore builds the KeyStore backend selected by store.driver.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (apprepository.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		log.Warn("Using in-memory link store, data is lost on restart")
		return apprepository.NewMemoryStore(), func() {}, nil

	case config.StoreDriverRedis:
		rdb, err := infraRedis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Connected to Redis successfully", zap.String("host", cfg.Redis.Host), zap.Int("port", cfg.Redis.Port))
		return apprepository.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil

	default:
		gormDB, err := infraPostgres.NewGorm(cfg.Postgres, log)
		if err != nil {
			return nil, nil, fmt.Errorf("open gorm: %w", err)
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("access sql db: %w", err)
		}
		if err := infraPostgres.AutoMigrate(ctx, gormDB, &appmodel.Link{}); err != nil {
			_ = sqlDB.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}

		pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		log.Info("Connected to Postgres successfully",
			zap.String("host", cfg.Postgres.Host),
			zap.String("database", cfg.Postgres.Database),
		)
		return apprepository.NewPostgresStore(gormDB, pool), func() {
			pool.Close()
			_ = sqlDB.Close()
		}, nil
	}
}
