package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flicky/storefront-api/internal/config"
	"github.com/flicky/storefront-api/internal/handler"
	"github.com/flicky/storefront-api/internal/logger"
	"github.com/flicky/storefront-api/internal/migration"
	"github.com/flicky/storefront-api/internal/repository"
	"github.com/flicky/storefront-api/internal/service"
	"github.com/flicky/storefront-api/internal/telemetry"
	"github.com/flicky/storefront-api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTel, cfg.Env, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Error("shutdown tracing", zap.Error(err))
		}
	}()

	if cfg.DB.AutoMigrate {
		if err := migrateUp(cfg, log); err != nil {
			return err
		}
	}

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		return fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	log.Info("connected to PostgreSQL")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to Redis: %w", err)
	}
	log.Info("connected to Redis")

	// RabbitMQ: one channel publishes, the other consumes with its own QoS.
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	defer amqpConn.Close()

	publishCh, err := amqpConn.Channel()
	if err != nil {
		return fmt.Errorf("open publish channel: %w", err)
	}
	defer publishCh.Close()

	consumeCh, err := amqpConn.Channel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	defer consumeCh.Close()

	if err := worker.DeclareTopology(publishCh); err != nil {
		return fmt.Errorf("setup RabbitMQ: %w", err)
	}
	log.Info("connected to RabbitMQ")

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	productRepo := repository.NewProductRepository(dbPool)
	cartRepo := repository.NewCartRepository(dbPool)
	orderRepo := repository.NewOrderRepository(dbPool)

	// Services
	authSvc := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	productSvc := service.NewProductService(productRepo, redisClient, log)
	cartSvc := service.NewCartService(cartRepo, productRepo, cfg.Cart.MaxRetries, log)
	orderSvc := service.NewOrderService(orderRepo, cartRepo, productRepo, worker.NewPublisher(publishCh),
		service.CheckoutOptions{
			ValidateStock: cfg.Checkout.ValidateStock,
			ReserveStock:  cfg.Checkout.ReserveStock,
			MaxRetries:    cfg.Cart.MaxRetries,
		}, log)
	userSvc := service.NewUserService(userRepo)
	analyticsSvc := service.NewAnalyticsService(userRepo, orderRepo)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(handler.RouterConfig{
		Log:          log,
		JWTSecret:    cfg.JWT.Secret,
		AllowOrigins: cfg.CORS.AllowOrigins,
		Middleware:   []gin.HandlerFunc{telemetry.Middleware(cfg.OTel)},
		Auth:         handler.NewAuthHandler(authSvc),
		Product:      handler.NewProductHandler(productSvc),
		Cart:         handler.NewCartHandler(cartSvc),
		Order:        handler.NewOrderHandler(orderSvc),
		Admin:        handler.NewAdminHandler(userSvc, analyticsSvc),
		Health:       handler.NewHealthHandler(dbPool, redisClient, amqpConn),
	})

	orderWorker := worker.NewOrderWorker(consumeCh, orderRepo, worker.NewRedisIdempotency(redisClient), log)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return orderWorker.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func migrateUp(cfg *config.Config, log *zap.Logger) error {
	m, err := migration.New(cfg.DB.MigrateURL(), log)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}
