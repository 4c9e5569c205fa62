package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/terrafusion/import-service/internal/api/handler"
	"github.com/terrafusion/import-service/internal/api/router"
	"github.com/terrafusion/import-service/internal/audit"
	"github.com/terrafusion/import-service/internal/config"
	"github.com/terrafusion/import-service/internal/event"
	"github.com/terrafusion/import-service/internal/job"
	"github.com/terrafusion/import-service/internal/pipeline/correct"
	"github.com/terrafusion/import-service/shared/logger"
	"github.com/terrafusion/import-service/shared/postgresql"
	"github.com/terrafusion/import-service/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("IMPORT_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger := initLogger(&cfg.Logging)

	appLogger.Info("Starting import service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	if err := os.MkdirAll(cfg.Pipeline.UploadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	// Audit trail: Postgres when the database is enabled, otherwise memory.
	var dbClient *postgresql.Client
	var auditLog audit.Log
	if cfg.Database.Enabled {
		dbClient, err = initPostgreSQL(&cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		pgLog := audit.NewPostgresLog(dbClient.GetDB())
		if err := pgLog.EnsureSchema(context.Background()); err != nil {
			return err
		}
		auditLog = pgLog
		appLogger.Info("Audit trail persisted to PostgreSQL")
	} else {
		auditLog = audit.NewMemoryLog()
		appLogger.Info("Audit trail held in memory")
	}

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	bus := event.NewBus(cfg.Pipeline.HeartbeatInterval, cfg.Pipeline.EventBufferSize, appLogger.Logger)
	manager := job.NewManager(bus, cfg.Pipeline.ProgressEvery, appLogger.Logger)
	dispatcher := job.NewDispatcher(rabbitClient, appLogger.Logger)

	// Correction chain: the oracle when enabled, always backed by the
	// deterministic fallback.
	var oracle *correct.Client
	if cfg.Oracle.Enabled {
		oracle = correct.NewClient(correct.Config{
			BaseURL:     cfg.Oracle.BaseURL,
			Model:       cfg.Oracle.Model,
			Temperature: float32(cfg.Oracle.Temperature),
			Timeout:     cfg.Oracle.Timeout,
		}, appLogger.Logger)
	}
	var corrector correct.Corrector
	var refs job.ReferenceSink
	if oracle != nil {
		corrector = correct.WithFallback(oracle, appLogger.Logger)
		refs = oracle
	} else {
		corrector = correct.WithFallback(nil, appLogger.Logger)
	}

	runner := job.NewRunner(manager, auditLog, corrector, refs, appLogger.Logger)

	worker := job.NewWorker(&job.WorkerConfig{
		Logger:        appLogger.Logger,
		RabbitClient:  rabbitClient,
		Runner:        runner,
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
	})

	workerCtx, stopWorker := context.WithCancel(context.Background())
	go func() {
		if err := worker.Start(workerCtx); err != nil {
			appLogger.Error("Import worker failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	r := initRouter(cfg, appLogger.Logger, manager, dispatcher, auditLog, corrector, dbClient, rabbitClient)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("Import service is running",
		slog.String("address", addr),
		slog.Int("worker_concurrency", cfg.Worker.Concurrency),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")

	// Stop in-flight jobs at their next record boundary, then drain.
	stopWorker()
	worker.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer func() {
		cancel()
		if dbClient != nil {
			dbClient.Close()
		}
		rabbitClient.Close()
	}()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) *logger.Logger {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:          cfg.Host,
		Port:          cfg.Port,
		User:          cfg.User,
		Password:      cfg.Password,
		VHost:         cfg.VHost,
		ExchangeName:  cfg.ExchangeName,
		ExchangeType:  cfg.ExchangeType,
		QueueName:     cfg.QueueName,
		RoutingKey:    cfg.RoutingKey,
		RetryAttempts: cfg.RetryAttempts,
		RetryInterval: cfg.RetryInterval,
		Heartbeat:     cfg.Heartbeat,
	}, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(
	cfg *config.Config,
	logger *slog.Logger,
	manager *job.Manager,
	dispatcher *job.Dispatcher,
	auditLog audit.Log,
	corrector correct.Corrector,
	dbClient *postgresql.Client,
	rabbitClient *rabbitmq.Client,
) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(&handler.Dependencies{
		Logger:       logger,
		Manager:      manager,
		Dispatcher:   dispatcher,
		AuditLog:     auditLog,
		Corrector:    corrector,
		DBClient:     dbClient,
		RabbitClient: rabbitClient,
		ServiceName:  cfg.App.Name,
	})
}
