package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/Ramsey-B/clover/config"
	costrepo "github.com/Ramsey-B/clover/internal/repositories/cost"
	"github.com/Ramsey-B/clover/internal/repositories/ingestionrun"
	"github.com/Ramsey-B/clover/internal/repositories/metricsummary"
	recommendationrepo "github.com/Ramsey-B/clover/internal/repositories/recommendation"
	resourcerepo "github.com/Ramsey-B/clover/internal/repositories/resource"
	tenantrepo "github.com/Ramsey-B/clover/internal/repositories/tenant"
	"github.com/Ramsey-B/clover/pkg/azure"
	"github.com/Ramsey-B/clover/pkg/connectors"
	"github.com/Ramsey-B/clover/pkg/connectors/advisory"
	costconnector "github.com/Ramsey-B/clover/pkg/connectors/cost"
	"github.com/Ramsey-B/clover/pkg/connectors/inventory"
	"github.com/Ramsey-B/clover/pkg/connectors/utilization"
	"github.com/Ramsey-B/clover/pkg/curated"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/orchestrator"
	"github.com/Ramsey-B/clover/pkg/rawstore"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/routes/ingestion"
	"github.com/Ramsey-B/clover/pkg/routes/tenants"
	"github.com/Ramsey-B/clover/pkg/scheduler"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

var version = "dev"

type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string     { return d.name }
func (d *dependency) DependsOn() []string { return d.dependsOn }
func (d *dependency) Start(ctx context.Context) error {
	return d.start(ctx)
}
func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := initTracing(ctx, cfg)
	if err != nil {
		logger.WithError(err).Error("failed to initialize tracing")
		os.Exit(1)
	}

	var (
		db            database.DB
		sqlxDB        *sqlx.DB
		redisClient   *redis.Client
		producer      *kafka.Producer
		server        *echo.Echo
		sched         *scheduler.Scheduler
		healthChecker *health.Checker
	)

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)

	boot.AddDependency(&dependency{
		name: "database",
		start: func(ctx context.Context) error {
			var err error
			db, sqlxDB, err = database.Connect(ctx, database.ConnectConfig{
				Driver:          cfg.DatabaseDriver,
				Host:            cfg.DatabaseHost,
				Port:            cfg.DatabasePort,
				User:            cfg.DatabaseUserName,
				Password:        cfg.DatabasePassword,
				Name:            cfg.DatabaseName,
				SSLMode:         cfg.DatabaseSSLMode,
				MaxOpenConns:    cfg.DatabaseMaxOpenConns,
				MaxIdleConns:    cfg.DatabaseMaxIdleConns,
				ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
			}, logger)
			if err != nil {
				return err
			}

			driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
			if err != nil {
				return err
			}
			migration := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				Force:               cfg.DatabaseMigrationForce,
			})
			return migration.Migrate(cfg.DatabaseName, driver)
		},
		stop: func(ctx context.Context) error {
			return db.Close()
		},
	})

	boot.AddDependency(&dependency{
		name: "redis",
		start: func(ctx context.Context) error {
			var err error
			redisClient, err = redis.NewClient(redis.Config{
				Host:     cfg.RedisHost,
				Port:     cfg.RedisPort,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			}, logger)
			return err
		},
		stop: func(ctx context.Context) error {
			return redisClient.Close()
		},
	})

	boot.AddDependency(&dependency{
		name: "kafka",
		start: func(ctx context.Context) error {
			producer = kafka.NewProducer(kafka.ProducerConfig{
				Brokers: splitBrokers(cfg.KafkaBrokers),
				Topic:   cfg.KafkaRunEventTopic,
			}, logger)
			return nil
		},
		stop: func(ctx context.Context) error {
			return producer.Close()
		},
	})

	boot.AddDependency(&dependency{
		name:      "server",
		dependsOn: []string{"database", "redis", "kafka"},
		start: func(ctx context.Context) error {
			tokenSource := azure.NewTokenSource(azure.TokenConfig{
				ClientID:     cfg.AzureClientID,
				ClientSecret: cfg.AzureClientSecret,
				Scope:        cfg.AzureScope,
			}, redisClient, logger)

			azureCfg := azure.DefaultConfig()
			azureCfg.RequestsPerSecond = cfg.AzureRequestsPerSecond
			azureCfg.Burst = cfg.AzureRequestBurst
			azureClient := azure.NewClient(azureCfg, tokenSource, logger)

			var rawWriter rawstore.Writer
			if cfg.RawBucket != "" {
				gcsClient, err := gcstorage.NewClient(ctx)
				if err != nil {
					return fmt.Errorf("failed to create gcs client: %w", err)
				}
				rawWriter = rawstore.NewGCSWriter(gcsClient, cfg.RawBucket, logger)
			} else {
				rawWriter = rawstore.NewFilesystemWriter(cfg.RawLocalDir, logger)
			}

			tenantRepo := tenantrepo.NewRepository(db, logger)
			resourceRepo := resourcerepo.NewRepository(db, logger)
			costRepo := costrepo.NewRepository(db, logger)
			recommendationRepo := recommendationrepo.NewRepository(db, logger)
			metricRepo := metricsummary.NewRepository(db, logger)
			runRepo := ingestionrun.NewRepository(db, logger)

			curatedWriter := curated.NewWriter(resourceRepo, costRepo, recommendationRepo, metricRepo, logger)
			emitter := events.NewEmitter(producer, logger)

			connectorList := []connectors.Connector{
				inventory.NewConnector(azureClient, logger),
				costconnector.NewConnector(azureClient, logger),
				advisory.NewConnector(azureClient, logger),
				utilization.NewConnector(azureClient, logger),
			}

			orch := orchestrator.New(orchestrator.Config{
				MaxConcurrentSubscriptions: cfg.MaxConcurrentSubscriptions,
				SubscriptionTimeout:        cfg.SubscriptionTimeout,
			}, tenantRepo, runRepo, connectorList, rawWriter, curatedWriter, emitter, logger)

			locker := redis.NewLocker(redisClient, "")
			sched = scheduler.NewScheduler(orch, locker, scheduler.Config{
				FullIngestionInterval:   cfg.FullIngestionInterval,
				IncrementalCostInterval: cfg.IncrementalCostInterval,
			}, logger)

			server = echo.New()
			server.HideBanner = true
			server.HidePort = true
			server.HTTPErrorHandler = middleware.Error(logger)
			server.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
			server.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
			server.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second

			server.Use(middleware.Context())
			server.Use(otelecho.Middleware(cfg.AppName))
			server.Use(middleware.Logger(logger))

			server.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

			healthChecker = health.NewChecker(db, redisClient, version)
			healthChecker.RegisterRoutes(server)

			ingestionGroup := server.Group("/api/v1/ingestion")
			ingestion.NewHandler(orch, runRepo, logger).Register(ingestionGroup)

			tenantGroup := server.Group("/api/v1/tenants")
			tenants.NewHandler(tenantRepo, logger).Register(tenantGroup)

			go func() {
				addr := fmt.Sprintf(":%d", cfg.Port)
				logger.Infof("Starting http server on %s", addr)
				if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.WithError(err).Error("http server stopped unexpectedly")
				}
			}()

			return nil
		},
		stop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})

	if cfg.SchedulerEnabled {
		boot.AddDependency(&dependency{
			name:      "scheduler",
			dependsOn: []string{"server"},
			start: func(ctx context.Context) error {
				return sched.Start(ctx)
			},
			stop: func(ctx context.Context) error {
				return sched.Stop(ctx)
			},
		})
	}

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("startup failed")
		os.Exit(1)
	}

	healthChecker.SetReady(true)
	logger.Infof("%s %s started on port %d", cfg.AppName, version, cfg.Port)

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	if healthChecker != nil {
		healthChecker.SetReady(false)
	}
	if err := boot.Stop(stopCtx); err != nil {
		logger.WithError(err).Error("shutdown did not complete cleanly")
	}
	shutdownTracing(stopCtx)
}

// newLogger writes structured log lines to stdout.
func newLogger() ectologger.Logger {
	encoder := json.NewEncoder(os.Stdout)
	return ectologger.NewEctoLogger(func(message ectologger.EctoLogMessage) {
		_ = encoder.Encode(message)
	})
}

func initTracing(ctx context.Context, cfg *config.Config) (func(context.Context), error) {
	var exporter sdktrace.SpanExporter
	if cfg.OTLPEnabled {
		otlpExporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  10 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		exporter = otlpExporter
	} else {
		exporter = &exporters.ConsoleExporter{}
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.AppName),
			semconv.ServiceVersion(version),
		)),
	)
	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return func(ctx context.Context) {
		_ = provider.Shutdown(ctx)
	}, nil
}

func splitBrokers(brokers string) []string {
	var out []string
	for _, broker := range strings.Split(brokers, ",") {
		broker = strings.TrimSpace(broker)
		if broker != "" {
			out = append(out, broker)
		}
	}
	return out
}
