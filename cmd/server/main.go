package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/rl1809/lending/internal/adapter/blob"
	"github.com/rl1809/lending/internal/adapter/handler"
	"github.com/rl1809/lending/internal/adapter/invoice"
	"github.com/rl1809/lending/internal/adapter/notify"
	"github.com/rl1809/lending/internal/adapter/storage"
	"github.com/rl1809/lending/internal/adapter/telemetry"
	"github.com/rl1809/lending/internal/config"
	"github.com/rl1809/lending/internal/core/service"
	"github.com/rl1809/lending/internal/port"
	"github.com/rl1809/lending/internal/worker"
)

const serviceName = "lending"

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	// Initialize storage
	sqlStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to open database")
	}
	if err := sqlStore.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate schema")
	}
	logger.Info().Str("driver", cfg.DBDriver).Msg("database ready")

	db, err := storage.NewPlanCache(sqlStore, cfg.PlanCacheSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create plan cache")
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect redis")
	}
	cache := storage.NewRedisAdapter(rdb)
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")

	// Outbound collaborators
	notifier, mailer, closeBroker := openBroker(cfg, logger)
	blobs, err := blob.NewFileStore(cfg.BlobDir, cfg.BlobBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open blob store")
	}

	dispatcher := worker.NewDispatcher(cfg.DispatchQueue, cfg.TaskTimeout, logger)
	dispatcher.Start(cfg.DispatchWorkers)
	logger.Info().Int("workers", cfg.DispatchWorkers).Msg("started dispatcher")

	// Initialize services
	opts := []service.Option{
		service.WithLogger(logger),
		service.WithTaskQueue(dispatcher),
		service.WithDeliveryFee(cfg.DeliveryFeeCents),
		service.WithReturnWindow(cfg.ReturnWindow),
		service.WithNotifier(notifier),
		service.WithInvoices(invoice.TextRenderer{}, mailer),
	}
	access := service.NewAccessService(db, opts...)
	sweeper := service.NewSweeper(db, opts...)
	svc := handler.Services{
		Orders:  service.NewOrderService(db, cache, opts...),
		Quota:   service.NewQuotaService(db, cache, opts...),
		Access:  access,
		Content: service.NewContentService(db, access, blobs, opts...),
		Stock:   service.NewStockService(db, opts...),
		Sweeper: sweeper,
	}

	scheduler := worker.NewScheduler("entitlement-sweep", cfg.SweepInterval, func(ctx context.Context) error {
		_, err := sweeper.SweepExpiredEntitlements(ctx)
		return err
	}, logger)
	scheduler.Start(ctx)

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	handler.RegisterLendingServer(grpcServer, handler.NewGRPCHandler(svc, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("failed to listen")
	}
	go func() {
		logger.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("gRPC server error")
		}
	}()

	// Initialize HTTP server
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(svc, logger).Handler(cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	<-ctx.Done()
	logger.Warn().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	httpServer.Shutdown(shutdownCtx)
	logger.Info().Msg("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info().Msg("gRPC server stopped")

	scheduler.Stop()
	dispatcher.Close()
	logger.Info().Msg("workers stopped")

	closeBroker()
	rdb.Close()
	sqlStore.Close()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("tracer shutdown")
	}
	logger.Info().Msg("connections closed")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogJSON {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	log.Logger = log.Logger.Level(level)
	return log.Logger.With().Str("service", serviceName).Logger()
}

func openStore(ctx context.Context, cfg config.Config) (*storage.SQLAdapter, error) {
	switch cfg.DBDriver {
	case "mysql":
		db, err := storage.OpenMySQL(ctx, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		return storage.NewMySQLAdapter(db), nil
	default:
		db, err := storage.OpenSQLite(ctx, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		return storage.NewSQLiteAdapter(db), nil
	}
}

// openBroker falls back to logging outbound messages when no broker is configured.
func openBroker(cfg config.Config, logger zerolog.Logger) (port.Notifier, port.Mailer, func()) {
	if cfg.RabbitURL == "" {
		l := notify.NewLog(logger)
		logger.Warn().Msg("LENDING_RABBIT_URL not set, notifications go to the log")
		return l, l, func() {}
	}
	r, err := notify.NewRabbit(cfg.RabbitURL, cfg.RabbitExchange)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect rabbit")
	}
	logger.Info().Str("exchange", cfg.RabbitExchange).Msg("connected to rabbit")
	return r, r, r.Close
}
