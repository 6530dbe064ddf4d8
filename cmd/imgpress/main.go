package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	batchapi "github.com/okarpov/imgpress/internal/api/handlers/batch"
	"github.com/okarpov/imgpress/internal/api/router"
	"github.com/okarpov/imgpress/internal/api/server"
	"github.com/okarpov/imgpress/internal/codec"
	"github.com/okarpov/imgpress/internal/config"
	"github.com/okarpov/imgpress/internal/model"
	"github.com/okarpov/imgpress/internal/notify"
	"github.com/okarpov/imgpress/internal/queue"
	batchsvc "github.com/okarpov/imgpress/internal/service/batch"
	"github.com/okarpov/imgpress/internal/storage/local"
	miniostorage "github.com/okarpov/imgpress/internal/storage/minio"
)

// fileStorage matches the storage surface the batch service consumes.
type fileStorage interface {
	Save(ctx context.Context, subdir, name string, src io.Reader) (string, error)
	Load(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// notifier matches the completion-event surface the batch service consumes.
type notifier interface {
	ItemFinished(ctx context.Context, item model.Item)
}

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad()

	// Pick the object storage backend for originals and results.
	var storage fileStorage
	switch cfg.Storage.Backend {
	case "minio":
		s, err := miniostorage.NewStorage(
			ctx,
			cfg.Storage.Endpoint,
			cfg.Storage.AccessKey,
			cfg.Storage.SecretKey,
			cfg.Storage.BucketName,
			cfg.Storage.UseSSL,
		)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to storage")
		}
		storage = s
	default:
		s, err := local.NewStorage(cfg.Storage.BaseDir)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to initialize local storage")
		}
		storage = s
	}

	// Bring up the codec pool and pay the wasm compilation cost before
	// accepting traffic.
	avifCodec := codec.New(codec.Options{
		MaxWorkers: cfg.Codec.MaxWorkers,
		Quality:    cfg.Codec.Quality,
	})
	if err := avifCodec.Warmup(ctx); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to warm up codec")
	}

	// Retry strategy for completion-event publishing.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Completion events go to Kafka when enabled, otherwise nowhere.
	var events notifier = notify.Nop{}
	var kafkaEvents *notify.Kafka
	if cfg.Kafka.Enabled {
		kafkaEvents = notify.NewKafka(&cfg.Kafka, strategy)
		events = kafkaEvents
	}

	mode, err := batchsvc.ParseMode(cfg.Driver.Mode)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("invalid driver mode")
	}

	// Queue store and service layer.
	store := queue.NewStore()
	service := batchsvc.NewService(store, storage, avifCodec, events, mode)

	// HTTP handler for the batch conversion routes.
	handler := batchapi.NewHandler(service)

	// Start HTTP server in a separate goroutine.
	r := router.Setup(handler)
	s := server.New(cfg.Server.HTTPPort, r)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	zlog.Logger.Info().Str("addr", cfg.Server.HTTPPort).Msg("server started")

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	// Session teardown: release all queued item handles, drain the
	// codec pool, close the event producer.
	service.Shutdown(shutdownCtx)
	avifCodec.Close()

	if kafkaEvents != nil {
		if err := kafkaEvents.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
		}
	}
}
