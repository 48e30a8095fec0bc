package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	pbv1 "github.com/PaulBabatuyi/CloudDrive-gRPC/gen/fileservice/v1"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/config"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/middleware"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/observability"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/service"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/storage"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/upload"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const serviceName = "clouddrive"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "clouddrive: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := observability.InitLogger(cfg.DevMode, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var traceOut io.Writer = io.Discard
	if cfg.TraceStdout {
		traceOut = os.Stdout
	}
	tp, err := observability.InitTracerProvider(ctx, traceOut, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		observability.ShutdownTracerProvider(shutdownCtx, tp, logger)
	}()

	metrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	// 1. Create dependencies
	backend, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	index, closeIndex, err := openIndex(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeIndex()

	store, closeStore, err := openProgress(ctx, cfg.Progress, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []upload.Option{
		upload.WithMetrics(metrics.Uploads()),
		upload.WithSpoolDir(cfg.Upload.SpoolDir),
		upload.WithPresignTTL(cfg.Upload.PresignTTL),
	}
	if cfg.Upload.DedupLock {
		opts = append(opts, upload.WithDedupLock())
	}

	var thumbnails *worker.ProcessingWorker
	if cfg.Worker.Workers > 0 {
		thumbnails = worker.NewProcessingWorker(&worker.WorkerConfig{
			Backend:   backend,
			Logger:    logger,
			Workers:   cfg.Worker.Workers,
			QueueSize: cfg.Worker.QueueSize,
		})
		opts = append(opts, upload.WithPostProcessor(thumbnails))
	}
	orchestrator := upload.New(backend, store, index, logger, opts...)

	// 2. Create gRPC server
	auth := middleware.NewAuthenticator(cfg.Auth.JWTSecret)
	if auth.TrustsHeader() {
		logger.Warn("no JWT secret configured, trusting the user-id header")
	}
	serverMetrics := metrics.GetServerMetrics()
	grpcServer := grpc.NewServer(
		observability.GRPCStatsHandler(tp),
		grpc.ChainUnaryInterceptor(
			serverMetrics.UnaryServerInterceptor(),
			middleware.UnaryLoggingInterceptor(logger),
			auth.UnaryInterceptor(),
			middleware.UnaryErrorInterceptor(serviceName),
		),
		grpc.ChainStreamInterceptor(
			serverMetrics.StreamServerInterceptor(),
			middleware.StreamLoggingInterceptor(logger),
			auth.StreamInterceptor(),
			middleware.StreamErrorInterceptor(serviceName),
		),
	)

	// 3. Register the service
	pbv1.RegisterFileServiceServer(grpcServer, service.NewFileServer(orchestrator, logger, service.Config{
		MaxUploadSize:        cfg.Upload.MaxSize,
		MaxConcurrentUploads: cfg.Upload.MaxConcurrent,
		SpoolDir:             cfg.Upload.SpoolDir,
		PresignTTL:           cfg.Upload.PresignTTL,
	}))
	serverMetrics.InitializeMetrics(grpcServer)

	// 4. Listen and serve
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if thumbnails != nil {
		thumbnails.Start(gctx)
		defer thumbnails.Stop()
	}
	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		return observability.RunMetricsServer(gctx, metrics.NewMetricsServer(cfg.MetricsPort), logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		grpcServer.GracefulStop()
		return nil
	})

	return g.Wait()
}
