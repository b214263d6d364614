package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/RoGogDBD/metrics-tracker/internal/agent"
	"github.com/RoGogDBD/metrics-tracker/internal/collector"
	"github.com/RoGogDBD/metrics-tracker/internal/config"
	"github.com/RoGogDBD/metrics-tracker/internal/config/db"
	"github.com/RoGogDBD/metrics-tracker/internal/grpcserver"
	"github.com/RoGogDBD/metrics-tracker/internal/handler"
	"github.com/RoGogDBD/metrics-tracker/internal/repository"
	"github.com/RoGogDBD/metrics-tracker/internal/service"
	"github.com/RoGogDBD/metrics-tracker/internal/tracker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const (
	shutdownTimeout = 5 * time.Second
	remoteNamespace = "tracker"
)

// app связывает трекер, наблюдателей, сборщик, HTTP- и gRPC-серверы одного процесса.
type app struct {
	logger    *zap.Logger
	tracker   *tracker.Tracker
	reports   *repository.ReportManager
	collector *collector.Collector
	server    *http.Server
	handler   *handler.Handler
	health    *grpcserver.HealthReporter
	grpc      *grpcserver.Server
	grpcLis   net.Listener
	closers   []func()
}

func newApp(ctx context.Context, cfg *config.TrackerConfig, logger *zap.Logger) (*app, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &app{
		logger:  logger,
		reports: repository.NewReportManager(logger),
		health:  grpcserver.NewHealthReporter(grpcserver.DefaultCheckInterval, logger),
	}
	a.reports.Attach(repository.NewLogObserver(logger))

	a.tracker = tracker.New(tracker.Config{
		HistoryLength:      cfg.HistoryLength,
		SamplingInterval:   cfg.SamplingInterval,
		InitialDelay:       cfg.InitialDelay,
		ReportTimeout:      cfg.ReportTimeout,
		Source:             cfg.Source,
		RetainObservations: cfg.RetainObservations,
	}, a.reports, logger)

	a.handler = handler.NewHandler(a.tracker, logger)
	a.handler.SetKey(cfg.Key)

	if err := a.attachSinks(ctx, cfg); err != nil {
		a.close()
		return nil, err
	}
	if err := a.listenGRPC(cfg); err != nil {
		a.close()
		return nil, err
	}

	a.collector = collector.New(a.tracker, cfg.PollInterval, logger)
	a.server = &http.Server{
		Addr:              cfg.Address.String(),
		Handler:           service.NewRouter(a.handler, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a, nil
}

// addPinger подключает хранилище к GET /ping и к сервису grpc.health.v1.
func (a *app) addPinger(p handler.Pinger) {
	a.handler.AddPinger(p)
	a.health.AddPinger(p)
}

// listenGRPC открывает порт gRPC-сервера, если он задан конфигурацией.
func (a *app) listenGRPC(cfg *config.TrackerConfig) error {
	if cfg.GRPCAddress == "" {
		return nil
	}
	subnet, err := grpcserver.ParseTrustedSubnet(cfg.TrustedSubnet)
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", cfg.GRPCAddress, err)
	}
	a.grpcLis = lis
	a.grpc = grpcserver.New(a.health, subnet, a.logger)
	a.closers = append(a.closers, func() { _ = lis.Close() })
	return nil
}

// attachSinks подключает наблюдателей, включённые конфигурацией.
func (a *app) attachSinks(ctx context.Context, cfg *config.TrackerConfig) error {
	if cfg.FileStoragePath != "" {
		if cfg.Restore {
			restored, err := repository.RestoreFromFile(a.tracker, cfg.FileStoragePath)
			if err != nil {
				a.logger.Warn("failed to restore snapshot", zap.String("path", cfg.FileStoragePath), zap.Error(err))
			} else if restored {
				a.logger.Info("snapshot restored", zap.String("path", cfg.FileStoragePath))
			}
		}
		a.reports.Attach(repository.NewStorageFileObserver(cfg.FileStoragePath))
	}

	if cfg.JournalPath != "" {
		journal, err := repository.NewFileSnapshotObserver(cfg.JournalPath)
		if err != nil {
			return err
		}
		a.reports.Attach(journal)
	}

	if cfg.DatabaseDSN != "" {
		pool, err := db.InitDB(ctx, cfg.DatabaseDSN, a.logger)
		if err != nil {
			return err
		}
		pg := repository.NewPostgresObserver(pool, a.logger)
		a.closers = append(a.closers, pg.Close)
		a.reports.Attach(pg)
		a.addPinger(pg)
	} else {
		a.logger.Info("no DSN provided, database sink disabled")
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, func() { _ = client.Close() })
		rd := repository.NewRedisObserver(client, "", cfg.HistoryLength)
		if err := rd.Ping(ctx); err != nil {
			return fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		a.reports.Attach(rd)
		a.addPinger(rd)
	}

	if cfg.RemoteWriteURL != "" {
		a.reports.Attach(repository.NewRemoteWriteObserver(cfg.RemoteWriteURL, remoteNamespace))
	}

	if cfg.ReportURL != "" {
		a.reports.Attach(agent.NewRestySender(cfg.ReportURL, cfg.Key, a.logger))
	}
	return nil
}

// serve запускает сэмплер, сборщик и HTTP-сервер и блокируется до отмены ctx.
func (a *app) serve(ctx context.Context) error {
	if err := a.tracker.Start(ctx); err != nil {
		return err
	}
	a.collector.Start(ctx)

	a.health.Start(ctx)

	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("http server started", zap.String("address", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if a.grpc != nil {
		go func() {
			if err := a.grpc.Serve(a.grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		a.logger.Error("server failed", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http server shutdown", zap.Error(err))
	}
	if a.grpc != nil {
		a.grpc.Shutdown(shutdownCtx)
	} else {
		a.health.Stop()
	}

	a.collector.Stop()
	a.tracker.Stop()
	a.tracker.Flush()

	stats := a.tracker.Stats()
	a.logger.Info("tracker stopped",
		zap.Uint64("passes", stats.Passes),
		zap.Uint64("skipped_ticks", stats.SkippedTicks),
		zap.Uint64("failures", stats.Failures),
	)
	return serveErr
}

func (a *app) close() {
	if a.tracker != nil {
		_ = a.tracker.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
