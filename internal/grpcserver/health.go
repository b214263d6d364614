package grpcserver

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName — имя сервиса трекера в grpc.health.v1.
const ServiceName = "metrics.tracker"

// DefaultCheckInterval — период проверки хранилищ по умолчанию.
const DefaultCheckInterval = 5 * time.Second

const pingTimeout = 2 * time.Second

// Pinger проверяет доступность внешнего хранилища.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter публикует доступность хранилищ через стандартный сервис grpc.health.v1.
//
// Статус совпадает с ответом GET /ping: SERVING, если все хранилища отвечают.
// Хранилища добавляются через AddPinger до Start.
type HealthReporter struct {
	server   *health.Server
	pingers  []Pinger
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthReporter создаёт HealthReporter. Неположительный interval заменяется на DefaultCheckInterval.
func NewHealthReporter(interval time.Duration, logger *zap.Logger) *HealthReporter {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthReporter{
		server:   health.NewServer(),
		interval: interval,
		logger:   logger,
	}
}

// AddPinger добавляет проверяемое хранилище.
func (h *HealthReporter) AddPinger(p Pinger) {
	if p != nil {
		h.pingers = append(h.pingers, p)
	}
}

// Check опрашивает хранилища и обновляет статус сервиса.
//
// Возвращает объединённую ошибку недоступных хранилищ или nil.
func (h *HealthReporter) Check(ctx context.Context) error {
	var errs []error
	for _, p := range h.pingers {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		errs = append(errs, p.Ping(pingCtx))
		cancel()
	}
	err := errors.Join(errs...)

	st := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		h.logger.Warn("health check failed", zap.Error(err))
	}
	h.server.SetServingStatus("", st)
	h.server.SetServingStatus(ServiceName, st)
	return err
}

// Start выполняет первую проверку и запускает периодические проверки. Повторный вызов ничего не делает.
func (h *HealthReporter) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}
	_ = h.Check(ctx)

	ctx, h.cancel = context.WithCancel(ctx)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = h.Check(ctx)
			}
		}
	}()
}

// Stop останавливает проверки и переводит все сервисы в NOT_SERVING.
func (h *HealthReporter) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		h.wg.Wait()
	}
	h.server.Shutdown()
}
