package tracker

import (
	"context"
	"fmt"
	"time"

	models "github.com/RoGogDBD/metrics-tracker/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stats — счётчики работы сэмплера.
type Stats struct {
	Passes       uint64
	SkippedTicks uint64
	Failures     uint64
}

// Stats возвращает текущие счётчики сэмплера.
func (t *Tracker) Stats() Stats {
	return Stats{
		Passes:       t.passes.Load(),
		SkippedTicks: t.skipped.Load(),
		Failures:     t.failures.Load(),
	}
}

// Start запускает периодический сэмплер.
//
// Первый проход выполняется через InitialDelay, далее каждые SamplingInterval.
// Проходы выполняются в одной горутине и никогда не пересекаются:
// если проход ещё идёт, очередной такт пропускается.
func (t *Tracker) Start(ctx context.Context) error {
	t.runMu.Lock()
	defer t.runMu.Unlock()

	if t.running {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.running = true

	t.wg.Add(1)
	go t.loop(runCtx)

	t.logger.Info("sampler started",
		zap.Int("history_length", t.cfg.HistoryLength),
		zap.Duration("sampling_interval", t.cfg.SamplingInterval),
		zap.Duration("initial_delay", t.cfg.InitialDelay),
		zap.String("source", t.cfg.Source),
	)
	return nil
}

// Stop останавливает сэмплер и ждёт завершения текущего прохода.
// Повторный вызов безопасен.
func (t *Tracker) Stop() {
	t.runMu.Lock()
	if !t.running {
		t.runMu.Unlock()
		return
	}
	t.cancel()
	t.running = false
	t.runMu.Unlock()

	t.wg.Wait()
	t.logger.Info("sampler stopped", zap.Uint64("passes", t.passes.Load()))
}

// Close останавливает сэмплер. Всегда возвращает nil.
func (t *Tracker) Close() error {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("failed to stop sampler", zap.Any("panic", r))
		}
	}()
	t.Stop()
	return nil
}

// Flush зарезервирован для синхронной выгрузки и пока ничего не делает.
func (t *Tracker) Flush() {}

// Latest возвращает последний сформированный снимок.
func (t *Tracker) Latest() (models.Snapshot, bool) {
	snap := t.latest.Load()
	if snap == nil {
		return models.Snapshot{}, false
	}
	return *snap, true
}

// Sample синхронно выполняет один проход сэмплера.
//
// Блокируется, пока не завершится проход, запущенный по таймеру.
// Возвращает снимок и ошибку передачи наблюдателю, если она была.
func (t *Tracker) Sample(ctx context.Context) (models.Snapshot, error) {
	t.passMu.Lock()
	defer t.passMu.Unlock()
	return t.samplePass(ctx)
}

func (t *Tracker) loop(ctx context.Context) {
	defer t.wg.Done()

	timer := time.NewTimer(t.cfg.InitialDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	t.tick(ctx)

	ticker := time.NewTicker(t.cfg.SamplingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

// tick выполняет проход по таймеру. Проход, который уже идёт, не дублируется.
func (t *Tracker) tick(ctx context.Context) {
	if !t.passMu.TryLock() {
		t.skipped.Add(1)
		t.logger.Debug("sampling pass still running, tick skipped")
		return
	}
	defer t.passMu.Unlock()

	if _, err := t.samplePass(ctx); err != nil {
		t.recordFailure(err)
		return
	}
	t.failures.Store(0)
}

// recordFailure логирует ошибку прохода. При серии ошибок подряд
// в лог попадают только 1-я, 2-я, 4-я, 8-я и т.д.
func (t *Tracker) recordFailure(err error) {
	n := t.failures.Add(1)
	if n&(n-1) != 0 {
		return
	}
	t.logger.Error("sampling pass failed",
		zap.Error(err),
		zap.Uint64("consecutive_failures", n),
	)
}

// samplePass формирует снимок, пополняет истории и передаёт снимок наблюдателю.
//
// Если контекст уже отменён, проход не начинается и истории не меняются.
// Начатый проход всегда доводится до конца.
func (t *Tracker) samplePass(ctx context.Context) (snap models.Snapshot, err error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, err
	}

	snap, err = t.collect()
	if err != nil {
		return snap, err
	}
	t.passes.Add(1)
	t.latest.Store(&snap)

	if err := t.report(ctx, snap); err != nil {
		return snap, fmt.Errorf("report snapshot %d: %w", snap.Sequence, err)
	}
	return snap, nil
}

// collect выполняет проход в две фазы. Сначала читаются значения всех категорий
// и собирается снимок, затем значения добавляются в истории. Паника в первой фазе
// возвращается как ErrSamplingPanic, и истории остаются нетронутыми.
func (t *Tracker) collect() (snap models.Snapshot, err error) {
	metrics := t.metrics.read()
	counters := t.counters.read()
	requests := t.requests.read()
	durations := t.durations.read()

	snap, err = t.buildSnapshot(metrics, counters, durations)
	if err != nil {
		return models.Snapshot{}, err
	}

	limit := t.cfg.HistoryLength
	t.metrics.commit(metrics, limit)
	t.counters.commit(counters, limit)
	t.requests.commit(requests, limit)
	t.durations.commit(durations, limit)
	return snap, nil
}

func (t *Tracker) buildSnapshot(
	metrics []reading[float64],
	counters []reading[int64],
	durations []reading[time.Duration],
) (snap models.Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSamplingPanic, r)
		}
	}()

	snap = models.NewSnapshot(t.cfg.Source)
	for _, r := range metrics {
		snap.Metrics[r.name] = r.v
		t.logger.Debug("metric sampled", zap.String("name", r.name), zap.Float64("value", r.v))
	}
	for _, r := range counters {
		snap.Counters[r.name] = r.v
		t.logger.Debug("counter sampled", zap.String("name", r.name), zap.Int64("value", r.v))
	}
	for _, r := range durations {
		snap.DurationMetrics[r.name] = r.v
		t.logger.Debug("duration metric sampled", zap.String("name", r.name), zap.Duration("value", r.v))
	}
	snap.ID = uuid.NewString()
	snap.Sequence = t.sequence.Add(1)
	snap.Timestamp = time.Now()
	return snap, nil
}

// report передаёт снимок наблюдателю вне всех блокировок хранилища.
//
// Контекст передачи не наследует отмену сэмплера: начатый проход
// доставляется даже во время остановки, но не дольше ReportTimeout.
func (t *Tracker) report(ctx context.Context, snap models.Snapshot) (err error) {
	if t.reporter == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: reporter: %v", ErrSamplingPanic, r)
		}
	}()

	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.ReportTimeout)
	defer cancel()
	return t.reporter.OnSnapshot(reportCtx, snap)
}
