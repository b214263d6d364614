// Package tracker реализует внутрипроцессный агрегатор телеметрии.
//
// Tracker принимает счётчики, датчики, длительности и наблюдения запросов
// от произвольного числа конкурентных вызывающих, хранит текущее значение
// каждой серии и периодически фиксирует ограниченную историю значений.
// Каждый такт сэмплера формирует один models.Snapshot и передаёт его
// наблюдателю (models.SnapshotObserver).
package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	models "github.com/RoGogDBD/metrics-tracker/internal/model"
	"go.uber.org/zap"
)

// Значения конфигурации по умолчанию.
const (
	DefaultHistoryLength    = 30
	DefaultSamplingInterval = 6 * time.Second
	DefaultInitialDelay     = 1 * time.Second
	DefaultReportTimeout    = 15 * time.Second
)

var (
	// ErrEmptyName возвращается, если имя серии пустое.
	ErrEmptyName = errors.New("series name is empty")
	// ErrInvalidDelta возвращается для NaN и бесконечных значений датчиков.
	ErrInvalidDelta = errors.New("invalid delta")
	// ErrAlreadyStarted возвращается при повторном вызове Start.
	ErrAlreadyStarted = errors.New("sampler already started")
	// ErrSamplingPanic оборачивает панику, перехваченную во время прохода сэмплера.
	ErrSamplingPanic = errors.New("sampling pass panicked")
)

// Config задаёт параметры агрегатора. Значения фиксируются при создании.
//
// Поля:
//   - HistoryLength: максимальная длина истории одной серии
//   - SamplingInterval: период сэмплера
//   - InitialDelay: задержка перед первым проходом
//   - ReportTimeout: таймаут передачи снимка наблюдателю
//   - Source: идентификатор источника, попадает в каждый снимок
//   - RetainObservations: сохранять значения RecordDuration/RecordRequest
//     (по умолчанию регистрируется только имя серии)
type Config struct {
	HistoryLength      int
	SamplingInterval   time.Duration
	InitialDelay       time.Duration
	ReportTimeout      time.Duration
	Source             string
	RetainObservations bool
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		HistoryLength:    DefaultHistoryLength,
		SamplingInterval: DefaultSamplingInterval,
		InitialDelay:     DefaultInitialDelay,
		ReportTimeout:    DefaultReportTimeout,
		Source:           defaultSource(),
	}
}

func defaultSource() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "localhost"
	}
	return host
}

func (c Config) withDefaults() Config {
	if c.HistoryLength <= 0 {
		c.HistoryLength = DefaultHistoryLength
	}
	if c.SamplingInterval <= 0 {
		c.SamplingInterval = DefaultSamplingInterval
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.ReportTimeout <= 0 {
		c.ReportTimeout = DefaultReportTimeout
	}
	if c.Source == "" {
		c.Source = defaultSource()
	}
	return c
}

// Tracker — агрегатор телеметрии с четырьмя независимыми категориями серий.
type Tracker struct {
	cfg      Config
	logger   *zap.Logger
	reporter models.SnapshotObserver

	counters  *seriesStore[int64]
	metrics   *seriesStore[float64]
	durations *seriesStore[time.Duration]
	requests  *seriesStore[*models.MeasuredRequest]

	passMu   sync.Mutex
	sequence atomic.Uint64
	latest   atomic.Pointer[models.Snapshot]

	passes   atomic.Uint64
	skipped  atomic.Uint64
	failures atomic.Uint64

	runMu   sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New создаёт агрегатор.
//
// cfg — конфигурация; нулевые поля заменяются значениями по умолчанию.
// reporter — получатель снимков, может быть nil.
// logger — логгер диагностики, может быть nil.
func New(cfg Config, reporter models.SnapshotObserver, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		cfg:       cfg.withDefaults(),
		logger:    logger,
		reporter:  reporter,
		counters:  newSeriesStore[int64](nil),
		metrics:   newSeriesStore[float64](nil),
		durations: newSeriesStore[time.Duration](nil),
		requests: newSeriesStore(func(r *models.MeasuredRequest) bool {
			return r != nil
		}),
	}
}

// Config возвращает действующую конфигурацию.
func (t *Tracker) Config() Config {
	return t.cfg
}

func validateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	return nil
}

func validateFloat(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidDelta, v)
	}
	return nil
}

// IncrementCounter увеличивает счётчик на 1.
func (t *Tracker) IncrementCounter(name string) error {
	return t.IncrementCounterBy(name, 1)
}

// IncrementCounterBy увеличивает счётчик name на delta.
// Первое обращение создаёт серию со значением delta.
func (t *Tracker) IncrementCounterBy(name string, delta int64) error {
	if err := validateName(name); err != nil {
		return err
	}
	t.counters.apply(name, func(cur int64) int64 { return cur + delta }, t.cfg.HistoryLength)
	return nil
}

// DecrementCounter уменьшает счётчик на 1.
func (t *Tracker) DecrementCounter(name string) error {
	return t.DecrementCounterBy(name, 1)
}

// DecrementCounterBy уменьшает счётчик name на delta.
func (t *Tracker) DecrementCounterBy(name string, delta int64) error {
	if err := validateName(name); err != nil {
		return err
	}
	t.counters.apply(name, func(cur int64) int64 { return cur - delta }, t.cfg.HistoryLength)
	return nil
}

// IncrementMetric увеличивает датчик на 1.
func (t *Tracker) IncrementMetric(name string) error {
	return t.IncrementMetricBy(name, 1)
}

// IncrementMetricBy увеличивает датчик name на delta.
func (t *Tracker) IncrementMetricBy(name string, delta float64) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateFloat(delta); err != nil {
		return err
	}
	t.metrics.apply(name, func(cur float64) float64 { return cur + delta }, t.cfg.HistoryLength)
	return nil
}

// DecrementMetric уменьшает датчик на 1.
func (t *Tracker) DecrementMetric(name string) error {
	return t.DecrementMetricBy(name, 1)
}

// DecrementMetricBy уменьшает датчик name на delta.
func (t *Tracker) DecrementMetricBy(name string, delta float64) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateFloat(delta); err != nil {
		return err
	}
	t.metrics.apply(name, func(cur float64) float64 { return cur - delta }, t.cfg.HistoryLength)
	return nil
}

// SetMetric устанавливает значение датчика name.
func (t *Tracker) SetMetric(name string, value float64) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateFloat(value); err != nil {
		return err
	}
	t.metrics.apply(name, func(float64) float64 { return value }, t.cfg.HistoryLength)
	return nil
}

// RecordDuration регистрирует серию длительностей name.
//
// Значение d сохраняется только при Config.RetainObservations,
// иначе серия сэмплируется с нулевой длительностью.
func (t *Tracker) RecordDuration(name string, d time.Duration) error {
	if err := validateName(name); err != nil {
		return err
	}
	if !t.cfg.RetainObservations {
		t.durations.ensure(name)
		return nil
	}
	t.durations.apply(name, func(time.Duration) time.Duration { return d }, t.cfg.HistoryLength)
	return nil
}

// RecordRequest регистрирует серию запросов name.
//
// Наблюдение сохраняется как последнее только при Config.RetainObservations.
// responseCode и success не хранятся.
func (t *Tracker) RecordRequest(name string, start time.Time, d time.Duration, responseCode string, success bool) error {
	if err := validateName(name); err != nil {
		return err
	}
	if !t.cfg.RetainObservations {
		t.requests.ensure(name)
		return nil
	}
	req := &models.MeasuredRequest{Name: name, StartTime: start, Duration: d}
	t.requests.apply(name, func(*models.MeasuredRequest) *models.MeasuredRequest { return req }, t.cfg.HistoryLength)
	return nil
}

// RecordEvent принимается и игнорируется.
func (t *Tracker) RecordEvent(name string, properties map[string]string, metrics map[string]float64) {}

// RecordException принимается и игнорируется.
func (t *Tracker) RecordException(err error, properties map[string]string, metrics map[string]float64) {}

// RecordDependencyCall принимается и игнорируется.
func (t *Tracker) RecordDependencyCall(dependency, command string, start time.Time, d time.Duration, success bool) {}

// Counter возвращает текущее значение счётчика и флаг наличия.
func (t *Tracker) Counter(name string) (int64, bool) {
	return t.counters.get(name)
}

// Metric возвращает текущее значение датчика и флаг наличия.
func (t *Tracker) Metric(name string) (float64, bool) {
	return t.metrics.get(name)
}

// Duration возвращает текущее значение серии длительностей и флаг наличия.
func (t *Tracker) Duration(name string) (time.Duration, bool) {
	return t.durations.get(name)
}

// Request возвращает последнее сохранённое наблюдение запроса.
// Второе значение — зарегистрирована ли серия; первое может быть nil.
func (t *Tracker) Request(name string) (*models.MeasuredRequest, bool) {
	return t.requests.get(name)
}

// CounterHistory возвращает копию истории счётчика, от старых к новым.
func (t *Tracker) CounterHistory(name string) ([]int64, bool) {
	return t.counters.history(name)
}

// MetricHistory возвращает копию истории датчика.
func (t *Tracker) MetricHistory(name string) ([]float64, bool) {
	return t.metrics.history(name)
}

// DurationHistory возвращает копию истории длительностей.
func (t *Tracker) DurationHistory(name string) ([]time.Duration, bool) {
	return t.durations.history(name)
}

// RequestHistory возвращает копию истории запросов.
func (t *Tracker) RequestHistory(name string) ([]models.MeasuredRequest, bool) {
	items, ok := t.requests.history(name)
	if !ok {
		return nil, false
	}
	out := make([]models.MeasuredRequest, 0, len(items))
	for _, r := range items {
		out = append(out, *r)
	}
	return out, true
}

// RequestNames возвращает имена зарегистрированных серий запросов.
func (t *Tracker) RequestNames() []string {
	return t.requests.names()
}

// Current возвращает копию текущих значений без изменения истории.
//
// Каждая серия копируется независимо; атомарность между сериями не гарантируется.
func (t *Tracker) Current() models.Snapshot {
	snap := models.NewSnapshot(t.cfg.Source)
	snap.Timestamp = time.Now()
	t.counters.each(func(name string, v int64) { snap.Counters[name] = v })
	t.metrics.each(func(name string, v float64) { snap.Metrics[name] = v })
	t.durations.each(func(name string, v time.Duration) { snap.DurationMetrics[name] = v })
	return snap
}
