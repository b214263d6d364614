package repository

import (
	"sort"
	"strconv"
	"time"

	models "github.com/RoGogDBD/metrics-tracker/internal/model"
)

// Storage определяет интерфейс хранилища серий, с которым работают HTTP-обработчики,
// сборщик метрик хоста и восстановление из файла.
//
// Реализуется *tracker.Tracker.
type Storage interface {
	// IncrementCounterBy изменяет счётчик на delta, создавая серию при первом обращении.
	IncrementCounterBy(name string, delta int64) error
	// IncrementMetricBy изменяет датчик на delta.
	IncrementMetricBy(name string, delta float64) error
	// SetMetric устанавливает значение датчика.
	SetMetric(name string, value float64) error
	// RecordDuration регистрирует серию длительностей.
	RecordDuration(name string, d time.Duration) error

	// Counter возвращает текущее значение счётчика и флаг наличия.
	Counter(name string) (int64, bool)
	// Metric возвращает текущее значение датчика и флаг наличия.
	Metric(name string) (float64, bool)
	// Duration возвращает текущее значение длительности и флаг наличия.
	Duration(name string) (time.Duration, bool)

	CounterHistory(name string) ([]int64, bool)
	MetricHistory(name string) ([]float64, bool)
	DurationHistory(name string) ([]time.Duration, bool)
	RequestHistory(name string) ([]models.MeasuredRequest, bool)

	// Current возвращает снимок текущих значений без изменения истории.
	Current() models.Snapshot
	// Latest возвращает снимок последнего прохода сэмплера.
	Latest() (models.Snapshot, bool)
}

// MetricInfo содержит информацию о метрике для вывода.
//
// Name — имя метрики.
// Type — тип метрики (counter, gauge или duration).
// Value — строковое представление значения.
type MetricInfo struct {
	Name  string
	Type  string
	Value string
}

// ListMetrics раскладывает снимок в плоский список, отсортированный по типу и имени.
//
// snap — снимок для вывода.
func ListMetrics(snap models.Snapshot) []MetricInfo {
	out := make([]MetricInfo, 0, len(snap.Counters)+len(snap.Metrics)+len(snap.DurationMetrics))
	for name, v := range snap.Counters {
		out = append(out, MetricInfo{Name: name, Type: models.Counter, Value: strconv.FormatInt(v, 10)})
	}
	for name, v := range snap.Metrics {
		out = append(out, MetricInfo{Name: name, Type: models.Gauge, Value: strconv.FormatFloat(v, 'f', -1, 64)})
	}
	for name, v := range snap.DurationMetrics {
		out = append(out, MetricInfo{Name: name, Type: models.Duration, Value: v.String()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out
}
