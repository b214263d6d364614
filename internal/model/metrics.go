package models

import "time"

// Counter — константа, обозначающая тип метрики "счётчик".
// Счётчики увеличиваются или уменьшаются на указанное значение (delta).
const Counter = "counter"

// Gauge — константа, обозначающая тип метрики "датчик".
// Датчики хранят число с плавающей точкой и поддерживают приращение и установку.
const Gauge = "gauge"

// Duration — тип серии длительностей (time.Duration).
const Duration = "duration"

// Request — тип серии измеренных запросов.
const Request = "request"

// Metrics представляет метрику для сериализации в JSON.
//
// Структура использует плоскую модель без вложенности.
// Delta и Value объявлены через указатели для различения
// значения "0" от отсутствующего значения при сериализации.
//
// Поля:
//   - ID: уникальный идентификатор метрики
//   - MType: тип метрики (Counter или Gauge)
//   - Delta: значение счётчика (используется для Counter)
//   - Value: значение датчика (используется для Gauge)
//   - Hash: HMAC-SHA256 подпись метрики (опционально)
type Metrics struct {
	ID    string   `json:"id"`
	MType string   `json:"type"`
	Delta *int64   `json:"delta,omitempty"`
	Value *float64 `json:"value,omitempty"`
	Hash  string   `json:"hash,omitempty"`
}

// MeasuredRequest — одно наблюдение завершённого запроса.
type MeasuredRequest struct {
	Name      string        `json:"name"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
}

// Snapshot — неизменяемая копия текущих значений всех серий на момент одного такта сэмплера.
//
// Наблюдения запросов попадают в историю, но не в снимок.
// Карты никогда не равны nil, даже если серий ещё нет.
type Snapshot struct {
	ID              string                   `json:"id"`
	Sequence        uint64                   `json:"sequence"`
	Source          string                   `json:"source"`
	Timestamp       time.Time                `json:"timestamp"`
	Counters        map[string]int64         `json:"counters"`
	Metrics         map[string]float64       `json:"metrics"`
	DurationMetrics map[string]time.Duration `json:"duration_metrics"`
}

// NewSnapshot создаёт пустой снимок с инициализированными картами.
func NewSnapshot(source string) Snapshot {
	return Snapshot{
		Source:          source,
		Counters:        make(map[string]int64),
		Metrics:         make(map[string]float64),
		DurationMetrics: make(map[string]time.Duration),
	}
}

// Batch преобразует снимок в плоский список Metrics.
//
// Снимок хранит абсолютные значения счётчиков, а Delta в пакете прибавляется
// на приёмной стороне. Поэтому для счётчика передаётся разница с sent
// (последними доставленными значениями). Счётчики, не изменившиеся с прошлой
// доставки, пропускаются. При sent == nil передаются полные значения.
//
// Длительности передаются как датчики в секундах.
func (s Snapshot) Batch(sent map[string]int64) []Metrics {
	out := make([]Metrics, 0, len(s.Counters)+len(s.Metrics)+len(s.DurationMetrics))
	for name, v := range s.Counters {
		prev, ok := sent[name]
		if ok && prev == v {
			continue
		}
		delta := v - prev
		out = append(out, Metrics{ID: name, MType: Counter, Delta: &delta})
	}
	for name, v := range s.Metrics {
		val := v
		out = append(out, Metrics{ID: name, MType: Gauge, Value: &val})
	}
	for name, v := range s.DurationMetrics {
		val := v.Seconds()
		out = append(out, Metrics{ID: name, MType: Gauge, Value: &val})
	}
	return out
}
