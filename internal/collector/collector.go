// Package collector периодически снимает метрики рантайма и хоста и пишет их в трекер.
package collector

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// DefaultPollInterval — интервал опроса по умолчанию.
const DefaultPollInterval = 2 * time.Second

// PollCountName — имя счётчика выполненных опросов.
const PollCountName = "PollCount"

// Sink принимает собранные значения.
type Sink interface {
	SetMetric(name string, value float64) error
	IncrementCounterBy(name string, delta int64) error
}

// Collector опрашивает runtime.MemStats и gopsutil.
type Collector struct {
	sink     Sink
	interval time.Duration
	logger   *zap.Logger
	rng      *rand.Rand

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New создаёт сборщик.
//
// sink     — получатель значений, обычно *tracker.Tracker.
// interval — интервал опроса, неположительное значение заменяется на DefaultPollInterval.
// logger   — логгер, может быть nil.
func New(sink Sink, interval time.Duration, logger *zap.Logger) *Collector {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		sink:     sink,
		interval: interval,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start запускает периодический опрос до отмены ctx или вызова Stop.
// Повторный вызов без Stop ничего не делает.
func (c *Collector) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.running = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Collect(ctx); err != nil {
					c.logger.Warn("collect failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop останавливает опрос и ждёт завершения текущего прохода.
func (c *Collector) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.running = false
	c.mu.Unlock()
	c.wg.Wait()
}

// Collect выполняет один опрос.
//
// Ошибки gopsutil логируются и не прерывают запись метрик рантайма.
func (c *Collector) Collect(ctx context.Context) error {
	values := runtimeGauges()
	values["RandomValue"] = c.rng.Float64() * 100

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		c.logger.Debug("virtual memory unavailable", zap.Error(err))
	} else {
		values["TotalMemory"] = float64(vm.Total)
		values["FreeMemory"] = float64(vm.Free)
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, true); err != nil {
		c.logger.Debug("cpu utilization unavailable", zap.Error(err))
	} else {
		for i, p := range percents {
			values[fmt.Sprintf("CPUutilization%d", i+1)] = p
		}
	}

	for name, v := range values {
		if err := c.sink.SetMetric(name, v); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return c.sink.IncrementCounterBy(PollCountName, 1)
}

func runtimeGauges() map[string]float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]float64{
		"Alloc":         float64(m.Alloc),
		"BuckHashSys":   float64(m.BuckHashSys),
		"Frees":         float64(m.Frees),
		"GCCPUFraction": m.GCCPUFraction,
		"GCSys":         float64(m.GCSys),
		"HeapAlloc":     float64(m.HeapAlloc),
		"HeapIdle":      float64(m.HeapIdle),
		"HeapInuse":     float64(m.HeapInuse),
		"HeapObjects":   float64(m.HeapObjects),
		"HeapReleased":  float64(m.HeapReleased),
		"HeapSys":       float64(m.HeapSys),
		"LastGC":        float64(m.LastGC),
		"Lookups":       float64(m.Lookups),
		"MCacheInuse":   float64(m.MCacheInuse),
		"MCacheSys":     float64(m.MCacheSys),
		"MSpanInuse":    float64(m.MSpanInuse),
		"MSpanSys":      float64(m.MSpanSys),
		"Mallocs":       float64(m.Mallocs),
		"NextGC":        float64(m.NextGC),
		"NumForcedGC":   float64(m.NumForcedGC),
		"NumGC":         float64(m.NumGC),
		"OtherSys":      float64(m.OtherSys),
		"PauseTotalNs":  float64(m.PauseTotalNs),
		"StackInuse":    float64(m.StackInuse),
		"StackSys":      float64(m.StackSys),
		"Sys":           float64(m.Sys),
		"TotalAlloc":    float64(m.TotalAlloc),
	}
}
