package tracker

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T, historyLength int) *Tracker {
	t.Helper()
	cfg := DefaultConfig()
	cfg.HistoryLength = historyLength
	cfg.Source = "test"
	return New(cfg, nil, nil)
}

func TestTracker_Ingestion_TableDriven(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, tr *Tracker)
		check func(t *testing.T, tr *Tracker)
	}{
		{
			name: "counter default delta",
			setup: func(t *testing.T, tr *Tracker) {
				require.NoError(t, tr.IncrementCounter("reqs"))
				require.NoError(t, tr.IncrementCounter("reqs"))
			},
			check: func(t *testing.T, tr *Tracker) {
				v, ok := tr.Counter("reqs")
				require.True(t, ok)
				require.Equal(t, int64(2), v)
			},
		},
		{
			name: "counter increment then decrement",
			setup: func(t *testing.T, tr *Tracker) {
				require.NoError(t, tr.IncrementCounterBy("x", 5))
				require.NoError(t, tr.DecrementCounterBy("x", 2))
			},
			check: func(t *testing.T, tr *Tracker) {
				v, ok := tr.Counter("x")
				require.True(t, ok)
				require.Equal(t, int64(3), v)
			},
		},
		{
			name: "first decrement creates negative value",
			setup: func(t *testing.T, tr *Tracker) {
				require.NoError(t, tr.DecrementCounter("down"))
				require.NoError(t, tr.DecrementMetricBy("g", 2.5))
			},
			check: func(t *testing.T, tr *Tracker) {
				c, ok := tr.Counter("down")
				require.True(t, ok)
				require.Equal(t, int64(-1), c)
				g, ok := tr.Metric("g")
				require.True(t, ok)
				require.InDelta(t, -2.5, g, 1e-9)
			},
		},
		{
			name: "metric increments and set",
			setup: func(t *testing.T, tr *Tracker) {
				require.NoError(t, tr.IncrementMetric("load"))
				require.NoError(t, tr.IncrementMetricBy("load", 0.5))
				require.NoError(t, tr.SetMetric("temp", 36.6))
			},
			check: func(t *testing.T, tr *Tracker) {
				v, ok := tr.Metric("load")
				require.True(t, ok)
				require.InDelta(t, 1.5, v, 1e-9)
				v, ok = tr.Metric("temp")
				require.True(t, ok)
				require.InDelta(t, 36.6, v, 1e-9)
			},
		},
		{
			name: "categories do not cross-contaminate",
			setup: func(t *testing.T, tr *Tracker) {
				require.NoError(t, tr.IncrementMetricBy("X", 10))
				require.NoError(t, tr.IncrementCounter("X"))
			},
			check: func(t *testing.T, tr *Tracker) {
				c, _ := tr.Counter("X")
				require.Equal(t, int64(1), c)
				g, _ := tr.Metric("X")
				require.InDelta(t, 10.0, g, 1e-9)
				_, ok := tr.Duration("X")
				require.False(t, ok)
			},
		},
		{
			name: "missing series",
			check: func(t *testing.T, tr *Tracker) {
				_, ok := tr.Counter("missing")
				require.False(t, ok)
				_, ok = tr.Metric("missing")
				require.False(t, ok)
				_, ok = tr.CounterHistory("missing")
				require.False(t, ok)
			},
		},
		{
			name: "registered series has empty history",
			setup: func(t *testing.T, tr *Tracker) {
				require.NoError(t, tr.IncrementCounter("fresh"))
			},
			check: func(t *testing.T, tr *Tracker) {
				h, ok := tr.CounterHistory("fresh")
				require.True(t, ok)
				require.Empty(t, h)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTracker(t, 3)
			if tt.setup != nil {
				tt.setup(t, tr)
			}
			tt.check(t, tr)
		})
	}
}

func TestTracker_Ingestion_Errors(t *testing.T) {
	tr := newTestTracker(t, 3)

	require.ErrorIs(t, tr.IncrementCounter(""), ErrEmptyName)
	require.ErrorIs(t, tr.DecrementCounterBy("", 3), ErrEmptyName)
	require.ErrorIs(t, tr.IncrementMetric(""), ErrEmptyName)
	require.ErrorIs(t, tr.RecordDuration("", time.Second), ErrEmptyName)
	require.ErrorIs(t, tr.RecordRequest("", time.Now(), time.Second, "200", true), ErrEmptyName)
	require.ErrorIs(t, tr.IncrementMetricBy("g", math.NaN()), ErrInvalidDelta)
	require.ErrorIs(t, tr.DecrementMetricBy("g", math.Inf(1)), ErrInvalidDelta)
	require.ErrorIs(t, tr.SetMetric("g", math.Inf(-1)), ErrInvalidDelta)

	_, ok := tr.Metric("g")
	require.False(t, ok, "failed update must not create the series")
}

func TestTracker_NoOpHooks(t *testing.T) {
	tr := newTestTracker(t, 3)

	require.NotPanics(t, func() {
		tr.RecordEvent("evt", nil, nil)
		tr.RecordEvent("evt", map[string]string{"k": "v"}, map[string]float64{"m": 1})
		tr.RecordException(nil, nil, nil)
		tr.RecordDependencyCall("db", "select", time.Now(), time.Millisecond, true)
		tr.Flush()
	})

	snap := tr.Current()
	require.Empty(t, snap.Counters)
	require.Empty(t, snap.Metrics)
	require.Empty(t, snap.DurationMetrics)
}

func TestTracker_RecordDuration_RegistersNameOnly(t *testing.T) {
	tr := newTestTracker(t, 3)

	require.NoError(t, tr.RecordDuration("latency", 250*time.Millisecond))
	require.NoError(t, tr.RecordRequest("GET /", time.Now(), time.Second, "200", true))

	d, ok := tr.Duration("latency")
	require.True(t, ok)
	require.Zero(t, d)

	r, ok := tr.Request("GET /")
	require.True(t, ok)
	require.Nil(t, r)
	require.Equal(t, []string{"GET /"}, tr.RequestNames())
}

func TestTracker_RecordDuration_RetainObservations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetainObservations = true
	tr := New(cfg, nil, nil)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, tr.RecordDuration("latency", 250*time.Millisecond))
	require.NoError(t, tr.RecordRequest("GET /", start, time.Second, "200", true))

	d, ok := tr.Duration("latency")
	require.True(t, ok)
	require.Equal(t, 250*time.Millisecond, d)

	r, ok := tr.Request("GET /")
	require.True(t, ok)
	require.NotNil(t, r)
	require.Equal(t, start, r.StartTime)
	require.Equal(t, time.Second, r.Duration)
}

func TestTracker_ConcurrentIncrements(t *testing.T) {
	tr := newTestTracker(t, 3)

	const goroutines = 1000
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_ = tr.IncrementCounter("hits")
		}()
	}
	wg.Wait()

	v, ok := tr.Counter("hits")
	require.True(t, ok)
	require.Equal(t, int64(goroutines), v)
}

func TestTracker_ConcurrentMixedDeltas(t *testing.T) {
	tr := newTestTracker(t, 3)

	const goroutines = 200
	var (
		wg       sync.WaitGroup
		expected int64
	)
	for i := 1; i <= goroutines; i++ {
		d := int64(i)
		if i%3 == 0 {
			expected -= d
		} else {
			expected += d
		}
	}

	wg.Add(goroutines)
	for i := 1; i <= goroutines; i++ {
		go func(d int64) {
			defer wg.Done()
			if d%3 == 0 {
				_ = tr.DecrementCounterBy("mixed", d)
				_ = tr.DecrementMetricBy("mixed", float64(d))
				return
			}
			_ = tr.IncrementCounterBy("mixed", d)
			_ = tr.IncrementMetricBy("mixed", float64(d))
		}(int64(i))
	}
	wg.Wait()

	c, _ := tr.Counter("mixed")
	require.Equal(t, expected, c)
	g, _ := tr.Metric("mixed")
	require.InDelta(t, float64(expected), g, 1e-6)
}

func TestTracker_ConcurrentFirstTouch(t *testing.T) {
	tr := newTestTracker(t, 3)

	const goroutines = 64
	var wg sync.WaitGroup
	wg.Add(goroutines * 2)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_ = tr.RecordDuration("same", time.Second)
		}()
		go func() {
			defer wg.Done()
			_ = tr.IncrementCounter("same")
		}()
	}
	wg.Wait()

	require.Len(t, tr.durations.names(), 1)
	require.Len(t, tr.counters.names(), 1)
	c, _ := tr.Counter("same")
	require.Equal(t, int64(goroutines), c)
}

func TestTracker_Current(t *testing.T) {
	tr := newTestTracker(t, 3)
	require.NoError(t, tr.IncrementCounterBy("c", 4))
	require.NoError(t, tr.SetMetric("g", 1.25))
	require.NoError(t, tr.RecordDuration("d", time.Second))

	snap := tr.Current()
	require.Equal(t, "test", snap.Source)
	require.Equal(t, map[string]int64{"c": 4}, snap.Counters)
	require.Equal(t, map[string]float64{"g": 1.25}, snap.Metrics)
	require.Equal(t, map[string]time.Duration{"d": 0}, snap.DurationMetrics)

	h, ok := tr.CounterHistory("c")
	require.True(t, ok)
	require.Empty(t, h, "Current must not touch history")
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{HistoryLength: -1, SamplingInterval: 0, InitialDelay: -time.Second}.withDefaults()

	require.Equal(t, DefaultHistoryLength, cfg.HistoryLength)
	require.Equal(t, DefaultSamplingInterval, cfg.SamplingInterval)
	require.Equal(t, DefaultInitialDelay, cfg.InitialDelay)
	require.Equal(t, DefaultReportTimeout, cfg.ReportTimeout)
	require.NotEmpty(t, cfg.Source)
}
