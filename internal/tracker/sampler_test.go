package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	models "github.com/RoGogDBD/metrics-tracker/internal/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func fastConfig(historyLength int) Config {
	return Config{
		HistoryLength:    historyLength,
		SamplingInterval: 10 * time.Millisecond,
		InitialDelay:     time.Millisecond,
		ReportTimeout:    time.Second,
		Source:           "test",
	}
}

func TestSample_Scenarios(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, tr *Tracker)
		ticks int
		check func(t *testing.T, tr *Tracker, last models.Snapshot)
	}{
		{
			name: "unchanged counter fills bounded history",
			setup: func(t *testing.T, tr *Tracker) {
				require.NoError(t, tr.IncrementCounter("reqs"))
			},
			ticks: 5,
			check: func(t *testing.T, tr *Tracker, last models.Snapshot) {
				h, ok := tr.CounterHistory("reqs")
				require.True(t, ok)
				require.Equal(t, []int64{1, 1, 1}, h)
				require.Equal(t, int64(1), last.Counters["reqs"])
			},
		},
		{
			name: "decrement is reflected in history and snapshot",
			setup: func(t *testing.T, tr *Tracker) {
				require.NoError(t, tr.IncrementCounterBy("x", 5))
				require.NoError(t, tr.DecrementCounterBy("x", 2))
			},
			ticks: 1,
			check: func(t *testing.T, tr *Tracker, last models.Snapshot) {
				h, _ := tr.CounterHistory("x")
				require.Equal(t, []int64{3}, h)
				require.Equal(t, map[string]int64{"x": 3}, last.Counters)
			},
		},
		{
			name:  "empty store gives empty snapshot",
			ticks: 1,
			check: func(t *testing.T, tr *Tracker, last models.Snapshot) {
				require.NotNil(t, last.Counters)
				require.NotNil(t, last.Metrics)
				require.NotNil(t, last.DurationMetrics)
				require.Empty(t, last.Counters)
				require.Empty(t, last.Metrics)
				require.Empty(t, last.DurationMetrics)
				require.Equal(t, "test", last.Source)
				require.NotEmpty(t, last.ID)
			},
		},
		{
			name: "registered duration samples zero value",
			setup: func(t *testing.T, tr *Tracker) {
				require.NoError(t, tr.RecordDuration("latency", time.Second))
			},
			ticks: 2,
			check: func(t *testing.T, tr *Tracker, last models.Snapshot) {
				h, ok := tr.DurationHistory("latency")
				require.True(t, ok)
				require.Equal(t, []time.Duration{0, 0}, h)
				require.Equal(t, map[string]time.Duration{"latency": 0}, last.DurationMetrics)
			},
		},
		{
			name: "request without observation adds nothing",
			setup: func(t *testing.T, tr *Tracker) {
				require.NoError(t, tr.RecordRequest("GET /", time.Now(), time.Second, "200", true))
			},
			ticks: 2,
			check: func(t *testing.T, tr *Tracker, last models.Snapshot) {
				h, ok := tr.RequestHistory("GET /")
				require.True(t, ok)
				require.Empty(t, h)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(fastConfig(3), nil, nil)
			if tt.setup != nil {
				tt.setup(t, tr)
			}
			var last models.Snapshot
			for i := 0; i < tt.ticks; i++ {
				snap, err := tr.Sample(context.Background())
				require.NoError(t, err)
				last = snap
			}
			require.Equal(t, uint64(tt.ticks), last.Sequence)
			tt.check(t, tr, last)
		})
	}
}

func TestSample_HistoryPreservesInsertionOrder(t *testing.T) {
	const limit = 4
	tr := New(fastConfig(limit), nil, nil)

	const samples = 10
	for i := 1; i <= samples; i++ {
		require.NoError(t, tr.SetMetric("g", float64(i)))
		_, err := tr.Sample(context.Background())
		require.NoError(t, err)

		h, _ := tr.MetricHistory("g")
		require.LessOrEqual(t, len(h), limit)
	}

	h, _ := tr.MetricHistory("g")
	require.Equal(t, []float64{7, 8, 9, 10}, h)
	require.Equal(t, float64(samples-limit+1), h[0])
}

func TestSample_RequestsRecordedIntoHistoryOnly(t *testing.T) {
	cfg := fastConfig(2)
	cfg.RetainObservations = true
	tr := New(cfg, nil, nil)

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, tr.RecordRequest("GET /", start, 150*time.Millisecond, "200", true))
	require.NoError(t, tr.RecordDuration("db", 3*time.Millisecond))

	for i := 0; i < 3; i++ {
		_, err := tr.Sample(context.Background())
		require.NoError(t, err)
	}

	h, ok := tr.RequestHistory("GET /")
	require.True(t, ok)
	require.Len(t, h, 2)
	require.Equal(t, models.MeasuredRequest{Name: "GET /", StartTime: start, Duration: 150 * time.Millisecond}, h[1])

	last, ok := tr.Latest()
	require.True(t, ok)
	require.Equal(t, map[string]time.Duration{"db": 3 * time.Millisecond}, last.DurationMetrics)
}

func TestSample_ReporterReceivesSnapshot(t *testing.T) {
	var got []models.Snapshot
	reporter := models.SnapshotObserverFunc(func(ctx context.Context, s models.Snapshot) error {
		got = append(got, s)
		return nil
	})
	tr := New(fastConfig(3), reporter, nil)
	require.NoError(t, tr.IncrementCounter("c"))

	_, ok := tr.Latest()
	require.False(t, ok)

	snap, err := tr.Sample(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, snap.ID, got[0].ID)

	latest, ok := tr.Latest()
	require.True(t, ok)
	require.Equal(t, snap.ID, latest.ID)
}

func TestSample_ReporterErrorDoesNotUndoPass(t *testing.T) {
	errSink := errors.New("sink down")
	reporter := models.SnapshotObserverFunc(func(ctx context.Context, s models.Snapshot) error {
		return errSink
	})
	tr := New(fastConfig(3), reporter, nil)
	require.NoError(t, tr.IncrementCounter("c"))

	_, err := tr.Sample(context.Background())
	require.ErrorIs(t, err, errSink)

	h, _ := tr.CounterHistory("c")
	require.Equal(t, []int64{1}, h)
	_, ok := tr.Latest()
	require.True(t, ok)
}

func TestSample_ReporterPanicIsRecovered(t *testing.T) {
	reporter := models.SnapshotObserverFunc(func(ctx context.Context, s models.Snapshot) error {
		panic("boom")
	})
	tr := New(fastConfig(3), reporter, nil)

	require.NotPanics(t, func() {
		_, err := tr.Sample(context.Background())
		require.ErrorIs(t, err, ErrSamplingPanic)
	})
}

func TestSample_PanicMidPassLeavesHistoryUntouched(t *testing.T) {
	var broken atomic.Bool
	broken.Store(true)
	core, _ := observer.New(zapcore.DebugLevel)
	logger := zap.New(core, zap.Hooks(func(e zapcore.Entry) error {
		if broken.Load() && e.Message == "counter sampled" {
			panic("log sink exploded")
		}
		return nil
	}))

	tr := New(fastConfig(3), nil, logger)
	require.NoError(t, tr.SetMetric("a", 1))
	require.NoError(t, tr.IncrementCounter("c"))
	require.NoError(t, tr.RecordDuration("d", time.Second))

	_, err := tr.Sample(context.Background())
	require.ErrorIs(t, err, ErrSamplingPanic)

	mh, ok := tr.MetricHistory("a")
	require.True(t, ok)
	require.Empty(t, mh)
	ch, ok := tr.CounterHistory("c")
	require.True(t, ok)
	require.Empty(t, ch)
	_, ok = tr.Latest()
	require.False(t, ok)
	require.Zero(t, tr.Stats().Passes)

	broken.Store(false)
	snap, err := tr.Sample(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), snap.Sequence)

	mh, _ = tr.MetricHistory("a")
	require.Equal(t, []float64{1}, mh)
	ch, _ = tr.CounterHistory("c")
	require.Equal(t, []int64{1}, ch)
}

func TestSample_CanceledContextLeavesHistoryUntouched(t *testing.T) {
	tr := New(fastConfig(3), nil, nil)
	require.NoError(t, tr.IncrementCounter("c"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Sample(ctx)
	require.ErrorIs(t, err, context.Canceled)

	h, _ := tr.CounterHistory("c")
	require.Empty(t, h)
	require.Zero(t, tr.Stats().Passes)
}

func TestTick_SkipsWhilePassInFlight(t *testing.T) {
	tr := New(fastConfig(3), nil, nil)
	require.NoError(t, tr.IncrementCounter("c"))

	tr.passMu.Lock()
	tr.tick(context.Background())
	tr.passMu.Unlock()

	require.Equal(t, uint64(1), tr.Stats().SkippedTicks)
	h, _ := tr.CounterHistory("c")
	require.Empty(t, h)

	tr.tick(context.Background())
	h, _ = tr.CounterHistory("c")
	require.Equal(t, []int64{1}, h)
}

func TestTick_FailuresAreCountedAndReset(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	reporter := models.SnapshotObserverFunc(func(ctx context.Context, s models.Snapshot) error {
		if fail.Load() {
			return errors.New("unavailable")
		}
		return nil
	})
	tr := New(fastConfig(3), reporter, nil)

	for i := 0; i < 5; i++ {
		tr.tick(context.Background())
	}
	require.Equal(t, uint64(5), tr.Stats().Failures)
	require.Equal(t, uint64(5), tr.Stats().Passes)

	fail.Store(false)
	tr.tick(context.Background())
	require.Zero(t, tr.Stats().Failures)
}

func TestStart_RunsPeriodicallyAndStops(t *testing.T) {
	var calls atomic.Int64
	reporter := models.SnapshotObserverFunc(func(ctx context.Context, s models.Snapshot) error {
		calls.Add(1)
		return nil
	})
	tr := New(fastConfig(3), reporter, nil)
	require.NoError(t, tr.IncrementCounter("c"))

	require.NoError(t, tr.Start(context.Background()))
	require.ErrorIs(t, tr.Start(context.Background()), ErrAlreadyStarted)

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	tr.Stop()
	stopped := calls.Load()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, stopped, calls.Load(), "no ticks after Stop")

	h, _ := tr.CounterHistory("c")
	require.Len(t, h, 3)

	tr.Stop()
	require.NoError(t, tr.Close())
}

func TestStart_ScheduleSurvivesFailingPasses(t *testing.T) {
	var calls atomic.Int64
	reporter := models.SnapshotObserverFunc(func(ctx context.Context, s models.Snapshot) error {
		n := calls.Add(1)
		if n%2 == 1 {
			panic("flaky reporter")
		}
		return errors.New("still failing")
	})
	tr := New(fastConfig(3), reporter, nil)

	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop()

	require.Eventually(t, func() bool { return tr.Stats().Failures >= 4 }, 2*time.Second, 5*time.Millisecond)
	require.GreaterOrEqual(t, calls.Load(), int64(4))
}

func TestStop_DeliversInFlightSnapshot(t *testing.T) {
	entered := make(chan struct{})
	var (
		once      sync.Once
		delivered atomic.Int64
		ctxErr    atomic.Value
	)
	reporter := models.SnapshotObserverFunc(func(ctx context.Context, s models.Snapshot) error {
		once.Do(func() { close(entered) })
		time.Sleep(30 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			ctxErr.Store(err)
		}
		delivered.Add(1)
		return nil
	})
	cfg := fastConfig(3)
	cfg.SamplingInterval = time.Hour
	tr := New(cfg, reporter, nil)

	require.NoError(t, tr.Start(context.Background()))
	<-entered
	tr.Stop()

	require.Equal(t, int64(1), delivered.Load())
	require.Nil(t, ctxErr.Load())
}

func TestSample_ConcurrentIngestionNeverLosesUpdates(t *testing.T) {
	const limit = 5
	tr := New(fastConfig(limit), nil, nil)

	const (
		writers = 16
		perG    = 500
	)
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				_ = tr.IncrementCounter("hits")
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		_, err := tr.Sample(context.Background())
		require.NoError(t, err)
		h, _ := tr.CounterHistory("hits")
		require.LessOrEqual(t, len(h), limit)

		select {
		case <-done:
			snap, err := tr.Sample(context.Background())
			require.NoError(t, err)
			require.Equal(t, int64(writers*perG), snap.Counters["hits"])
			return
		default:
		}
	}
}
