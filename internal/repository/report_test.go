package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	models "github.com/RoGogDBD/metrics-tracker/internal/model"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	got []uint64
	err error
}

func (r *recordingObserver) OnSnapshot(_ context.Context, s models.Snapshot) error {
	r.got = append(r.got, s.Sequence)
	return r.err
}

func testSnapshot(seq uint64) models.Snapshot {
	snap := models.NewSnapshot("test")
	snap.ID = "00000000-0000-0000-0000-000000000001"
	snap.Sequence = seq
	snap.Timestamp = time.Date(2024, 1, 1, 0, 0, int(seq), 0, time.UTC)
	snap.Counters["hits"] = int64(seq)
	snap.Metrics["load"] = 0.5
	snap.DurationMetrics["latency"] = 250 * time.Millisecond
	return snap
}

func TestFileSnapshotObserver_OnSnapshot_TableDriven(t *testing.T) {
	tmpDir := t.TempDir()
	tests := []struct {
		name      string
		filePath  string
		snapshots []models.Snapshot
		wantLines int
	}{
		{
			name:      "single snapshot",
			filePath:  filepath.Join(tmpDir, "journal.log"),
			snapshots: []models.Snapshot{testSnapshot(1)},
			wantLines: 1,
		},
		{
			name:      "creates nested dir and appends",
			filePath:  filepath.Join(tmpDir, "nested", "journal.log"),
			snapshots: []models.Snapshot{testSnapshot(1), testSnapshot(2), testSnapshot(3)},
			wantLines: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := NewFileSnapshotObserver(tt.filePath)
			require.NoError(t, err)
			for _, s := range tt.snapshots {
				require.NoError(t, obs.OnSnapshot(context.Background(), s))
			}

			f, err := os.Open(tt.filePath)
			require.NoError(t, err)
			defer func() { _ = f.Close() }()

			var lines []models.Snapshot
			sc := bufio.NewScanner(f)
			for sc.Scan() {
				var s models.Snapshot
				require.NoError(t, json.Unmarshal(sc.Bytes(), &s))
				lines = append(lines, s)
			}
			require.NoError(t, sc.Err())
			require.Len(t, lines, tt.wantLines)
			require.Equal(t, tt.snapshots[len(tt.snapshots)-1].Sequence, lines[len(lines)-1].Sequence)
		})
	}
}

func TestStorageFileObserver_KeepsLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	obs := NewStorageFileObserver(path)

	require.NoError(t, obs.OnSnapshot(context.Background(), testSnapshot(1)))
	require.NoError(t, obs.OnSnapshot(context.Background(), testSnapshot(2)))

	snap, err := LoadSnapshotFromFile(path)
	require.NoError(t, err)
	require.Equal(t, uint64(2), snap.Sequence)
	require.Equal(t, int64(2), snap.Counters["hits"])
}

func TestReportManager_AttachDetachNotify(t *testing.T) {
	m := NewReportManager(nil)
	require.False(t, m.HasObservers())

	first := &recordingObserver{}
	second := &recordingObserver{}
	m.Attach(first)
	m.Attach(second)
	m.Attach(nil)
	require.True(t, m.HasObservers())

	require.NoError(t, m.Notify(context.Background(), testSnapshot(1)))

	m.Detach(first)
	require.NoError(t, m.OnSnapshot(context.Background(), testSnapshot(2)))

	require.Equal(t, []uint64{1}, first.got)
	require.Equal(t, []uint64{1, 2}, second.got)

	m.Detach(second)
	require.False(t, m.HasObservers())
}

func TestReportManager_DetachFuncObserverDoesNotPanic(t *testing.T) {
	m := NewReportManager(nil)
	fn := models.SnapshotObserverFunc(func(context.Context, models.Snapshot) error { return nil })
	m.Attach(fn)

	require.NotPanics(t, func() { m.Detach(fn) })
	require.True(t, m.HasObservers())
}

func TestReportManager_FailuresAreIsolated(t *testing.T) {
	errBoom := errors.New("boom")
	failing := &recordingObserver{err: errBoom}
	healthy := &recordingObserver{}
	panicking := models.SnapshotObserverFunc(func(context.Context, models.Snapshot) error {
		panic("observer exploded")
	})

	m := NewReportManager(nil)
	m.Attach(failing)
	m.Attach(panicking)
	m.Attach(healthy)

	err := m.Notify(context.Background(), testSnapshot(7))
	require.Error(t, err)
	require.ErrorIs(t, err, errBoom)
	require.Contains(t, err.Error(), "panicked")
	require.Equal(t, []uint64{7}, healthy.got)
}

func TestLogObserver_NeverFails(t *testing.T) {
	require.NoError(t, NewLogObserver(nil).OnSnapshot(context.Background(), testSnapshot(1)))
}
