package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	models "github.com/RoGogDBD/metrics-tracker/internal/model"
)

// SaveSnapshotToFile атомарно записывает снимок в файл в формате JSON.
//
// Данные пишутся во временный файл рядом с целевым и затем переименовываются.
//
// snapshot — снимок для сохранения.
// filePath — путь к файлу.
func SaveSnapshotToFile(snapshot models.Snapshot, filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filePath)
}

// LoadSnapshotFromFile читает снимок, сохранённый SaveSnapshotToFile.
//
// Отсутствующие в файле карты инициализируются пустыми.
func LoadSnapshotFromFile(filePath string) (models.Snapshot, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return models.Snapshot{}, err
	}
	snap := models.NewSnapshot("")
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to decode snapshot %s: %w", filePath, err)
	}
	if snap.Counters == nil {
		snap.Counters = make(map[string]int64)
	}
	if snap.Metrics == nil {
		snap.Metrics = make(map[string]float64)
	}
	if snap.DurationMetrics == nil {
		snap.DurationMetrics = make(map[string]time.Duration)
	}
	return snap, nil
}

// RestoreSnapshot переносит значения снимка в хранилище.
//
// Счётчики прибавляются к текущим значениям, датчики устанавливаются,
// длительности регистрируются.
func RestoreSnapshot(storage Storage, snapshot models.Snapshot) error {
	var errs []error
	for name, v := range snapshot.Counters {
		errs = append(errs, storage.IncrementCounterBy(name, v))
	}
	for name, v := range snapshot.Metrics {
		errs = append(errs, storage.SetMetric(name, v))
	}
	for name, v := range snapshot.DurationMetrics {
		errs = append(errs, storage.RecordDuration(name, v))
	}
	return errors.Join(errs...)
}

// RestoreFromFile загружает снимок из файла и восстанавливает его в хранилище.
//
// Отсутствие файла не считается ошибкой: возвращается false.
func RestoreFromFile(storage Storage, filePath string) (bool, error) {
	snap, err := LoadSnapshotFromFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, RestoreSnapshot(storage, snap)
}
