package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	models "github.com/RoGogDBD/metrics-tracker/internal/model"
	"go.uber.org/zap"
)

// FileSnapshotObserver дописывает каждый снимок строкой JSON в журнал.
//
// Поля:
//   - filePath: путь к файлу журнала
//   - mu: мьютекс для синхронизации доступа к файлу
type FileSnapshotObserver struct {
	filePath string
	mu       sync.Mutex
}

// NewFileSnapshotObserver создаёт наблюдателя и каталог для журнала.
//
// filePath — путь к файлу журнала.
func NewFileSnapshotObserver(filePath string) (*FileSnapshotObserver, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	return &FileSnapshotObserver{filePath: filePath}, nil
}

// OnSnapshot записывает снимок в конец журнала.
func (f *FileSnapshotObserver) OnSnapshot(_ context.Context, snapshot models.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// StorageFileObserver перезаписывает файл хранилища последним снимком.
//
// Файл используется для восстановления значений при следующем запуске.
type StorageFileObserver struct {
	filePath string
	mu       sync.Mutex
}

// NewStorageFileObserver создаёт наблюдателя для файла хранилища.
func NewStorageFileObserver(filePath string) *StorageFileObserver {
	return &StorageFileObserver{filePath: filePath}
}

// OnSnapshot сохраняет снимок через SaveSnapshotToFile.
func (s *StorageFileObserver) OnSnapshot(_ context.Context, snapshot models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SaveSnapshotToFile(snapshot, s.filePath)
}

// LogObserver пишет краткую сводку снимка в лог.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver создаёт LogObserver. nil логгер заменяется на no-op.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogObserver{logger: logger}
}

// OnSnapshot логирует номер прохода и размеры снимка.
func (l *LogObserver) OnSnapshot(_ context.Context, snapshot models.Snapshot) error {
	l.logger.Info("snapshot sampled",
		zap.String("id", snapshot.ID),
		zap.Uint64("sequence", snapshot.Sequence),
		zap.String("source", snapshot.Source),
		zap.Time("timestamp", snapshot.Timestamp),
		zap.Int("counters", len(snapshot.Counters)),
		zap.Int("metrics", len(snapshot.Metrics)),
		zap.Int("durations", len(snapshot.DurationMetrics)),
	)
	return nil
}

// ReportManager управляет списком наблюдателей и рассылает им снимки.
//
// Сам реализует models.SnapshotObserver, поэтому передаётся сэмплеру как единый получатель.
//
// Поля:
//   - observers: список наблюдателей
//   - mu: RW-мьютекс для синхронизации доступа к списку наблюдателей
//   - logger: логгер ошибок наблюдателей
type ReportManager struct {
	observers []models.SnapshotObserver
	mu        sync.RWMutex
	logger    *zap.Logger
}

var _ models.SnapshotSubject = (*ReportManager)(nil)

// NewReportManager создаёт пустой ReportManager.
//
// logger — логгер, может быть nil.
func NewReportManager(logger *zap.Logger) *ReportManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportManager{
		observers: make([]models.SnapshotObserver, 0),
		logger:    logger,
	}
}

// Attach добавляет наблюдателя к списку.
func (r *ReportManager) Attach(observer models.SnapshotObserver) {
	if observer == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, observer)
}

// Detach удаляет наблюдателя из списка.
//
// Наблюдатели несравнимых типов (например, SnapshotObserverFunc) удалить нельзя.
func (r *ReportManager) Detach(observer models.SnapshotObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, obs := range r.observers {
		if sameObserver(obs, observer) {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			break
		}
	}
}

func sameObserver(a, b models.SnapshotObserver) bool {
	if a == nil || b == nil {
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// Notify последовательно передаёт снимок всем наблюдателям.
//
// Ошибка или паника одного наблюдателя не мешает остальным.
// Возвращает объединённую ошибку всех наблюдателей или nil.
func (r *ReportManager) Notify(ctx context.Context, snapshot models.Snapshot) error {
	r.mu.RLock()
	observers := make([]models.SnapshotObserver, len(r.observers))
	copy(observers, r.observers)
	r.mu.RUnlock()

	var errs []error
	for _, observer := range observers {
		if err := r.deliver(ctx, observer, snapshot); err != nil {
			r.logger.Warn("snapshot observer failed",
				zap.String("observer", fmt.Sprintf("%T", observer)),
				zap.Uint64("sequence", snapshot.Sequence),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *ReportManager) deliver(ctx context.Context, observer models.SnapshotObserver, snapshot models.Snapshot) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("observer %T panicked: %v", observer, rec)
		}
	}()
	return observer.OnSnapshot(ctx, snapshot)
}

// OnSnapshot позволяет использовать ReportManager как наблюдателя.
func (r *ReportManager) OnSnapshot(ctx context.Context, snapshot models.Snapshot) error {
	return r.Notify(ctx, snapshot)
}

// HasObservers проверяет, есть ли подключённые наблюдатели.
func (r *ReportManager) HasObservers() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observers) > 0
}
