package models

import "context"

// SnapshotObserver интерфейс получателя снимков сэмплера.
type SnapshotObserver interface {
	OnSnapshot(ctx context.Context, snapshot Snapshot) error
}

// SnapshotSubject интерфейс субъекта, рассылающего снимки наблюдателям.
type SnapshotSubject interface {
	Attach(observer SnapshotObserver)
	Detach(observer SnapshotObserver)
	Notify(ctx context.Context, snapshot Snapshot) error
}

// SnapshotObserverFunc позволяет использовать функцию как SnapshotObserver.
type SnapshotObserverFunc func(ctx context.Context, snapshot Snapshot) error

// OnSnapshot вызывает f(ctx, snapshot).
func (f SnapshotObserverFunc) OnSnapshot(ctx context.Context, snapshot Snapshot) error {
	return f(ctx, snapshot)
}
