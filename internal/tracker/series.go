package tracker

import (
	"sort"
	"sync"
)

// series хранит текущее значение и историю одной именованной серии.
type series[T any] struct {
	mu      sync.Mutex
	value   T
	history history[T]
}

func (e *series[T]) update(fn func(T) T, limit int) T {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value = fn(e.value)
	e.history.trim(limit)
	return e.value
}

func (e *series[T]) load() T {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// seriesStore — хранилище одной категории серий.
//
// Карта защищена RWMutex, каждое значение — собственным мьютексом серии.
// Мутации разных серий идут параллельно, мутации одной серии сериализуются.
type seriesStore[T any] struct {
	mu     sync.RWMutex
	series map[string]*series[T]
	// keep решает, попадает ли текущее значение в историю при сэмплинге.
	keep func(T) bool
}

func newSeriesStore[T any](keep func(T) bool) *seriesStore[T] {
	return &seriesStore[T]{
		series: make(map[string]*series[T]),
		keep:   keep,
	}
}

func (s *seriesStore[T]) lookup(name string) (*series[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.series[name]
	return e, ok
}

// ensure регистрирует серию с нулевым значением, если её ещё нет.
func (s *seriesStore[T]) ensure(name string) {
	if _, ok := s.lookup(name); ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.series[name]; !ok {
		s.series[name] = &series[T]{}
	}
}

// apply выполняет read-modify-write текущего значения серии.
//
// Новая серия вставляется в карту уже с результатом fn, поэтому
// конкурентный читатель не увидит промежуточный ноль.
func (s *seriesStore[T]) apply(name string, fn func(T) T, limit int) T {
	if e, ok := s.lookup(name); ok {
		return e.update(fn, limit)
	}

	s.mu.Lock()
	e, ok := s.series[name]
	if !ok {
		var zero T
		v := fn(zero)
		s.series[name] = &series[T]{value: v}
		s.mu.Unlock()
		return v
	}
	s.mu.Unlock()
	return e.update(fn, limit)
}

func (s *seriesStore[T]) get(name string) (T, bool) {
	e, ok := s.lookup(name)
	if !ok {
		var zero T
		return zero, false
	}
	return e.load(), true
}

func (s *seriesStore[T]) history(name string) ([]T, bool) {
	e, ok := s.lookup(name)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.values(), true
}

type namedSeries[T any] struct {
	name string
	s    *series[T]
}

// entries возвращает серии, отсортированные по имени.
// Блокировка карты не удерживается во время работы с самими сериями.
func (s *seriesStore[T]) entries() []namedSeries[T] {
	s.mu.RLock()
	out := make([]namedSeries[T], 0, len(s.series))
	for name, e := range s.series {
		out = append(out, namedSeries[T]{name: name, s: e})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].name < out[j].name
	})
	return out
}

func (s *seriesStore[T]) names() []string {
	entries := s.entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.name
	}
	return out
}

// each передаёт в fn текущее значение каждой серии, не изменяя историю.
func (s *seriesStore[T]) each(fn func(name string, v T)) {
	for _, e := range s.entries() {
		fn(e.name, e.s.load())
	}
}

// reading — значение серии, прочитанное первой фазой прохода сэмплера.
type reading[T any] struct {
	name string
	s    *series[T]
	v    T
}

// read читает текущие значения всех серий в порядке имён, не изменяя историю.
func (s *seriesStore[T]) read() []reading[T] {
	entries := s.entries()
	out := make([]reading[T], len(entries))
	for i, e := range entries {
		out[i] = reading[T]{name: e.name, s: e.s, v: e.s.load()}
	}
	return out
}

// commit добавляет прочитанные значения в истории и обрезает каждую историю до limit.
//
// Добавление и обрезка одной серии выполняются под её мьютексом как единое действие.
func (s *seriesStore[T]) commit(readings []reading[T], limit int) {
	for _, r := range readings {
		r.s.mu.Lock()
		if s.keep == nil || s.keep(r.v) {
			r.s.history.push(r.v)
		}
		r.s.history.trim(limit)
		r.s.mu.Unlock()
	}
}
