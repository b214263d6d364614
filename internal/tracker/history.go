package tracker

// history — FIFO-очередь значений одной серии.
//
// Не потокобезопасна: все вызовы выполняются под мьютексом серии,
// поэтому обрезка не может пропустить или удалить лишний элемент.
type history[T any] struct {
	items []T
}

func (h *history[T]) push(v T) {
	h.items = append(h.items, v)
}

// trim удаляет самые старые элементы, пока длина очереди больше limit.
//
// Возвращает количество удалённых элементов. Пустая очередь — не ошибка.
func (h *history[T]) trim(limit int) int {
	if limit < 0 {
		limit = 0
	}
	n := len(h.items) - limit
	if n <= 0 {
		return 0
	}
	clear(h.items[:n])
	h.items = h.items[n:]
	return n
}

func (h *history[T]) len() int {
	return len(h.items)
}

// values возвращает копию очереди, от старых к новым.
func (h *history[T]) values() []T {
	out := make([]T, len(h.items))
	copy(out, h.items)
	return out
}
