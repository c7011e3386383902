// Package dialog хранит состояние drawer/modal одной сущности: открыт ли он,
// какая запись редактируется и только ли на просмотр.
package dialog

import "sync"

// State - снимок состояния диалога. Item == nil означает режим создания.
type State[T any] struct {
	Open     bool
	Item     *T
	Readonly bool
	// Gen растёт при каждом Open; по нему отбрасываются ответы, пришедшие уже
	// для другого открытия.
	Gen uint64
}

// IsCreate - диалог открыт без записи.
func (s State[T]) IsCreate() bool { return s.Item == nil }

// Store - одно общее состояние диалога на тип сущности (не стек).
type Store[T any] struct {
	mu        sync.RWMutex
	state     State[T]
	listeners map[chan State[T]]struct{}
}

// New создаёт store; вызывается один раз на тип сущности.
func New[T any]() *Store[T] {
	return &Store[T]{listeners: make(map[chan State[T]]struct{})}
}

// State возвращает текущий снимок.
func (s *Store[T]) State() State[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Open открывает диалог. Повторный Open заменяет item, а не ставит в очередь.
func (s *Store[T]) Open(item *T, readonly bool) {
	s.mu.Lock()
	s.state.Open = true
	s.state.Item = item
	s.state.Readonly = readonly
	s.state.Gen++
	st := s.state
	s.mu.Unlock()
	s.broadcast(st)
}

// Close закрывает диалог. Item не сбрасывается: анимация закрытия ещё
// может ссылаться на последнюю запись.
func (s *Store[T]) Close() {
	s.mu.Lock()
	s.state.Open = false
	st := s.state
	s.mu.Unlock()
	s.broadcast(st)
}

// Reset - явный сброс item/readonly. Gen сохраняется.
func (s *Store[T]) Reset() {
	s.mu.Lock()
	s.state = State[T]{Gen: s.state.Gen}
	st := s.state
	s.mu.Unlock()
	s.broadcast(st)
}

// Update меняет текущий item на месте, не трогая Open/Gen.
// Если item == nil, fn не вызывается и возвращается false.
func (s *Store[T]) Update(fn func(item *T)) bool {
	s.mu.Lock()
	if s.state.Item == nil {
		s.mu.Unlock()
		return false
	}
	fn(s.state.Item)
	st := s.state
	s.mu.Unlock()
	s.broadcast(st)
	return true
}

// Subscribe возвращает канал изменений и функцию отписки.
// Канал буферизован на одно значение; медленный подписчик пропускает промежуточные состояния.
func (s *Store[T]) Subscribe() (<-chan State[T], func()) {
	ch := make(chan State[T], 1)
	s.mu.Lock()
	s.listeners[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Store[T]) broadcast(st State[T]) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.listeners {
		select {
		case ch <- st:
		default:
			// выкидываем устаревшее значение и кладём свежее
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}
