package dialog

import (
	"sort"
	"sync"
)

// Registry раздаёт ровно один Store на имя сущности.
// Внедряется явно (на процесс или на сессию оператора), глобальных переменных нет.
type Registry[T any] struct {
	mu     sync.Mutex
	stores map[string]*Store[T]
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{stores: make(map[string]*Store[T])}
}

// Store возвращает store сущности, создавая его при первом обращении.
func (r *Registry[T]) Store(name string) *Store[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[name]
	if !ok {
		s = New[T]()
		r.stores[name] = s
	}
	return s
}

// OpenNames - сущности с открытым диалогом, по алфавиту.
func (r *Registry[T]) OpenNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for name, s := range r.stores {
		if s.State().Open {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
