package screen

import (
	"fmt"
	"sync"
	"time"

	"backoffice/internal/backend"
	"backoffice/internal/dialog"
)

// Workspace - рабочее место одного оператора: свой реестр диалогов
// (по одному store на сущность) и экраны поверх него.
type Workspace struct {
	ID string

	catalog  func() *Catalog
	deps     Deps
	registry *dialog.Registry[backend.Record]

	mu       sync.Mutex
	screens  map[string]*Screen
	lastSeen time.Time
}

// NewWorkspace: catalog отдаёт актуальный каталог (он меняется при перезагрузке форм).
func NewWorkspace(id string, catalog func() *Catalog, deps Deps) *Workspace {
	return &Workspace{
		ID:       id,
		catalog:  catalog,
		deps:     deps,
		registry: dialog.NewRegistry[backend.Record](),
		screens:  make(map[string]*Screen),
		lastSeen: time.Now(),
	}
}

// Screen возвращает экран по имени, создавая его при первом обращении.
func (w *Workspace) Screen(name string) (*Screen, error) {
	def, ok := w.catalog().Resolve(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownScreen)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastSeen = time.Now()
	s, ok := w.screens[def.FQN]
	if !ok {
		s = New(def, w.registry.Store(def.FQN), w.deps)
		w.screens[def.FQN] = s
		return s, nil
	}
	if s.Definition() != def {
		s.setDefinition(def)
	}
	return s, nil
}

// OpenScreens - FQN экранов с открытым drawer'ом.
func (w *Workspace) OpenScreens() []string {
	return w.registry.OpenNames()
}

func (w *Workspace) Touch() {
	w.mu.Lock()
	w.lastSeen = time.Now()
	w.mu.Unlock()
}

func (w *Workspace) LastSeen() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}
