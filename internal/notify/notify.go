// Package notify - поверхность уведомлений: тосты success/error и сигналы
// обновления списков, разосланные подписчикам (SSE).
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	Success Type = "success"
	Info    Type = "info"
	Warning Type = "warning"
	Error   Type = "error"
)

// DefaultDuration - сколько тост висит на экране.
const DefaultDuration = 4500 * time.Millisecond

// Config - необязательные параметры тоста.
type Config struct {
	Duration  time.Duration
	Placement string
}

type Notification struct {
	ID          string        `json:"id"`
	Type        Type          `json:"type"`
	Message     string        `json:"message"`
	Description string        `json:"description,omitempty"`
	Duration    time.Duration `json:"duration"`
	Placement   string        `json:"placement"`
	At          time.Time     `json:"at"`
}

// Event - то, что уходит подписчикам: тост или сигнал "перечитай список".
type Event struct {
	Kind         string        `json:"kind"` // "toast" | "refresh"
	Notification *Notification `json:"notification,omitempty"`
	Screen       string        `json:"screen,omitempty"`
	Status       string        `json:"status,omitempty"`
}

const (
	KindToast   = "toast"
	KindRefresh = "refresh"
)

// Hub рассылает события всем подписчикам и хранит последние тосты.
type Hub struct {
	mu        sync.RWMutex
	listeners map[chan Event]struct{}
	recent    []Notification
	limit     int
	logger    *slog.Logger
}

// New создаёт Hub, помнящий не больше limit последних тостов.
func New(limit int, logger *slog.Logger) *Hub {
	if limit <= 0 {
		limit = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		listeners: make(map[chan Event]struct{}),
		limit:     limit,
		logger:    logger,
	}
}

// Open показывает тост. Это openNotification(type, message, description?, config?).
func (h *Hub) Open(typ Type, message, description string, cfg ...Config) Notification {
	n := Notification{
		ID:          uuid.NewString(),
		Type:        typ,
		Message:     message,
		Description: description,
		Duration:    DefaultDuration,
		Placement:   "topRight",
		At:          time.Now().UTC(),
	}
	if len(cfg) > 0 {
		if cfg[0].Duration > 0 {
			n.Duration = cfg[0].Duration
		}
		if cfg[0].Placement != "" {
			n.Placement = cfg[0].Placement
		}
	}

	h.mu.Lock()
	h.recent = append(h.recent, n)
	if len(h.recent) > h.limit {
		h.recent = append([]Notification(nil), h.recent[len(h.recent)-h.limit:]...)
	}
	h.mu.Unlock()

	if typ == Error {
		h.logger.Warn("notification", "type", typ, "message", message, "description", description)
	} else {
		h.logger.Debug("notification", "type", typ, "message", message)
	}
	h.Publish(Event{Kind: KindToast, Notification: &n})
	return n
}

// Refresh сообщает подписчикам, что список экрана надо перечитать.
func (h *Hub) Refresh(screen, status string) {
	h.Publish(Event{Kind: KindRefresh, Screen: screen, Status: status})
}

// Recent - копия последних тостов, старые первыми.
func (h *Hub) Recent() []Notification {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Notification(nil), h.recent...)
}

// Subscribe возвращает канал событий. Вызывающий обязан сделать Unsubscribe.
func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.listeners[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe удаляет подписчика и закрывает канал.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.listeners[ch]; ok {
		delete(h.listeners, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish рассылает событие, не блокируясь на переполненных подписчиках.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.listeners {
		select {
		case ch <- ev:
		default:
			h.logger.Debug("notification dropped: listener is full", "kind", ev.Kind)
		}
	}
}
