package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"

	"backoffice/internal/notify"
	"backoffice/internal/screen"
)

const (
	sessionName  = "backoffice"
	workspaceKey = "workspace"
	ctxSession   = "backoffice.session"
)

func randomSecret() string {
	return string(securecookie.GenerateRandomKey(32))
}

// withSession привязывает запрос к рабочему месту оператора (uuid в подписанной cookie).
func (s *Server) withSession(c *gin.Context) {
	// ошибка декодирования (сменился секрет) - просто новая сессия
	sess, err := s.sessionStore.Get(c.Request, sessionName)
	if err != nil {
		s.logger.Debug("session cookie rejected, starting a new one", "error", err)
	}
	id, _ := sess.Values[workspaceKey].(string)
	if _, perr := uuid.Parse(id); perr != nil {
		id = uuid.NewString()
		sess.Values[workspaceKey] = id
		if err := sess.Save(c.Request, c.Writer); err != nil {
			s.logger.Error("session save failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody("session", "", "cannot start session"))
			return
		}
	}

	sn := s.session(id)
	sn.ws.Touch()
	c.Set(ctxSession, sn)
	c.Next()
}

func currentSession(c *gin.Context) *session {
	return c.MustGet(ctxSession).(*session)
}

// session возвращает (создаёт) рабочее место по id.
func (s *Server) session(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sn, ok := s.sessions[id]; ok {
		return sn
	}

	logger := s.logger.With("workspace", id)
	hub := notify.New(50, logger)
	deps := screen.Deps{
		Backend:    s.cfg.Backend,
		Notifier:   hub,
		Translator: s.cfg.Translator,
		Logger:     logger,
		OnClose: func(name string, status screen.Status) {
			// списки этой сущности перечитывают все операторы
			s.refresh(name, string(status))
		},
	}
	sn := &session{
		ws:  screen.NewWorkspace(id, s.Catalog, deps),
		hub: hub,
	}
	s.sessions[id] = sn
	logger.Debug("workspace created")
	return sn
}

// refresh рассылает сигнал "перечитай список" во все рабочие места.
func (s *Server) refresh(name, status string) {
	s.mu.Lock()
	hubs := make([]*notify.Hub, 0, len(s.sessions))
	for _, sn := range s.sessions {
		hubs = append(hubs, sn.hub)
	}
	s.mu.Unlock()

	for _, h := range hubs {
		h.Refresh(name, status)
	}
	s.logger.Debug("refresh broadcast", slog.String("screen", name), slog.String("status", status), slog.Int("sessions", len(hubs)))
}
