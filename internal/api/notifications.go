package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const keepAliveEvery = 25 * time.Second

func (s *Server) recentNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, currentSession(c).hub.Recent())
}

// streamNotifications - SSE: тосты и сигналы обновления списков рабочего места.
func (s *Server) streamNotifications(c *gin.Context) {
	hub := currentSession(c).hub
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(keepAliveEvery)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Kind, ev)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}
