// Package api - HTTP-поверхность админки: метаданные экранов, списки,
// drawer-диалоги, строки options, загрузка файлов и поток уведомлений.
package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"backoffice/internal/httplog"
	"backoffice/internal/notify"
	"backoffice/internal/screen"
	"backoffice/internal/upload"
)

// CatalogLoader перечитывает формы и справочники (screen.LoadCatalog с привязанными путями).
type CatalogLoader func() (*screen.Catalog, error)

// Config holds configuration for the admin server.
type Config struct {
	Addr          string
	Loader        CatalogLoader
	Backend       screen.Backend
	Uploader      *upload.Uploader
	Translator    screen.Translator
	SessionSecret string
	SecureCookie  bool   // Secure у cookie сессии; включать только за HTTPS
	FormsDir      string // каталог для наблюдения; пусто - без watch
	Watch         bool
	IdleTimeout   time.Duration // рабочие места без запросов дольше - выбрасываются
	Logger        *slog.Logger
}

// Server - админка: каталог экранов, рабочие места операторов, уведомления.
type Server struct {
	cfg          Config
	logger       *slog.Logger
	sessionStore *sessions.CookieStore
	catalog      atomic.Pointer[screen.Catalog]

	mu       sync.Mutex
	sessions map[string]*session
}

// session - рабочее место оператора и его поток уведомлений.
type session struct {
	ws  *screen.Workspace
	hub *notify.Hub
}

// New загружает каталог (линт обязателен) и готовит сервер.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Loader == nil {
		return nil, errors.New("catalog loader is required")
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 12 * time.Hour
	}
	secret := cfg.SessionSecret
	if secret == "" {
		secret = randomSecret()
		cfg.Logger.Warn("session secret is not set, sessions will not survive a restart")
	}

	sessionStore := sessions.NewCookieStore([]byte(secret))
	sessionStore.MaxAge(86400 * 30) // 30 days
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.Secure = cfg.SecureCookie
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	s := &Server{
		cfg:          cfg,
		logger:       cfg.Logger,
		sessionStore: sessionStore,
		sessions:     make(map[string]*session),
	}
	cat, err := cfg.Loader()
	if err != nil {
		return nil, err
	}
	s.catalog.Store(cat)
	s.logger.Info("catalog loaded", "screens", cat.Len())
	return s, nil
}

// Catalog - текущий каталог экранов.
func (s *Server) Catalog() *screen.Catalog {
	return s.catalog.Load()
}

// Reload перечитывает каталог. При ошибках линта старый каталог остаётся.
func (s *Server) Reload() (*screen.Catalog, error) {
	cat, err := s.cfg.Loader()
	if err != nil {
		return nil, err
	}
	s.catalog.Store(cat)
	s.logger.Info("catalog reloaded", "screens", cat.Len())
	s.refresh("*", "reloaded")
	return cat, nil
}

// Handler собирает маршруты.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), httplog.Middleware(s.logger))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	api := r.Group("/api", s.withSession)
	{
		api.GET("/meta", s.metaList)
		api.GET("/meta/:screen", s.metaScreen)
		api.GET("/codes/:name", s.codeList)

		api.GET("/screens/:screen/records", s.listRecords)

		api.GET("/screens/:screen/dialog", s.getDialog)
		api.POST("/screens/:screen/dialog", s.openDialog)
		api.POST("/screens/:screen/dialog/save", s.saveDialog)
		api.POST("/screens/:screen/dialog/delete", s.deleteDialog)
		api.POST("/screens/:screen/dialog/close", s.closeDialog)

		api.POST("/screens/:screen/dialog/rows/:field", s.addRow)
		api.PUT("/screens/:screen/dialog/rows/:field/:index", s.saveRow)
		api.DELETE("/screens/:screen/dialog/rows/:field/:index", s.deleteRow)

		api.POST("/screens/:screen/dialog/files/:field", s.uploadFile)
		api.DELETE("/screens/:screen/dialog/files/:field/:index", s.removeFile)

		api.GET("/notifications", s.recentNotifications)
		api.GET("/notifications/stream", s.streamNotifications)

		api.POST("/admin/reload", s.adminReload)
	}
	return r
}

// Serve starts the admin server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting admin server", "addr", s.cfg.Addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.cfg.Watch && s.cfg.FormsDir != "" {
		eg.Go(func() error {
			return s.watchForms(egctx)
		})
	}

	eg.Go(func() error {
		s.evictIdle(egctx)
		return nil
	})

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down admin server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// watchForms перечитывает каталог при изменении *.dsl.
func (s *Server) watchForms(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watchDirRecursive(watcher, s.cfg.FormsDir); err != nil {
		s.logger.Error("failed to watch forms directory", "error", err)
	}

	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".dsl") {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
				s.logger.Debug("form changed, reloading", "file", event.Name)
				if _, err := s.Reload(); err != nil {
					s.logger.Error("reload failed, keeping previous catalog", "error", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}

func watchDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

// evictIdle раз в минуту выбрасывает заброшенные рабочие места.
func (s *Server) evictIdle(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.evictBefore(now.Add(-s.cfg.IdleTimeout))
		}
	}
}

func (s *Server) evictBefore(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.ws.LastSeen().Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	if n > 0 {
		s.logger.Debug("idle workspaces evicted", "count", n)
	}
	return n
}
