package stub

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"backoffice/internal/backend"
	"backoffice/internal/form"
	"backoffice/internal/httplog"
	"backoffice/internal/screen"
)

// Collection - REST-путь коллекции и имя поля ключа в записях.
type Collection struct {
	Path string
	Key  string
}

// CollectionsFromCatalog собирает коллекции экранов и дочерних строк (rows_path).
func CollectionsFromCatalog(cat *screen.Catalog) []Collection {
	seen := map[string]bool{}
	var out []Collection
	add := func(p, key string) {
		p = "/" + strings.Trim(p, "/")
		if seen[p] {
			return
		}
		seen[p] = true
		if key == "" {
			key = "ID"
		}
		out = append(out, Collection{Path: p, Key: key})
	}
	var walk func(ds []form.Descriptor)
	walk = func(ds []form.Descriptor) {
		for _, d := range ds {
			k, ok := d.Kind.(form.Options)
			if !ok {
				continue
			}
			if p := d.Attrs["rows_path"]; p != "" {
				add(p, d.Attrs["row_key"])
			}
			walk(k.Fields)
		}
	}
	for _, def := range cat.Definitions() {
		add(def.Path, def.Key)
		walk(def.Fields)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

type Config struct {
	Store       Store
	Blob        BlobStore
	Collections []Collection
	// Token - ожидаемый bearer; пустой - без авторизации
	Token string
	// SignKey подписывает presigned URL
	SignKey []byte
	// PublicURL - база ссылок на файлы; пусто - берётся из запроса
	PublicURL  string
	MaxUpload  int64
	PresignTTL time.Duration
	Logger     *slog.Logger
}

type Server struct {
	cfg         Config
	collections map[string]Collection
	logger      *slog.Logger
	now         func() time.Time
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.SignKey) == 0 {
		// ключ на время жизни процесса: ссылки не переживают рестарт
		cfg.SignKey = []byte(ulid.Make().String())
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	s := &Server{
		cfg:         cfg,
		collections: make(map[string]Collection, len(cfg.Collections)),
		logger:      cfg.Logger,
		now:         time.Now,
	}
	for _, c := range cfg.Collections {
		p := "/" + strings.Trim(c.Path, "/")
		if c.Key == "" {
			c.Key = "ID"
		}
		c.Path = p
		s.collections[p] = c
	}
	return s
}

// Handler - gin-роутер бэкенда. Пути коллекций заранее не известны роутеру,
// поэтому записи обслуживаются из NoRoute.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), httplog.Middleware(s.logger))

	r.POST("/file/presigned", s.auth, s.presign)
	r.PUT("/blob/*key", s.putBlob)
	r.GET("/blob/*key", s.getBlob)
	r.NoRoute(s.auth, s.records)
	return r
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"RESULT_CODE": backend.ResultOK, "RESULT_DATA": data})
}

func fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"RESULT_CODE": code, "RESULT_MSG": msg})
}

func (s *Server) auth(c *gin.Context) {
	if s.cfg.Token == "" {
		return
	}
	got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if got != s.cfg.Token {
		fail(c, http.StatusUnauthorized, "E401", "invalid token")
	}
}

// resolve: "/coupon" → коллекция; "/coupon/ID" → запись; "/coupon/ID/_restore" → действие.
func (s *Server) resolve(p string) (col Collection, id, action string, found bool) {
	if col, found = s.collections[p]; found {
		return col, "", "", true
	}
	dir, last := path.Split(p)
	dir = strings.TrimSuffix(dir, "/")
	if col, found = s.collections[dir]; found {
		return col, last, "", true
	}
	if strings.HasPrefix(last, "_") {
		pdir, pid := path.Split(dir)
		if col, found = s.collections[strings.TrimSuffix(pdir, "/")]; found && pid != "" {
			return col, pid, last, true
		}
	}
	return Collection{}, "", "", false
}

func (s *Server) records(c *gin.Context) {
	p := "/" + strings.Trim(c.Request.URL.Path, "/")
	col, id, action, found := s.resolve(p)
	if !found {
		fail(c, http.StatusNotFound, "E404", "unknown path "+p)
		return
	}
	method := c.Request.Method
	switch {
	case action == "_restore" && method == http.MethodPost:
		s.restore(c, col, id)
	case action != "":
		fail(c, http.StatusNotFound, "E404", "unknown action "+action)
	case id == "" && method == http.MethodGet:
		s.list(c, col)
	case id == "" && method == http.MethodPost:
		s.create(c, col)
	case id != "" && method == http.MethodGet:
		s.get(c, col, id)
	case id != "" && (method == http.MethodPut || method == http.MethodPatch):
		s.update(c, col, id, method == http.MethodPatch)
	case id != "" && method == http.MethodDelete:
		s.delete(c, col, id)
	default:
		fail(c, http.StatusMethodNotAllowed, "E405", method+" is not allowed on "+p)
	}
}

// flatten - запись в виде, в котором её отдаёт бэкенд.
func flatten(col Collection, rec *Record) map[string]any {
	out := make(map[string]any, len(rec.Data)+4)
	for k, v := range rec.Data {
		out[k] = v
	}
	// служебные поля перекрывают пользовательские
	out[col.Key] = rec.ID
	out["VERSION"] = rec.Version
	out["CREATED_AT"] = rec.CreatedAt.Format(time.RFC3339)
	out["UPDATED_AT"] = rec.UpdatedAt.Format(time.RFC3339)
	return out
}

// stripSystem убирает служебные поля: форма присылает запись целиком.
func stripSystem(col Collection, obj map[string]any) {
	for _, k := range []string{col.Key, "VERSION", "CREATED_AT", "UPDATED_AT"} {
		delete(obj, k)
	}
}

// expectedVersion: If-Match: "3" или VERSION в теле.
func expectedVersion(c *gin.Context, body map[string]any) int64 {
	if h := strings.Trim(strings.TrimSpace(c.GetHeader("If-Match")), `"`); h != "" {
		if n, err := strconv.ParseInt(h, 10, 64); err == nil {
			return n
		}
	}
	switch v := body["VERSION"].(type) {
	case float64:
		return int64(v)
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func (s *Server) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		fail(c, http.StatusNotFound, "E404", "record not found")
	case errors.Is(err, ErrVersionConflict):
		fail(c, http.StatusConflict, "E409", "record was changed by someone else")
	case errors.Is(err, context.Canceled):
		fail(c, 499, "E499", "request cancelled")
	default:
		s.logger.Error("store failure", "error", err)
		fail(c, http.StatusInternalServerError, "E500", "internal error")
	}
}

func (s *Server) list(c *gin.Context, col Collection) {
	recs, err := s.cfg.Store.List(c.Request.Context(), col.Path)
	if err != nil {
		s.storeError(c, err)
		return
	}
	rows := make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, flatten(col, r))
	}
	// по умолчанию - в порядке создания (ULID сортируется по времени)
	sort.SliceStable(rows, func(i, j int) bool { return toString(rows[i][col.Key]) < toString(rows[j][col.Key]) })

	page, total := ParseListParams(c.Request.URL.Query()).Apply(rows)
	ok(c, gin.H{"LIST": page, "TOTAL": total})
}

func (s *Server) get(c *gin.Context, col Collection, id string) {
	rec, err := s.cfg.Store.Get(c.Request.Context(), col.Path, id)
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.Header("ETag", `"`+strconv.FormatInt(rec.Version, 10)+`"`)
	ok(c, flatten(col, rec))
}

func (s *Server) bind(c *gin.Context) (map[string]any, bool) {
	var obj map[string]any
	if err := c.ShouldBindJSON(&obj); err != nil || obj == nil {
		fail(c, http.StatusBadRequest, "E400", "invalid JSON")
		return nil, false
	}
	return obj, true
}

func (s *Server) create(c *gin.Context, col Collection) {
	obj, good := s.bind(c)
	if !good {
		return
	}
	stripSystem(col, obj)
	rec, err := s.cfg.Store.Insert(c.Request.Context(), col.Path, obj)
	if err != nil {
		s.storeError(c, err)
		return
	}
	ok(c, flatten(col, rec))
}

func (s *Server) update(c *gin.Context, col Collection, id string, partial bool) {
	obj, good := s.bind(c)
	if !good {
		return
	}
	expected := expectedVersion(c, obj)
	stripSystem(col, obj)

	ctx := c.Request.Context()
	if partial {
		cur, err := s.cfg.Store.Get(ctx, col.Path, id)
		if err != nil {
			s.storeError(c, err)
			return
		}
		for k, v := range obj {
			cur.Data[k] = v
		}
		obj = cur.Data
		if expected == 0 {
			expected = cur.Version
		}
	}
	rec, err := s.cfg.Store.Update(ctx, col.Path, id, obj, expected)
	if err != nil {
		s.storeError(c, err)
		return
	}
	ok(c, flatten(col, rec))
}

func (s *Server) delete(c *gin.Context, col Collection, id string) {
	if err := s.cfg.Store.Delete(c.Request.Context(), col.Path, id); err != nil {
		s.storeError(c, err)
		return
	}
	ok(c, nil)
}

func (s *Server) restore(c *gin.Context, col Collection, id string) {
	rec, err := s.cfg.Store.Restore(c.Request.Context(), col.Path, id)
	if err != nil {
		s.storeError(c, err)
		return
	}
	ok(c, flatten(col, rec))
}
