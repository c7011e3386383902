package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/backend"
	"backoffice/internal/dsl"
	"backoffice/internal/notify"
	"backoffice/internal/reference"
	"backoffice/internal/screen"
	"backoffice/internal/stub"
	"backoffice/internal/testutil"
	"backoffice/internal/upload"
)

const couponDSL = `
module promo
screen Coupon: path=/coupon key=COUPON_ID readonly_when=STATUS:FINISHED
  TITLE: input required
  STATUS: select[READY, ACTIVE, FINISHED] required
  PRIZES: options rows_path=/coupon/prize row_key=PRIZE_ID parent_key=COUPON_ID
    NAME_EN: input required
  BANNER: upload max=1
`

const categoryDSL = `
module cms
screen Category: path=/category
  NAME_EN: input required
`

type env struct {
	t       *testing.T
	srv     *Server
	url     string
	backend *backend.Client

	mu  sync.Mutex
	dsl string
}

func (e *env) setDSL(src string) {
	e.mu.Lock()
	e.dsl = src
	e.mu.Unlock()
}

func (e *env) load() (*screen.Catalog, error) {
	e.mu.Lock()
	src := e.dsl
	e.mu.Unlock()

	list, err := dsl.ParseScreens(strings.NewReader(src))
	if err != nil {
		return nil, err
	}
	screens := make(map[string]*dsl.Screen, len(list))
	for _, s := range list {
		screens[s.FQN()] = s
	}
	return screen.BuildCatalog(screens, map[string]reference.CodeList{}, e.backend)
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := testutil.NewTestLogger(t)

	backendSrv := httptest.NewServer(stub.New(stub.Config{
		Store: stub.NewMemoryStore(),
		Blob:  &stub.LocalBlobStore{Root: t.TempDir()},
		Collections: []stub.Collection{
			{Path: "/category"},
			{Path: "/coupon", Key: "COUPON_ID"},
			{Path: "/coupon/prize", Key: "PRIZE_ID"},
		},
		MaxUpload: 1 << 20,
		Logger:    logger,
	}).Handler())
	t.Cleanup(backendSrv.Close)

	cl, err := backend.New(backendSrv.URL, backend.WithLogger(logger))
	require.NoError(t, err)

	e := &env{t: t, backend: cl, dsl: couponDSL}
	srv, err := New(Config{
		Loader:        e.load,
		Backend:       cl,
		Uploader:      upload.New(cl, "", 1<<20),
		Translator:    reference.NewLocale("en", map[string]string{"common.saved": "Saved"}),
		SessionSecret: "test-secret-key-32-bytes-long!!",
		Logger:        logger,
	})
	require.NoError(t, err)
	e.srv = srv

	api := httptest.NewServer(srv.Handler())
	t.Cleanup(api.Close)
	e.url = api.URL
	return e
}

// client - отдельный оператор со своей cookie.
type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func (e *env) client() *client {
	jar, err := cookiejar.New(nil)
	require.NoError(e.t, err)
	return &client{t: e.t, base: e.url, http: &http.Client{Jar: jar, Timeout: 10 * time.Second}}
}

func (c *client) do(method, path string, body any) (int, map[string]any) {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req)
}

func (c *client) send(req *http.Request) (int, map[string]any) {
	c.t.Helper()
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)

	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(c.t, json.Unmarshal(raw, &out))
	} else if len(raw) > 0 {
		out["list"] = json.RawMessage(raw)
	}
	return resp.StatusCode, out
}

func firstError(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	errs, ok := body["errors"].([]any)
	require.True(t, ok, "no errors in %v", body)
	require.NotEmpty(t, errs)
	return errs[0].(map[string]any)
}

func TestMeta(t *testing.T) {
	e := newEnv(t)
	c := e.client()

	code, body := c.do(http.MethodGet, "/api/meta", nil)
	require.Equal(t, http.StatusOK, code)
	var items []metaScreenItem
	require.NoError(t, json.Unmarshal(body["list"].(json.RawMessage), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "promo.Coupon", items[0].FQN)
	assert.Equal(t, "/coupon", items[0].Path)
	assert.Equal(t, "COUPON_ID", items[0].Key)

	code, body = c.do(http.MethodGet, "/api/meta/coupon", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "promo.Coupon", body["fqn"])
	controls := body["controls"].([]any)
	assert.Len(t, controls, 4)

	code, body = c.do(http.MethodGet, "/api/meta/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, ErrCodeNotFound, firstError(t, body)["code"])
}

func TestDialog_CreateFlow(t *testing.T) {
	e := newEnv(t)
	c := e.client()

	code, view := c.do(http.MethodPost, "/api/screens/coupon/dialog", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, view["open"])
	assert.Equal(t, string(screen.ModeCreate), view["mode"])

	// обязательное поле пустое - на бэкенд ничего не уходит
	code, body := c.do(http.MethodPost, "/api/screens/coupon/dialog/save", map[string]any{"STATUS": "READY"})
	require.Equal(t, http.StatusBadRequest, code)
	fe := firstError(t, body)
	assert.Equal(t, "TITLE", fe["field"])
	assert.Equal(t, "required", fe["code"])

	page, err := e.backend.List(context.Background(), "/coupon", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)

	code, view = c.do(http.MethodPost, "/api/screens/coupon/dialog/save", map[string]any{"TITLE": "Spring", "STATUS": "READY"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, view["open"])

	code, body = c.do(http.MethodGet, "/api/screens/coupon/records", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["TOTAL"])

	code, body = c.do(http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, code)
	var recent []notify.Notification
	require.NoError(t, json.Unmarshal(body["list"].(json.RawMessage), &recent))
	require.NotEmpty(t, recent)
	last := recent[len(recent)-1]
	assert.Equal(t, notify.Success, last.Type)
	assert.Equal(t, "Saved", last.Message)
}

func TestDialog_ReadonlyRecord(t *testing.T) {
	e := newEnv(t)
	c := e.client()

	rec, err := e.backend.Insert(context.Background(), "/coupon", backend.Record{"TITLE": "Old", "STATUS": "FINISHED"})
	require.NoError(t, err)

	code, view := c.do(http.MethodPost, "/api/screens/promo.Coupon/dialog", map[string]any{"record": rec})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(screen.ModeView), view["mode"])
	assert.Equal(t, true, view["readonly"])

	code, body := c.do(http.MethodPost, "/api/screens/coupon/dialog/save", map[string]any{"TITLE": "New"})
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, ErrCodeReadonly, firstError(t, body)["code"])

	code, body = c.do(http.MethodPost, "/api/screens/coupon/dialog/delete", nil)
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, ErrCodeReadonly, firstError(t, body)["code"])

	code, view = c.do(http.MethodPost, "/api/screens/coupon/dialog/close", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, view["open"])
}

func TestDialog_EditAndDelete(t *testing.T) {
	e := newEnv(t)
	c := e.client()
	ctx := context.Background()

	rec, err := e.backend.Insert(ctx, "/coupon", backend.Record{"TITLE": "Spring", "STATUS": "READY"})
	require.NoError(t, err)
	id := rec["COUPON_ID"].(string)

	code, view := c.do(http.MethodPost, "/api/screens/coupon/dialog", map[string]any{"record": rec})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(screen.ModeEdit), view["mode"])

	code, _ = c.do(http.MethodPost, "/api/screens/coupon/dialog/save", map[string]any{"TITLE": "Summer"})
	require.Equal(t, http.StatusOK, code)
	got, err := e.backend.Get(ctx, "/coupon", id)
	require.NoError(t, err)
	assert.Equal(t, "Summer", got["TITLE"])

	// закрытый диалог удалять нечего
	code, body := c.do(http.MethodPost, "/api/screens/coupon/dialog/delete", nil)
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, ErrCodeNotOpen, firstError(t, body)["code"])

	code, _ = c.do(http.MethodPost, "/api/screens/coupon/dialog", map[string]any{"record": got})
	require.Equal(t, http.StatusOK, code)
	code, view = c.do(http.MethodPost, "/api/screens/coupon/dialog/delete", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, view["open"])

	_, err = e.backend.Get(ctx, "/coupon", id)
	var re *backend.ResultError
	require.ErrorAs(t, err, &re)
}

func TestDialog_SessionsIsolated(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.client(), e.client()

	code, _ := alice.do(http.MethodPost, "/api/screens/coupon/dialog", nil)
	require.Equal(t, http.StatusOK, code)

	_, view := alice.do(http.MethodGet, "/api/screens/coupon/dialog", nil)
	assert.Equal(t, true, view["open"])
	_, view = bob.do(http.MethodGet, "/api/screens/coupon/dialog", nil)
	assert.Equal(t, false, view["open"])

	e.srv.mu.Lock()
	assert.Len(t, e.srv.sessions, 2)
	e.srv.mu.Unlock()
}

func TestSessionCookie(t *testing.T) {
	t.Run("plain http keeps one workspace", func(t *testing.T) {
		e := newEnv(t)
		c := e.client()

		req, err := http.NewRequest(http.MethodGet, e.url+"/api/meta", nil)
		require.NoError(t, err)
		resp, err := c.http.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		cookie := resp.Header.Get("Set-Cookie")
		require.NotEmpty(t, cookie)
		assert.Contains(t, cookie, "HttpOnly")
		assert.NotContains(t, cookie, "Secure")

		c.do(http.MethodGet, "/api/meta", nil)
		c.do(http.MethodGet, "/api/meta", nil)

		e.srv.mu.Lock()
		assert.Len(t, e.srv.sessions, 1)
		e.srv.mu.Unlock()
	})

	t.Run("secure behind https", func(t *testing.T) {
		e := newEnv(t)
		srv, err := New(Config{
			Loader:        e.load,
			Backend:       e.backend,
			SessionSecret: "test-secret-key-32-bytes-long!!",
			SecureCookie:  true,
			Logger:        testutil.NewTestLogger(t),
		})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/meta", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Set-Cookie"), "Secure")
	})
}

func TestDialog_Errors(t *testing.T) {
	e := newEnv(t)
	c := e.client()

	code, body := c.do(http.MethodGet, "/api/screens/missing/dialog", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, ErrCodeNotFound, firstError(t, body)["code"])

	req, err := http.NewRequest(http.MethodPost, e.url+"/api/screens/coupon/dialog", strings.NewReader("{broken"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	code, body = c.send(req)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ErrCodeBadRequest, firstError(t, body)["code"])

	code, _ = c.do(http.MethodPost, "/api/screens/coupon/dialog", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = c.do(http.MethodDelete, "/api/screens/coupon/dialog/rows/PRIZES/x", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = c.do(http.MethodPost, "/api/screens/coupon/dialog/rows/TITLE", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = c.do(http.MethodPost, "/api/screens/coupon/dialog/rows/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRows_SavedThroughBackend(t *testing.T) {
	e := newEnv(t)
	c := e.client()
	ctx := context.Background()

	rec, err := e.backend.Insert(ctx, "/coupon", backend.Record{"TITLE": "Spring", "STATUS": "READY"})
	require.NoError(t, err)
	id := rec["COUPON_ID"].(string)

	code, _ := c.do(http.MethodPost, "/api/screens/coupon/dialog", map[string]any{"record": rec})
	require.Equal(t, http.StatusOK, code)

	code, body := c.do(http.MethodPost, "/api/screens/coupon/dialog/rows/PRIZES", nil)
	require.Equal(t, http.StatusCreated, code)
	row := body["row"].(map[string]any)
	assert.NotEmpty(t, row["_key"])

	// невалидная строка
	code, body = c.do(http.MethodPut, "/api/screens/coupon/dialog/rows/PRIZES/0", map[string]any{})
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "PRIZES.0.NAME_EN", firstError(t, body)["field"])

	code, _ = c.do(http.MethodPut, "/api/screens/coupon/dialog/rows/PRIZES/0", map[string]any{"NAME_EN": "Cup"})
	require.Equal(t, http.StatusOK, code)

	page, err := e.backend.List(ctx, "/coupon/prize", nil)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "Cup", page.List[0]["NAME_EN"])
	assert.Equal(t, id, page.List[0]["COUPON_ID"])

	code, view := c.do(http.MethodDelete, "/api/screens/coupon/dialog/rows/PRIZES/0", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, view["open"])

	page, err = e.backend.List(ctx, "/coupon/prize", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}

func multipartFile(t *testing.T, url, name, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploads(t *testing.T) {
	e := newEnv(t)
	c := e.client()

	code, _ := c.do(http.MethodPost, "/api/screens/coupon/dialog", nil)
	require.Equal(t, http.StatusOK, code)

	code, body := c.send(multipartFile(t, e.url+"/api/screens/coupon/dialog/files/BANNER", "banner.png", "png-bytes"))
	require.Equal(t, http.StatusOK, code, "%v", body)
	files := body["files"].([]any)
	require.Len(t, files, 1)
	fileURL := files[0].(string)
	assert.Contains(t, fileURL, "/blob/")

	resp, err := http.Get(fileURL)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "png-bytes", string(raw))

	// поле на один файл: второй заменяет первый
	code, body = c.send(multipartFile(t, e.url+"/api/screens/coupon/dialog/files/BANNER", "second.png", "other"))
	require.Equal(t, http.StatusOK, code)
	files = body["files"].([]any)
	require.Len(t, files, 1)
	assert.NotEqual(t, fileURL, files[0])

	code, _ = c.send(multipartFile(t, e.url+"/api/screens/coupon/dialog/files/TITLE", "a.png", "x"))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = c.send(multipartFile(t, e.url+"/api/screens/coupon/dialog/files/BANNER", "empty.png", ""))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = c.do(http.MethodDelete, "/api/screens/coupon/dialog/files/BANNER/3", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = c.do(http.MethodDelete, "/api/screens/coupon/dialog/files/BANNER/0", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["files"])
}

func TestAdminReload(t *testing.T) {
	e := newEnv(t)
	c := e.client()

	e.setDSL(couponDSL + "  BROKEN: slider\n")
	code, body := c.do(http.MethodPost, "/api/admin/reload", nil)
	require.Equal(t, http.StatusBadRequest, code)
	issues := body["issues"].([]any)
	require.NotEmpty(t, issues)
	assert.Equal(t, "unknown_type", issues[0].(map[string]any)["code"])

	// каталог не поменялся
	assert.Equal(t, 1, e.srv.Catalog().Len())

	e.setDSL(couponDSL + categoryDSL)
	code, body = c.do(http.MethodPost, "/api/admin/reload", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["screens"])

	code, _ = c.do(http.MethodGet, "/api/meta/cms.Category", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestNotificationStream(t *testing.T) {
	e := newEnv(t)
	c := e.client()

	// первый запрос заводит сессию
	code, _ := c.do(http.MethodGet, "/api/meta", nil)
	require.Equal(t, http.StatusOK, code)
	e.srv.mu.Lock()
	var sn *session
	for _, s := range e.srv.sessions {
		sn = s
	}
	e.srv.mu.Unlock()
	require.NotNil(t, sn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url+"/api/notifications/stream", nil)
	require.NoError(t, err)

	var got atomic.Value
	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := c.http.Do(req)
		if err != nil {
			return
		}
		defer resp.Body.Close()
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, "event:") {
				got.Store(strings.TrimPrefix(line, "event:"))
				return
			}
		}
	}()

	// подписка появляется не сразу: шлём, пока не дойдёт
	require.Eventually(t, func() bool {
		sn.hub.Open(notify.Info, "hello", "")
		return got.Load() != nil
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, notify.KindToast, got.Load())
	cancel()
	<-done
}

func TestRefreshBroadcast(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.client(), e.client()
	alice.do(http.MethodGet, "/api/meta", nil)
	bob.do(http.MethodGet, "/api/meta", nil)

	e.srv.mu.Lock()
	var chans []chan notify.Event
	var hubs []*notify.Hub
	for _, s := range e.srv.sessions {
		chans = append(chans, s.hub.Subscribe())
		hubs = append(hubs, s.hub)
	}
	e.srv.mu.Unlock()
	require.Len(t, chans, 2)
	defer func() {
		for i, ch := range chans {
			hubs[i].Unsubscribe(ch)
		}
	}()

	alice.do(http.MethodPost, "/api/screens/coupon/dialog", nil)
	alice.do(http.MethodPost, "/api/screens/coupon/dialog/close", nil)

	for _, ch := range chans {
		select {
		case ev := <-ch:
			assert.Equal(t, notify.KindRefresh, ev.Kind)
			assert.Equal(t, "promo.Coupon", ev.Screen)
			assert.Equal(t, string(screen.StatusCancelled), ev.Status)
		case <-time.After(2 * time.Second):
			t.Fatal("no refresh event")
		}
	}
}

func TestEvictBefore(t *testing.T) {
	e := newEnv(t)
	c := e.client()
	c.do(http.MethodGet, "/api/meta", nil)

	assert.Equal(t, 0, e.srv.evictBefore(time.Now().Add(-time.Hour)))
	assert.Equal(t, 1, e.srv.evictBefore(time.Now().Add(time.Second)))

	e.srv.mu.Lock()
	assert.Empty(t, e.srv.sessions)
	e.srv.mu.Unlock()
}
