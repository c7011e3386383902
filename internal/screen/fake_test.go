package screen

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"backoffice/internal/backend"
	"backoffice/internal/dsl"
	"backoffice/internal/notify"
	"backoffice/internal/reference"
	"backoffice/internal/testutil"
)

const formsDSL = `
module cms
screen Category: path=/category
  NAME_EN: input required
  NAME_KO: input
  ORDER: inputnumber min=0

module promo
screen Coupon: path=/coupon key=COUPON_ID readonly_when=STATUS:FINISHED detail
  TITLE: input required
  STATUS: select[READY, ACTIVE, FINISHED] required
  PRIZES: options rows_path=/coupon/prize row_key=PRIZE_ID parent_key=COUPON_ID
    RANK: inputnumber required min=1
    NAME_EN: input required
  MEMO: editor hidden_when=STATUS:FINISHED
  BANNER: upload max=1 accept=image/*
  GALLERY: upload max=2
`

// fakeBackend записывает вызовы "METHOD path[/id]".
type fakeBackend struct {
	mu      sync.Mutex
	calls   []string
	bodies  []backend.Record
	records map[string]backend.Record

	getErr    error
	saveErr   error
	deleteErr error
	inserted  backend.Record

	// started/release - придержать insert/update до сигнала
	started chan struct{}
	release chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{records: map[string]backend.Record{}}
}

func (f *fakeBackend) record(call string, body backend.Record) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) LastBody() backend.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.bodies) == 0 {
		return nil
	}
	return f.bodies[len(f.bodies)-1]
}

func (f *fakeBackend) hold() {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
}

func (f *fakeBackend) List(_ context.Context, path string, q url.Values) (backend.Page, error) {
	f.record("GET "+path+"?"+q.Encode(), nil)
	if f.getErr != nil {
		return backend.Page{}, f.getErr
	}
	var list []backend.Record
	for _, r := range f.records {
		list = append(list, r)
	}
	return backend.Page{List: list, Total: len(list)}, nil
}

func (f *fakeBackend) Get(_ context.Context, path, id string) (backend.Record, error) {
	f.record("GET "+path+"/"+id, nil)
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, &backend.ResultError{Status: 404, Code: "E404", Msg: "not found"}
	}
	return rec, nil
}

func (f *fakeBackend) Insert(_ context.Context, path string, rec backend.Record) (backend.Record, error) {
	f.record("POST "+path, rec)
	f.hold()
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	out := backend.Record{}
	for k, v := range rec {
		out[k] = v
	}
	for k, v := range f.inserted {
		out[k] = v
	}
	return out, nil
}

func (f *fakeBackend) Update(_ context.Context, path, id string, rec backend.Record) (backend.Record, error) {
	f.record("PUT "+path+"/"+id, rec)
	f.hold()
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	return rec, nil
}

func (f *fakeBackend) Delete(_ context.Context, path, id string) error {
	f.record("DELETE "+path+"/"+id, nil)
	return f.deleteErr
}

var testMessages = map[string]string{
	"category.title":       "Category",
	"coupon.title":         "Coupon",
	"common.create":        "Create",
	"common.edit":          "Edit",
	"common.view":          "View",
	"common.save":          "Save",
	"common.delete":        "Delete",
	"common.close":         "Close",
	"common.saved":         "Saved",
	"common.deleted":       "Deleted",
	"common.save_failed":   "Save failed",
	"common.load_failed":   "Load failed",
	"common.delete_failed": "Delete failed",
}

func parseCatalog(t *testing.T, src string, be Backend) *Catalog {
	t.Helper()
	parsed, err := dsl.ParseScreens(strings.NewReader(src))
	require.NoError(t, err)
	screens := map[string]*dsl.Screen{}
	for _, s := range parsed {
		screens[s.FQN()] = s
	}
	cat, err := BuildCatalog(screens, nil, be)
	require.NoError(t, err)
	return cat
}

type env struct {
	be      *fakeBackend
	hub     *notify.Hub
	catalog *Catalog
	ws      *Workspace
	closed  []string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{be: newFakeBackend()}
	logger := testutil.NewTestLogger(t)
	e.hub = notify.New(20, logger)
	e.catalog = parseCatalog(t, formsDSL, e.be)
	var mu sync.Mutex
	e.ws = NewWorkspace("w1", func() *Catalog { return e.catalog }, Deps{
		Backend:    e.be,
		Notifier:   e.hub,
		Translator: reference.NewLocale("en", testMessages),
		Logger:     logger,
		OnClose: func(screen string, status Status) {
			mu.Lock()
			e.closed = append(e.closed, screen+":"+string(status))
			mu.Unlock()
		},
	})
	return e
}

func (e *env) screen(t *testing.T, name string) *Screen {
	t.Helper()
	s, err := e.ws.Screen(name)
	require.NoError(t, err)
	return s
}

func (e *env) lastToast(t *testing.T) notify.Notification {
	t.Helper()
	recent := e.hub.Recent()
	require.NotEmpty(t, recent)
	return recent[len(recent)-1]
}
