package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, status int, code string, data any, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	env := map[string]any{"RESULT_CODE": code, "RESULT_MSG": msg}
	if data != nil {
		env["RESULT_DATA"] = data
	}
	_ = json.NewEncoder(w).Encode(env)
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/admin/", WithToken("secret"))
	require.NoError(t, err)
	return c
}

func TestClient_List(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/admin/category", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		writeEnvelope(w, 200, ResultOK, Page{List: []Record{{"ID": "c1", "NAME_EN": "Food"}}, Total: 11}, "")
	})

	p, err := c.List(context.Background(), "/category", url.Values{"page": {"2"}})
	require.NoError(t, err)
	assert.Equal(t, 11, p.Total)
	require.Len(t, p.List, 1)
	assert.Equal(t, "Food", p.List[0]["NAME_EN"])
}

func TestClient_CRUD(t *testing.T) {
	var calls []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodPost, http.MethodPut:
			var body Record
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			body["ID"] = "c1"
			writeEnvelope(w, 200, ResultOK, body, "")
		case http.MethodGet:
			writeEnvelope(w, 200, ResultOK, Record{"ID": "c1"}, "")
		case http.MethodDelete:
			writeEnvelope(w, 200, ResultOK, nil, "")
		}
	})
	ctx := context.Background()

	rec, err := c.Insert(ctx, "category", Record{"NAME_EN": "Food"})
	require.NoError(t, err)
	assert.Equal(t, "c1", rec["ID"])

	rec, err = c.Update(ctx, "category", "c1", Record{"NAME_EN": "Drinks"})
	require.NoError(t, err)
	assert.Equal(t, "Drinks", rec["NAME_EN"])

	rec, err = c.Get(ctx, "category", "c 1")
	require.NoError(t, err)
	assert.Equal(t, "c1", rec["ID"])

	require.NoError(t, c.Delete(ctx, "category", "c1"))

	assert.Equal(t, []string{
		"POST /admin/category",
		"PUT /admin/category/c1",
		"GET /admin/category/c 1",
		"DELETE /admin/category/c1",
	}, calls)
}

func TestClient_ResultError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 200, "E101", nil, "duplicated name")
	})

	_, err := c.Insert(context.Background(), "category", Record{})
	var re *ResultError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "E101", re.Code)
	assert.Equal(t, "duplicated name", re.Message())
	assert.Contains(t, err.Error(), "POST category")
}

func TestClient_HTTPErrorWithoutEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	err := c.Delete(context.Background(), "category", "x")
	var re *ResultError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusBadGateway, re.Status)
	assert.Equal(t, "HTTP_502", re.Code)
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c, err := New(srv.URL)
	require.NoError(t, err)
	srv.Close()

	_, err = c.Get(context.Background(), "category", "x")
	var re *ResultError
	require.True(t, errors.As(err, &re))
	assert.NotNil(t, re.Err)
	assert.Equal(t, 0, re.Status)
}

func TestClient_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 200, ResultOK, nil, "")
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Delete(ctx, "category", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("not a url")
	require.Error(t, err)
	_, err = New("/relative")
	require.Error(t, err)
}
