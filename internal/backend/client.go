// Package backend - клиент REST-бэкенда платформы с конвертом
// {RESULT_CODE, RESULT_DATA, RESULT_MSG}.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	logger *slog.Logger
}

type Option func(*Client)

func WithToken(token string) Option { return func(c *Client) { c.token = token } }

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// New создаёт клиента для baseURL ("http://api.local/admin").
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q: scheme and host required", baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// BaseURL - адрес бэкенда без завершающего слэша.
func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) endpoint(path string, q url.Values) string {
	u := c.base.JoinPath(strings.Split(strings.Trim(path, "/"), "/")...)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Do выполняет запрос и раскладывает RESULT_DATA в out (если out != nil).
func (c *Client) Do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	op := method + " " + path

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &ResultError{Op: op, Err: fmt.Errorf("encode body: %w", err)}
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q), rdr)
	if err != nil {
		return &ResultError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", "op", op, "error", err)
		return &ResultError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return &ResultError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	c.logger.Debug("backend request", "op", op, "status", resp.StatusCode, "elapsed", time.Since(start))

	var env Envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			if resp.StatusCode >= 400 {
				return &ResultError{Op: op, Status: resp.StatusCode, Code: fmt.Sprintf("HTTP_%d", resp.StatusCode)}
			}
			return &ResultError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode envelope: %w", err)}
		}
	}
	if env.Code != ResultOK {
		code := env.Code
		if code == "" {
			code = fmt.Sprintf("HTTP_%d", resp.StatusCode)
		}
		return &ResultError{Op: op, Status: resp.StatusCode, Code: code, Msg: env.Msg}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &ResultError{Op: op, Status: resp.StatusCode, Code: env.Code, Err: fmt.Errorf("decode RESULT_DATA: %w", err)}
		}
	}
	return nil
}

// List - GET <path>?page=..&size=..
func (c *Client) List(ctx context.Context, path string, q url.Values) (Page, error) {
	var p Page
	err := c.Do(ctx, http.MethodGet, path, q, nil, &p)
	if p.List == nil {
		p.List = []Record{}
	}
	return p, err
}

// Get - GET <path>/<id>
func (c *Client) Get(ctx context.Context, path, id string) (Record, error) {
	var r Record
	err := c.Do(ctx, http.MethodGet, path+"/"+id, nil, nil, &r)
	return r, err
}

// Insert - POST <path>
func (c *Client) Insert(ctx context.Context, path string, rec Record) (Record, error) {
	var r Record
	err := c.Do(ctx, http.MethodPost, path, nil, rec, &r)
	return r, err
}

// Update - PUT <path>/<id>
func (c *Client) Update(ctx context.Context, path, id string, rec Record) (Record, error) {
	var r Record
	err := c.Do(ctx, http.MethodPut, path+"/"+id, nil, rec, &r)
	return r, err
}

// Delete - DELETE <path>/<id>
func (c *Client) Delete(ctx context.Context, path, id string) error {
	return c.Do(ctx, http.MethodDelete, path+"/"+id, nil, nil, nil)
}
