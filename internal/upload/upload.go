// Package upload - загрузка файлов через pre-signed URL: бэкенд выдаёт адрес,
// байты уходят туда обычным PUT.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// Presigned - ответ бэкенда на запрос адреса загрузки.
type Presigned struct {
	URL       string `json:"URL"`
	Key       string `json:"KEY"`
	PublicURL string `json:"PUBLIC_URL"`
}

// Presigner запрашивает pre-signed URL (обычно backend.Client.Do).
type Presigner interface {
	Do(ctx context.Context, method, path string, q url.Values, body, out any) error
}

var (
	ErrEmptyFile = errors.New("empty file")
	ErrTooLarge  = errors.New("file is too large")
)

type Uploader struct {
	presigner Presigner
	endpoint  string
	http      *http.Client
	maxSize   int64
}

// New: endpoint - путь выдачи URL на бэкенде ("/file/presigned").
func New(p Presigner, endpoint string, maxSize int64) *Uploader {
	if endpoint == "" {
		endpoint = "/file/presigned"
	}
	return &Uploader{
		presigner: p,
		endpoint:  endpoint,
		http:      &http.Client{Timeout: 2 * time.Minute},
		maxSize:   maxSize,
	}
}

// Upload получает URL и кладёт туда содержимое r. Возвращает публичный адрес файла.
func (u *Uploader) Upload(ctx context.Context, fileName, contentType string, r io.Reader, size int64) (Presigned, error) {
	if size == 0 {
		return Presigned{}, ErrEmptyFile
	}
	if u.maxSize > 0 && size > u.maxSize {
		return Presigned{}, fmt.Errorf("%s: %w: %d > %d bytes", fileName, ErrTooLarge, size, u.maxSize)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var p Presigned
	req := map[string]any{
		"FILE_NAME":    path.Base(strings.ReplaceAll(fileName, "\\", "/")),
		"CONTENT_TYPE": contentType,
		"SIZE":         size,
	}
	if err := u.presigner.Do(ctx, http.MethodPost, u.endpoint, nil, req, &p); err != nil {
		return Presigned{}, fmt.Errorf("presign %s: %w", fileName, err)
	}
	if p.URL == "" {
		return Presigned{}, fmt.Errorf("presign %s: empty upload url", fileName)
	}

	put, err := http.NewRequestWithContext(ctx, http.MethodPut, p.URL, r)
	if err != nil {
		return Presigned{}, err
	}
	put.Header.Set("Content-Type", contentType)
	if size > 0 {
		put.ContentLength = size
	}
	resp, err := u.http.Do(put)
	if err != nil {
		return Presigned{}, fmt.Errorf("upload %s: %w", fileName, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return Presigned{}, fmt.Errorf("upload %s: http %d", fileName, resp.StatusCode)
	}
	if p.PublicURL == "" {
		p.PublicURL = strings.SplitN(p.URL, "?", 2)[0]
	}
	return p, nil
}
