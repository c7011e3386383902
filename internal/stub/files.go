package stub

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

type presignReq struct {
	FileName    string `json:"FILE_NAME"`
	ContentType string `json:"CONTENT_TYPE"`
	Size        int64  `json:"SIZE"`
}

// safeName оставляет в имени файла только безопасные для URL символы.
func safeName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}

func (s *Server) sign(key string, exp, size int64) string {
	mac := hmac.New(sha256.New, s.cfg.SignKey)
	fmt.Fprintf(mac, "PUT\n%s\n%d\n%d", key, exp, size)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Server) baseURL(c *gin.Context) string {
	if s.cfg.PublicURL != "" {
		return strings.TrimRight(s.cfg.PublicURL, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

// POST /file/presigned {FILE_NAME, CONTENT_TYPE, SIZE} → {URL, KEY, PUBLIC_URL}
func (s *Server) presign(c *gin.Context) {
	if s.cfg.Blob == nil {
		fail(c, http.StatusInternalServerError, "E500", "blob store not configured")
		return
	}
	var req presignReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "E400", "invalid JSON")
		return
	}
	if strings.TrimSpace(req.FileName) == "" || req.Size <= 0 {
		fail(c, http.StatusBadRequest, "E400", "FILE_NAME and SIZE are required")
		return
	}
	if s.cfg.MaxUpload > 0 && req.Size > s.cfg.MaxUpload {
		fail(c, http.StatusRequestEntityTooLarge, "E413", fmt.Sprintf("file is larger than %d bytes", s.cfg.MaxUpload))
		return
	}

	now := s.now().UTC()
	key := fmt.Sprintf("%04d/%02d/%s-%s", now.Year(), int(now.Month()), ulid.Make().String(), safeName(req.FileName))
	exp := now.Add(s.cfg.PresignTTL).Unix()

	q := url.Values{}
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("size", strconv.FormatInt(req.Size, 10))
	q.Set("sig", s.sign(key, exp, req.Size))

	public := s.baseURL(c) + "/blob/" + key
	ok(c, gin.H{
		"URL":        public + "?" + q.Encode(),
		"KEY":        key,
		"PUBLIC_URL": public,
	})
}

// PUT /blob/*key?exp=&size=&sig= - загрузка по presigned URL.
func (s *Server) putBlob(c *gin.Context) {
	if s.cfg.Blob == nil {
		fail(c, http.StatusInternalServerError, "E500", "blob store not configured")
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	exp, err1 := strconv.ParseInt(c.Query("exp"), 10, 64)
	size, err2 := strconv.ParseInt(c.Query("size"), 10, 64)
	if err1 != nil || err2 != nil || c.Query("sig") == "" {
		fail(c, http.StatusForbidden, "E403", "missing signature")
		return
	}
	want := s.sign(key, exp, size)
	if !hmac.Equal([]byte(want), []byte(c.Query("sig"))) {
		fail(c, http.StatusForbidden, "E403", "bad signature")
		return
	}
	if s.now().Unix() > exp {
		fail(c, http.StatusForbidden, "E403", "upload url expired")
		return
	}
	if c.Request.ContentLength > size {
		fail(c, http.StatusRequestEntityTooLarge, "E413", "body is larger than presigned size")
		return
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, size)
	n, sum, err := s.cfg.Blob.Put(key, body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(c, http.StatusRequestEntityTooLarge, "E413", "body is larger than presigned size")
			return
		}
		if errors.Is(err, ErrBadKey) {
			fail(c, http.StatusBadRequest, "E400", err.Error())
			return
		}
		s.logger.Error("blob put failed", "key", key, "error", err)
		fail(c, http.StatusInternalServerError, "E500", "store error")
		return
	}
	s.logger.Info("blob stored", "key", key, "size", n)
	ok(c, gin.H{"KEY": key, "SIZE": n, "SHA256": sum})
}

// GET /blob/*key
func (s *Server) getBlob(c *gin.Context) {
	if s.cfg.Blob == nil {
		fail(c, http.StatusNotFound, "E404", "file not found")
		return
	}
	p, err := s.cfg.Blob.Path(c.Param("key"))
	if err != nil {
		fail(c, http.StatusBadRequest, "E400", err.Error())
		return
	}
	if st, err := os.Stat(p); err != nil || st.IsDir() {
		fail(c, http.StatusNotFound, "E404", "file not found")
		return
	}
	c.File(p)
}
