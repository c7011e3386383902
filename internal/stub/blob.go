package stub

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var ErrBadKey = errors.New("invalid blob key")

type BlobStore interface {
	// Put пишет содержимое по ключу; возвращает размер и sha256
	Put(key string, r io.Reader) (int64, string, error)
	Delete(key string) error
	// Path - локальный путь (для local)
	Path(key string) (string, error)
}

type LocalBlobStore struct {
	Root string // например, "./uploads"
}

// cleanKey не даёт выйти за пределы Root.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", ErrBadKey
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return "", fmt.Errorf("%q: %w", key, ErrBadKey)
	}
	return clean, nil
}

func (s *LocalBlobStore) Put(key string, r io.Reader) (int64, string, error) {
	full, err := s.Path(key)
	if err != nil {
		return 0, "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return 0, "", err
	}
	// пишем во временный файл и переименовываем: читатель не увидит половину
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return 0, "", err
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, "", err
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

func (s *LocalBlobStore) Delete(key string) error {
	full, err := s.Path(key)
	if err != nil {
		return err
	}
	return os.Remove(full)
}

func (s *LocalBlobStore) Path(key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, filepath.FromSlash(clean)), nil
}
