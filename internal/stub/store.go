// Package stub - REST-бэкенд для локального запуска и тестов: говорит тем же
// конвертом RESULT_CODE/RESULT_DATA/RESULT_MSG, что и настоящий.
package stub

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("version conflict")
)

// Record - запись коллекции. Data хранит поля как пришли в JSON.
type Record struct {
	ID        string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	Deleted   bool
	Data      map[string]any
}

func (r *Record) clone() *Record {
	cp := *r
	cp.Data = make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		cp.Data[k] = v
	}
	return &cp
}

// Store - хранилище записей по коллекциям ("/coupon", "/coupon/prize").
type Store interface {
	// List - живые (не удалённые) записи коллекции
	List(ctx context.Context, collection string) ([]*Record, error)
	Get(ctx context.Context, collection, id string) (*Record, error)
	Insert(ctx context.Context, collection string, data map[string]any) (*Record, error)
	// Update заменяет данные; expected > 0 - ожидаемая версия записи
	Update(ctx context.Context, collection, id string, data map[string]any, expected int64) (*Record, error)
	// Delete - мягкое удаление
	Delete(ctx context.Context, collection, id string) error
	Restore(ctx context.Context, collection, id string) (*Record, error)
}

// MemoryStore - Store в памяти процесса.
type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string]map[string]*Record // коллекция -> id -> запись
	entropy io.Reader
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &MemoryStore{
		data:    make(map[string]map[string]*Record),
		entropy: ulid.Monotonic(src, 0),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// newID вызывается под write-lock: монотонный источник не потокобезопасен.
func (s *MemoryStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

func (s *MemoryStore) List(_ context.Context, collection string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.data[collection]
	out := make([]*Record, 0, len(recs))
	for _, r := range recs {
		if !r.Deleted {
			out = append(out, r.clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.data[collection][id]
	if rec == nil || rec.Deleted {
		return nil, ErrNotFound
	}
	return rec.clone(), nil
}

func (s *MemoryStore) Insert(_ context.Context, collection string, data map[string]any) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[collection] == nil {
		s.data[collection] = make(map[string]*Record)
	}
	now := s.now()
	rec := &Record{
		ID:        s.newID(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		Data:      data,
	}
	s.data[collection][rec.ID] = rec
	return rec.clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, collection, id string, data map[string]any, expected int64) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.data[collection][id]
	if rec == nil || rec.Deleted {
		return nil, ErrNotFound
	}
	if expected > 0 && expected != rec.Version {
		return nil, ErrVersionConflict
	}
	rec.Data = data
	rec.Version++
	rec.UpdatedAt = s.now()
	return rec.clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.data[collection][id]
	if rec == nil || rec.Deleted {
		return ErrNotFound
	}
	rec.Deleted = true
	rec.Version++
	rec.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Restore(_ context.Context, collection, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.data[collection][id]
	if rec == nil {
		return nil, ErrNotFound
	}
	if rec.Deleted {
		rec.Deleted = false
		rec.Version++
		rec.UpdatedAt = s.now()
	}
	return rec.clone(), nil
}
