package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"backoffice/internal/stub"
)

// RecordStore - stub.Store поверх таблицы records.
type RecordStore struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

var _ stub.Store = (*RecordStore)(nil)

func NewRecordStore(db *sql.DB, schema string) *RecordStore {
	return &RecordStore{
		db:    db,
		table: recordsTable(schema),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

const recordCols = `"id", "version", "created_at", "updated_at", "deleted", "data"`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*stub.Record, error) {
	var (
		rec stub.Record
		raw []byte
	)
	if err := row.Scan(&rec.ID, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt, &rec.Deleted, &raw); err != nil {
		return nil, err
	}
	rec.Data = map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rec.Data); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", rec.ID, err)
		}
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func encodeData(data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	return string(b), nil
}

func (s *RecordStore) List(ctx context.Context, collection string) ([]*stub.Record, error) {
	q := fmt.Sprintf(`select %s from %s where "collection" = $1 and not "deleted" order by "created_at", "id"`, recordCols, s.table)
	rows, err := s.db.QueryContext(ctx, q, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*stub.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *RecordStore) Get(ctx context.Context, collection, id string) (*stub.Record, error) {
	q := fmt.Sprintf(`select %s from %s where "collection" = $1 and "id" = $2 and not "deleted"`, recordCols, s.table)
	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, collection, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, stub.ErrNotFound
	}
	return rec, err
}

func (s *RecordStore) Insert(ctx context.Context, collection string, data map[string]any) (*stub.Record, error) {
	body, err := encodeData(data)
	if err != nil {
		return nil, err
	}
	now := s.now()
	q := fmt.Sprintf(`insert into %s ("collection", "id", "version", "created_at", "updated_at", "deleted", "data")
values ($1, $2, 1, $3, $3, false, $4::jsonb)
returning %s`, s.table, recordCols)
	return scanRecord(s.db.QueryRowContext(ctx, q, collection, ulid.Make().String(), now, body))
}

// Update заменяет data; expected > 0 включает оптимистическую блокировку по version.
func (s *RecordStore) Update(ctx context.Context, collection, id string, data map[string]any, expected int64) (*stub.Record, error) {
	body, err := encodeData(data)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`update %s set "data" = $3::jsonb, "version" = "version" + 1, "updated_at" = $4
where "collection" = $1 and "id" = $2 and not "deleted" and ($5::bigint = 0 or "version" = $5::bigint)
returning %s`, s.table, recordCols)
	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, collection, id, body, s.now(), expected))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missing(ctx, collection, id)
	}
	return rec, err
}

func (s *RecordStore) Delete(ctx context.Context, collection, id string) error {
	q := fmt.Sprintf(`update %s set "deleted" = true, "version" = "version" + 1, "updated_at" = $3
where "collection" = $1 and "id" = $2 and not "deleted"`, s.table)
	res, err := s.db.ExecContext(ctx, q, collection, id, s.now())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return stub.ErrNotFound
	}
	return nil
}

// Restore снимает пометку удаления; для живой записи просто возвращает её.
func (s *RecordStore) Restore(ctx context.Context, collection, id string) (*stub.Record, error) {
	q := fmt.Sprintf(`update %s set "deleted" = false, "version" = "version" + 1, "updated_at" = $3
where "collection" = $1 and "id" = $2 and "deleted"
returning %s`, s.table, recordCols)
	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, collection, id, s.now()))
	if errors.Is(err, sql.ErrNoRows) {
		return s.Get(ctx, collection, id)
	}
	return rec, err
}

// missing различает «нет записи» и «не та версия» после неудачного update.
func (s *RecordStore) missing(ctx context.Context, collection, id string) error {
	q := fmt.Sprintf(`select exists(select 1 from %s where "collection" = $1 and "id" = $2 and not "deleted")`, s.table)
	var exists bool
	if err := s.db.QueryRowContext(ctx, q, collection, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return stub.ErrVersionConflict
	}
	return stub.ErrNotFound
}
