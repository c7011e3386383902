package form

import (
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// RowKey - стабильный ключ строки options-поля; живёт только в форме.
const RowKey = "_key"

var (
	ErrNotOptions = errors.New("field is not an options field")
	ErrRowIndex   = errors.New("row index out of range")
	ErrRowLimit   = errors.New("row limit reached")
)

// Rows возвращает строки options-поля как []Values (карты те же, слайс новый).
func Rows(values Values, name string) []Values {
	switch t := values[name].(type) {
	case []any:
		out := make([]Values, 0, len(t))
		for _, it := range t {
			switch m := it.(type) {
			case map[string]any:
				out = append(out, Values(m))
			case Values:
				out = append(out, m)
			}
		}
		return out
	case []map[string]any:
		out := make([]Values, 0, len(t))
		for _, m := range t {
			out = append(out, Values(m))
		}
		return out
	case []Values:
		return append([]Values(nil), t...)
	}
	return nil
}

// SetRows записывает строки в виде []any{map[string]any}, как после JSON.
func SetRows(values Values, name string, rows []Values) {
	out := make([]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, map[string]any(r))
	}
	values[name] = out
}

func optionsKind(d Descriptor) (Options, error) {
	k, ok := d.Kind.(Options)
	if !ok {
		return Options{}, fmt.Errorf("%s: %w", d.Name, ErrNotOptions)
	}
	return k, nil
}

// AddRow добавляет строку с дефолтами дочерних полей и новым ключом.
func AddRow(d Descriptor, values Values) (Values, error) {
	k, err := optionsKind(d)
	if err != nil {
		return nil, err
	}
	rows := Rows(values, d.Name)
	if k.MaxRows > 0 && len(rows) >= k.MaxRows {
		return nil, fmt.Errorf("%s: %w (%d)", d.Name, ErrRowLimit, k.MaxRows)
	}
	row := Defaults(k.Fields)
	row[RowKey] = ulid.Make().String()
	rows = append(rows, row)
	SetRows(values, d.Name, rows)
	return row, nil
}

// ReplaceRow заменяет строку index, сохраняя её ключ.
func ReplaceRow(d Descriptor, values Values, index int, row Values) error {
	if _, err := optionsKind(d); err != nil {
		return err
	}
	rows := Rows(values, d.Name)
	if index < 0 || index >= len(rows) {
		return fmt.Errorf("%s[%d]: %w", d.Name, index, ErrRowIndex)
	}
	if key, ok := rows[index][RowKey]; ok {
		if _, has := row[RowKey]; !has {
			row[RowKey] = key
		}
	}
	rows[index] = row
	SetRows(values, d.Name, rows)
	return nil
}

// RemoveRow удаляет строку index; последующие строки сдвигаются на её место.
func RemoveRow(d Descriptor, values Values, index int) (Values, error) {
	if _, err := optionsKind(d); err != nil {
		return nil, err
	}
	rows := Rows(values, d.Name)
	if index < 0 || index >= len(rows) {
		return nil, fmt.Errorf("%s[%d]: %w", d.Name, index, ErrRowIndex)
	}
	removed := rows[index]
	rows = append(rows[:index], rows[index+1:]...)
	SetRows(values, d.Name, rows)
	return removed, nil
}

// EnsureRowKeys проставляет ключи строкам, пришедшим с бэкенда без них.
func EnsureRowKeys(ds []Descriptor, values Values) {
	for _, d := range ds {
		k, ok := d.Kind.(Options)
		if !ok {
			continue
		}
		rows := Rows(values, d.Name)
		if rows == nil {
			continue
		}
		for _, r := range rows {
			if _, has := r[RowKey]; !has {
				r[RowKey] = ulid.Make().String()
			}
			EnsureRowKeys(k.Fields, r)
		}
		SetRows(values, d.Name, rows)
	}
}

// StripRowKeys убирает служебные ключи перед отправкой на бэкенд.
func StripRowKeys(ds []Descriptor, values Values) {
	for _, d := range ds {
		k, ok := d.Kind.(Options)
		if !ok {
			continue
		}
		for _, r := range Rows(values, d.Name) {
			delete(r, RowKey)
			StripRowKeys(k.Fields, r)
		}
	}
}
