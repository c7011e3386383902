// Package screen - экраны сущностей: список + drawer-форма поверх
// dialog.Store, form-дескрипторов и REST-бэкенда.
package screen

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"backoffice/internal/backend"
	"backoffice/internal/dsl"
	"backoffice/internal/form"
	"backoffice/internal/notify"
	"backoffice/internal/reference"
)

// Backend - то, что экрану нужно от REST-клиента.
type Backend interface {
	List(ctx context.Context, path string, q url.Values) (backend.Page, error)
	Get(ctx context.Context, path, id string) (backend.Record, error)
	Insert(ctx context.Context, path string, rec backend.Record) (backend.Record, error)
	Update(ctx context.Context, path, id string, rec backend.Record) (backend.Record, error)
	Delete(ctx context.Context, path, id string) error
}

// Notifier - openNotification(type, message, description?, config?).
type Notifier interface {
	Open(typ notify.Type, message, description string, cfg ...notify.Config) notify.Notification
}

type Translator interface {
	T(key string) string
}

// Definition - неизменяемое описание экрана одной сущности.
type Definition struct {
	FQN    string
	Module string
	Name   string
	Path   string // REST-путь сущности на бэкенде
	Key    string // поле первичного ключа
	Title  string // префикс ключей локализации
	Detail bool   // при открытии перечитывать запись целиком
	Fields []form.Descriptor
	// ReadonlyWhen - запись открывается только на просмотр (например, завершённый купон)
	ReadonlyWhen form.Condition
}

// RecordID - значение ключа записи строкой ("" если нет).
func (d *Definition) RecordID(rec backend.Record) string {
	if rec == nil {
		return ""
	}
	v, ok := rec[d.Key]
	if !ok || v == nil {
		return ""
	}
	return form.Scalar(v)
}

// IsReadonly - политика просмотра для записи.
func (d *Definition) IsReadonly(rec backend.Record) bool {
	return d.ReadonlyWhen != nil && rec != nil && d.ReadonlyWhen(form.Values(rec))
}

// Field - дескриптор поля верхнего уровня.
func (d *Definition) Field(name string) (form.Descriptor, error) {
	f, ok := form.Find(d.Fields, name)
	if !ok {
		return form.Descriptor{}, fmt.Errorf("%s.%s: %w", d.FQN, name, ErrUnknownField)
	}
	return f, nil
}

func newDefinition(s *dsl.Screen, codes map[string]reference.CodeList, be Backend) (*Definition, error) {
	lower := strings.ToLower(s.Name)
	def := &Definition{
		FQN:    s.FQN(),
		Module: s.Module,
		Name:   s.Name,
		Path:   s.Options["path"],
		Key:    s.Options["key"],
		Title:  s.Options["title"],
		Detail: s.Flag("detail"),
	}
	if def.Path == "" {
		def.Path = "/" + lower
	}
	if def.Key == "" {
		def.Key = "ID"
	}
	if def.Title == "" {
		def.Title = lower
	}
	if expr := s.Options["readonly_when"]; expr != "" {
		cond, err := form.ParseCondition(expr)
		if err != nil {
			return nil, fmt.Errorf("screen %s: readonly_when: %w", def.FQN, err)
		}
		def.ReadonlyWhen = cond
	}

	fields, err := form.FromDSL(def.Title, s.Fields, codes)
	if err != nil {
		return nil, fmt.Errorf("screen %s: %w", def.FQN, err)
	}
	bindRowHandlers(fields, be)
	def.Fields = fields
	return def, nil
}

// bindRowHandlers навешивает OnSave/OnDelete на options-поля с rows_path:
// строки сохраняются и удаляются отдельными вызовами бэкенда.
func bindRowHandlers(fields []form.Descriptor, be Backend) {
	for i := range fields {
		d := &fields[i]
		k, ok := d.Kind.(form.Options)
		if !ok {
			continue
		}
		bindRowHandlers(k.Fields, be)
		d.Kind = k

		path := d.Attrs["rows_path"]
		if path == "" || be == nil {
			continue
		}
		rowKey := d.Attrs["row_key"]
		if rowKey == "" {
			rowKey = "ID"
		}
		children := k.Fields

		d.OnSave = func(ctx context.Context, _ int, row form.Values) error {
			payload := backend.Record(form.Clone(row))
			form.StripRowKeys(children, form.Values(payload))
			delete(payload, form.RowKey)
			id := rowID(row, rowKey)
			var saved backend.Record
			var err error
			if id == "" {
				saved, err = be.Insert(ctx, path, payload)
			} else {
				saved, err = be.Update(ctx, path, id, payload)
			}
			if err != nil {
				return err
			}
			if v, ok := saved[rowKey]; ok && v != nil {
				row[rowKey] = v
			}
			return nil
		}
		d.OnDelete = func(ctx context.Context, _ int, row form.Values) error {
			id := rowID(row, rowKey)
			if id == "" {
				// строка ещё не сохранялась - удалять на бэкенде нечего
				return nil
			}
			return be.Delete(ctx, path, id)
		}
	}
}

func rowID(row form.Values, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(form.Scalar(v))
}
