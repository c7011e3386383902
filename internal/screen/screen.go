package screen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"backoffice/internal/backend"
	"backoffice/internal/dialog"
	"backoffice/internal/form"
	"backoffice/internal/notify"
)

// Status - с чем закрылся drawer; уходит в onClose.
type Status string

const (
	StatusSaved     Status = "saved"
	StatusDeleted   Status = "deleted"
	StatusCancelled Status = "cancelled"
)

var (
	ErrReadonly      = errors.New("dialog is readonly")
	ErrNotOpen       = errors.New("dialog is not open")
	ErrCreateMode    = errors.New("record is not saved yet")
	ErrNoKey         = errors.New("record has no key field")
	ErrUnknownField  = errors.New("unknown field")
	ErrUnknownScreen = errors.New("unknown screen")
	ErrNotUpload     = errors.New("field does not accept files")
	ErrTooManyFiles  = errors.New("too many files")
	ErrFileIndex     = errors.New("file index out of range")
)

// ValidationError - форма не прошла проверку, запрос на бэкенд не отправлялся.
type ValidationError struct {
	Errors []form.FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Deps - коллабораторы экрана. Backend и Notifier обязательны.
type Deps struct {
	Backend    Backend
	Notifier   Notifier
	Translator Translator
	Logger     *slog.Logger
	// OnClose вызывается после onClose-слушателей экрана (обновление списков в UI)
	OnClose func(screen string, status Status)
}

// Mode - режим drawer'а.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
	ModeView   Mode = "view"
)

type Action struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Danger bool   `json:"danger,omitempty"`
}

// View - состояние drawer'а для отрисовки.
type View struct {
	Screen   string         `json:"screen"`
	Open     bool           `json:"open"`
	Mode     Mode           `json:"mode"`
	Title    string         `json:"title"`
	Readonly bool           `json:"readonly"`
	Loading  bool           `json:"loading"`
	Gen      uint64         `json:"gen"`
	Controls []form.Control `json:"controls"`
	Actions  []Action       `json:"actions"`
}

// Screen - список и drawer одной сущности в рамках рабочего места оператора.
type Screen struct {
	deps   Deps
	store  *dialog.Store[backend.Record]
	logger *slog.Logger

	mu       sync.Mutex
	def      *Definition
	draft    form.Values
	uploaded map[string][]string
	loading  bool
	onClose  []func(Status)
}

func New(def *Definition, store *dialog.Store[backend.Record], deps Deps) *Screen {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Screen{
		deps:     deps,
		store:    store,
		logger:   logger.With("screen", def.FQN),
		def:      def,
		uploaded: map[string][]string{},
	}
}

func (s *Screen) Definition() *Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.def
}

// setDefinition подменяет описание после перезагрузки форм; открытый диалог не трогаем.
func (s *Screen) setDefinition(def *Definition) {
	s.mu.Lock()
	s.def = def
	s.mu.Unlock()
}

// State - снимок состояния диалога.
func (s *Screen) State() dialog.State[backend.Record] {
	return s.store.State()
}

// OnClose регистрирует слушателя закрытия drawer'а.
func (s *Screen) OnClose(fn func(Status)) {
	s.mu.Lock()
	s.onClose = append(s.onClose, fn)
	s.mu.Unlock()
}

func (s *Screen) t(key string) string {
	if s.deps.Translator == nil {
		return key
	}
	return s.deps.Translator.T(key)
}

// List запрашивает страницу списка; ошибка показывается тостом.
func (s *Screen) List(ctx context.Context, q url.Values) (backend.Page, error) {
	def := s.Definition()
	page, err := s.deps.Backend.List(ctx, def.Path, q)
	if err != nil {
		s.toastError("common.load_failed", err)
		return backend.Page{}, err
	}
	return page, nil
}

// Open открывает drawer: row == nil - создание. Для экранов с detail запись
// перечитывается; при ошибке показывается тост, а форма открывается по строке списка.
func (s *Screen) Open(ctx context.Context, row backend.Record, readonly bool) View {
	def := s.Definition()

	var item *backend.Record
	if row != nil {
		rec := backend.Record(form.Clone(form.Values(row)))
		if id := def.RecordID(rec); def.Detail && id != "" {
			full, err := s.deps.Backend.Get(ctx, def.Path, id)
			if err != nil {
				s.logger.Warn("detail fetch failed, opening with list row", "id", id, "error", err)
				s.toastError("common.load_failed", err)
			} else {
				rec = full
			}
		}
		readonly = readonly || def.IsReadonly(rec)
		item = &rec
	}

	var values form.Values
	if item == nil {
		values = form.Defaults(def.Fields)
	} else {
		values = form.Clone(form.Values(*item))
	}
	form.EnsureRowKeys(def.Fields, values)

	s.mu.Lock()
	s.store.Open(item, readonly)
	s.draft = values
	s.uploaded = map[string][]string{}
	s.loading = false
	s.mu.Unlock()

	s.logger.Debug("dialog opened", "create", item == nil, "readonly", readonly)
	return s.Drawer()
}

// Drawer рендерит текущее состояние формы.
func (s *Screen) Drawer() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.store.State()
	mode := ModeEdit
	switch {
	case st.Readonly:
		mode = ModeView
	case st.IsCreate():
		mode = ModeCreate
	}

	uploaded := make(map[string][]string, len(s.uploaded))
	for k, v := range s.uploaded {
		uploaded[k] = append([]string(nil), v...)
	}
	cfg := form.Config{
		Readonly:  st.Readonly,
		Loading:   s.loading,
		Page:      s.def.FQN,
		Uploaded:  uploaded,
		Translate: s.t,
	}

	v := View{
		Screen:   s.def.FQN,
		Open:     st.Open,
		Mode:     mode,
		Title:    fmt.Sprintf("%s - %s", s.t(s.def.Title+".title"), s.t("common."+string(mode))),
		Readonly: st.Readonly,
		Loading:  s.loading,
		Gen:      st.Gen,
		Controls: form.RenderAll(s.def.Fields, cfg, s.draft),
	}
	if !st.Readonly {
		v.Actions = append(v.Actions, Action{Name: "save", Label: s.t("common.save")})
		if !st.IsCreate() {
			v.Actions = append(v.Actions, Action{Name: "delete", Label: s.t("common.delete"), Danger: true})
		}
	}
	v.Actions = append(v.Actions, Action{Name: "close", Label: s.t("common.close")})
	return v
}

// Values - копия черновика формы.
func (s *Screen) Values() form.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return form.Clone(s.draft)
}

// writable проверяет, что диалог открыт и редактируем. Вызывать под s.mu.
func (s *Screen) writable() (dialog.State[backend.Record], error) {
	st := s.store.State()
	if !st.Open {
		return st, ErrNotOpen
	}
	if st.Readonly {
		return st, ErrReadonly
	}
	return st, nil
}

// Save проверяет форму и отправляет insert/update. Ошибки валидации
// возвращаются как *ValidationError без обращения к бэкенду.
func (s *Screen) Save(ctx context.Context, values form.Values) error {
	s.mu.Lock()
	st, err := s.writable()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	def := s.def
	merged := form.Clone(s.draft)
	if merged == nil {
		merged = form.Values{}
	}
	for k, v := range values {
		merged[k] = v
	}
	s.applyUploads(merged)

	if errs := form.Validate(def.Fields, merged); len(errs) > 0 {
		s.draft = merged
		s.mu.Unlock()
		return &ValidationError{Errors: errs}
	}
	s.draft = merged
	id := ""
	if !st.IsCreate() {
		if id = def.RecordID(*st.Item); id == "" {
			s.mu.Unlock()
			return fmt.Errorf("%s: %w %s", def.FQN, ErrNoKey, def.Key)
		}
	}
	s.loading = true
	gen := st.Gen
	payload := backend.Record(form.Clone(merged))
	form.StripRowKeys(def.Fields, form.Values(payload))
	s.mu.Unlock()

	if id == "" {
		_, err = s.deps.Backend.Insert(ctx, def.Path, payload)
	} else {
		_, err = s.deps.Backend.Update(ctx, def.Path, id, payload)
	}
	return s.complete(gen, StatusSaved, err, "common.saved", "common.save_failed")
}

// Delete удаляет открытую запись.
func (s *Screen) Delete(ctx context.Context) error {
	s.mu.Lock()
	st, err := s.writable()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if st.IsCreate() {
		s.mu.Unlock()
		return ErrCreateMode
	}
	def := s.def
	id := def.RecordID(*st.Item)
	if id == "" {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w %s", def.FQN, ErrNoKey, def.Key)
	}
	gen := st.Gen
	s.loading = true
	s.mu.Unlock()

	err = s.deps.Backend.Delete(ctx, def.Path, id)
	return s.complete(gen, StatusDeleted, err, "common.deleted", "common.delete_failed")
}

// complete применяет результат запроса, если диалог всё ещё тот же самый.
// Закрытый или переоткрытый за время запроса диалог не трогается.
func (s *Screen) complete(gen uint64, status Status, err error, okKey, failKey string) error {
	s.mu.Lock()
	st := s.store.State()
	if st.Gen == gen {
		s.loading = false
	}
	if !st.Open || st.Gen != gen {
		s.mu.Unlock()
		s.logger.Info("request finished for a dialog that is no longer current, result ignored",
			"status", status, "gen", gen, "current_gen", st.Gen, "error", err)
		return err
	}
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("request failed", "status", status, "error", err)
		s.toastError(failKey, err)
		return err
	}
	s.store.Close()
	s.mu.Unlock()

	s.deps.Notifier.Open(notify.Success, s.t(okKey), "")
	s.fire(status)
	return nil
}

// Close закрывает drawer без сохранения.
func (s *Screen) Close() {
	s.mu.Lock()
	wasOpen := s.store.State().Open
	s.store.Close()
	s.loading = false
	s.mu.Unlock()
	if wasOpen {
		s.fire(StatusCancelled)
	}
}

func (s *Screen) fire(status Status) {
	s.mu.Lock()
	listeners := append([]func(Status){}, s.onClose...)
	fqn := s.def.FQN
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(status)
	}
	if s.deps.OnClose != nil {
		s.deps.OnClose(fqn, status)
	}
}

func (s *Screen) toastError(key string, err error) {
	msg := err.Error()
	var re *backend.ResultError
	if errors.As(err, &re) {
		msg = re.Message()
	}
	s.deps.Notifier.Open(notify.Error, s.t(key), msg)
}
