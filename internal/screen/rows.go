package screen

import (
	"context"
	"fmt"

	"backoffice/internal/form"
	"backoffice/internal/notify"
)

// optionsField - дескриптор options-поля верхнего уровня. Вызывать под s.mu.
func (s *Screen) optionsField(field string) (form.Descriptor, form.Options, error) {
	d, err := s.def.Field(field)
	if err != nil {
		return d, form.Options{}, err
	}
	k, ok := d.Kind.(form.Options)
	if !ok {
		return d, form.Options{}, fmt.Errorf("%s: %w", field, form.ErrNotOptions)
	}
	return d, k, nil
}

// AddRow добавляет пустую строку в options-поле черновика.
func (s *Screen) AddRow(field string) (form.Values, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writable(); err != nil {
		return nil, err
	}
	d, _, err := s.optionsField(field)
	if err != nil {
		return nil, err
	}
	row, err := form.AddRow(d, s.draft)
	if err != nil {
		return nil, err
	}
	return form.Clone(row), nil
}

// SaveRow проверяет строку и записывает её в черновик. Если у поля есть
// обработчик сохранения и родительская запись уже существует, строка
// сохраняется на бэкенде сразу; иначе уходит вместе с родителем.
func (s *Screen) SaveRow(ctx context.Context, field string, index int, row form.Values) error {
	s.mu.Lock()
	st, err := s.writable()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	d, k, err := s.optionsField(field)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	rows := form.Rows(s.draft, field)
	if index < 0 || index >= len(rows) {
		s.mu.Unlock()
		return fmt.Errorf("%s[%d]: %w", field, index, form.ErrRowIndex)
	}
	row = form.Clone(row)
	if _, has := row[form.RowKey]; !has {
		if key, ok := rows[index][form.RowKey]; ok {
			row[form.RowKey] = key
		}
	}
	if errs := form.Validate(k.Fields, row); len(errs) > 0 {
		s.mu.Unlock()
		prefix := fmt.Sprintf("%s.%d.", field, index)
		for i := range errs {
			errs[i].Field = prefix + errs[i].Field
		}
		return &ValidationError{Errors: errs}
	}
	if err := form.ReplaceRow(d, s.draft, index, row); err != nil {
		s.mu.Unlock()
		return err
	}
	if d.OnSave == nil || st.IsCreate() {
		s.mu.Unlock()
		return nil
	}

	payload := form.Clone(row)
	parentKey := d.Attrs["parent_key"]
	if parentKey != "" {
		payload[parentKey] = s.def.RecordID(*st.Item)
	}
	gen := st.Gen
	s.mu.Unlock()

	err = d.OnSave(ctx, index, payload)

	s.mu.Lock()
	if cur := s.store.State(); !cur.Open || cur.Gen != gen {
		s.mu.Unlock()
		s.logger.Info("row save finished for a dialog that is no longer current, result ignored", "field", field, "error", err)
		return err
	}
	if err != nil {
		s.mu.Unlock()
		s.toastError("common.save_failed", err)
		return err
	}
	if parentKey != "" {
		delete(payload, parentKey)
	}
	// бэкенд мог присвоить строке id - переносим его в черновик
	if idx := rowIndexByKey(form.Rows(s.draft, field), payload[form.RowKey]); idx >= 0 {
		_ = form.ReplaceRow(d, s.draft, idx, payload)
	}
	s.mu.Unlock()

	s.deps.Notifier.Open(notify.Success, s.t("common.saved"), "")
	return nil
}

// DeleteRow удаляет строку index: сначала onDelete(index, row), затем
// строка убирается из черновика, последующие строки сдвигаются вверх.
func (s *Screen) DeleteRow(ctx context.Context, field string, index int) error {
	s.mu.Lock()
	st, err := s.writable()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	d, _, err := s.optionsField(field)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	rows := form.Rows(s.draft, field)
	if index < 0 || index >= len(rows) {
		s.mu.Unlock()
		return fmt.Errorf("%s[%d]: %w", field, index, form.ErrRowIndex)
	}
	row := form.Clone(rows[index])
	key := row[form.RowKey]
	gen := st.Gen
	s.mu.Unlock()

	if d.OnDelete != nil {
		if err := d.OnDelete(ctx, index, row); err != nil {
			s.toastError("common.delete_failed", err)
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.store.State(); !cur.Open || cur.Gen != gen {
		s.logger.Info("row delete finished for a dialog that is no longer current", "field", field)
		return nil
	}
	idx := index
	if key != nil {
		// пока шёл запрос, строки могли сдвинуться
		idx = rowIndexByKey(form.Rows(s.draft, field), key)
		if idx < 0 {
			return nil
		}
	}
	_, err = form.RemoveRow(d, s.draft, idx)
	return err
}

func rowIndexByKey(rows []form.Values, key any) int {
	if key == nil {
		return -1
	}
	for i, r := range rows {
		if r[form.RowKey] == key {
			return i
		}
	}
	return -1
}

// CheckUpload проверяет, что в поле можно добавить файл: вызывается до
// загрузки, чтобы не оставлять на бэкенде файлы-сироты.
func (s *Screen) CheckUpload(field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writable(); err != nil {
		return err
	}
	d, err := s.def.Field(field)
	if err != nil {
		return err
	}
	limit, err := fileLimit(d)
	if err != nil {
		return err
	}
	if limit > 1 && len(s.currentFiles(field)) >= limit {
		return fmt.Errorf("%s: %w (max %d)", field, ErrTooManyFiles, limit)
	}
	return nil
}

// AttachUpload добавляет загруженный файл к upload/video-полю.
// Поле на один файл заменяет предыдущий.
func (s *Screen) AttachUpload(field, fileURL string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writable(); err != nil {
		return nil, err
	}
	d, err := s.def.Field(field)
	if err != nil {
		return nil, err
	}
	limit, err := fileLimit(d)
	if err != nil {
		return nil, err
	}
	files := s.currentFiles(field)
	switch {
	case limit == 1:
		files = []string{fileURL}
	case limit > 0 && len(files) >= limit:
		return nil, fmt.Errorf("%s: %w (max %d)", field, ErrTooManyFiles, limit)
	default:
		files = append(files, fileURL)
	}
	s.uploaded[field] = files
	return append([]string(nil), files...), nil
}

// RemoveUpload убирает файл index из поля.
func (s *Screen) RemoveUpload(field string, index int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writable(); err != nil {
		return nil, err
	}
	d, err := s.def.Field(field)
	if err != nil {
		return nil, err
	}
	if _, err := fileLimit(d); err != nil {
		return nil, err
	}
	files := s.currentFiles(field)
	if index < 0 || index >= len(files) {
		return nil, fmt.Errorf("%s[%d]: %w", field, index, ErrFileIndex)
	}
	files = append(files[:index], files[index+1:]...)
	s.uploaded[field] = files
	return append([]string(nil), files...), nil
}

func fileLimit(d form.Descriptor) (int, error) {
	switch k := d.Kind.(type) {
	case form.Upload:
		return k.MaxCount, nil
	case form.Video:
		return 1, nil
	}
	return 0, fmt.Errorf("%s: %w", d.Name, ErrNotUpload)
}

// currentFiles - файлы поля: загруженные в этой сессии или из записи. Под s.mu.
func (s *Screen) currentFiles(field string) []string {
	if up, ok := s.uploaded[field]; ok {
		return append([]string(nil), up...)
	}
	switch t := s.draft[field].(type) {
	case string:
		if t != "" {
			return []string{t}
		}
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, it := range t {
			if v, ok := it.(string); ok && v != "" {
				out = append(out, v)
			}
		}
		return out
	}
	return nil
}

// applyUploads переносит загруженные файлы в значения перед сохранением.
// Поле на один файл хранит строку, остальные - список. Под s.mu.
func (s *Screen) applyUploads(values form.Values) {
	for field, files := range s.uploaded {
		d, ok := form.Find(s.def.Fields, field)
		if !ok {
			continue
		}
		limit, err := fileLimit(d)
		if err != nil {
			continue
		}
		if limit == 1 {
			if len(files) == 0 {
				values[field] = ""
			} else {
				values[field] = files[0]
			}
			continue
		}
		list := make([]any, 0, len(files))
		for _, f := range files {
			list = append(list, f)
		}
		values[field] = list
	}
}
