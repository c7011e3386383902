package dsl

// Screen описывает экран сущности (таблица + drawer-форма) из DSL
type Screen struct {
	Module  string
	Name    string
	Options map[string]string // path, key, title, readonly_when, detail
	Fields  []Field
	File    string
}

// Field описывает поле формы
type Field struct {
	Name     string
	Type     string            // input, select, upload, date, datetime, editor, options, display, button, video, inputnumber
	Enum     []string          // значения select[...] прямо в DSL
	Options  map[string]string // required, span, label, codes, hidden_when и прочие опции
	Children []Field           // только для options: поля повторяемой подформы
	Line     int
}

// FQN возвращает "module.Name".
func (s *Screen) FQN() string {
	return s.Module + "." + s.Name
}

// Flag - опция-флаг без значения ("required") или явное true/yes/1.
func (f Field) Flag(name string) bool {
	return isTrue(f.Options[name])
}

// Flag для опций экрана.
func (s *Screen) Flag(name string) bool {
	return isTrue(s.Options[name])
}

func isTrue(v string) bool {
	switch v {
	case "true", "TRUE", "True", "yes", "1":
		return true
	}
	return false
}
