package form

import (
	"context"
	"fmt"
	"strings"
)

// Values - значения формы по имени поля.
type Values map[string]any

// Condition вычисляется на каждом рендере по текущим значениям.
type Condition func(Values) bool

// RowFunc - обработчик строки options-поля (сохранение/удаление дочерней записи).
type RowFunc func(ctx context.Context, index int, row Values) error

// Descriptor - декларативное описание поля. Принадлежит экрану, не хранится.
type Descriptor struct {
	Name     string
	Label    string
	Kind     Kind
	Required bool
	ColSpan  int
	Hidden   Condition
	Disable  bool
	Default  any
	OnSave   RowFunc
	OnDelete RowFunc
	// Attrs - сырые опции из DSL (rows_path, row_key, ...)
	Attrs map[string]string
}

// IsHidden - поле скрыто при данных значениях.
func (d Descriptor) IsHidden(v Values) bool {
	return d.Hidden != nil && d.Hidden(v)
}

// Always - безусловно скрытое поле.
func Always(Values) bool { return true }

// Scalar - значение поля строкой для сравнения и REST-путей. Числа из JSON
// (float64) пишутся без экспоненты: 2000000, не 2e+06.
func Scalar(v any) string {
	if v == nil {
		return ""
	}
	if s, err := toScalarString(v); err == nil {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// FieldIn истинно, когда строковое значение поля name совпадает с одним из want.
func FieldIn(name string, want ...string) Condition {
	return func(v Values) bool {
		got, ok := v[name]
		if !ok || got == nil {
			return false
		}
		s := Scalar(got)
		for _, w := range want {
			if s == w {
				return true
			}
		}
		return false
	}
}

// ParseCondition разбирает "FIELD:V1|V2" из DSL.
func ParseCondition(expr string) (Condition, error) {
	expr = strings.TrimSpace(expr)
	i := strings.IndexByte(expr, ':')
	if i <= 0 || i == len(expr)-1 {
		return nil, fmt.Errorf("condition %q: expected FIELD:VALUE[|VALUE]", expr)
	}
	field := strings.TrimSpace(expr[:i])
	var vals []string
	for _, p := range strings.Split(expr[i+1:], "|") {
		if p = strings.TrimSpace(p); p != "" {
			vals = append(vals, p)
		}
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("condition %q: no values", expr)
	}
	return FieldIn(field, vals...), nil
}

// Find ищет дескриптор по имени среди полей верхнего уровня.
func Find(ds []Descriptor, name string) (Descriptor, bool) {
	for _, d := range ds {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Defaults - значения для режима создания.
func Defaults(ds []Descriptor) Values {
	out := Values{}
	for _, d := range ds {
		switch k := d.Kind.(type) {
		case Options:
			out[d.Name] = []any{}
		case Select:
			if d.Default != nil {
				out[d.Name] = d.Default
			} else if k.Multiple {
				out[d.Name] = []any{}
			}
		default:
			if d.Default != nil {
				out[d.Name] = d.Default
			}
		}
	}
	return out
}

// Clone - неглубокая копия значений со своими копиями строк options-полей.
func Clone(v Values) Values {
	out := make(Values, len(v))
	for k, val := range v {
		switch t := val.(type) {
		case []any:
			cp := make([]any, len(t))
			for i, it := range t {
				switch m := it.(type) {
				case map[string]any:
					cp[i] = map[string]any(Clone(m))
				case Values:
					cp[i] = map[string]any(Clone(m))
				default:
					cp[i] = it
				}
			}
			out[k] = cp
		default:
			out[k] = val
		}
	}
	return out
}
