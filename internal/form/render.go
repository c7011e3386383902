package form

import (
	"fmt"
	"strconv"
)

// DefaultColSpan - ширина поля в 24-колоночной сетке, если не задана.
const DefaultColSpan = 24

// Config - общие для всех полей флаги рендера.
type Config struct {
	Readonly bool
	Loading  bool
	Page     string
	// Uploaded - уже загруженные файлы по имени поля (перекрывают значение)
	Uploaded  map[string][]string
	Translate func(key string) string
}

func (c Config) t(key string) string {
	if c.Translate == nil || key == "" {
		return key
	}
	return c.Translate(key)
}

// Control - конкретный контрол, который рисует браузерная оболочка.
type Control struct {
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Label       string   `json:"label,omitempty"`
	ColSpan     int      `json:"colSpan"`
	Required    bool     `json:"required,omitempty"`
	Disabled    bool     `json:"disabled,omitempty"`
	Loading     bool     `json:"loading,omitempty"`
	Value       any      `json:"value,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	MaxLength   int      `json:"maxLength,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Options     []Option `json:"options,omitempty"`
	Multiple    bool     `json:"multiple,omitempty"`
	Accept      string   `json:"accept,omitempty"`
	MaxCount    int      `json:"maxCount,omitempty"`
	Crop        string   `json:"crop,omitempty"`
	Files       []string `json:"files,omitempty"`
	Format      string   `json:"format,omitempty"`
	Action      string   `json:"action,omitempty"`
	Rows        []Row    `json:"rows,omitempty"`
	CanAdd      bool     `json:"canAdd,omitempty"`
	AddLabel    string   `json:"addLabel,omitempty"`
}

// Row - одна строка options-поля. CanSave требует OnSave; удалить строку можно
// и без OnDelete, тогда она уходит только из черновика.
type Row struct {
	Index     int       `json:"index"`
	Key       string    `json:"key,omitempty"`
	Controls  []Control `json:"controls"`
	CanSave   bool      `json:"canSave,omitempty"`
	CanDelete bool      `json:"canDelete,omitempty"`
}

// Render превращает дескриптор в контрол. ok == false - поле скрыто и не рисуется.
func Render(d Descriptor, cfg Config, values Values) (Control, bool) {
	return renderAt(d, cfg, values, "")
}

// RenderAll рендерит список полей, пропуская скрытые.
func RenderAll(ds []Descriptor, cfg Config, values Values) []Control {
	return renderAllAt(ds, cfg, values, "")
}

func renderAllAt(ds []Descriptor, cfg Config, values Values, prefix string) []Control {
	out := make([]Control, 0, len(ds))
	for _, d := range ds {
		if c, ok := renderAt(d, cfg, values, prefix); ok {
			out = append(out, c)
		}
	}
	return out
}

func renderAt(d Descriptor, cfg Config, values Values, prefix string) (Control, bool) {
	if d.IsHidden(values) {
		return Control{}, false
	}

	label := d.Label
	if label == "" {
		label = d.Name
	}
	span := d.ColSpan
	if span <= 0 || span > DefaultColSpan {
		span = DefaultColSpan
	}
	name := prefix + d.Name
	c := Control{
		Type:     TypeOf(d.Kind),
		Name:     name,
		Label:    cfg.t(label),
		ColSpan:  span,
		Required: d.Required,
		Disabled: d.Disable || cfg.Readonly,
		Loading:  cfg.Loading,
		Value:    values[d.Name],
	}

	switch k := d.Kind.(type) {
	case Input:
		c.Placeholder = cfg.t(k.Placeholder)
		c.MaxLength = k.MaxLength
	case InputNumber:
		c.Min, c.Max = k.Min, k.Max
	case Select:
		c.Multiple = k.Multiple
		c.Options = make([]Option, 0, len(k.Options))
		for _, o := range k.Options {
			if o.Hidden {
				continue
			}
			c.Options = append(c.Options, Option{Value: o.Value, Label: cfg.t(o.Label)})
		}
	case Upload:
		c.Accept, c.MaxCount, c.Crop = k.Accept, k.MaxCount, k.Crop
		c.Files = files(cfg, name, values[d.Name])
		c.Value = nil
	case Video:
		c.Accept = k.Accept
		c.MaxCount = 1
		c.Files = files(cfg, name, values[d.Name])
		c.Value = nil
	case Date, DateTime, Editor:
	case Display:
		c.Format = k.Format
		c.Value = display(values[d.Name], k.Format)
	case Button:
		c.Action = k.Action
		c.Value = nil
	case Options:
		c.Value = nil
		c.AddLabel = cfg.t(k.AddLabel)
		rows := Rows(values, d.Name)
		c.CanAdd = !c.Disabled && (k.MaxRows == 0 || len(rows) < k.MaxRows)
		rowCfg := cfg
		rowCfg.Readonly = c.Disabled
		c.Rows = make([]Row, 0, len(rows))
		for i, rv := range rows {
			key, _ := rv[RowKey].(string)
			c.Rows = append(c.Rows, Row{
				Index:     i,
				Key:       key,
				Controls:  renderAllAt(k.Fields, rowCfg, rv, fmt.Sprintf("%s.%d.", name, i)),
				CanSave:   !c.Disabled && d.OnSave != nil,
				CanDelete: !c.Disabled,
			})
		}
	default:
		panic(fmt.Sprintf("form: unhandled kind %T", d.Kind))
	}
	return c, true
}

func files(cfg Config, name string, v any) []string {
	if up, ok := cfg.Uploaded[name]; ok {
		return append([]string(nil), up...)
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, it := range t {
			if s, ok := it.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func display(v any, format string) any {
	if v == nil {
		return nil
	}
	switch format {
	case "number":
		switch t := v.(type) {
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case int:
			return strconv.Itoa(t)
		case int64:
			return strconv.FormatInt(t, 10)
		}
	case "bool":
		if b, ok := v.(bool); ok {
			if b {
				return "Y"
			}
			return "N"
		}
	}
	return fmt.Sprintf("%v", v)
}
