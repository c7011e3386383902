package form

import (
	"fmt"
	"strconv"
	"strings"

	"backoffice/internal/dsl"
	"backoffice/internal/reference"
)

// FromDSL строит дескрипторы из полей DSL. labelPrefix - префикс ключей
// локализации по умолчанию ("coupon" → "coupon.title").
func FromDSL(labelPrefix string, fields []dsl.Field, codes map[string]reference.CodeList) ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(fields))
	for _, f := range fields {
		d, err := fromField(labelPrefix, f, codes)
		if err != nil {
			return nil, fmt.Errorf("field %s (line %d): %w", f.Name, f.Line, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func fromField(prefix string, f dsl.Field, codes map[string]reference.CodeList) (Descriptor, error) {
	opts := f.Options
	d := Descriptor{
		Name:     f.Name,
		Label:    opts["label"],
		Required: f.Flag("required"),
		Disable:  f.Flag("disabled") || f.Flag("readonly"),
		Attrs:    opts,
	}
	if d.Label == "" {
		d.Label = strings.ToLower(f.Name)
		if prefix != "" {
			d.Label = prefix + "." + d.Label
		}
	}
	if s := opts["span"]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > DefaultColSpan {
			return d, fmt.Errorf("span must be 1..%d, got %q", DefaultColSpan, s)
		}
		d.ColSpan = n
	}
	if f.Flag("hidden") {
		d.Hidden = Always
	} else if expr := opts["hidden_when"]; expr != "" {
		cond, err := ParseCondition(expr)
		if err != nil {
			return d, err
		}
		d.Hidden = cond
	}
	if def, ok := opts["default"]; ok {
		d.Default = def
	}

	switch f.Type {
	case TypeInput:
		k := Input{Placeholder: opts["placeholder"]}
		if s := opts["max_length"]; s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				return d, fmt.Errorf("max_length: %w", err)
			}
			k.MaxLength = n
		}
		d.Kind = k
	case TypeInputNumber:
		k := InputNumber{}
		for _, b := range []struct {
			key string
			dst **float64
		}{{"min", &k.Min}, {"max", &k.Max}} {
			if s := opts[b.key]; s != "" {
				v, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return d, fmt.Errorf("%s: %w", b.key, err)
				}
				*b.dst = &v
			}
		}
		if def, ok := opts["default"]; ok {
			v, err := strconv.ParseFloat(def, 64)
			if err != nil {
				return d, fmt.Errorf("default: %w", err)
			}
			d.Default = v
		}
		d.Kind = k
	case TypeSelect:
		k := Select{Multiple: f.Flag("multiple")}
		for _, v := range f.Enum {
			k.Options = append(k.Options, Option{Value: v, Label: v})
		}
		if name := opts["codes"]; name != "" {
			list, ok := codes[name]
			if !ok {
				return d, fmt.Errorf("unknown code list %q", name)
			}
			for _, it := range list.Sorted() {
				label := it.Label
				if label == "" {
					label = it.Code
				}
				k.Options = append(k.Options, Option{Value: it.Code, Label: label, Hidden: it.Hidden})
			}
		}
		d.Kind = k
	case TypeUpload:
		k := Upload{Accept: opts["accept"], Crop: opts["crop"]}
		if s := opts["max"]; s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				return d, fmt.Errorf("max: %w", err)
			}
			k.MaxCount = n
		}
		d.Kind = k
	case TypeDate:
		d.Kind = Date{}
	case TypeDateTime:
		d.Kind = DateTime{}
	case TypeEditor:
		d.Kind = Editor{}
	case TypeOptions:
		children, err := FromDSL(prefix, f.Children, codes)
		if err != nil {
			return d, err
		}
		k := Options{Fields: children, AddLabel: opts["add_label"]}
		if s := opts["max_rows"]; s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				return d, fmt.Errorf("max_rows: %w", err)
			}
			k.MaxRows = n
		}
		d.Kind = k
	case TypeDisplay:
		d.Kind = Display{Format: opts["format"]}
	case TypeButton:
		d.Kind = Button{Action: opts["action"]}
	case TypeVideo:
		d.Kind = Video{Accept: opts["accept"]}
	default:
		return d, fmt.Errorf("unknown field type %q", f.Type)
	}
	return d, nil
}
