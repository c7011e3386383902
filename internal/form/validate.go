package form

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string { return e.Field + ": " + e.Message }

// Коды ошибок валидации
const (
	ErrRequired      = "required"
	ErrTypeMismatch  = "type_mismatch"
	ErrOptionInvalid = "option_invalid"
	ErrOutOfRange    = "out_of_range"
	ErrTooMany       = "too_many"
)

var (
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Validate проверяет и НОРМАЛИЗУЕТ values по дескрипторам.
// Скрытые поля не проверяются: они не отрисованы.
func Validate(ds []Descriptor, values Values) []FieldError {
	return validateAt(ds, values, "")
}

func validateAt(ds []Descriptor, values Values, prefix string) []FieldError {
	var errs []FieldError
	for _, d := range ds {
		if d.IsHidden(values) {
			continue
		}
		path := prefix + d.Name
		v := values[d.Name]

		switch d.Kind.(type) {
		case Display, Button:
			continue
		}

		if isEmpty(v) {
			if d.Required {
				errs = append(errs, ferr(ErrRequired, path, "Field '"+path+"' is required"))
			}
			continue
		}
		switch k := d.Kind.(type) {
		case Input:
			s, err := toStringStrict(v)
			if err != nil {
				errs = append(errs, ferr(ErrTypeMismatch, path, err.Error()))
				continue
			}
			if k.MaxLength > 0 && len([]rune(s)) > k.MaxLength {
				errs = append(errs, ferr(ErrOutOfRange, path, fmt.Sprintf("must be at most %d characters", k.MaxLength)))
				continue
			}
			values[d.Name] = s
		case Editor:
			s, err := toStringStrict(v)
			if err != nil {
				errs = append(errs, ferr(ErrTypeMismatch, path, err.Error()))
				continue
			}
			values[d.Name] = s
		case InputNumber:
			f, err := toFloatStrict(v)
			if err != nil {
				errs = append(errs, ferr(ErrTypeMismatch, path, err.Error()))
				continue
			}
			if (k.Min != nil && f < *k.Min) || (k.Max != nil && f > *k.Max) {
				errs = append(errs, ferr(ErrOutOfRange, path, "value out of range"))
				continue
			}
			values[d.Name] = f
		case Select:
			norm, fe := validateSelect(k, path, v)
			if fe != nil {
				errs = append(errs, *fe)
				continue
			}
			values[d.Name] = norm
		case Date:
			s, err := toStringStrict(v)
			if err == nil && !dateRe.MatchString(s) {
				err = errors.New("must match YYYY-MM-DD")
			}
			if err == nil {
				if _, perr := time.Parse("2006-01-02", s); perr != nil {
					err = errors.New("invalid date")
				}
			}
			if err != nil {
				errs = append(errs, ferr(ErrTypeMismatch, path, err.Error()))
				continue
			}
			values[d.Name] = s
		case DateTime:
			s, err := toStringStrict(v)
			if err == nil {
				if _, perr := time.Parse(time.RFC3339, s); perr != nil {
					err = errors.New("must be RFC3339 datetime")
				}
			}
			if err != nil {
				errs = append(errs, ferr(ErrTypeMismatch, path, err.Error()))
				continue
			}
			values[d.Name] = s
		case Upload:
			list, err := toStringList(v)
			if err != nil {
				errs = append(errs, ferr(ErrTypeMismatch, path, err.Error()))
				continue
			}
			if k.MaxCount > 0 && len(list) > k.MaxCount {
				errs = append(errs, ferr(ErrTooMany, path, fmt.Sprintf("at most %d files", k.MaxCount)))
				continue
			}
		case Video:
			if _, err := toStringList(v); err != nil {
				errs = append(errs, ferr(ErrTypeMismatch, path, err.Error()))
			}
		case Options:
			if Rows(values, d.Name) == nil {
				errs = append(errs, ferr(ErrTypeMismatch, path, "must be a list of rows"))
				continue
			}
			rows := Rows(values, d.Name)
			if k.MaxRows > 0 && len(rows) > k.MaxRows {
				errs = append(errs, ferr(ErrTooMany, path, fmt.Sprintf("at most %d rows", k.MaxRows)))
			}
			for i, row := range rows {
				errs = append(errs, validateAt(k.Fields, row, fmt.Sprintf("%s.%d.", path, i))...)
			}
			SetRows(values, d.Name, rows)
		default:
			panic(fmt.Sprintf("form: unhandled kind %T", d.Kind))
		}
	}
	return errs
}

func validateSelect(k Select, path string, v any) (any, *FieldError) {
	check := func(s string) *FieldError {
		if len(k.Options) == 0 {
			return nil
		}
		for _, o := range k.Options {
			if o.Value == s {
				return nil
			}
		}
		fe := ferr(ErrOptionInvalid, path, fmt.Sprintf("value '%s' is not allowed", s))
		return &fe
	}
	if k.Multiple {
		list, err := toStringList(v)
		if err != nil {
			fe := ferr(ErrTypeMismatch, path, err.Error())
			return nil, &fe
		}
		out := make([]any, 0, len(list))
		for _, s := range list {
			if fe := check(s); fe != nil {
				return nil, fe
			}
			out = append(out, s)
		}
		return out, nil
	}
	s, err := toScalarString(v)
	if err != nil {
		fe := ferr(ErrTypeMismatch, path, err.Error())
		return nil, &fe
	}
	if fe := check(s); fe != nil {
		return nil, fe
	}
	return s, nil
}

// isEmpty - пустое значение для required: nil, пустая строка, пустой список.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case []map[string]any:
		return len(t) == 0
	case []Values:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func toStringStrict(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", errors.New("must be string")
}

// toScalarString - значение select может прийти числом (коды 1/2/3).
func toScalarString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case bool:
		return strconv.FormatBool(t), nil
	}
	return "", errors.New("must be a scalar value")
}

func toFloatStrict(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, errors.New("must be number")
		}
		return f, nil
	}
	return 0, errors.New("must be number")
}

func toStringList(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for i, it := range t {
			s, ok := it.(string)
			if !ok {
				return nil, fmt.Errorf("element %d must be string", i)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, errors.New("must be string or list of strings")
}

func ferr(code, field, msg string) FieldError {
	return FieldError{Code: code, Field: field, Message: msg}
}
