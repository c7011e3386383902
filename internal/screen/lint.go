package screen

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"backoffice/internal/dsl"
	"backoffice/internal/reference"
)

// Issue - замечание линтера к DSL формы.
type Issue struct {
	Screen  string `json:"screen"` // FQN: module.Screen
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Field == "" {
		return fmt.Sprintf("%s: %s", i.Screen, i.Message)
	}
	return fmt.Sprintf("%s.%s: %s", i.Screen, i.Field, i.Message)
}

var knownTypes = map[string]bool{
	"input": true, "inputnumber": true, "select": true, "upload": true,
	"date": true, "datetime": true, "editor": true, "options": true,
	"display": true, "button": true, "video": true,
}

// Lint проверяет базовые противоречия в DSL форм.
func Lint(screens map[string]*dsl.Screen, codes map[string]reference.CodeList) []Issue {
	var issues []Issue
	fqns := make([]string, 0, len(screens))
	for fqn := range screens {
		fqns = append(fqns, fqn)
	}
	sort.Strings(fqns)

	for _, fqn := range fqns {
		s := screens[fqn]
		names := fieldNames(s.Fields)

		if expr := s.Options["readonly_when"]; expr != "" {
			if f := condField(expr); f == "" || !names[f] {
				issues = append(issues, Issue{Screen: fqn, Code: "unknown_field",
					Message: fmt.Sprintf("readonly_when refers to unknown field %q", f)})
			}
		}
		issues = lintFields(issues, fqn, "", s.Fields, names, codes)
	}
	return issues
}

func lintFields(issues []Issue, fqn, prefix string, fields []dsl.Field, names map[string]bool, codes map[string]reference.CodeList) []Issue {
	seen := map[string]bool{}
	add := func(f dsl.Field, code, msg string) {
		issues = append(issues, Issue{Screen: fqn, Field: prefix + f.Name, Code: code, Message: msg})
	}

	for _, f := range fields {
		if seen[f.Name] {
			add(f, "duplicate_field", "field is declared twice")
		}
		seen[f.Name] = true

		if !knownTypes[f.Type] {
			add(f, "unknown_type", fmt.Sprintf("unknown field type %q", f.Type))
			continue
		}
		required := f.Flag("required")

		switch f.Type {
		case "options":
			if len(f.Children) == 0 {
				add(f, "options_empty", "options field has no child fields")
			}
			if f.Options["rows_path"] == "" && f.Options["row_key"] != "" {
				add(f, "row_key_without_path", "row_key has no effect without rows_path")
			}
			issues = lintFields(issues, fqn, prefix+f.Name+".", f.Children, fieldNames(f.Children), codes)
		case "select":
			code := f.Options["codes"]
			if code != "" {
				if _, ok := codes[code]; !ok {
					add(f, "codes_unknown", fmt.Sprintf("unknown code list %q", code))
				}
			} else if len(f.Enum) == 0 {
				add(f, "select_no_options", "select has neither inline values nor codes=")
			}
		case "display", "button":
			if required {
				add(f, "required_not_input", f.Type+" field cannot be required")
			}
		}

		if span := f.Options["span"]; span != "" {
			if n, err := strconv.Atoi(span); err != nil || n < 1 || n > 24 {
				add(f, "span_invalid", fmt.Sprintf("span %q must be 1..24", span))
			}
		}
		if f.Flag("hidden") && required {
			add(f, "required_hidden", "always hidden field cannot be required")
		}
		if expr := f.Options["hidden_when"]; expr != "" {
			if ref := condField(expr); ref == "" || !names[ref] {
				add(f, "unknown_field", fmt.Sprintf("hidden_when refers to unknown field %q", ref))
			}
		}
	}
	return issues
}

func fieldNames(fields []dsl.Field) map[string]bool {
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		out[f.Name] = true
	}
	return out
}

func condField(expr string) string {
	name, _, _ := strings.Cut(expr, ":")
	return strings.TrimSpace(name)
}
