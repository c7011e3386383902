package reference

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Locale - плоский словарь "coupon.title" -> текст.
type Locale struct {
	Lang     string
	messages map[string]string
}

// NewLocale собирает словарь из готовой карты (удобно в тестах).
func NewLocale(lang string, messages map[string]string) *Locale {
	m := make(map[string]string, len(messages))
	for k, v := range messages {
		m[k] = v
	}
	return &Locale{Lang: lang, messages: m}
}

// T возвращает перевод ключа; неизвестный ключ возвращается как есть.
func (l *Locale) T(key string) string {
	if l == nil {
		return key
	}
	if v, ok := l.messages[key]; ok {
		return v
	}
	return key
}

// Len - количество ключей.
func (l *Locale) Len() int {
	if l == nil {
		return 0
	}
	return len(l.messages)
}

// LoadLocale читает <dir>/<lang>.yaml. Вложенные карты разворачиваются в ключи через точку.
func LoadLocale(dir, lang string) (*Locale, error) {
	var path string
	for _, ext := range []string{".yaml", ".yml"} {
		p := filepath.Join(dir, lang+ext)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			path = p
			break
		}
	}
	if path == "" {
		return nil, fmt.Errorf("locale %q not found in %s", lang, dir)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make(map[string]string)
	flattenInto(out, "", raw)
	return &Locale{Lang: lang, messages: out}, nil
}

func flattenInto(out map[string]string, prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case map[string]any:
			flattenInto(out, key, t)
		case nil:
			out[key] = ""
		default:
			out[key] = strings.TrimSpace(fmt.Sprintf("%v", t))
		}
	}
}
