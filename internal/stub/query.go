package stub

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

type SortKey struct {
	Field string
	Desc  bool
}

type filterCond struct {
	field string
	op    string // eq, ne, in, gt, gte, lt, lte, like
	vals  []string
}

type ListParams struct {
	Limit   int
	Offset  int
	Sort    []SortKey
	Filters []filterCond
	Q       string
	Nulls   string // "last" (default) | "first"
}

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// служебные параметры листинга, не фильтры
var serviceKeys = map[string]bool{
	"q": true, "offset": true, "limit": true, "sort": true, "order": true,
	"_offset": true, "_limit": true, "_sort": true, "_order": true,
	"nulls": true, "page": true, "size": true,
}

func first(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

// ParseListParams разбирает query листинга:
//
//	?_limit=20&_offset=40&_sort=-CREATED_AT,NAME_EN&nulls=first
//	?page=3&size=20
//	?STATUS__in=READY,ACTIVE&PRICE__gte=1000&q=spring
func ParseListParams(q url.Values) ListParams {
	limit := defaultLimit
	if v := first(q, "_limit", "limit", "size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= maxLimit {
			limit = n
		}
	}

	offset := 0
	if v := first(q, "_offset", "offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	} else if v := first(q, "page"); v != "" {
		// page - с единицы
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			offset = (n - 1) * limit
		}
	}

	var keys []SortKey
	for _, p := range strings.Split(first(q, "_sort", "sort"), ",") {
		p = strings.TrimSpace(p)
		desc := false
		if strings.HasPrefix(p, "-") {
			desc = true
			p = p[1:]
		} else {
			p = strings.TrimPrefix(p, "+")
		}
		if p != "" {
			keys = append(keys, SortKey{Field: p, Desc: desc})
		}
	}
	// order=desc применяется к единственному ключу без знака
	if strings.EqualFold(first(q, "_order", "order"), "desc") && len(keys) == 1 {
		keys[0].Desc = true
	}

	nulls := strings.ToLower(first(q, "nulls"))
	if nulls != "first" {
		nulls = "last"
	}

	return ListParams{
		Limit:   limit,
		Offset:  offset,
		Sort:    keys,
		Filters: buildConds(q),
		Q:       strings.ToLower(first(q, "q")),
		Nulls:   nulls,
	}
}

func buildConds(q url.Values) []filterCond {
	names := make([]string, 0, len(q))
	for key := range q {
		if !serviceKeys[key] {
			names = append(names, key)
		}
	}
	sort.Strings(names)

	var out []filterCond
	for _, key := range names {
		v := strings.TrimSpace(q.Get(key))
		if v == "" {
			continue
		}
		// key: FIELD или FIELD__op
		field, op := key, "eq"
		if i := strings.LastIndex(key, "__"); i > 0 {
			field, op = key[:i], key[i+2:]
		}
		if strings.HasPrefix(v, "in:") {
			op, v = "in", strings.TrimPrefix(v, "in:")
		}
		parts := []string{v}
		if op == "in" {
			parts = parts[:0]
			for _, p := range strings.Split(v, ",") {
				if p = strings.TrimSpace(p); p != "" {
					parts = append(parts, p)
				}
			}
		}
		if len(parts) > 0 {
			out = append(out, filterCond{field: field, op: op, vals: parts})
		}
	}
	return out
}

// Apply фильтрует, сортирует и режет страницу. total - число строк после фильтра.
func (p ListParams) Apply(rows []map[string]any) (page []map[string]any, total int) {
	filtered := make([]map[string]any, 0, len(rows))
next:
	for _, r := range rows {
		for _, c := range p.Filters {
			if !match(r[c.field], c) {
				continue next
			}
		}
		if p.Q != "" && !containsText(r, p.Q) {
			continue
		}
		filtered = append(filtered, r)
	}

	if len(p.Sort) > 0 {
		sort.SliceStable(filtered, func(i, j int) bool {
			for _, k := range p.Sort {
				if c := cmpByKey(filtered[i], filtered[j], k.Field, p.Nulls, k.Desc); c != 0 {
					return c < 0
				}
			}
			return false
		})
	}

	total = len(filtered)
	start := min(p.Offset, total)
	end := min(start+p.Limit, total)
	return filtered[start:end], total
}

func containsText(r map[string]any, needle string) bool {
	for _, v := range r {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// compare: числа как числа, даты как даты, остальное строками.
func compare(a, b any) int {
	if x, ok := toNumber(a); ok {
		if y, ok := toNumber(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	if x, ok := toTime(a); ok {
		if y, ok := toTime(b); ok {
			return x.Compare(y)
		}
	}
	return strings.Compare(toString(a), toString(b))
}

func match(got any, c filterCond) bool {
	switch c.op {
	case "eq":
		return got != nil && strings.EqualFold(toString(got), c.vals[0])
	case "ne":
		return got == nil || !strings.EqualFold(toString(got), c.vals[0])
	case "in":
		if got == nil {
			return false
		}
		gs := toString(got)
		for _, w := range c.vals {
			if strings.EqualFold(gs, w) {
				return true
			}
		}
		return false
	case "like":
		return got != nil && strings.Contains(strings.ToLower(toString(got)), strings.ToLower(c.vals[0]))
	case "gt", "gte", "lt", "lte":
		if got == nil {
			return false
		}
		rel := compare(got, c.vals[0])
		switch c.op {
		case "gt":
			return rel > 0
		case "gte":
			return rel >= 0
		case "lt":
			return rel < 0
		default:
			return rel <= 0
		}
	}
	// неизвестный оператор - не совпало
	return false
}

// cmpByKey сравнивает две строки по ключу с учётом политики nulls и направления.
// Пустые значения уходят в конец/начало независимо от направления.
func cmpByKey(a, b map[string]any, key, nulls string, desc bool) int {
	va, vb := a[key], b[key]
	na, nb := va == nil, vb == nil
	if na && nb {
		return 0
	}
	if na != nb {
		if (nulls == "last") == na {
			return 1
		}
		return -1
	}
	rel := compare(va, vb)
	if desc {
		rel = -rel
	}
	return rel
}
