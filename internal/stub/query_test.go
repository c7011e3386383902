package stub

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListParams(t *testing.T) {
	q, err := url.ParseQuery("_limit=20&_offset=40&_sort=-PRICE,+NAME&nulls=first&q=Spring&STATUS__in=READY,ACTIVE&EMPTY=")
	require.NoError(t, err)
	p := ParseListParams(q)

	assert.Equal(t, 20, p.Limit)
	assert.Equal(t, 40, p.Offset)
	assert.Equal(t, []SortKey{{Field: "PRICE", Desc: true}, {Field: "NAME"}}, p.Sort)
	assert.Equal(t, "first", p.Nulls)
	assert.Equal(t, "spring", p.Q)
	require.Len(t, p.Filters, 1)
	assert.Equal(t, filterCond{field: "STATUS", op: "in", vals: []string{"READY", "ACTIVE"}}, p.Filters[0])
}

func TestParseListParams_PageAndDefaults(t *testing.T) {
	p := ParseListParams(url.Values{"page": {"3"}, "size": {"10"}, "sort": {"NAME"}, "order": {"desc"}})
	assert.Equal(t, 10, p.Limit)
	assert.Equal(t, 20, p.Offset)
	assert.Equal(t, []SortKey{{Field: "NAME", Desc: true}}, p.Sort)

	p = ParseListParams(url.Values{"limit": {"5000"}, "offset": {"-1"}, "nulls": {"weird"}})
	assert.Equal(t, defaultLimit, p.Limit)
	assert.Equal(t, 0, p.Offset)
	assert.Equal(t, "last", p.Nulls)
	assert.Empty(t, p.Filters)
}

func sampleRows() []map[string]any {
	return []map[string]any{
		{"ID": "1", "NAME": "Spring sale", "PRICE": 300.0, "STATUS": "READY", "START": "2025-03-01"},
		{"ID": "2", "NAME": "Summer", "PRICE": 1200.0, "STATUS": "ACTIVE", "START": "2025-06-01"},
		{"ID": "3", "NAME": "Autumn", "PRICE": nil, "STATUS": "FINISHED", "START": "2025-09-01"},
		{"ID": "4", "NAME": "Winter", "PRICE": 90.0, "STATUS": "active"},
	}
}

func ids(rows []map[string]any) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r["ID"].(string))
	}
	return out
}

func TestApply_Filters(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  []string
	}{
		{"eq is case-insensitive", "STATUS=active", []string{"2", "4"}},
		{"in", "STATUS__in=READY,FINISHED", []string{"1", "3"}},
		{"in prefix", "STATUS=in:READY,FINISHED", []string{"1", "3"}},
		{"ne keeps nulls", "PRICE__ne=300", []string{"2", "3", "4"}},
		{"numeric gte", "PRICE__gte=300", []string{"1", "2"}},
		{"numeric lt skips null", "PRICE__lt=1000", []string{"1", "4"}},
		{"date range", "START__gte=2025-04-01&START__lt=2025-12-31", []string{"2", "3"}},
		{"like", "NAME__like=umm", []string{"2"}},
		{"q over strings", "q=SPRING", []string{"1"}},
		{"unknown op", "NAME__regex=.*", []string{}},
		{"missing field", "NOPE=x", []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := url.ParseQuery(tc.query)
			require.NoError(t, err)
			page, total := ParseListParams(q).Apply(sampleRows())
			assert.Equal(t, tc.want, ids(page))
			assert.Equal(t, len(tc.want), total)
		})
	}
}

func TestApply_SortNulls(t *testing.T) {
	page, _ := ParseListParams(url.Values{"_sort": {"PRICE"}}).Apply(sampleRows())
	assert.Equal(t, []string{"4", "1", "2", "3"}, ids(page), "numbers sort numerically, nulls last")

	page, _ = ParseListParams(url.Values{"_sort": {"-PRICE"}}).Apply(sampleRows())
	assert.Equal(t, []string{"2", "1", "4", "3"}, ids(page), "nulls stay last when descending")

	page, _ = ParseListParams(url.Values{"_sort": {"PRICE"}, "nulls": {"first"}}).Apply(sampleRows())
	assert.Equal(t, []string{"3", "4", "1", "2"}, ids(page))

	page, _ = ParseListParams(url.Values{"_sort": {"STATUS,-ID"}}).Apply(sampleRows())
	assert.Equal(t, []string{"2", "3", "1", "4"}, ids(page))
}

func TestApply_Paging(t *testing.T) {
	page, total := ParseListParams(url.Values{"_limit": {"2"}, "_offset": {"1"}}).Apply(sampleRows())
	assert.Equal(t, []string{"2", "3"}, ids(page))
	assert.Equal(t, 4, total)

	page, total = ParseListParams(url.Values{"_offset": {"10"}}).Apply(sampleRows())
	assert.Empty(t, page)
	assert.Equal(t, 4, total)
}
