package pg

import (
	"fmt"
	"strings"
)

// DefaultSchema - схема таблицы записей по умолчанию.
const DefaultSchema = "backoffice"

var reserved = map[string]struct{}{
	"user": {}, "select": {}, "table": {}, "insert": {}, "update": {}, "delete": {},
	"where": {}, "join": {}, "group": {}, "order": {}, "limit": {}, "offset": {},
	"primary": {}, "foreign": {}, "key": {}, "constraint": {}, "default": {},
	"from": {}, "into": {}, "values": {}, "unique": {}, "index": {}, "create": {},
	"drop": {}, "alter": {}, "schema": {}, "grant": {}, "revoke": {},
}

func isReserved(s string) bool { _, ok := reserved[strings.ToLower(s)]; return ok }

// safeSchema: lower, только [a-z0-9_], «опасные» имена с префиксом.
func safeSchema(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return DefaultSchema
	}
	if isReserved(s) || (s[0] >= '0' && s[0] <= '9') {
		s = "s_" + s
	}
	return s
}

func sqlIdent(s string) string { return `"` + strings.ToLower(s) + `"` }

// recordsTable - полное имя таблицы записей в схеме.
func recordsTable(schema string) string {
	return sqlIdent(safeSchema(schema)) + "." + sqlIdent("records")
}

// GenerateDDL возвращает шаги DDL для таблицы записей. Ключи задают порядок применения.
//
// Все коллекции живут в одной таблице: поля записи лежат в jsonb, системные
// колонки (version, created_at, updated_at, deleted) - отдельно.
func GenerateDDL(schema string) map[string]string {
	mod := safeSchema(schema)
	tbl := recordsTable(schema)

	out := make(map[string]string, 3)
	out["000_schema"] = fmt.Sprintf("create schema if not exists %s;", sqlIdent(mod))

	cols := []string{
		`"collection" text not null`,
		`"id" text not null`,
		`"version" bigint not null default 1`,
		`"created_at" timestamp with time zone not null`,
		`"updated_at" timestamp with time zone not null`,
		`"deleted" boolean not null default false`,
		`"data" jsonb not null default '{}'::jsonb`,
		`primary key ("collection", "id")`,
	}
	out["100_records"] = fmt.Sprintf("create table if not exists %s (\n  %s\n);", tbl, strings.Join(cols, ",\n  "))

	// список коллекции читает только живые записи
	out["200_records_live_idx"] = fmt.Sprintf(
		"create index if not exists %s on %s(%s, %s) where not %s;",
		sqlIdent(mod+"_records_live_idx"), tbl, sqlIdent("collection"), sqlIdent("created_at"), sqlIdent("deleted"))
	return out
}
