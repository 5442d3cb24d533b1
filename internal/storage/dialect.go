package storage

import (
	"strconv"
	"strings"
)

// dialect captures what differs between the SQL backends: the driver to
// open, the schema DDL and the placeholder syntax.
type dialect struct {
	name       string
	driverName string
	numbered   bool // $1, $2 placeholders instead of ?
	migrations []string
	// ignorable reports migration errors that mean "already applied".
	ignorable func(error) bool
	// duplicate reports unique constraint violations.
	duplicate func(error) bool
}

var dialects = map[string]dialect{
	"sqlite": {
		name:       "sqlite",
		driverName: "sqlite",
		migrations: schema(columnTypes{id: "TEXT", key: "TEXT", text: "TEXT", ts: "DATETIME", boolean: "INTEGER"}, true),
		ignorable:  func(err error) bool { return strings.Contains(err.Error(), "duplicate column") },
		duplicate:  func(err error) bool { return strings.Contains(err.Error(), "UNIQUE constraint failed") },
	},
	"postgres": {
		name:       "postgres",
		driverName: "postgres",
		numbered:   true,
		migrations: schema(columnTypes{id: "TEXT", key: "TEXT", text: "TEXT", ts: "TIMESTAMPTZ", boolean: "BOOLEAN"}, true),
		ignorable:  func(err error) bool { return strings.Contains(err.Error(), "already exists") },
		duplicate:  func(err error) bool { return strings.Contains(err.Error(), "duplicate key value") },
	},
	"mysql": {
		name:       "mysql",
		driverName: "mysql",
		migrations: schema(columnTypes{id: "VARCHAR(64)", key: "VARCHAR(191)", text: "TEXT", ts: "DATETIME(6)", boolean: "BOOLEAN"}, false),
		// 1061: duplicate key name
		ignorable: func(err error) bool { return strings.Contains(err.Error(), "Error 1061") },
		// 1062: duplicate entry
		duplicate: func(err error) bool { return strings.Contains(err.Error(), "Error 1062") },
	},
}

type columnTypes struct {
	id, key, text, ts, boolean string
}

// schema renders the DDL for one dialect. MySQL has no CREATE INDEX IF NOT
// EXISTS, so there a duplicate index error is tolerated instead.
func schema(t columnTypes, indexIfNotExists bool) []string {
	r := strings.NewReplacer(
		"{id}", t.id,
		"{key}", t.key,
		"{text}", t.text,
		"{ts}", t.ts,
		"{bool}", t.boolean,
	)
	ifNotExists := ""
	if indexIfNotExists {
		ifNotExists = "IF NOT EXISTS "
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pages (
			id {id} PRIMARY KEY,
			tenant_id {id} NOT NULL,
			slug {key} NOT NULL UNIQUE,
			title {text} NOT NULL,
			description {text} NOT NULL,
			style_json {text} NOT NULL,
			settings_json {text} NOT NULL,
			is_active {bool} NOT NULL,
			views INTEGER NOT NULL DEFAULT 0,
			last_viewed_at {ts} NULL,
			published_at {ts} NULL,
			created_at {ts} NOT NULL,
			updated_at {ts} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS blocks (
			id {id} PRIMARY KEY,
			page_id {id} NOT NULL,
			type {key} NOT NULL,
			title {text} NOT NULL,
			content {text} NOT NULL,
			x INTEGER NOT NULL DEFAULT 0,
			y INTEGER NOT NULL DEFAULT 0,
			width INTEGER NOT NULL DEFAULT 1,
			height INTEGER NOT NULL DEFAULT 2,
			style_json {text} NOT NULL,
			settings_json {text} NOT NULL,
			is_active {bool} NOT NULL,
			created_at {ts} NOT NULL,
			updated_at {ts} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS layout_snapshots (
			id {id} PRIMARY KEY,
			page_id {id} NOT NULL,
			label {text} NOT NULL,
			placements_json {text} NOT NULL,
			created_at {ts} NOT NULL
		)`,
		`CREATE INDEX ` + ifNotExists + `idx_pages_tenant ON pages(tenant_id)`,
		`CREATE INDEX ` + ifNotExists + `idx_blocks_page ON blocks(page_id)`,
		`CREATE INDEX ` + ifNotExists + `idx_layout_snapshots_page ON layout_snapshots(page_id)`,
	}
	for i, s := range stmts {
		stmts[i] = r.Replace(s)
	}
	return stmts
}

// rebind rewrites ? placeholders to $n for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
