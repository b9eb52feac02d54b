package sqlstore

import (
	"fmt"
	"strings"
)

// Statement templates. %s is replaced by quoted identifiers only, every value
// is bound as a parameter.
const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS %s (
	key TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 0,
	codecs BLOB NOT NULL,
	value BLOB NOT NULL,
	created_at_ms INTEGER NOT NULL,
	expires_at_ms INTEGER NULL,
	PRIMARY KEY (key, version)
)`
	createIndexSQL = `CREATE INDEX IF NOT EXISTS %s ON %s (key)`

	selectOneSQL    = `SELECT codecs, value, expires_at_ms FROM %s WHERE key = ? AND version = 0`
	existsOneSQL    = `SELECT EXISTS(SELECT 1 FROM %s WHERE key = ? AND version = 0)`
	upsertOneSQL    = `INSERT OR REPLACE INTO %s (key, version, codecs, value, created_at_ms, expires_at_ms) VALUES (?, 0, ?, ?, ?, ?)`
	deleteOneSQL    = `DELETE FROM %s WHERE key = ? AND version = 0`
	listKeysSQL     = `SELECT key FROM %s WHERE version = 0 ORDER BY key`
	listKeysLikeSQL = `SELECT key FROM %s WHERE version = 0 AND key LIKE ? ORDER BY key`
	scanInfoSQL     = `SELECT length(value), length(codecs), expires_at_ms FROM %s WHERE version = 0`

	findTableSQL  = `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE`
	listTablesSQL = `SELECT name FROM sqlite_master WHERE type = 'table' AND substr(name, 1, 3) = 'tl_' ORDER BY name`

	// restores every row parked in the negative version space by a rename
	restoreParkedSQL = `UPDATE %s SET version = -1 - version WHERE version < 0`
)

// bindsPerRow is the number of parameters of one upserted row
const bindsPerRow = 5

// placeholders returns n comma separated parameter markers
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func selectManySQL(table string, n int) string {
	return fmt.Sprintf(`SELECT key, codecs, value, expires_at_ms FROM %s WHERE version = 0 AND key IN (%s)`, table, placeholders(n))
}

func existsManySQL(table string, n int) string {
	return fmt.Sprintf(`SELECT key FROM %s WHERE version = 0 AND key IN (%s)`, table, placeholders(n))
}

func deleteManySQL(table string, n int) string {
	return fmt.Sprintf(`DELETE FROM %s WHERE version = 0 AND key IN (%s)`, table, placeholders(n))
}

func upsertManySQL(table string, rows int) string {
	var sb strings.Builder
	sb.WriteString("INSERT OR REPLACE INTO ")
	sb.WriteString(table)
	sb.WriteString(" (key, version, codecs, value, created_at_ms, expires_at_ms) VALUES ")
	for i := 0; i < rows; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, 0, ?, ?, ?, ?)")
	}
	return sb.String()
}

// renameSQL moves n keys in one statement and parks the moved rows in the
// negative version space. Arguments: n (old, new) pairs, then n old keys.
func renameSQL(table string, n int) string {
	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(table)
	sb.WriteString(" SET key = CASE key")
	for i := 0; i < n; i++ {
		sb.WriteString(" WHEN ? THEN ?")
	}
	sb.WriteString(" END, version = -1 - version WHERE version = 0 AND key IN (")
	sb.WriteString(placeholders(n))
	sb.WriteString(")")
	return sb.String()
}

// stringArgs converts keys to statement arguments
func stringArgs(keys []string) []any {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return args
}
