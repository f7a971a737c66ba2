package store

import (
	"strings"

	"github.com/datamill-io/syncmill/pkg/models"
)

// quote wraps an identifier in backticks. Identifiers reaching the
// builder are sanitized or configured, never remote input, but quoting
// keeps reserved words and prefixed names safe.
func quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "") + "`"
}

// BuildUpsert emits a parameterized insert-or-update statement for a row.
// Every non-key column is overwritten on conflict, so re-running an
// unchanged row is a no-op at the data level.
func BuildUpsert(table string, row *models.UpsertRow) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(quote(table))
	b.WriteString(" (")

	for i, col := range row.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quote(col))
	}
	b.WriteString(") VALUES (")
	for i := range row.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
	}
	b.WriteString(") ON DUPLICATE KEY UPDATE ")

	first := true
	for _, col := range row.Columns {
		if col == row.Key {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(quote(col))
		b.WriteString(" = VALUES(")
		b.WriteString(quote(col))
		b.WriteString(")")
	}
	if first {
		// key-only row: make the conflict clause a no-op
		b.WriteString(quote(row.Key))
		b.WriteString(" = VALUES(")
		b.WriteString(quote(row.Key))
		b.WriteString(")")
	}

	return b.String(), row.Values
}

// BuildCreateTable emits the DDL for a job's first run: the key column as
// primary key followed by every known column.
func BuildCreateTable(table string, key ColumnDef, cols []ColumnDef) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(quote(table))
	b.WriteString(" (")
	b.WriteString(quote(key.Name))
	b.WriteString(" ")
	b.WriteString(key.SQLType)
	b.WriteString(" NOT NULL")

	for _, col := range cols {
		b.WriteString(", ")
		b.WriteString(quote(col.Name))
		b.WriteString(" ")
		b.WriteString(col.SQLType)
	}

	b.WriteString(", PRIMARY KEY (")
	b.WriteString(quote(key.Name))
	b.WriteString("))")
	return b.String()
}
