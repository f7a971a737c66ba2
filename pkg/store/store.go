// Package store is the destination-side persistence layer: schema
// introspection, additive DDL, and idempotent keyed upserts against
// MySQL.
package store

import (
	"context"

	"github.com/datamill-io/syncmill/pkg/models"
)

// ColumnDef is one destination column for DDL purposes.
type ColumnDef struct {
	Name    string
	SQLType string
}

// Store is the destination collaborator the engine writes through.
// Implementations must make Upsert idempotent: exactly one row per key
// afterwards, non-key columns overwritten last-write-wins.
type Store interface {
	// TableExists reports whether the table is present
	TableExists(ctx context.Context, table string) (bool, error)

	// TableColumns lists the table's existing column names
	TableColumns(ctx context.Context, table string) ([]string, error)

	// CreateTable creates the table with the key column as primary key
	CreateTable(ctx context.Context, table string, key ColumnDef, cols []ColumnDef) error

	// AddColumn adds a column to an existing table
	AddColumn(ctx context.Context, table string, col ColumnDef) error

	// Upsert inserts the row or overwrites its non-key columns
	Upsert(ctx context.Context, table string, row *models.UpsertRow) error

	// Exists reports whether a row with the given column value exists;
	// parent reference resolution probes candidate tables through it
	Exists(ctx context.Context, table, column string, value interface{}) (bool, error)

	// ResetFlag zeroes a presence column across the whole table so a
	// following full walk can re-mark the rows still present remotely
	ResetFlag(ctx context.Context, table, column string) error

	// Close releases the connection pool
	Close() error
}
