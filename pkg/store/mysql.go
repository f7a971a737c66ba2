package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/datamill-io/syncmill/pkg/config"
	"github.com/datamill-io/syncmill/pkg/errors"
	"github.com/datamill-io/syncmill/pkg/models"
)

// MySQLStore implements Store on a shared database/sql pool. Every
// statement is its own atomic unit; no transaction spans more than one
// upsert, so a mid-run failure leaves partially-applied results that the
// next idempotent run repairs.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens the connection pool and verifies connectivity.
func NewMySQLStore(cfg config.DatabaseConfig) (*MySQLStore, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "opening database")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Std())

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "connecting to database")
	}
	return &MySQLStore{db: db}, nil
}

// DB exposes the underlying pool for callers needing raw access.
func (s *MySQLStore) DB() *sql.DB { return s.db }

func (s *MySQLStore) TableExists(ctx context.Context, table string) (bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
		table).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeQuery, "checking table existence")
	}
	return true, nil
}

func (s *MySQLStore) TableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SHOW COLUMNS FROM %s", quote(table)))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery,
			fmt.Sprintf("listing columns of %s", table))
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var field, colType, null, key string
		var def sql.NullString
		var extra string
		if err := rows.Scan(&field, &colType, &null, &key, &def, &extra); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "scanning column row")
		}
		cols = append(cols, field)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "iterating column rows")
	}
	return cols, nil
}

func (s *MySQLStore) CreateTable(ctx context.Context, table string, key ColumnDef, cols []ColumnDef) error {
	ddl := BuildCreateTable(table, key, cols)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery,
			fmt.Sprintf("creating table %s", table))
	}
	return nil
}

func (s *MySQLStore) AddColumn(ctx context.Context, table string, col ColumnDef) error {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quote(table), quote(col.Name), col.SQLType)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, errors.ErrorTypeSchemaConflict,
			fmt.Sprintf("adding column %s to %s", col.Name, table))
	}
	return nil
}

func (s *MySQLStore) Upsert(ctx context.Context, table string, row *models.UpsertRow) error {
	query, args := BuildUpsert(table, row)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery,
			fmt.Sprintf("upserting into %s", table))
	}
	return nil
}

func (s *MySQLStore) Exists(ctx context.Context, table, column string, value interface{}) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ? LIMIT 1", quote(table), quote(column))
	var one int
	err := s.db.QueryRowContext(ctx, query, value).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeQuery,
			fmt.Sprintf("probing %s.%s", table, column))
	}
	return true, nil
}

func (s *MySQLStore) ResetFlag(ctx context.Context, table, column string) error {
	stmt := fmt.Sprintf("UPDATE %s SET %s = 0", quote(table), quote(column))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery,
			fmt.Sprintf("resetting %s.%s", table, column))
	}
	return nil
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}
