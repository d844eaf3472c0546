package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DBPair separates read and write connections. With WAL enabled readers do
// not block the writer, and a single write connection avoids SQLITE_BUSY
// churn between concurrent writers.
type DBPair struct {
	reader *sql.DB
	writer *sql.DB
}

// Reader returns the read-only connection pool.
func (p *DBPair) Reader() *sql.DB { return p.reader }

// Writer returns the single-connection write pool.
func (p *DBPair) Writer() *sql.DB { return p.writer }

// Close closes both pools.
func (p *DBPair) Close() error {
	return errors.Join(p.reader.Close(), p.writer.Close())
}

// Init opens (creating if necessary) the SQLite database at dbPath, applies
// the schema, and brings older databases up to date.
func Init(dbPath string) (*DBPair, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	writer, err := openPool(dbPath, "rwc", 1, 1)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode = WAL;", "PRAGMA foreign_keys = ON;"} {
		if _, err := writer.Exec(pragma); err != nil {
			writer.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := writer.Exec(schemaSQL); err != nil {
		writer.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := runMigrations(writer); err != nil {
		writer.Close()
		return nil, err
	}

	// The read pool opens lazily, so this never races the schema setup above.
	reader, err := openPool(dbPath, "ro", 4, 2)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}

	return &DBPair{reader: reader, writer: writer}, nil
}

// openPool opens one SQLite pool. WAL journaling, a 5s busy timeout, and a
// shared cache are baked into every connection string.
func openPool(path, mode string, maxOpen, maxIdle int) (*sql.DB, error) {
	pool, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000&cache=shared&mode=%s", path, mode))
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(maxOpen)
	pool.SetMaxIdleConns(maxIdle)
	pool.SetConnMaxLifetime(time.Hour)
	return pool, nil
}

// Columns added after the initial schema. Each entry is applied only when
// the column is missing, so re-running on a current database is a no-op.
var columnMigrations = []struct {
	table  string
	column string
	ddl    string
}{
	{"history_events", "group_id", "ALTER TABLE history_events ADD COLUMN group_id INTEGER"},
	{"routines", "last_run_error", "ALTER TABLE routines ADD COLUMN last_run_error TEXT"},
}

func runMigrations(db *sql.DB) error {
	for _, m := range columnMigrations {
		columns, err := tableColumns(db, m.table)
		if err != nil {
			return err
		}
		if columns[m.column] {
			continue
		}
		if _, err := db.Exec(m.ddl); err != nil {
			return fmt.Errorf("add %s.%s: %w", m.table, m.column, err)
		}
	}
	return nil
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, colType    string
			defaultVal       sql.NullString
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		columns[name] = true
	}
	return columns, rows.Err()
}
