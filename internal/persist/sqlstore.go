package persist

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"sheet/internal/cellstore"
	"sheet/internal/ref"
	"sheet/internal/sheet"
)

// SQLStore is an alternate persistence backend for the save/load
// subsystem, storing the same rows a text file would hold in a single
// table instead. It dispatches on a dbType string to the matching
// driver, supporting four DSN schemes behind one API.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQLStore opens (and, if needed, creates) the sheet_state table
// backing persistence for dbType/dsn. dbType is one of "sqlite",
// "postgres", "mysql", "sqlserver".
func OpenSQLStore(dbType, dsn string) (*SQLStore, error) {
	driverName, err := driverFor(dbType)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbType, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dbType, err)
	}
	store := &SQLStore{db: db, driver: driverName}
	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func driverFor(dbType string) (string, error) {
	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		return "sqlite", nil
	case "postgres", "postgresql":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	case "sqlserver", "mssql":
		return "sqlserver", nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", dbType)
	}
}

func (s *SQLStore) ensureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS sheet_state (
		cell_ref TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		formula_code INTEGER,
		parent1 TEXT,
		parent2 TEXT
	)`)
	return err
}

func (s *SQLStore) Close() error { return s.db.Close() }

// rebind rewrites '?' placeholders into whatever positional syntax the
// active driver expects. sqlite and mysql accept '?' directly; postgres
// wants '$1'-style, and the sqlserver driver wants '@p1'-style.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" && s.driver != "sqlserver" {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			if s.driver == "postgres" {
				fmt.Fprintf(&b, "$%d", n)
			} else {
				fmt.Fprintf(&b, "@p%d", n)
			}
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Save replaces the table contents with every non-default cell of sh,
// in one transaction.
func (s *SQLStore) Save(sh *sheet.Sheet) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM sheet_state"); err != nil {
		tx.Rollback()
		return err
	}

	b := sh.Bounds()
	for row := 0; row < b.Rows; row++ {
		for col := 0; col < b.Cols; col++ {
			key := sh.Store.Key(row, col)
			v := sh.Store.Get(key)
			m, hasMeta := sh.Store.Meta(key)
			if !hasMeta && v.Int == 0 && !v.IsError {
				continue
			}
			if err := s.insertCell(tx, row, col, v, m, hasMeta, b.Cols); err != nil {
				tx.Rollback()
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *SQLStore) insertCell(tx *sql.Tx, row, col int, v cellstore.Value, m cellstore.Meta, hasMeta bool, cols int) error {
	refStr := ref.FormatCellReference(row, col)
	val := "ERR"
	if !v.IsError {
		val = fmt.Sprintf("%d", v.Int)
	}
	if !hasMeta {
		_, err := tx.Exec(s.rebind(`INSERT INTO sheet_state (cell_ref, value) VALUES (?, ?)`), refStr, val)
		return err
	}
	p1, p2 := formulaOperandsText(m, cols)
	_, err := tx.Exec(
		s.rebind(`INSERT INTO sheet_state (cell_ref, value, formula_code, parent1, parent2) VALUES (?, ?, ?, ?, ?)`),
		refStr, val, int(m.Formula), p1, p2)
	return err
}

// Load clears sh's grid/metadata and replays every row in the table,
// skipping malformed rows the same way LoadText does.
func (s *SQLStore) Load(sh *sheet.Sheet) (LoadResult, error) {
	rows, err := s.db.Query("SELECT cell_ref, value, formula_code, parent1, parent2 FROM sheet_state")
	if err != nil {
		return LoadResult{}, err
	}
	defer rows.Close()

	sh.Reset()
	b := sh.Bounds()
	var result LoadResult
	for rows.Next() {
		var cellRef, value string
		var formulaCode sql.NullInt64
		var p1, p2 sql.NullString
		if err := rows.Scan(&cellRef, &value, &formulaCode, &p1, &p2); err != nil {
			result.Skipped++
			continue
		}
		fields := []string{"CELL", cellRef, value}
		if formulaCode.Valid {
			fields = append(fields, "FORMULA", fmt.Sprintf("%d", formulaCode.Int64), p1.String, p2.String)
		}
		if !loadCellLine(fields, sh, b) {
			result.Skipped++
		}
	}
	return result, rows.Err()
}
