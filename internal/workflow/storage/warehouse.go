// Package storage reads and writes workflow records in the Postgres
// warehouse. Every value that reaches SQL is a bound parameter; only table
// and column names from the allow-list are written into statement text.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"qms-workers/internal/models"
)

const (
	TableChangeRequests    = "dcr_requests"
	TableChangeApprovals   = "dcr_approvals"
	TableChangeDocuments   = "dcr_documents"
	TableCorrectiveActions = "capa_cases"
	TableCapaActions       = "capa_actions"
	TableCapaApprovals     = "capa_approvals"
)

var knownTables = map[string]bool{
	TableChangeRequests:    true,
	TableChangeApprovals:   true,
	TableChangeDocuments:   true,
	TableCorrectiveActions: true,
	TableCapaActions:       true,
	TableCapaApprovals:     true,
}

// Statement is a parameterized query. SQL uses $n placeholders that match
// Args by position.
type Statement struct {
	SQL  string
	Args []interface{}
}

// Warehouse is the tabular store holding workflow records.
type Warehouse interface {
	Insert(ctx context.Context, table string, rows []models.Record) error
	Query(ctx context.Context, stmt Statement) ([]models.Record, error)
	Exec(ctx context.Context, stmt Statement) (int64, error)
}

// Postgres implements Warehouse on a database/sql pool.
type Postgres struct {
	db     *sql.DB
	schema string
}

func NewPostgres(db *sql.DB, schema string) *Postgres {
	return &Postgres{db: db, schema: schema}
}

// Table returns the quoted, schema-qualified name of a known table.
func (p *Postgres) Table(name string) (string, error) {
	return qualify(p.schema, name)
}

func qualify(schema, table string) (string, error) {
	if !knownTables[table] {
		return "", fmt.Errorf("unknown table %q", table)
	}
	if schema == "" {
		return pq.QuoteIdentifier(table), nil
	}
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table), nil
}

// Insert writes rows in a single statement. Columns are taken from the first
// row in sorted order; later rows must carry the same keys.
func (p *Postgres) Insert(ctx context.Context, table string, rows []models.Record) error {
	if len(rows) == 0 {
		return nil
	}
	target, err := p.Table(table)
	if err != nil {
		return err
	}

	columns := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = pq.QuoteIdentifier(col)
	}

	args := make([]interface{}, 0, len(rows)*len(columns))
	tuples := make([]string, 0, len(rows))
	for r, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("row %d has %d columns, expected %d", r, len(row), len(columns))
		}
		placeholders := make([]string, len(columns))
		for i, col := range columns {
			val, ok := row[col]
			if !ok {
				return fmt.Errorf("row %d is missing column %q", r, col)
			}
			args = append(args, val)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		tuples = append(tuples, "("+strings.Join(placeholders, ", ")+")")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		target, strings.Join(quoted, ", "), strings.Join(tuples, ", "))

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// Query runs stmt and returns every row keyed by column name. Text and JSON
// columns arrive as strings.
func (p *Postgres) Query(ctx context.Context, stmt Statement) ([]models.Record, error) {
	rows, err := p.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]models.Record, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		rec := make(models.Record, len(columns))
		for i, col := range columns {
			rec[col] = normalizeValue(values[i])
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Exec runs stmt and returns the number of affected rows.
func (p *Postgres) Exec(ctx context.Context, stmt Statement) (int64, error) {
	res, err := p.db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.UTC().Format(time.RFC3339)
	}
	return v
}
