// Package query runs ad-hoc read queries produced by the assistant against the
// experiment store and returns typed, column-aware results.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/lever-lab/backend/pkg/logger"
)

var ErrQueryRejected = errors.New("only read queries are allowed")

type ColumnKind string

const (
	KindCurrency ColumnKind = "currency"
	KindPercent  ColumnKind = "percent"
	KindNumber   ColumnKind = "number"
	KindText     ColumnKind = "text"
	KindDate     ColumnKind = "date"
)

type Column struct {
	Name         string     `json:"name"`
	DatabaseType string     `json:"database_type"`
	Kind         ColumnKind `json:"kind"`
}

type Result struct {
	Columns  []Column `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}

func (r *Result) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// Records returns the rows as column name to value maps.
func (r *Result) Records() []map[string]any {
	out := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		rec := make(map[string]any, len(r.Columns))
		for i, c := range r.Columns {
			rec[c.Name] = row[i]
		}
		out = append(out, rec)
	}
	return out
}

// Scalar returns the single value of a one row, one column result.
func (r *Result) Scalar() (any, Column, bool) {
	if r.RowCount != 1 || len(r.Columns) != 1 || len(r.Rows) != 1 {
		return nil, Column{}, false
	}
	return r.Rows[0][0], r.Columns[0], true
}

type Executor struct {
	db      *sql.DB
	timeout time.Duration
}

func NewExecutor(db *sql.DB, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Executor{db: db, timeout: timeout}
}

// Execute runs one read statement under the executor timeout.
func (e *Executor) Execute(ctx context.Context, statement string) (*Result, error) {
	statement = strings.TrimSpace(statement)
	if err := checkReadOnly(statement); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	result, err := e.query(ctx, statement)
	if err != nil {
		return nil, err
	}

	logger.Debug("Query executed",
		zap.Int("rows", result.RowCount),
		zap.Duration("duration", time.Since(start)),
	)

	return result, nil
}

// query runs statement in a read-only transaction that is always rolled back.
// Drivers that ignore ReadOnly (go-sqlite3) still discard any write.
func (e *Executor) query(ctx context.Context, statement string) (*Result, error) {
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	result := &Result{Columns: make([]Column, len(types)), Rows: [][]any{}}
	for i, t := range types {
		result.Columns[i] = Column{Name: t.Name(), DatabaseType: strings.ToUpper(t.DatabaseTypeName())}
	}

	for rows.Next() {
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i := range values {
			values[i] = normalize(values[i])
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	result.RowCount = len(result.Rows)
	for i := range result.Columns {
		result.Columns[i].Kind = classify(result.Columns[i], result.Rows, i)
	}
	return result, nil
}

func checkReadOnly(statement string) error {
	stmts := splitStatements(statement)
	switch {
	case len(stmts) == 0:
		return fmt.Errorf("empty query: %w", ErrQueryRejected)
	case len(stmts) > 1:
		return fmt.Errorf("multiple statements: %w", ErrQueryRejected)
	}

	first := leadingKeyword(stmts[0])
	if first != "SELECT" && first != "WITH" {
		return fmt.Errorf("statement %q: %w", first, ErrQueryRejected)
	}
	return nil
}

// splitStatements splits s on semicolons and drops comments. Quoted strings
// and identifiers are copied through untouched, so a ';' or '--' inside them
// neither ends a statement nor starts a comment.
func splitStatements(s string) []string {
	var (
		out []string
		b   strings.Builder
	)
	flush := func() {
		if stmt := strings.TrimSpace(b.String()); stmt != "" {
			out = append(out, stmt)
		}
		b.Reset()
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			j := i + 1
			for j < len(s) {
				if s[j] == c {
					// A doubled quote is an escaped quote.
					if j+1 < len(s) && s[j+1] == c {
						j += 2
						continue
					}
					break
				}
				j++
			}
			if j >= len(s) {
				j = len(s) - 1
			}
			b.WriteString(s[i : j+1])
			i = j

		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			b.WriteByte('\n')

		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += end + 3
			}
			b.WriteByte(' ')

		case c == ';':
			flush()

		default:
			b.WriteByte(c)
		}
	}
	flush()

	return out
}

func leadingKeyword(stmt string) string {
	stmt = strings.TrimLeft(stmt, "( \t\r\n")
	end := strings.IndexFunc(stmt, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		end = len(stmt)
	}
	return strings.ToUpper(stmt[:end])
}

func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.Format("2006-01-02")
	default:
		return v
	}
}

var (
	currencyHints = []string{"capex", "fee", "revenue", "ingreso", "venta", "precio", "costo", "monto", "valor"}
	percentHints  = []string{"pct", "percent", "porcentaje", "variation", "variacion", "tasa", "uplift", "roi"}
	dateHints     = []string{"date", "fecha"}
)

func classify(c Column, rows [][]any, idx int) ColumnKind {
	name := strings.ToLower(c.Name)

	switch {
	case containsAny(name, dateHints):
		return KindDate
	case containsAny(name, percentHints):
		return KindPercent
	case containsAny(name, currencyHints) && numericColumn(c, rows, idx):
		return KindCurrency
	case numericColumn(c, rows, idx):
		return KindNumber
	case strings.Contains(c.DatabaseType, "DATE") || strings.Contains(c.DatabaseType, "TIME"):
		return KindDate
	default:
		return KindText
	}
}

func numericColumn(c Column, rows [][]any, idx int) bool {
	for _, hint := range []string{"INT", "REAL", "FLOAT", "DOUBLE", "NUMERIC", "DECIMAL"} {
		if strings.Contains(c.DatabaseType, hint) {
			return true
		}
	}
	for _, row := range rows {
		switch row[idx].(type) {
		case nil:
			continue
		case int64, int32, int, float64, float32:
			return true
		default:
			return false
		}
	}
	return false
}

func containsAny(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}
