package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lever-lab/backend/internal/storage/sqlite"
)

func newExecutor(t *testing.T) *Executor {
	t.Helper()

	client, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.InitSchema())
	require.NoError(t, client.SeedDemo())

	return NewExecutor(client.DB(), 5*time.Second)
}

func TestExecute_CountIsScalar(t *testing.T) {
	e := newExecutor(t)

	res, err := e.Execute(context.Background(), "SELECT COUNT(*) AS total FROM store_master WHERE is_active;")
	require.NoError(t, err)

	v, col, ok := res.Scalar()
	require.True(t, ok)
	assert.Equal(t, int64(24), v)
	assert.Equal(t, "total", col.Name)
	assert.Equal(t, KindNumber, col.Kind)
}

func TestExecute_ColumnKinds(t *testing.T) {
	e := newExecutor(t)

	res, err := e.Execute(context.Background(), `
		-- cost per lever
		WITH c AS (SELECT lever_id, capex FROM capex_fee)
		SELECT l.lever_name, c.capex, p.start_date
		FROM c
		JOIN lever_master l ON l.lever_id = c.lever_id
		CROSS JOIN (SELECT start_date FROM period_master LIMIT 1) p
		ORDER BY c.capex`)
	require.NoError(t, err)
	require.Equal(t, 9, res.RowCount)

	assert.Equal(t, []string{"lever_name", "capex", "start_date"}, res.ColumnNames())
	assert.Equal(t, KindText, res.Columns[0].Kind)
	assert.Equal(t, KindCurrency, res.Columns[1].Kind)
	assert.Equal(t, KindDate, res.Columns[2].Kind)
	assert.IsType(t, "", res.Rows[0][2])

	rec := res.Records()[0]
	assert.Equal(t, "Punta de góndola", rec["lever_name"])
}

func TestExecute_EmptyResult(t *testing.T) {
	e := newExecutor(t)

	res, err := e.Execute(context.Background(), "SELECT store_name FROM store_master WHERE id < 0")
	require.NoError(t, err)
	assert.Zero(t, res.RowCount)
	assert.Empty(t, res.Rows)
	_, _, ok := res.Scalar()
	assert.False(t, ok)
}

func TestExecute_RejectsWrites(t *testing.T) {
	e := newExecutor(t)

	for _, stmt := range []string{
		"DELETE FROM store_master",
		"UPDATE capex_fee SET capex = 0",
		"SELECT 1; DROP TABLE store_master",
		"   ",
	} {
		_, err := e.Execute(context.Background(), stmt)
		assert.ErrorIs(t, err, ErrQueryRejected, stmt)
	}
}

func countRows(t *testing.T, e *Executor, table string) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestExecute_QuotedCommentMarkerCannotHideWrite(t *testing.T) {
	e := newExecutor(t)
	before := countRows(t, e, "capex_fee")
	require.Equal(t, 9, before)

	_, err := e.Execute(context.Background(), "SELECT '--'; DELETE FROM capex_fee")
	assert.ErrorIs(t, err, ErrQueryRejected)
	assert.Equal(t, before, countRows(t, e, "capex_fee"))
}

func TestExecute_WritesInsideReadStatementAreRolledBack(t *testing.T) {
	e := newExecutor(t)
	before := countRows(t, e, "capex_fee")

	// Passes the keyword check; the transaction must discard the delete.
	_, _ = e.Execute(context.Background(), "WITH doomed AS (SELECT 1) DELETE FROM capex_fee")
	assert.Equal(t, before, countRows(t, e, "capex_fee"))

	stores := countRows(t, e, "store_master")
	_, _ = e.query(context.Background(), "DELETE FROM store_master")
	assert.Equal(t, stores, countRows(t, e, "store_master"))
}

func TestExecute_SemicolonInsideLiteralIsOneStatement(t *testing.T) {
	e := newExecutor(t)

	res, err := e.Execute(context.Background(), "SELECT COUNT(*) AS total FROM store_master WHERE store_name = 'a;b'")
	require.NoError(t, err)

	v, _, ok := res.Scalar()
	require.True(t, ok)
	assert.Equal(t, int64(0), v)
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"single", "SELECT 1", []string{"SELECT 1"}},
		{"trailing semicolon", "SELECT 1;  ", []string{"SELECT 1"}},
		{"two statements", "SELECT 1; DROP TABLE x", []string{"SELECT 1", "DROP TABLE x"}},
		{"marker in string", "SELECT '--'; DELETE FROM t", []string{"SELECT '--'", "DELETE FROM t"}},
		{"semicolon in string", "SELECT 'a;b'", []string{"SELECT 'a;b'"}},
		{"escaped quote", "SELECT 'it''s; fine'", []string{"SELECT 'it''s; fine'"}},
		{"quoted identifier", `SELECT "a;b" FROM t`, []string{`SELECT "a;b" FROM t`}},
		{"line comment", "SELECT 1 -- ; DROP TABLE x\n", []string{"SELECT 1"}},
		{"block comment", "SELECT /* ; */ 1", []string{"SELECT   1"}},
		{"only comments", "-- nothing\n/* here */", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitStatements(tt.in))
		})
	}
}

func TestExecute_InvalidSQLFails(t *testing.T) {
	e := newExecutor(t)

	_, err := e.Execute(context.Background(), "SELECT nope FROM missing_table")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrQueryRejected)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "$1,234,567.50", FormatValue(Column{Kind: KindCurrency}, 1234567.5))
	assert.Equal(t, "12.35%", FormatValue(Column{Kind: KindPercent}, 12.345))
	assert.Equal(t, "1,500", FormatValue(Column{Kind: KindNumber}, int64(1500)))
	assert.Equal(t, "-2,000.25", FormatValue(Column{Kind: KindNumber}, -2000.25))
	assert.Equal(t, "Cali", FormatValue(Column{Kind: KindText}, "Cali"))
	assert.Equal(t, "N/D", FormatValue(Column{Kind: KindNumber}, nil))
}
