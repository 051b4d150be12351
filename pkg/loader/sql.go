package loader

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/docdiff/docdiff/internal/model"
)

// SQLEngine executes SQL against DuckDB and returns results as tables.
type SQLEngine struct {
	db      *sql.DB
	threads int
}

// OpenSQL opens a DuckDB database. An empty dsn is an in-memory database.
func OpenSQL(dsn string) (*SQLEngine, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DuckDB: %w", err)
	}

	e := &SQLEngine{
		db:      db,
		threads: runtime.NumCPU(),
	}
	if _, err := e.db.Exec(fmt.Sprintf("SET threads=%d", e.threads)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure DuckDB: %w", err)
	}
	return e, nil
}

// NewSQLEngineWithDB wraps an existing connection.
func NewSQLEngineWithDB(db *sql.DB) *SQLEngine {
	return &SQLEngine{db: db, threads: runtime.NumCPU()}
}

// Close closes the database.
func (e *SQLEngine) Close() error {
	return e.db.Close()
}

// Exec runs a statement that returns no rows.
func (e *SQLEngine) Exec(ctx context.Context, stmt string, args ...any) (sql.Result, error) {
	return e.db.ExecContext(ctx, stmt, args...)
}

// QueryResult is a fully materialized query result.
type QueryResult struct {
	Columns  []string
	Rows     []model.Row
	Duration time.Duration
}

// Query runs a query and materializes every row with normalized cell values.
func (e *SQLEngine) Query(ctx context.Context, query string, args ...any) (*QueryResult, error) {
	start := time.Now()

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	columns := uniqueColumns(cols)

	var out []model.Row
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(model.Row, len(columns))
		for i, col := range columns {
			row[col] = scalar(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &QueryResult{Columns: columns, Rows: out, Duration: time.Since(start)}, nil
}

// RunScript executes a semicolon-separated script statement by statement.
func (e *SQLEngine) RunScript(ctx context.Context, script string) error {
	for i, stmt := range splitStatements(script) {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return nil
}

// FirstTable returns the earliest created table, or "" when there is none.
func (e *SQLEngine) FirstTable(ctx context.Context) (string, error) {
	var name string
	err := e.db.QueryRowContext(ctx,
		"SELECT table_name FROM duckdb_tables() WHERE NOT internal ORDER BY table_oid LIMIT 1").Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return name, err
}

// ListTables lists user tables in creation order.
func (e *SQLEngine) ListTables(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, "SELECT table_name FROM duckdb_tables() WHERE NOT internal ORDER BY table_oid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Schema describes user tables as "table(column TYPE, ...)" lines for
// prompts.
func (e *SQLEngine) Schema(ctx context.Context) (string, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT table_name, column_name, data_type
		FROM duckdb_columns() WHERE NOT internal
		ORDER BY table_oid, column_index`)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var (
		sb      strings.Builder
		current string
	)
	for rows.Next() {
		var table, column, typ string
		if err := rows.Scan(&table, &column, &typ); err != nil {
			return "", err
		}
		if table != current {
			if current != "" {
				sb.WriteString(")\n")
			}
			fmt.Fprintf(&sb, "%s(", table)
			current = table
		} else {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s %s", column, typ)
	}
	if current != "" {
		sb.WriteString(")")
	}
	return sb.String(), rows.Err()
}

// QuerySource runs query and returns its result as a source named name.
func (e *SQLEngine) QuerySource(ctx context.Context, name, query string) (*model.Source, error) {
	res, err := e.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return model.FromTable(name, res.Columns, res.Rows), nil
}

// TableSource loads a whole table.
func (e *SQLEngine) TableSource(ctx context.Context, name, table string) (*model.Source, error) {
	res, err := e.Query(ctx, "SELECT * FROM "+quoteIdent(table))
	if err != nil {
		return nil, err
	}
	return model.FromTable(name, res.Columns, res.Rows), nil
}

// readSQLScript runs a .sql file in a fresh in-memory database and loads
// the first table it created.
func readSQLScript(ctx context.Context, path string) (*model.Source, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	e, err := OpenSQL("")
	if err != nil {
		return nil, err
	}
	defer e.Close()

	if err := e.RunScript(ctx, string(script)); err != nil {
		return nil, err
	}
	table, err := e.FirstTable(ctx)
	if err != nil {
		return nil, err
	}
	if table == "" {
		return nil, fmt.Errorf("no tables found after executing script")
	}
	return e.TableSource(ctx, path, table)
}

// readDuckDBURI handles duckdb://<path>?query=<sql>. Without a query the
// first table in the database is loaded.
func readDuckDBURI(ctx context.Context, uri string) (*model.Source, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid duckdb uri: %w", err)
	}
	path := u.Host + u.Path
	query := u.Query().Get("query")

	e, err := OpenSQL(path)
	if err != nil {
		return nil, err
	}
	defer e.Close()

	if query == "" {
		table, err := e.FirstTable(ctx)
		if err != nil {
			return nil, err
		}
		if table == "" {
			return nil, fmt.Errorf("database %s has no tables", path)
		}
		return e.TableSource(ctx, uri, table)
	}

	res, err := e.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return model.FromTable(uri, res.Columns, res.Rows), nil
}

// querySource runs a sql://<query> URI against an open engine.
func querySource(ctx context.Context, e *SQLEngine, uri string) (*model.Source, error) {
	query := strings.TrimSpace(strings.TrimPrefix(uri, "sql://"))
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	res, err := e.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return model.FromTable(uri, res.Columns, res.Rows), nil
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// scalar normalizes a driver value; anything non-scalar (decimals, lists,
// structs) is kept as its printed form.
func scalar(v any) any {
	n, err := model.Normalize(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return n
}
