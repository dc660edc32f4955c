// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package duckdbx

import (
	"context"
	"fmt"
	"strings"

	"github.com/cardinalhq/billinglake/internal/logctx"
)

// Column is one named, typed output column.
type Column struct {
	Name string
	Type string
}

// QueryResult is the uniform tabular result of one execution. Immutable
// after construction; unrelated to any prior result.
type QueryResult struct {
	Columns []Column
	Rows    [][]any
}

// RowCount returns the number of result rows.
func (r *QueryResult) RowCount() int { return len(r.Rows) }

// ColumnNames returns the result column names in order.
func (r *QueryResult) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// Execute runs the SQL against whatever relations are registered in this
// context and materializes the result. The fast path scans the engine's
// native values directly. When a column's value cannot cross the driver
// boundary (nested struct/list/map values with pathological shapes), the
// statement is re-executed once with those columns serialized to JSON text.
// Both paths yield the same row count and column names; only the
// representation of the pathological columns differs.
func (c *Context) Execute(ctx context.Context, sqlText string) (*QueryResult, error) {
	sqlText = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sqlText), ";"))

	cols, err := c.DescribeQuery(ctx, sqlText)
	if err != nil {
		return nil, err
	}

	result, err := c.scan(ctx, sqlText, cols)
	if err == nil {
		return result, nil
	}

	fallback := fallbackQuery(sqlText, cols)
	if fallback == "" {
		return nil, err
	}
	logctx.FromContext(ctx).Debug("falling back to JSON serialization for complex columns",
		"error", err.Error())

	result, fbErr := c.scan(ctx, fallback, cols)
	if fbErr != nil {
		// the original failure is the interesting one
		return nil, err
	}
	return result, nil
}

// DescribeQuery returns the statement's output columns without running it.
func (c *Context) DescribeQuery(ctx context.Context, sqlText string) ([]Column, error) {
	rows, err := c.conn.QueryContext(ctx, "DESCRIBE "+sqlText)
	if err != nil {
		return nil, fmt.Errorf("describe query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	// DESCRIBE yields column_name, column_type, null, key, default, extra.
	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("describe query: %w", err)
	}

	var cols []Column
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("describe query: %w", err)
		}
		cols = append(cols, Column{
			Name: asString(values[0]),
			Type: asString(values[1]),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("describe query: %w", err)
	}
	return cols, nil
}

func (c *Context) scan(ctx context.Context, sqlText string, cols []Column) (*QueryResult, error) {
	rows, err := c.conn.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}

	result := &QueryResult{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read result rows: %w", err)
	}
	return result, nil
}

// fallbackQuery rewrites the statement so that complex-typed columns come
// back as JSON text. Returns "" when no column needs serialization, meaning
// a fallback would change nothing.
func fallbackQuery(sqlText string, cols []Column) string {
	converted := false
	exprs := make([]string, len(cols))
	for i, col := range cols {
		if needsJSONSerialization(col.Type) {
			exprs[i] = fmt.Sprintf("to_json(%s) AS %s", quoteIdent(col.Name), quoteIdent(col.Name))
			converted = true
		} else {
			exprs[i] = quoteIdent(col.Name)
		}
	}
	if !converted {
		return ""
	}
	return fmt.Sprintf("SELECT %s FROM (%s) AS q", strings.Join(exprs, ", "), sqlText)
}

// needsJSONSerialization reports whether a DuckDB type can carry nested
// values the row scanner may not represent.
func needsJSONSerialization(duckType string) bool {
	t := strings.ToUpper(strings.TrimSpace(duckType))
	return strings.HasPrefix(t, "STRUCT") ||
		strings.HasPrefix(t, "MAP") ||
		strings.HasPrefix(t, "UNION") ||
		strings.HasPrefix(t, "LIST") ||
		strings.HasSuffix(t, "[]")
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}
