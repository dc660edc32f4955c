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
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/billinglake/internal/discovery"
)

type costRow struct {
	LineItemID string  `parquet:"line_item_id"`
	Service    string  `parquet:"service"`
	Cost       float64 `parquet:"cost"`
}

func writeParquet(t *testing.T, dir, name string, rows []costRow) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	w := parquet.NewGenericWriter[costRow](f)
	_, err = w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func newTestContext(t *testing.T) *Context {
	t.Helper()
	c, err := NewContext(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRegisterFileSet_ParquetCount(t *testing.T) {
	dir := t.TempDir()
	p1 := writeParquet(t, dir, "part-00001.parquet", []costRow{
		{LineItemID: "a", Service: "AmazonEC2", Cost: 1.25},
		{LineItemID: "b", Service: "AmazonS3", Cost: 0.10},
	})
	p2 := writeParquet(t, dir, "part-00002.parquet", []costRow{
		{LineItemID: "c", Service: "AmazonEC2", Cost: 3.50},
	})

	c := newTestContext(t)
	fs := &discovery.FileSet{Files: []string{p1, p2}, Format: discovery.FormatParquet}
	require.NoError(t, c.RegisterFileSet(context.Background(), "billing_data", fs))

	result, err := c.Execute(context.Background(), `SELECT COUNT(*) AS n FROM "billing_data"`)
	require.NoError(t, err)
	require.Equal(t, 1, result.RowCount())
	assert.EqualValues(t, 3, result.Rows[0][0])
}

func TestRegisterFileSet_CSV(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(csvPath,
		[]byte("line_item_id,cost\na,1.5\nb,2.5\n"), 0o644))

	c := newTestContext(t)
	fs := &discovery.FileSet{Files: []string{csvPath}, Format: discovery.FormatCSV}
	require.NoError(t, c.RegisterFileSet(context.Background(), "billing_data", fs))

	result, err := c.Execute(context.Background(),
		`SELECT SUM(cost) AS total FROM "billing_data"`)
	require.NoError(t, err)
	require.Equal(t, 1, result.RowCount())
	assert.EqualValues(t, 4.0, result.Rows[0][0])
}

func TestRegisterFileSet_Empty(t *testing.T) {
	c := newTestContext(t)
	err := c.RegisterFileSet(context.Background(), "t", &discovery.FileSet{})
	assert.ErrorIs(t, err, discovery.ErrEmptyFileSet)
}

func TestRegisterParquet_Auxiliary(t *testing.T) {
	dir := t.TempDir()
	p := writeParquet(t, dir, "pricing.parquet", []costRow{
		{LineItemID: "m5.large", Service: "AmazonEC2", Cost: 0.096},
	})

	c := newTestContext(t)
	require.NoError(t, c.RegisterParquet(context.Background(), "pricing", p))

	result, err := c.Execute(context.Background(), `SELECT COUNT(*) FROM "pricing"`)
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.Rows[0][0])
}

func TestExecute_JoinPrimaryWithAuxiliary(t *testing.T) {
	dir := t.TempDir()
	primary := writeParquet(t, dir, "usage.parquet", []costRow{
		{LineItemID: "m5.large", Service: "AmazonEC2", Cost: 10},
		{LineItemID: "m5.xlarge", Service: "AmazonEC2", Cost: 20},
	})
	aux := writeParquet(t, dir, "pricing.parquet", []costRow{
		{LineItemID: "m5.large", Service: "AmazonEC2", Cost: 0.096},
	})

	c := newTestContext(t)
	fs := &discovery.FileSet{Files: []string{primary}, Format: discovery.FormatParquet}
	require.NoError(t, c.RegisterFileSet(context.Background(), "billing_data", fs))
	require.NoError(t, c.RegisterParquet(context.Background(), "pricing", aux))

	result, err := c.Execute(context.Background(), `
		SELECT b.line_item_id, b.cost, p.cost AS unit_price
		FROM "billing_data" b
		JOIN "pricing" p ON p.line_item_id = b.line_item_id`)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RowCount())
	assert.Equal(t, []string{"line_item_id", "cost", "unit_price"}, result.ColumnNames())
}

func TestDescribeQuery(t *testing.T) {
	c := newTestContext(t)
	cols, err := c.DescribeQuery(context.Background(),
		"SELECT 1 AS n, 'x' AS s, {'a': 1} AS nested")
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, "n", cols[0].Name)
	assert.Equal(t, "s", cols[1].Name)
	assert.Equal(t, "nested", cols[2].Name)
	assert.Contains(t, cols[2].Type, "STRUCT")
}

func TestExecute_TrailingSemicolon(t *testing.T) {
	c := newTestContext(t)
	result, err := c.Execute(context.Background(), "SELECT 42 AS answer;  ")
	require.NoError(t, err)
	require.Equal(t, 1, result.RowCount())
	assert.EqualValues(t, 42, result.Rows[0][0])
}

func TestExecute_EngineErrorPropagated(t *testing.T) {
	c := newTestContext(t)
	_, err := c.Execute(context.Background(), "SELECT * FROM no_such_table")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_table")
}

func TestFallbackQuery(t *testing.T) {
	cols := []Column{
		{Name: "id", Type: "VARCHAR"},
		{Name: "tags", Type: "STRUCT(env VARCHAR, team VARCHAR)"},
		{Name: "amounts", Type: "DOUBLE[]"},
	}
	q := fallbackQuery("SELECT * FROM t", cols)
	assert.Equal(t,
		`SELECT "id", to_json("tags") AS "tags", to_json("amounts") AS "amounts" FROM (SELECT * FROM t) AS q`,
		q)
}

func TestFallbackQuery_NoComplexColumns(t *testing.T) {
	cols := []Column{{Name: "id", Type: "VARCHAR"}, {Name: "n", Type: "BIGINT"}}
	assert.Empty(t, fallbackQuery("SELECT * FROM t", cols))
}

func TestFallbackQuery_ExecutesAndPreservesShape(t *testing.T) {
	c := newTestContext(t)
	sqlText := "SELECT 1 AS n, {'env': 'prod'} AS tags"

	cols, err := c.DescribeQuery(context.Background(), sqlText)
	require.NoError(t, err)

	fb := fallbackQuery(sqlText, cols)
	require.NotEmpty(t, fb)

	fast, err := c.scan(context.Background(), sqlText, cols)
	require.NoError(t, err)
	slow, err := c.scan(context.Background(), fb, cols)
	require.NoError(t, err)

	assert.Equal(t, fast.RowCount(), slow.RowCount())
	assert.Equal(t, fast.ColumnNames(), slow.ColumnNames())
	assert.Contains(t, asString(slow.Rows[0][1]), "prod")
}

func TestNeedsJSONSerialization(t *testing.T) {
	assert.True(t, needsJSONSerialization("STRUCT(a VARCHAR)"))
	assert.True(t, needsJSONSerialization("MAP(VARCHAR, BIGINT)"))
	assert.True(t, needsJSONSerialization("VARCHAR[]"))
	assert.False(t, needsJSONSerialization("VARCHAR"))
	assert.False(t, needsJSONSerialization("DECIMAL(18,2)"))
	assert.False(t, needsJSONSerialization("TIMESTAMP"))
}
