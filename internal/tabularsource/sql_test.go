package tabularsource

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/kasuganosora/tabdiff/internal/tabular"
)

func TestSQLReaderSchemaAndRows(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "fruit.db")
	setupSQLite(t, dsn, `
		CREATE TABLE fruit (name TEXT, qty INTEGER);
		INSERT INTO fruit VALUES ('Apple', 3), ('Banana', 5);
	`)

	r := NewSQLReader("sqlite", dsn, "SELECT name, qty FROM fruit ORDER BY name")
	schema, err := r.Schema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "qty"}, schema.Names())

	var rows []tabular.Row
	require.NoError(t, r.Rows(context.Background(), func(row tabular.Row) error {
		rows = append(rows, row)
		return nil
	}))
	require.Len(t, rows, 2)
	assert.Equal(t, tabular.Row{"Apple", "3"}, rows[0])
}

func TestSQLReaderRejectsNonSelect(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "fruit2.db")
	setupSQLite(t, dsn, `CREATE TABLE fruit (name TEXT)`)

	r := NewSQLReader("sqlite", dsn, "DELETE FROM fruit")
	_, err := r.Schema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only SELECT")
}

func TestSQLReaderRejectsMultiStatement(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "fruit3.db")
	setupSQLite(t, dsn, `CREATE TABLE fruit (name TEXT)`)

	r := NewSQLReader("sqlite", dsn, "SELECT 1; SELECT 2;")
	_, err := r.Schema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single statement")
}

func setupSQLite(t *testing.T, dsn, schemaSQL string) {
	t.Helper()
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
}
