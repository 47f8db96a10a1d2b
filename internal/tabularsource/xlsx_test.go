package tabularsource

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kasuganosora/tabdiff/internal/tabular"
)

func TestXLSXReaderSchemaAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fruit.xlsx")

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"name", "qty"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"Apple", "3"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"Banana", "5"}))
	require.NoError(t, f.SaveAs(path))

	r := NewXLSXReader(path)
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
	assert.Equal(t, tabular.Row{"Banana", "5"}, rows[1])
}
