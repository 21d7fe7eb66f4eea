package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeWorkbook(t *testing.T, sheets map[string][][]string) string {
	t.Helper()

	file := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := file.AddSheet(name)
		require.NoError(t, err)
		for _, row := range rows {
			r := sheet.AddRow()
			for _, val := range row {
				r.AddCell().SetString(val)
			}
		}
	}

	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, file.Save(path))
	return path
}

func TestReadXLSX(t *testing.T) {
	path := writeWorkbook(t, map[string][][]string{
		"Roster": {
			{"id", "name"},
			{"p1", "Dr. Chen"},
			{"p2", "Dr. Feld"},
		},
	})

	rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "name"}, rows[0])
}

func TestReadXLSXSkipRows(t *testing.T) {
	path := writeWorkbook(t, map[string][][]string{
		"Roster": {
			{"header"},
			{"p1"},
		},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "p1", rows[0][0])
}

func TestReadXLSXByName(t *testing.T) {
	path := writeWorkbook(t, map[string][][]string{
		"Providers": {{"from-providers"}},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SheetName: "Providers"})
	require.NoError(t, err)
	assert.Equal(t, "from-providers", rows[0][0])

	_, err = ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	assert.ErrorContains(t, err, `sheet "Missing" not found`)
}

func TestReadXLSXSheetIndexOutOfRange(t *testing.T) {
	path := writeWorkbook(t, map[string][][]string{
		"Only": {{"x"}},
	})

	_, err := ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	assert.ErrorContains(t, err, "out of range")
}

func TestReadXLSXMissingFile(t *testing.T) {
	_, err := ReadXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), XLSXOptions{})
	assert.Error(t, err)
}
