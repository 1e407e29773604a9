package tracker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/peaking-cli/internal/model"
)

var trackerHeader = []any{
	"City name tidy up", "Inventory\n_year", "Source_Protocol", "Inventory\n_year",
	"Emissions\n_mtCO2e", "Use in peaking (Yes or No)",
}

func createTracker(t *testing.T, sheet string, rows [][]any) string {
	t.Helper()
	f := xlsx.NewFile()
	notes, err := f.AddSheet("Notes")
	require.NoError(t, err)
	notes.AddRow().AddCell().SetString("see data sheet")
	sh, err := f.AddSheet(sheet)
	require.NoError(t, err)
	for _, data := range rows {
		row := sh.AddRow()
		for _, v := range data {
			cell := row.AddCell()
			switch x := v.(type) {
			case int:
				cell.SetInt(x)
			case float64:
				cell.SetFloat(x)
			case string:
				cell.SetString(x)
			case nil:
			}
		}
	}
	path := filepath.Join(t.TempDir(), "tracker.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadWorkbook(t *testing.T) {
	t.Parallel()

	path := createTracker(t, DefaultSheet, [][]any{
		{"GHG master tracker"},
		trackerHeader,
		{"Accra", 2016, "C40_GPC", 2015, 180.5, "Yes"},
		{"Lima", "", "CDP_Other", 2012, nil, "No"},
		{"Oslo", 2011, "City_GPC", "2010.0", "1,204", "y"},
	})

	rows, err := ReadWorkbook(context.Background(), path, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, 3, rows[0].Line)
	assert.Equal(t, "Accra", rows[0].City)
	assert.Equal(t, "C40_GPC", rows[0].Source)
	assert.Equal(t, 2015, rows[0].Year, "second inventory year column is used")
	require.NotNil(t, rows[0].Emissions)
	assert.InDelta(t, 180.5, *rows[0].Emissions, 1e-9)
	assert.Equal(t, "Yes", rows[0].Include)

	assert.Nil(t, rows[1].Emissions)
	assert.Equal(t, "No", rows[1].Include)

	assert.Equal(t, 5, rows[2].Line)
	assert.Equal(t, 2010, rows[2].Year)
	require.NotNil(t, rows[2].Emissions)
	assert.InDelta(t, 1204.0, *rows[2].Emissions, 1e-9)
}

func TestReadWorkbook_SheetNotFound(t *testing.T) {
	t.Parallel()

	path := createTracker(t, "Other", [][]any{{"x"}})
	_, err := ReadWorkbook(context.Background(), path, DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestReadWorkbook_MissingColumnIsFatal(t *testing.T) {
	t.Parallel()

	path := createTracker(t, DefaultSheet, [][]any{
		{"title"},
		{"City name tidy up", "Source_Protocol", "Emissions\n_mtCO2e", "Use in peaking (Yes or No)"},
		{"Accra", "C40_GPC", 1.0, "Yes"},
	})
	_, err := ReadWorkbook(context.Background(), path, DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Inventory")
}

func TestReadWorkbook_NotAWorkbook(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o600))
	_, err := ReadWorkbook(context.Background(), path, DefaultOptions())
	assert.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	t.Parallel()

	data := "title,,,,,\n" +
		"\ufeffCity name tidy up,\"Inventory\n_year\",Source_Protocol,\"Inventory\n_year\",\"Emissions\n_mtCO2e\",Use in peaking (Yes or No)\n" +
		"Accra,2016,C40_GPC,2015,180,Yes\n" +
		",,,,,\n" +
		"Lima,2013,City_Other,2012,abc,yes\n" +
		"Quito,2013,City_Other\n"

	rows, err := ReadCSV(context.Background(), strings.NewReader(data), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, model.RawRow{Line: 3, City: "Accra", Source: "C40_GPC", Year: 2015, Emissions: rows[0].Emissions, Include: "Yes"}, rows[0])
	require.NotNil(t, rows[0].Emissions)
	assert.InDelta(t, 180.0, *rows[0].Emissions, 0)

	assert.Equal(t, "Lima", rows[1].City)
	assert.Nil(t, rows[1].Emissions)

	assert.Equal(t, "Quito", rows[2].City)
	assert.Equal(t, 0, rows[2].Year)
	assert.Empty(t, rows[2].Include)
}

func TestReadCSV_HeaderByFoldedName(t *testing.T) {
	t.Parallel()

	data := "x\nCITY NAME TIDY UP,Inventory _year,source_protocol,Inventory _year,Emissions _mtCO2e,Use in peaking (yes or no)\nAccra,1,C40_GPC,2015,1,Yes\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(data), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2015, rows[0].Year)
}

func TestReadCSV_TooShort(t *testing.T) {
	t.Parallel()

	_, err := ReadCSV(context.Background(), strings.NewReader("only one row\n"), DefaultOptions())
	assert.Error(t, err)
}

func TestReadCSV_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadCSV(ctx, strings.NewReader("a\nb\nc\n"), DefaultOptions())
	assert.Error(t, err)
}

func TestRead_DispatchesByExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "tracker.CSV")
	require.NoError(t, os.WriteFile(csvPath, []byte("t\nCity name tidy up,Inventory\n_year,Source_Protocol,x,Emissions\n_mtCO2e,Use in peaking (Yes or No)\n"), 0o600))

	_, err := Read(context.Background(), csvPath, DefaultOptions())
	require.Error(t, err, "an unquoted line break splits the header row")

	_, err = Read(context.Background(), filepath.Join(dir, "tracker.json"), DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")

	_, err = Read(context.Background(), filepath.Join(dir, "missing.csv"), DefaultOptions())
	assert.Error(t, err)
}

func TestDedupeHeader(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b", "a.1", "a.2", ""}, dedupeHeader([]string{"a", "b", "a", "a", ""}))
}

func TestParseYear(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
	}{
		{"2015", 2015},
		{"2015.0", 2015},
		{"2015.5", 0},
		{"", 0},
		{"n/a", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseYear(tt.in), tt.in)
	}
}
