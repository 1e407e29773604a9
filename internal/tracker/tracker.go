// Package tracker reads raw emissions rows from the GHG master tracker, either
// the workbook itself or a CSV export of its data sheet.
package tracker

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/peaking-cli/internal/model"
)

// Columns names the header cells holding each field.
type Columns struct {
	City      string `mapstructure:"city"`
	Source    string `mapstructure:"source"`
	Year      string `mapstructure:"year"`
	Emissions string `mapstructure:"emissions"`
	Include   string `mapstructure:"include"`
}

// DefaultColumns returns the master tracker layout. The tracker has two
// inventory year columns; the second one, suffixed ".1" after de-duplication,
// is the year the value refers to.
func DefaultColumns() Columns {
	return Columns{
		City:      "City name tidy up",
		Source:    "Source_Protocol",
		Year:      "Inventory\n_year.1",
		Emissions: "Emissions\n_mtCO2e",
		Include:   "Use in peaking (Yes or No)",
	}
}

// DefaultSheet is the tracker sheet holding raw inventories.
const DefaultSheet = "All raw GHG_(excl.C40 GPC data)"

// Options configures how the tracker is read.
type Options struct {
	Sheet     string  // workbook sheet name; first sheet when empty
	HeaderRow int     // 1-based row holding the header
	Columns   Columns // header names
}

// DefaultOptions returns the master tracker settings.
func DefaultOptions() Options {
	return Options{Sheet: DefaultSheet, HeaderRow: 2, Columns: DefaultColumns()}
}

// Read loads tracker rows from path, choosing the parser by extension.
func Read(ctx context.Context, path string, opts Options) ([]model.RawRow, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadWorkbook(ctx, path, opts)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "tracker: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(ctx, f, opts)
	default:
		return nil, eris.Errorf("tracker: unsupported input %q (want .xlsx or .csv)", path)
	}
}

// layout maps field names to column positions in a header row.
type layout struct {
	city, source, year, emissions, include int
}

func resolveLayout(header []string, cols Columns) (layout, error) {
	names := dedupeHeader(header)
	if len(names) > 0 {
		names[0] = strings.TrimPrefix(names[0], "\ufeff")
	}
	find := func(want string) (int, error) {
		for i, h := range names {
			if h == want {
				return i, nil
			}
		}
		key := headerKey(want)
		for i, h := range names {
			if headerKey(h) == key {
				return i, nil
			}
		}
		return -1, eris.Errorf("tracker: column %q not found in header", want)
	}

	var l layout
	var err error
	if l.city, err = find(cols.City); err != nil {
		return l, err
	}
	if l.source, err = find(cols.Source); err != nil {
		return l, err
	}
	if l.year, err = find(cols.Year); err != nil {
		return l, err
	}
	if l.emissions, err = find(cols.Emissions); err != nil {
		return l, err
	}
	if l.include, err = find(cols.Include); err != nil {
		return l, err
	}
	return l, nil
}

// dedupeHeader suffixes repeated names with ".1", ".2", ... in order of
// appearance, so the second "Inventory\n_year" becomes "Inventory\n_year.1".
func dedupeHeader(header []string) []string {
	seen := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, h := range header {
		n := seen[h]
		seen[h] = n + 1
		if n == 0 {
			out[i] = h
			continue
		}
		out[i] = h + "." + strconv.Itoa(n)
	}
	return out
}

// headerKey folds case and whitespace, including embedded line breaks.
func headerKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// parseRow converts one data row. Blank rows return ok=false.
func (l layout) parseRow(line int, cells []string) (model.RawRow, bool) {
	get := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}
	blank := true
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			blank = false
			break
		}
	}
	if blank {
		return model.RawRow{}, false
	}

	row := model.RawRow{
		Line:    line,
		City:    get(l.city),
		Source:  get(l.source),
		Year:    parseYear(get(l.year)),
		Include: get(l.include),
	}
	if raw := get(l.emissions); raw != "" {
		if v, err := parseNumber(raw); err == nil {
			row.Emissions = &v
		} else {
			zap.L().Debug("tracker: unparseable emissions treated as missing",
				zap.Int("line", line), zap.String("value", raw))
		}
	}
	return row, true
}

// parseYear reads integer-valued cells such as "2015" or "2015.0"; anything
// else yields 0.
func parseYear(s string) int {
	if s == "" {
		return 0
	}
	if y, err := strconv.Atoi(s); err == nil {
		return y
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v != float64(int(v)) {
		return 0
	}
	return int(v)
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}
