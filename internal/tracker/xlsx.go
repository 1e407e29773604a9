package tracker

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/peaking-cli/internal/model"
)

// ReadWorkbook reads tracker rows from an xlsx workbook.
func ReadWorkbook(ctx context.Context, path string, opts Options) ([]model.RawRow, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "tracker: open workbook")
	}

	sheet, err := getSheet(f, opts.Sheet)
	if err != nil {
		return nil, err
	}

	headerIdx := headerIndex(opts)
	if headerIdx >= len(sheet.Rows) {
		return nil, eris.Errorf("tracker: sheet %q has %d rows, header expected on row %d",
			sheet.Name, len(sheet.Rows), headerIdx+1)
	}
	l, err := resolveLayout(rowToStrings(sheet.Rows[headerIdx]), opts.Columns)
	if err != nil {
		return nil, err
	}

	var rows []model.RawRow
	for i := headerIdx + 1; i < len(sheet.Rows); i++ {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "tracker: context cancelled")
		}
		if row, ok := l.parseRow(i+1, rowToStrings(sheet.Rows[i])); ok {
			rows = append(rows, row)
		}
	}

	zap.L().Info("tracker: workbook read",
		zap.String("path", path),
		zap.String("sheet", sheet.Name),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

func getSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("tracker: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("tracker: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func headerIndex(opts Options) int {
	if opts.HeaderRow < 1 {
		return 0
	}
	return opts.HeaderRow - 1
}

// rowToStrings returns raw cell values. Raw values keep full numeric
// precision where formatted strings may round.
func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell == nil {
			continue
		}
		cells[j] = cell.Value
	}
	return cells
}
