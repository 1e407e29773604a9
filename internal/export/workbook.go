// Package export writes peaking results: the analysis workbook, CSV tables,
// per-city charts and the published Postgres tables.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/peaking-cli/internal/model"
	"github.com/sells-group/peaking-cli/internal/peaking"
)

// Sheet names of the analysis workbook.
const (
	SheetMaster    = "MASTER_Emissions"
	SheetAudit     = "PEAKING_Emissions"
	SheetDashboard = "DASHBOARD_Peak_Emissions"
	SheetPeakYears = "PEAK_Years"
)

var longHeader = []string{
	"City", "Year", "Data source", "Data quality", "Peak Status", "Use for dashboard?", "Emissions", "Peak year",
}

// WorkbookName returns the dated file name of the analysis workbook.
func WorkbookName(t time.Time) string {
	return fmt.Sprintf("peaking_analysis_%d_%d_%d.xlsx", t.Day(), int(t.Month()), t.Year())
}

// WriteWorkbook writes the four result sheets to path. The file is written
// next to path and renamed into place.
func WriteWorkbook(path string, res *peaking.Result) error {
	f := xlsx.NewFile()

	master, err := f.AddSheet(SheetMaster)
	if err != nil {
		return eris.Wrap(err, "export: add master sheet")
	}
	writeMaster(master, res.Table)

	for _, s := range []struct {
		name string
		rows []model.DashboardRow
	}{
		{SheetAudit, res.Audit},
		{SheetDashboard, res.Dashboard},
	} {
		sheet, err := f.AddSheet(s.name)
		if err != nil {
			return eris.Wrapf(err, "export: add sheet %s", s.name)
		}
		writeLong(sheet, s.rows)
	}

	peaks, err := f.AddSheet(SheetPeakYears)
	if err != nil {
		return eris.Wrap(err, "export: add peak years sheet")
	}
	writePeaks(peaks, res.Peaks)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create %s", filepath.Dir(path))
	}
	tmp := path + ".tmp"
	if err := f.Save(tmp); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return eris.Wrapf(err, "export: save workbook %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return eris.Wrapf(err, "export: rename workbook %s", path)
	}
	return nil
}

func masterHeader(years model.YearRange) []string {
	h := []string{"City", "Data source", "Data quality"}
	for _, y := range years.Years() {
		h = append(h, strconv.Itoa(y))
	}
	return append(h,
		"Num data points",
		"Max emissions", "Max emissions year",
		"Recent emissions", "Recent emissions year",
		"Earliest emissions", "Earliest emissions year",
		model.LabelPC1, model.LabelPC2, model.LabelPC3, model.LabelPC4,
		"Percentage change since peak (%)",
		"Peak Status",
		"Use for dashboard?",
	)
}

func writeMaster(sheet *xlsx.Sheet, t *model.Table) {
	addStrings(sheet.AddRow(), masterHeader(t.Years))
	for _, r := range t.Records {
		row := sheet.AddRow()
		row.AddCell().SetString(r.City)
		row.AddCell().SetString(string(r.Source))
		row.AddCell().SetInt(r.Rank())
		for _, v := range r.Emissions {
			addNumber(row, v)
		}
		p := r.Params
		row.AddCell().SetInt(p.NumDataPoints)
		row.AddCell().SetFloat(p.MaxEmissions)
		row.AddCell().SetInt(p.MaxEmissionsYear)
		row.AddCell().SetFloat(p.RecentEmissions)
		row.AddCell().SetInt(p.RecentEmissionsYear)
		row.AddCell().SetFloat(p.EarliestEmissions)
		row.AddCell().SetInt(p.EarliestEmissionsYear)
		row.AddCell().SetBool(r.Criteria.PC1)
		row.AddCell().SetBool(r.Criteria.PC2)
		row.AddCell().SetBool(r.Criteria.PC3)
		row.AddCell().SetBool(r.Criteria.PC4)
		row.AddCell().SetFloat(r.PctChangeSincePeak)
		row.AddCell().SetString(string(r.Status))
		row.AddCell().SetBool(r.UseForDashboard)
	}
}

func writeLong(sheet *xlsx.Sheet, rows []model.DashboardRow) {
	addStrings(sheet.AddRow(), longHeader)
	for _, d := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(d.City)
		row.AddCell().SetInt(d.Year)
		row.AddCell().SetString(string(d.Source))
		row.AddCell().SetInt(d.Rank)
		row.AddCell().SetString(string(d.Status))
		row.AddCell().SetBool(d.UseForDashboard)
		addNumber(row, d.Emissions)
		row.AddCell().SetInt(d.PeakYear)
	}
}

func writePeaks(sheet *xlsx.Sheet, peaks []model.PeakYearRow) {
	addStrings(sheet.AddRow(), []string{"City", "Peak year", "Peak Emissions"})
	for _, p := range peaks {
		row := sheet.AddRow()
		row.AddCell().SetString(p.City)
		row.AddCell().SetInt(p.PeakYear)
		row.AddCell().SetFloat(p.PeakEmissions)
	}
}

func addStrings(row *xlsx.Row, values []string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// addNumber leaves missing values as empty cells.
func addNumber(row *xlsx.Row, v float64) {
	cell := row.AddCell()
	if !model.IsMissing(v) {
		cell.SetFloat(v)
	}
}

// WorkbookSink writes the dated analysis workbook into a directory.
type WorkbookSink struct {
	Dir   string
	Clock clockwork.Clock
}

func (s WorkbookSink) Name() string { return "workbook" }

func (s WorkbookSink) Write(_ context.Context, _ *model.Run, res *peaking.Result) ([]string, error) {
	clock := s.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	path := filepath.Join(s.Dir, WorkbookName(clock.Now()))
	if err := WriteWorkbook(path, res); err != nil {
		return nil, err
	}
	return []string{path}, nil
}
