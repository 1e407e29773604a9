package export

import (
	"context"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/peaking-cli/internal/model"
	"github.com/sells-group/peaking-cli/internal/peaking"
)

// CSV file names written by CSVSink.
const (
	DashboardCSV = "peaking_dashboard.csv"
	AuditCSV     = "peaking_audit.csv"
	PeakYearsCSV = "peak_years.csv"
)

// WriteCSV marshals rows, a slice of csv-tagged structs, to path.
func WriteCSV(path string, rows any) error {
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrapf(err, "export: marshal %s", filepath.Base(path))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}

// ReadDashboardCSV reads a dashboard or audit file written by WriteCSV.
func ReadDashboardCSV(path string) ([]model.DashboardRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: read %s", path)
	}
	var rows []model.DashboardRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "export: unmarshal %s", path)
	}
	return rows, nil
}

// CSVSink writes the dashboard, audit and peak-year tables as CSV.
type CSVSink struct {
	Dir string
}

func (s CSVSink) Name() string { return "csv" }

func (s CSVSink) Write(_ context.Context, _ *model.Run, res *peaking.Result) ([]string, error) {
	files := []struct {
		name string
		rows any
	}{
		{DashboardCSV, res.Dashboard},
		{AuditCSV, res.Audit},
		{PeakYearsCSV, res.Peaks},
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(s.Dir, f.name)
		if err := WriteCSV(path, f.rows); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
