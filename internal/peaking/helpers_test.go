package peaking

import (
	"github.com/sells-group/peaking-cli/internal/model"
)

var testYears = model.YearRange{Base: 1990, Current: 2020}

func testOptions() Options {
	return DefaultOptions(2020)
}

func f64(v float64) *float64 { return &v }

// series builds a year-indexed emissions slice with zeros for absent years.
func series(years model.YearRange, values map[int]float64) []float64 {
	out := make([]float64, years.Len())
	for y, v := range values {
		out[years.Index(y)] = v
	}
	return out
}

func rawRows(city string, source model.DataSource, values map[int]float64) []model.RawRow {
	var rows []model.RawRow
	for y, v := range values {
		rows = append(rows, model.RawRow{City: city, Source: string(source), Year: y, Emissions: f64(v), Include: "Yes"})
	}
	return rows
}

func record(city string, source model.DataSource, values map[int]float64) *model.Record {
	return &model.Record{City: city, Source: source, Emissions: series(testYears, values)}
}
