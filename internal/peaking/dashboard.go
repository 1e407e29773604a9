package peaking

import (
	"math"
	"sort"

	"github.com/sells-group/peaking-cli/internal/model"
)

// Melt reshapes t into long rows, one per record and year, sorted by
// (city, year, rank). The peak-year marker is 1 only on the max-emissions year
// of a Peaked record. The first result holds the dashboard rows; the second is
// the audit copy with every candidate.
func Melt(t *model.Table) (dashboard, audit []model.DashboardRow) {
	audit = make([]model.DashboardRow, 0, len(t.Records)*t.Years.Len())
	for _, r := range t.Records {
		for i, v := range r.Emissions {
			year := t.Years.Year(i)
			row := model.DashboardRow{
				City:            r.City,
				Year:            year,
				Source:          r.Source,
				Rank:            r.Rank(),
				Status:          r.Status,
				UseForDashboard: r.UseForDashboard,
				Emissions:       v,
			}
			if r.Status == model.StatusPeaked && r.Params.NumDataPoints > 0 && year == r.Params.MaxEmissionsYear {
				row.PeakYear = 1
			}
			audit = append(audit, row)
		}
	}
	sort.SliceStable(audit, func(i, j int) bool {
		a, b := audit[i], audit[j]
		if a.City != b.City {
			return a.City < b.City
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Rank < b.Rank
	})

	for _, row := range audit {
		if row.UseForDashboard {
			dashboard = append(dashboard, row)
		}
	}
	return dashboard, audit
}

// Pivot rebuilds a wide table from long rows. Years outside the range are
// ignored and years without a row read as 0. Records come back ordered by
// (city, rank) carrying only the columns the long form keeps.
func Pivot(rows []model.DashboardRow, years model.YearRange) *model.Table {
	type key struct {
		city   string
		source model.DataSource
	}
	index := make(map[key]*model.Record)
	var records []*model.Record
	for _, row := range rows {
		pos := years.Index(row.Year)
		if pos < 0 {
			continue
		}
		k := key{row.City, row.Source}
		rec, ok := index[k]
		if !ok {
			rec = &model.Record{
				City:            row.City,
				Source:          row.Source,
				Status:          row.Status,
				UseForDashboard: row.UseForDashboard,
				Emissions:       make([]float64, years.Len()),
			}
			index[k] = rec
			records = append(records, rec)
		}
		rec.Emissions[pos] = row.Emissions
	}
	sortRecords(records)
	return &model.Table{Years: years, Records: records}
}

// PeakTable lists the peak year of every row flagged as a peak, sorted by
// peak year then city. Emissions are rounded to whole tonnes.
func PeakTable(rows []model.DashboardRow) []model.PeakYearRow {
	var out []model.PeakYearRow
	for _, row := range rows {
		if row.PeakYear != 1 {
			continue
		}
		out = append(out, model.PeakYearRow{
			City:          row.City,
			Source:        row.Source,
			PeakYear:      row.Year,
			PeakEmissions: math.Round(row.Emissions),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PeakYear != out[j].PeakYear {
			return out[i].PeakYear < out[j].PeakYear
		}
		return out[i].City < out[j].City
	})
	return out
}

// PeakedCount sums the peak-year markers: the number of cities shown as
// peaked.
func PeakedCount(rows []model.DashboardRow) int {
	n := 0
	for _, row := range rows {
		n += row.PeakYear
	}
	return n
}
