package peaking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/peaking-cli/internal/model"
)

func TestMelt_OrderingAndMarkers(t *testing.T) {
	t.Parallel()

	years := model.YearRange{Base: 2000, Current: 2001}
	peaked := &model.Record{
		City: "Accra", Source: model.SourceCityGPC, Emissions: []float64{5, 4},
		Status: model.StatusPeaked, UseForDashboard: true,
		Params: model.PeakParams{NumDataPoints: 2, MaxEmissionsYear: 2000},
	}
	unknown := &model.Record{
		City: "Accra", Source: model.SourceC40GPC, Emissions: []float64{0, 3},
		Status: model.StatusUnknown,
		Params: model.PeakParams{NumDataPoints: 1, MaxEmissionsYear: 2001},
	}
	tbl := &model.Table{Years: years, Records: []*model.Record{peaked, unknown}}

	dash, audit := Melt(tbl)

	require.Len(t, audit, 4)
	assert.Equal(t, []model.DashboardRow{
		{City: "Accra", Year: 2000, Source: model.SourceC40GPC, Rank: 1, Status: model.StatusUnknown, Emissions: 0},
		{City: "Accra", Year: 2000, Source: model.SourceCityGPC, Rank: 2, Status: model.StatusPeaked, UseForDashboard: true, Emissions: 5, PeakYear: 1},
		{City: "Accra", Year: 2001, Source: model.SourceC40GPC, Rank: 1, Status: model.StatusUnknown, Emissions: 3},
		{City: "Accra", Year: 2001, Source: model.SourceCityGPC, Rank: 2, Status: model.StatusPeaked, UseForDashboard: true, Emissions: 4},
	}, audit)

	require.Len(t, dash, 2)
	for _, row := range dash {
		assert.Equal(t, model.SourceCityGPC, row.Source)
	}
}

func TestPivot_RoundTrip(t *testing.T) {
	t.Parallel()

	rows := accraRows()
	rows = append(rows, rawRows("Lima", model.SourceCityOther, map[int]float64{2000: 10, 2010: 12, 2019: 14})...)
	res, err := Run(rows, nil, testOptions())
	require.NoError(t, err)

	wide := Pivot(res.Dashboard, res.Options.Years)

	var want []*model.Record
	for _, r := range res.Table.Records {
		if r.UseForDashboard {
			want = append(want, &model.Record{
				City:            r.City,
				Source:          r.Source,
				Emissions:       r.Emissions,
				Status:          r.Status,
				UseForDashboard: true,
			})
		}
	}
	assert.Equal(t, want, wide.Records)
}

func TestPivot_IgnoresYearsOutsideRange(t *testing.T) {
	t.Parallel()

	years := model.YearRange{Base: 2000, Current: 2000}
	rows := []model.DashboardRow{
		{City: "Oslo", Source: model.SourceC40GPC, Year: 2000, Emissions: 3},
		{City: "Oslo", Source: model.SourceC40GPC, Year: 2005, Emissions: 9},
	}
	tbl := Pivot(rows, years)
	require.Len(t, tbl.Records, 1)
	assert.Equal(t, []float64{3}, tbl.Records[0].Emissions)
}

func TestPeakTable(t *testing.T) {
	t.Parallel()

	rows := []model.DashboardRow{
		{City: "Oslo", Source: model.SourceC40GPC, Year: 2010, Emissions: 120.6, PeakYear: 1},
		{City: "Oslo", Source: model.SourceC40GPC, Year: 2011, Emissions: 100},
		{City: "Lima", Source: model.SourceCityGPC, Year: 2005, Emissions: 80.4, PeakYear: 1},
		{City: "Accra", Source: model.SourceCDPGPC, Year: 2010, Emissions: 50, PeakYear: 1},
	}

	assert.Equal(t, []model.PeakYearRow{
		{City: "Lima", Source: model.SourceCityGPC, PeakYear: 2005, PeakEmissions: 80},
		{City: "Accra", Source: model.SourceCDPGPC, PeakYear: 2010, PeakEmissions: 50},
		{City: "Oslo", Source: model.SourceC40GPC, PeakYear: 2010, PeakEmissions: 121},
	}, PeakTable(rows))
	assert.Equal(t, 3, PeakedCount(rows))
}
