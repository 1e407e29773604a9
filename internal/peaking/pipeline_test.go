package peaking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/peaking-cli/internal/model"
)

func accraRows() []model.RawRow {
	rows := rawRows("Accra", model.SourceC40GPC, map[int]float64{1990: 200, 1995: 220, 2015: 180})
	rows = append(rows, rawRows("Accra", model.SourceCDPGPC, map[int]float64{2000: 210})...)
	return rows
}

func TestRun_AccraEndToEnd(t *testing.T) {
	t.Parallel()

	res, err := Run(accraRows(), model.Registry{}, testOptions())
	require.NoError(t, err)

	require.Len(t, res.Table.Records, 3)
	comp := res.Table.Find("Accra", model.SourceAllGPC)
	require.NotNil(t, comp)
	assert.Equal(t, series(testYears, map[int]float64{1990: 200, 1995: 220, 2000: 210, 2015: 180}), comp.Emissions)
	assert.Equal(t, 4, comp.Params.NumDataPoints)
	assert.Equal(t, 1995, comp.Params.MaxEmissionsYear)
	assert.Equal(t, 2015, comp.Params.RecentEmissionsYear)
	assert.Equal(t, model.Criteria{PC1: true, PC2: true, PC3: true, PC4: true}, comp.Criteria)
	assert.InDelta(t, -18.18, comp.PctChangeSincePeak, 0.01)
	assert.Equal(t, model.StatusPeaked, comp.Status)

	assert.Equal(t, model.StatusUnknown, res.Table.Find("Accra", model.SourceCDPGPC).Status)

	selected := res.Table.Selected("Accra")
	require.NotNil(t, selected)
	assert.Equal(t, model.SourceC40GPC, selected.Source)
	assert.Equal(t, model.StatusPeaked, selected.Status)

	assert.Len(t, res.Dashboard, testYears.Len())
	assert.Len(t, res.Audit, 3*testYears.Len())
	for _, row := range res.Dashboard {
		if row.Year == 1995 {
			assert.Equal(t, 1, row.PeakYear)
		} else {
			assert.Equal(t, 0, row.PeakYear, "year %d", row.Year)
		}
	}
	assert.Equal(t, 1, PeakedCount(res.Dashboard))
	assert.Equal(t, []model.PeakYearRow{
		{City: "Accra", Source: model.SourceC40GPC, PeakYear: 1995, PeakEmissions: 220},
	}, res.Peaks)

	assert.Equal(t, 1, res.Composites)
	assert.Equal(t, []string{"Accra"}, res.Report.NewlyPeaked)
	assert.True(t, res.Report.Exceeds)
	assert.Equal(t, []model.RegistryEntry{{City: "Accra", Source: model.SourceC40GPC}}, res.NewEntries())
}

func TestRun_RegisteredCityIsNotNew(t *testing.T) {
	t.Parallel()

	res, err := Run(accraRows(), model.Registry{"Accra": model.SourceC40GPC}, testOptions())
	require.NoError(t, err)

	assert.Empty(t, res.Report.NewlyPeaked)
	assert.False(t, res.Report.Exceeds)
	assert.Empty(t, res.NewEntries())
	require.Len(t, res.Overrides, 1)
	assert.Equal(t, OverrideKept, res.Overrides[0].Action)
}

// Not parallel: replaces the global logger.
func TestRun_LogsNewlyPeakedBelowRegistryCount(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	defer undo()

	// The registry lists more cities than have peaked, yet Accra is new.
	reg := model.Registry{"Oslo": model.SourceC40GPC, "Zagreb": model.SourceC40GPC}
	res, err := Run(accraRows(), reg, testOptions())
	require.NoError(t, err)
	require.False(t, res.Report.Exceeds)
	require.Equal(t, []string{"Accra"}, res.Report.NewlyPeaked)

	assert.Zero(t, logs.FilterMessage("no new cities have peaked").Len())
	assert.Equal(t, 1, logs.FilterMessage("new cities have peaked").Len())
	newly := logs.FilterMessage("newly peaked city").All()
	require.Len(t, newly, 1)
	assert.Equal(t, "Accra", newly[0].ContextMap()["city"])
}

func TestRun_RegisteredCityNotLoggedAsNew(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	defer undo()

	_, err := Run(accraRows(), model.Registry{"Accra": model.SourceC40GPC}, testOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("no new cities have peaked").Len())
	assert.Zero(t, logs.FilterMessage("newly peaked city").Len())
}

func TestRun_IsDeterministic(t *testing.T) {
	t.Parallel()

	rows := accraRows()
	rows = append(rows, rawRows("Lima", model.SourceCityOther, map[int]float64{2000: 10, 2010: 12, 2019: 14})...)
	rows = append(rows, rawRows("Lima", model.SourceCDPOther, map[int]float64{2001: 9, 2005: 8})...)
	reg := model.Registry{"Lima": model.SourceCDPOther}

	first, err := Run(rows, reg, testOptions())
	require.NoError(t, err)
	second, err := Run(rows, reg, testOptions())
	require.NoError(t, err)

	assert.Equal(t, first.Table, second.Table)
	assert.Equal(t, first.Dashboard, second.Dashboard)
	assert.Equal(t, first.Audit, second.Audit)
	assert.Equal(t, first.Overrides, second.Overrides)
}

func TestRun_NoUsableRows(t *testing.T) {
	t.Parallel()

	rows := []model.RawRow{{City: "Basel", Source: "C40_GPC", Year: 2010, Emissions: f64(1), Include: "Yes"}}
	res, err := Run(rows, nil, testOptions())
	require.NoError(t, err)

	assert.Empty(t, res.Table.Records)
	assert.Empty(t, res.Dashboard)
	assert.Equal(t, 1, res.Load.Dropped[DropExcludedCity])
	assert.Equal(t, 0, res.Report.PeakedCount)
}

func TestRun_InvalidOptions(t *testing.T) {
	t.Parallel()

	opts := testOptions()
	opts.Years.Current = 1980
	_, err := Run(accraRows(), nil, opts)
	assert.Error(t, err)
}

func TestRun_Summary(t *testing.T) {
	t.Parallel()

	rows := append(accraRows(), model.RawRow{City: "Accra", Source: "Survey", Year: 2001, Include: "Yes"})
	res, err := Run(rows, nil, testOptions())
	require.NoError(t, err)

	s := res.Summary()
	assert.Equal(t, 5, s.RowsRead)
	assert.Equal(t, 4, s.RowsKept)
	assert.Equal(t, map[string]int{"unknown_source": 1}, s.RowsDropped)
	assert.Equal(t, 3, s.Records)
	assert.Equal(t, 1, s.Cities)
	assert.Equal(t, 1, s.Composites)
	assert.Equal(t, 1, s.PeakedCount)
	assert.Equal(t, map[string]int{"Peaked": 1}, s.StatusCounts)
}
