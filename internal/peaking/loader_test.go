package peaking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/peaking-cli/internal/model"
)

func TestLoad_DropReasons(t *testing.T) {
	t.Parallel()

	rows := []model.RawRow{
		{Line: 3, City: "Accra", Source: "C40_GPC", Year: 2015, Emissions: f64(180), Include: "Yes"},
		{Line: 4, City: "", Source: "C40_GPC", Year: 2015, Emissions: f64(1), Include: "Yes"},
		{Line: 5, City: "basel", Source: "C40_GPC", Year: 2015, Emissions: f64(1), Include: "Yes"},
		{Line: 6, City: "Lima", Source: "C40_GPC", Year: 0, Emissions: f64(1), Include: "Yes"},
		{Line: 7, City: "Lima", Source: "C40_GPC", Year: 2015, Emissions: f64(1), Include: "No"},
		{Line: 8, City: "Lima", Source: "Survey", Year: 2015, Emissions: f64(1), Include: "y"},
		{Line: 9, City: "Lima", Source: "All GPC considered", Year: 2015, Emissions: f64(1), Include: "y"},
		{Line: 10, City: "Lima", Source: "CDP_GPC", Year: 1985, Emissions: f64(1), Include: "Y"},
		{Line: 11, City: "Lima", Source: "CDP_GPC", Year: 2016, Emissions: f64(-4), Include: "yes"},
		{Line: 12, City: "Lima", Source: "CDP_GPC", Year: 2017, Emissions: nil, Include: "yes"},
	}

	obs, stats := Load(rows, testOptions())

	assert.Equal(t, 10, stats.Read)
	assert.Equal(t, 2, stats.Kept)
	assert.Equal(t, 8, stats.DroppedTotal())
	assert.Equal(t, map[DropReason]int{
		DropMissingCity:   1,
		DropExcludedCity:  1,
		DropZeroYear:      1,
		DropNotIncluded:   1,
		DropUnknownSource: 2,
		DropOutOfRange:    1,
		DropNegative:      1,
	}, stats.Dropped)

	require.Len(t, obs, 2)
	assert.Equal(t, model.Observation{City: "Accra", Source: model.SourceC40GPC, Year: 2015, Emissions: 180}, obs[0])
	assert.Equal(t, model.Observation{City: "Lima", Source: model.SourceCDPGPC, Year: 2017, Emissions: 0}, obs[1])
}

func TestLoad_DropsNonFiniteEmissions(t *testing.T) {
	t.Parallel()

	rows := []model.RawRow{
		{Line: 3, City: "Accra", Source: "C40_GPC", Year: 2015, Emissions: f64(math.Inf(1)), Include: "Yes"},
		{Line: 4, City: "Accra", Source: "C40_GPC", Year: 2016, Emissions: f64(math.Inf(-1)), Include: "Yes"},
		{Line: 5, City: "Accra", Source: "C40_GPC", Year: 2017, Emissions: f64(math.NaN()), Include: "Yes"},
	}

	obs, stats := Load(rows, testOptions())

	assert.Equal(t, map[DropReason]int{DropNonFinite: 2}, stats.Dropped)
	require.Len(t, obs, 1)
	assert.Equal(t, 2017, obs[0].Year)
	assert.Zero(t, obs[0].Emissions)
}

func TestLoad_SortsByCityThenYear(t *testing.T) {
	t.Parallel()

	rows := []model.RawRow{
		{City: "Oslo", Source: "City_GPC", Year: 2010, Emissions: f64(3), Include: "Yes"},
		{City: "Accra", Source: "CDP_GPC", Year: 2012, Emissions: f64(2), Include: "Yes"},
		{City: "Accra", Source: "C40_GPC", Year: 2012, Emissions: f64(5), Include: "Yes"},
		{City: "Accra", Source: "City_GPC", Year: 2001, Emissions: f64(1), Include: "Yes"},
	}

	obs, _ := Load(rows, testOptions())

	require.Len(t, obs, 4)
	assert.Equal(t, 2001, obs[0].Year)
	assert.Equal(t, model.SourceC40GPC, obs[1].Source)
	assert.Equal(t, model.SourceCDPGPC, obs[2].Source)
	assert.Equal(t, "Oslo", obs[3].City)
}

func TestLoad_NormalizesCityNames(t *testing.T) {
	t.Parallel()

	rows := []model.RawRow{
		{City: "  Rio   de Janeiro ", Source: "C40_GPC", Year: 2010, Emissions: f64(3), Include: "Yes"},
	}
	obs, _ := Load(rows, testOptions())
	require.Len(t, obs, 1)
	assert.Equal(t, "Rio de Janeiro", obs[0].City)
}

func TestCityKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CityKey("São Paulo"), CityKey("SÃO  PAULO "))
	assert.Equal(t, CityKey("Basel"), CityKey("basel"))
	assert.NotEqual(t, CityKey("Lima"), CityKey("Lim"))
}

func TestOptionsValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, testOptions().Validate())

	bad := testOptions()
	bad.Years = model.YearRange{Base: 2021, Current: 2020}
	assert.Error(t, bad.Validate())

	bad = testOptions()
	bad.Years.Base = 0
	assert.Error(t, bad.Validate())

	bad = testOptions()
	bad.InclusionFlags = nil
	assert.Error(t, bad.Validate())
}
