package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYearRange(t *testing.T) {
	t.Parallel()

	r := YearRange{Base: 1990, Current: 1994}
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, []int{1990, 1991, 1992, 1993, 1994}, r.Years())
	assert.Equal(t, 0, r.Index(1990))
	assert.Equal(t, 4, r.Index(1994))
	assert.Equal(t, -1, r.Index(1995))
	assert.Equal(t, -1, r.Index(1989))
	assert.Equal(t, 1992, r.Year(2))
	assert.True(t, r.Contains(1992))

	inverted := YearRange{Base: 2000, Current: 1999}
	assert.Equal(t, 0, inverted.Len())
	assert.Empty(t, inverted.Years())
}

func TestIsMissing(t *testing.T) {
	t.Parallel()

	assert.True(t, IsMissing(Missing))
	assert.False(t, IsMissing(0))
}

func TestTableCloneIsDeep(t *testing.T) {
	t.Parallel()

	tbl := &Table{
		Years: YearRange{Base: 2000, Current: 2001},
		Records: []*Record{
			{City: "Accra", Source: SourceCityGPC, Emissions: []float64{1, 2}},
		},
	}
	c := tbl.Clone()
	c.Records[0].Emissions[0] = 99
	c.Records[0].Status = StatusPeaked

	assert.InDelta(t, 1.0, tbl.Records[0].Emissions[0], 0)
	assert.Empty(t, tbl.Records[0].Status)
}

func TestTableLookups(t *testing.T) {
	t.Parallel()

	tbl := &Table{Records: []*Record{
		{City: "Accra", Source: SourceCityGPC},
		{City: "Accra", Source: SourceCDPGPC, UseForDashboard: true},
		{City: "Lima", Source: SourceCityOther},
	}}

	require.NotNil(t, tbl.Find("Accra", SourceCDPGPC))
	assert.Nil(t, tbl.Find("Lima", SourceCDPGPC))
	assert.Equal(t, SourceCDPGPC, tbl.Selected("Accra").Source)
	assert.Nil(t, tbl.Selected("Lima"))
	assert.Equal(t, []string{"Accra", "Lima"}, tbl.Cities())
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry([]RegistryEntry{
		{City: "Oslo", Source: SourceC40GPC},
		{City: "Accra", Source: SourceCityGPC},
		{City: "Oslo", Source: SourceCDPGPC},
	})
	assert.Len(t, reg, 2)
	assert.Equal(t, SourceCDPGPC, reg["Oslo"])
	assert.Equal(t, []string{"Accra", "Oslo"}, reg.Cities())
}
