package model

import "math"

// YearRange is the inclusive span of inventory years covered by a table.
type YearRange struct {
	Base    int `json:"base" mapstructure:"base"`
	Current int `json:"current" mapstructure:"current"`
}

// Len returns the number of years in the range, or 0 if it is inverted.
func (r YearRange) Len() int {
	if r.Current < r.Base {
		return 0
	}
	return r.Current - r.Base + 1
}

// Contains reports whether year falls inside the range.
func (r YearRange) Contains(year int) bool {
	return year >= r.Base && year <= r.Current
}

// Index returns the slice position of year, or -1.
func (r YearRange) Index(year int) int {
	if !r.Contains(year) {
		return -1
	}
	return year - r.Base
}

// Year returns the year stored at slice position i.
func (r YearRange) Year(i int) int { return r.Base + i }

// Years lists every year in the range in ascending order.
func (r YearRange) Years() []int {
	out := make([]int, r.Len())
	for i := range out {
		out[i] = r.Base + i
	}
	return out
}

// RawRow is one tracker row before validation. Emissions is nil when the cell
// was blank.
type RawRow struct {
	Line      int
	City      string
	Source    string
	Year      int
	Emissions *float64
	Include   string
}

// Observation is a validated tracker row.
type Observation struct {
	City      string     `json:"city"`
	Source    DataSource `json:"source"`
	Year      int        `json:"year"`
	Emissions float64    `json:"emissions"`
}

// Rank returns the rank of the observation's source.
func (o Observation) Rank() int { return o.Source.Rank() }

// Missing marks a year with no reported value in a pivoted series.
var Missing = math.NaN()

// IsMissing reports whether v is the missing marker.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Record is the wide emissions series for one (city, source) pair, plus the
// peaking results attached by the evaluator and selector.
type Record struct {
	City      string     `json:"city"`
	Source    DataSource `json:"source"`
	Emissions []float64  `json:"emissions"`

	Params             PeakParams `json:"params"`
	Criteria           Criteria   `json:"criteria"`
	PctChangeSincePeak float64    `json:"pct_change_since_peak"`
	Status             PeakStatus `json:"status"`
	UseForDashboard    bool       `json:"use_for_dashboard"`
}

// Rank returns the rank of the record's source.
func (r *Record) Rank() int { return r.Source.Rank() }

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	c := *r
	c.Emissions = append([]float64(nil), r.Emissions...)
	return &c
}

// Table is an ordered set of records sharing one year range.
type Table struct {
	Years   YearRange `json:"years"`
	Records []*Record `json:"records"`
}

// Clone returns a deep copy of t.
func (t *Table) Clone() *Table {
	c := &Table{Years: t.Years, Records: make([]*Record, len(t.Records))}
	for i, r := range t.Records {
		c.Records[i] = r.Clone()
	}
	return c
}

// Find returns the record for (city, source), or nil.
func (t *Table) Find(city string, source DataSource) *Record {
	for _, r := range t.Records {
		if r.City == city && r.Source == source {
			return r
		}
	}
	return nil
}

// Selected returns the dashboard record for city, or nil.
func (t *Table) Selected(city string) *Record {
	for _, r := range t.Records {
		if r.City == city && r.UseForDashboard {
			return r
		}
	}
	return nil
}

// Cities lists distinct city names in table order.
func (t *Table) Cities() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range t.Records {
		if !seen[r.City] {
			seen[r.City] = true
			out = append(out, r.City)
		}
	}
	return out
}

// DashboardRow is one long-format (city, year, source) emissions value.
type DashboardRow struct {
	City            string     `json:"city" csv:"city"`
	Year            int        `json:"year" csv:"year"`
	Source          DataSource `json:"source" csv:"data_source"`
	Rank            int        `json:"rank" csv:"rank"`
	Status          PeakStatus `json:"status" csv:"status"`
	UseForDashboard bool       `json:"use_for_dashboard" csv:"use_for_dashboard"`
	Emissions       float64    `json:"emissions" csv:"emissions"`
	PeakYear        int        `json:"peak_year" csv:"peak_year"`
}

// PeakYearRow is the peak of one peaked dashboard city.
type PeakYearRow struct {
	City          string     `json:"city" csv:"city"`
	Source        DataSource `json:"source" csv:"data_source"`
	PeakYear      int        `json:"peak_year" csv:"peak_year"`
	PeakEmissions float64    `json:"peak_emissions" csv:"peak_emissions"`
}
