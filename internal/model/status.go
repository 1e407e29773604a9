package model

// PeakStatus is the classification derived for an emissions record.
type PeakStatus string

const (
	StatusPeaked       PeakStatus = "Peaked"
	StatusNotPeaked    PeakStatus = "Not Peaked"
	StatusUnknown      PeakStatus = "Unknown"
	StatusPeakReversed PeakStatus = "Peak Reversed"
)

// AllStatuses lists the statuses in reporting order.
var AllStatuses = []PeakStatus{StatusPeaked, StatusNotPeaked, StatusUnknown, StatusPeakReversed}

// PeakParams are the summary statistics computed from the positive years of a
// record. Years are zero when NumDataPoints is zero.
type PeakParams struct {
	NumDataPoints         int     `json:"num_data_points"`
	MaxEmissions          float64 `json:"max_emissions"`
	MaxEmissionsYear      int     `json:"max_emissions_year"`
	RecentEmissions       float64 `json:"recent_emissions"`
	RecentEmissionsYear   int     `json:"recent_emissions_year"`
	EarliestEmissions     float64 `json:"earliest_emissions"`
	EarliestEmissionsYear int     `json:"earliest_emissions_year"`
}

// Criteria holds the four peaking criteria.
type Criteria struct {
	PC1 bool `json:"pc1"` // at least 3 data points
	PC2 bool `json:"pc2"` // peak at least 5 years before the recent inventory
	PC3 bool `json:"pc3"` // recent inventory at most 5 years old
	PC4 bool `json:"pc4"` // recent inventory at least 10% below the peak
}

// Criteria column labels used in the master workbook. The PC4 label reads
// "<10%" for historical reasons; the computed test is a drop of at least 10%.
const (
	LabelPC1 = "PC1: At least 3 year of data available"
	LabelPC2 = "PC2: Max emissions >5 years before recent inventory"
	LabelPC3 = "PC3: Recent inventory <5 years old"
	LabelPC4 = "PC4: Max emissions <10% higher than recent inventory"
)
