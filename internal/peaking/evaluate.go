package peaking

import "github.com/sells-group/peaking-cli/internal/model"

const (
	minDataPoints      = 3
	minYearsSincePeak  = 5
	maxInventoryAge    = 5
	minDropSincePeak   = 0.10
	overrideMaxPctRise = 5.0
)

// Parameters derives the peaking statistics from the positive values of r.
func Parameters(r *model.Record, years model.YearRange) model.PeakParams {
	var p model.PeakParams
	for i, v := range r.Emissions {
		if !(v > 0) {
			continue
		}
		year := years.Year(i)
		if p.NumDataPoints == 0 {
			p.EarliestEmissions, p.EarliestEmissionsYear = v, year
		}
		if v > p.MaxEmissions {
			p.MaxEmissions, p.MaxEmissionsYear = v, year
		}
		p.RecentEmissions, p.RecentEmissionsYear = v, year
		p.NumDataPoints++
	}
	return p
}

// ApplyCriteria evaluates the four criteria and the signed percentage change
// since the peak. A record without data points fails every criterion and
// reports no change.
func ApplyCriteria(p model.PeakParams, currentYear int) (model.Criteria, float64) {
	if p.NumDataPoints == 0 {
		return model.Criteria{}, 0
	}
	drop := (p.MaxEmissions - p.RecentEmissions) / p.MaxEmissions
	c := model.Criteria{
		PC1: p.NumDataPoints >= minDataPoints,
		PC2: p.RecentEmissionsYear-p.MaxEmissionsYear >= minYearsSincePeak,
		PC3: currentYear-p.RecentEmissionsYear <= maxInventoryAge,
		PC4: drop >= minDropSincePeak,
	}
	return c, (p.RecentEmissions - p.MaxEmissions) / p.MaxEmissions * 100
}

// Classify applies the decision rule in precedence order.
func Classify(c model.Criteria) model.PeakStatus {
	switch {
	case c.PC1 && c.PC2 && c.PC3 && c.PC4:
		return model.StatusPeaked
	case c.PC1 && c.PC3 && !c.PC4:
		return model.StatusNotPeaked
	default:
		return model.StatusUnknown
	}
}

// EvaluateRecord fills the parameters, criteria and status of r.
func EvaluateRecord(r *model.Record, years model.YearRange) {
	r.Params = Parameters(r, years)
	if r.Params.NumDataPoints == 0 {
		r.Criteria, r.PctChangeSincePeak = model.Criteria{}, 0
		r.Status = model.StatusUnknown
		return
	}
	r.Criteria, r.PctChangeSincePeak = ApplyCriteria(r.Params, years.Current)
	r.Status = Classify(r.Criteria)
}

// Evaluate classifies every record in t against t's current year.
func Evaluate(t *model.Table) {
	for _, r := range t.Records {
		EvaluateRecord(r, t.Years)
	}
}
