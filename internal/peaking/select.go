package peaking

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/peaking-cli/internal/model"
)

// Select marks exactly one record per city for the dashboard. Candidates are
// considered in ascending rank order, so "first" means most trusted.
func Select(t *model.Table) {
	for _, r := range t.Records {
		r.UseForDashboard = false
	}
	for _, group := range groupByCity(byCityThenRank(t.Records)) {
		pick(group).UseForDashboard = true
	}
}

// pick applies the status vote to one city's candidates.
func pick(candidates []*model.Record) *model.Record {
	counts := make(map[model.PeakStatus]int)
	for _, r := range candidates {
		counts[r.Status]++
	}
	peaked, notPeaked := counts[model.StatusPeaked], counts[model.StatusNotPeaked]

	switch {
	case peaked > 0 && peaked >= notPeaked:
		return firstWithStatus(candidates, model.StatusPeaked)
	case notPeaked > 0 && notPeaked > peaked:
		return firstWithStatus(candidates, model.StatusNotPeaked)
	}

	var best *model.Record
	for _, r := range candidates {
		if r.Status != model.StatusUnknown {
			continue
		}
		if best == nil ||
			r.Params.NumDataPoints > best.Params.NumDataPoints ||
			(r.Params.NumDataPoints == best.Params.NumDataPoints && r.Rank() < best.Rank()) {
			best = r
		}
	}
	if best == nil {
		best = candidates[0]
	}
	return best
}

func firstWithStatus(candidates []*model.Record, status model.PeakStatus) *model.Record {
	for _, r := range candidates {
		if r.Status == status {
			return r
		}
	}
	return nil
}

func byCityThenRank(records []*model.Record) []*model.Record {
	out := append([]*model.Record(nil), records...)
	sortRecords(out)
	return out
}

// OverrideAction describes what the registry pass did for one entry.
type OverrideAction string

const (
	OverrideKept          OverrideAction = "kept"
	OverrideForced        OverrideAction = "forced"
	OverrideReversed      OverrideAction = "reversed"
	OverrideMissingCity   OverrideAction = "missing_city"
	OverrideMissingSource OverrideAction = "missing_source"
)

// Override is the outcome of checking one registry entry.
type Override struct {
	City     string           `json:"city"`
	Source   model.DataSource `json:"source"`
	Action   OverrideAction   `json:"action"`
	Previous model.DataSource `json:"previous,omitempty"`
	Switched bool             `json:"switched"`
}

// ApplyRegistry re-checks cities previously confirmed as peaked. When a
// city's selected record is not Peaked, the record for its registry source is
// forced to Peaked and selected if its change since peak is at most 5%;
// otherwise it becomes Peak Reversed. A registry record without data points
// has no change since peak and is reversed. Misses are reported and skipped.
func ApplyRegistry(t *model.Table, reg model.Registry) []Override {
	log := zap.L().With(zap.String("component", "selector"))

	byKey := make(map[string]string)
	for _, city := range t.Cities() {
		byKey[CityKey(city)] = city
	}

	var out []Override
	for _, regCity := range reg.Cities() {
		source := reg[regCity]
		o := Override{City: regCity, Source: source}

		city, ok := byKey[CityKey(regCity)]
		if !ok {
			o.Action = OverrideMissingCity
			log.Debug("registry city not in current data", zap.String("city", regCity))
			out = append(out, o)
			continue
		}
		o.City = city

		current := t.Selected(city)
		if current != nil && current.Status == model.StatusPeaked {
			o.Action = OverrideKept
			out = append(out, o)
			continue
		}

		target := t.Find(city, source)
		if target == nil {
			o.Action = OverrideMissingSource
			log.Warn("registry source not in current data",
				zap.String("city", city), zap.String("source", string(source)))
			out = append(out, o)
			continue
		}

		if target.Params.NumDataPoints > 0 && target.PctChangeSincePeak <= overrideMaxPctRise {
			target.Status = model.StatusPeaked
			o.Action = OverrideForced
			if current != target {
				if current != nil {
					current.UseForDashboard = false
					o.Previous = current.Source
				}
				target.UseForDashboard = true
				o.Switched = true
			}
			log.Info("registry override kept city peaked",
				zap.String("city", city), zap.String("source", string(source)), zap.Bool("switched", o.Switched))
		} else {
			target.Status = model.StatusPeakReversed
			o.Action = OverrideReversed
			log.Warn("peak reversed",
				zap.String("city", city),
				zap.String("source", string(source)),
				zap.Float64("pct_change_since_peak", target.PctChangeSincePeak),
				zap.Int("num_data_points", target.Params.NumDataPoints),
			)
		}
		out = append(out, o)
	}
	return out
}

// Report summarises the selected records against the registry.
type Report struct {
	StatusCounts  map[model.PeakStatus]int `json:"status_counts"`
	PeakedCount   int                      `json:"peaked_count"`
	RegistryCount int                      `json:"registry_count"`
	Exceeds       bool                     `json:"exceeds"`
	NewlyPeaked   []string                 `json:"newly_peaked"`
}

// Summarize counts selected statuses and lists selected Peaked cities that
// are not yet in the registry.
func Summarize(t *model.Table, reg model.Registry) Report {
	inRegistry := make(map[string]bool, len(reg))
	for city := range reg {
		inRegistry[CityKey(city)] = true
	}

	rep := Report{StatusCounts: make(map[model.PeakStatus]int), RegistryCount: len(reg)}
	for _, r := range t.Records {
		if !r.UseForDashboard {
			continue
		}
		rep.StatusCounts[r.Status]++
		if r.Status != model.StatusPeaked {
			continue
		}
		rep.PeakedCount++
		if !inRegistry[CityKey(r.City)] {
			rep.NewlyPeaked = append(rep.NewlyPeaked, r.City)
		}
	}
	sort.Strings(rep.NewlyPeaked)
	rep.Exceeds = rep.PeakedCount > rep.RegistryCount
	return rep
}

// NewEntries returns registry entries for the newly peaked cities, using the
// source of each city's selected record.
func NewEntries(t *model.Table, rep Report) []model.RegistryEntry {
	out := make([]model.RegistryEntry, 0, len(rep.NewlyPeaked))
	for _, city := range rep.NewlyPeaked {
		if r := t.Selected(city); r != nil {
			out = append(out, model.RegistryEntry{City: city, Source: r.Source})
		}
	}
	return out
}
