package peaking

import (
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/peaking-cli/internal/model"
)

// DropReason names why the loader excluded a row.
type DropReason string

const (
	DropMissingCity   DropReason = "missing_city"
	DropExcludedCity  DropReason = "excluded_city"
	DropZeroYear      DropReason = "zero_year"
	DropNotIncluded   DropReason = "not_included"
	DropUnknownSource DropReason = "unknown_source"
	DropOutOfRange    DropReason = "out_of_range"
	DropNegative      DropReason = "negative_emissions"
	DropNonFinite     DropReason = "non_finite_emissions"
)

// LoadStats counts what happened to the raw rows.
type LoadStats struct {
	Read    int                `json:"read"`
	Kept    int                `json:"kept"`
	Dropped map[DropReason]int `json:"dropped"`
}

// DroppedTotal returns the number of excluded rows.
func (s LoadStats) DroppedTotal() int {
	n := 0
	for _, c := range s.Dropped {
		n += c
	}
	return n
}

// Load filters raw tracker rows into observations. Rows that fail a check are
// dropped and counted, never reported as errors. The result is sorted by
// (city, year) with ties kept in rank order.
func Load(rows []model.RawRow, opts Options) ([]model.Observation, LoadStats) {
	log := zap.L().With(zap.String("component", "loader"))
	excluded := opts.excludedSet()
	flags := opts.flagSet()

	stats := LoadStats{Read: len(rows), Dropped: make(map[DropReason]int)}
	out := make([]model.Observation, 0, len(rows))

	for _, row := range rows {
		obs, reason := loadRow(row, opts.Years, excluded, flags)
		if reason != "" {
			stats.Dropped[reason]++
			log.Debug("row dropped",
				zap.Int("line", row.Line),
				zap.String("city", row.City),
				zap.String("source", row.Source),
				zap.String("reason", string(reason)),
			)
			continue
		}
		out = append(out, obs)
	}
	stats.Kept = len(out)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].City != out[j].City {
			return out[i].City < out[j].City
		}
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Rank() < out[j].Rank()
	})
	return out, stats
}

func loadRow(row model.RawRow, years model.YearRange, excluded, flags map[string]bool) (model.Observation, DropReason) {
	city := NormalizeCity(row.City)
	if city == "" {
		return model.Observation{}, DropMissingCity
	}
	if excluded[CityKey(city)] {
		return model.Observation{}, DropExcludedCity
	}
	if row.Year == 0 {
		return model.Observation{}, DropZeroYear
	}
	if !flags[strings.TrimSpace(row.Include)] {
		return model.Observation{}, DropNotIncluded
	}
	source, ok := model.ParseRawSource(row.Source)
	if !ok {
		return model.Observation{}, DropUnknownSource
	}
	if !years.Contains(row.Year) {
		return model.Observation{}, DropOutOfRange
	}
	var emissions float64
	if row.Emissions != nil && !math.IsNaN(*row.Emissions) {
		emissions = *row.Emissions
	}
	if math.IsInf(emissions, 0) {
		return model.Observation{}, DropNonFinite
	}
	if emissions < 0 {
		return model.Observation{}, DropNegative
	}
	return model.Observation{City: city, Source: source, Year: row.Year, Emissions: emissions}, ""
}
