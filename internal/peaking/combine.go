package peaking

import (
	"sort"

	"github.com/sells-group/peaking-cli/internal/model"
)

// Widen pivots observations into one record per (city, source) with a value
// slot for every year in years. Years without an observation hold
// model.Missing. When a (city, source, year) appears more than once the first
// observation wins.
func Widen(obs []model.Observation, years model.YearRange) []*model.Record {
	type key struct {
		city   string
		source model.DataSource
	}
	index := make(map[key]*model.Record)
	var out []*model.Record

	for _, o := range obs {
		pos := years.Index(o.Year)
		if pos < 0 {
			continue
		}
		k := key{o.City, o.Source}
		rec, ok := index[k]
		if !ok {
			rec = &model.Record{City: o.City, Source: o.Source, Emissions: missingSeries(years.Len())}
			index[k] = rec
			out = append(out, rec)
		}
		if model.IsMissing(rec.Emissions[pos]) {
			rec.Emissions[pos] = o.Emissions
		}
	}
	sortRecords(out)
	return out
}

// CompositeOf folds a city's records within one family into a single
// composite record. Records are visited in ascending rank and the first
// non-missing value for each year wins. It returns nil when fewer than two
// records of the family are present.
func CompositeOf(records []*model.Record, family model.Family) *model.Record {
	var members []*model.Record
	for _, r := range records {
		if r.Source.Family() == family {
			members = append(members, r)
		}
	}
	if len(members) < 2 {
		return nil
	}
	sort.SliceStable(members, func(i, j int) bool { return members[i].Rank() < members[j].Rank() })

	width := len(members[0].Emissions)
	comp := &model.Record{
		City:      members[0].City,
		Source:    family.Composite(),
		Emissions: missingSeries(width),
	}
	for _, m := range members {
		for i := 0; i < width && i < len(m.Emissions); i++ {
			if model.IsMissing(comp.Emissions[i]) {
				comp.Emissions[i] = m.Emissions[i]
			}
		}
	}
	return comp
}

// Combine builds the candidate table: every per-source record plus a GPC and
// a non-GPC composite for each city with at least two sources in that family.
// Remaining gaps become 0 and records are ordered by (city, rank).
func Combine(obs []model.Observation, years model.YearRange) *model.Table {
	records := Widen(obs, years)

	var composites []*model.Record
	for _, group := range groupByCity(records) {
		for _, fam := range []model.Family{model.FamilyGPC, model.FamilyNonGPC} {
			if c := CompositeOf(group, fam); c != nil {
				composites = append(composites, c)
			}
		}
	}
	records = append(records, composites...)

	for _, r := range records {
		for i, v := range r.Emissions {
			if model.IsMissing(v) {
				r.Emissions[i] = 0
			}
		}
	}
	sortRecords(records)
	return &model.Table{Years: years, Records: records}
}

// CompositeCount returns how many composite records t holds.
func CompositeCount(t *model.Table) int {
	n := 0
	for _, r := range t.Records {
		if r.Source.IsComposite() {
			n++
		}
	}
	return n
}

func missingSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = model.Missing
	}
	return s
}

func sortRecords(records []*model.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].City != records[j].City {
			return records[i].City < records[j].City
		}
		return records[i].Rank() < records[j].Rank()
	})
}

// groupByCity splits records sorted by city into consecutive runs.
func groupByCity(records []*model.Record) [][]*model.Record {
	var groups [][]*model.Record
	start := 0
	for i := 1; i <= len(records); i++ {
		if i == len(records) || records[i].City != records[start].City {
			groups = append(groups, records[start:i])
			start = i
		}
	}
	return groups
}
