package model

import "strings"

// DataSource identifies where an emissions series came from. The set is
// closed: six raw sources read from the tracker plus two composites built by
// back-filling within a family.
type DataSource string

const (
	SourceC40GPC      DataSource = "C40_GPC"
	SourceCityGPC     DataSource = "City_GPC"
	SourceCDPGPC      DataSource = "CDP_GPC"
	SourceAllGPC      DataSource = "All GPC considered"
	SourceTargetOther DataSource = "Target_Other"
	SourceCityOther   DataSource = "City_Other"
	SourceCDPOther    DataSource = "CDP_Other"
	SourceAllNonGPC   DataSource = "All non GPC considered"
)

// RankUnknown is returned for labels outside the enumeration.
const RankUnknown = 100

// Family groups sources that follow the same accounting methodology.
type Family int

const (
	FamilyNone Family = iota
	FamilyGPC
	FamilyNonGPC
)

func (f Family) String() string {
	switch f {
	case FamilyGPC:
		return "gpc"
	case FamilyNonGPC:
		return "non_gpc"
	default:
		return "none"
	}
}

// Composite returns the synthetic source built for the family.
func (f Family) Composite() DataSource {
	switch f {
	case FamilyGPC:
		return SourceAllGPC
	case FamilyNonGPC:
		return SourceAllNonGPC
	default:
		return ""
	}
}

// AllSources lists every source in ascending rank order.
var AllSources = []DataSource{
	SourceC40GPC,
	SourceCityGPC,
	SourceCDPGPC,
	SourceAllGPC,
	SourceTargetOther,
	SourceCityOther,
	SourceCDPOther,
	SourceAllNonGPC,
}

// Rank returns the data quality rank (lower is more trusted), or RankUnknown.
func (s DataSource) Rank() int {
	switch s {
	case SourceC40GPC:
		return 1
	case SourceCityGPC:
		return 2
	case SourceCDPGPC:
		return 3
	case SourceAllGPC:
		return 4
	case SourceTargetOther:
		return 5
	case SourceCityOther:
		return 6
	case SourceCDPOther:
		return 7
	case SourceAllNonGPC:
		return 8
	default:
		return RankUnknown
	}
}

// Family reports which family a raw source belongs to. Composites and unknown
// labels return FamilyNone.
func (s DataSource) Family() Family {
	switch s {
	case SourceC40GPC, SourceCityGPC, SourceCDPGPC:
		return FamilyGPC
	case SourceTargetOther, SourceCityOther, SourceCDPOther:
		return FamilyNonGPC
	default:
		return FamilyNone
	}
}

// IsComposite reports whether s is one of the two synthetic sources.
func (s DataSource) IsComposite() bool {
	return s == SourceAllGPC || s == SourceAllNonGPC
}

// Known reports whether s belongs to the enumeration.
func (s DataSource) Known() bool {
	return s.Rank() != RankUnknown
}

func (s DataSource) String() string { return string(s) }

// ParseRawSource maps a tracker label onto one of the six raw sources.
// Composite labels are rejected because they never appear in raw input.
func ParseRawSource(label string) (DataSource, bool) {
	s, ok := ParseDataSource(label)
	if !ok || s.IsComposite() {
		return "", false
	}
	return s, true
}

// ParseDataSource maps any label in the enumeration, matching exactly first
// and then case-insensitively.
func ParseDataSource(label string) (DataSource, bool) {
	label = strings.TrimSpace(label)
	if s := DataSource(label); s.Known() {
		return s, true
	}
	for _, s := range AllSources {
		if strings.EqualFold(string(s), label) {
			return s, true
		}
	}
	return "", false
}
