package peaking

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/peaking-cli/internal/model"
)

// DefaultBaseYear is the first inventory year considered.
const DefaultBaseYear = 1990

// DefaultInclusionFlags are the tracker values that mark a row for use.
var DefaultInclusionFlags = []string{"Yes", "yes", "Y", "y"}

// DefaultExcludedCities are former members removed from the analysis.
var DefaultExcludedCities = []string{"Basel", "Caracas"}

// Options carries every setting the pipeline reads. The core holds no global
// state; callers resolve the current year before building Options.
type Options struct {
	Years          model.YearRange
	ExcludedCities []string
	InclusionFlags []string
}

// DefaultOptions returns the standard options for the given current year.
func DefaultOptions(currentYear int) Options {
	return Options{
		Years:          model.YearRange{Base: DefaultBaseYear, Current: currentYear},
		ExcludedCities: append([]string(nil), DefaultExcludedCities...),
		InclusionFlags: append([]string(nil), DefaultInclusionFlags...),
	}
}

// Validate checks that the options describe a usable year range.
func (o Options) Validate() error {
	if o.Years.Base <= 0 {
		return eris.Errorf("peaking: base year must be positive, got %d", o.Years.Base)
	}
	if o.Years.Current < o.Years.Base {
		return eris.Errorf("peaking: current year %d is before base year %d", o.Years.Current, o.Years.Base)
	}
	if len(o.InclusionFlags) == 0 {
		return eris.New("peaking: at least one inclusion flag is required")
	}
	return nil
}

func (o Options) excludedSet() map[string]bool {
	set := make(map[string]bool, len(o.ExcludedCities))
	for _, c := range o.ExcludedCities {
		set[CityKey(c)] = true
	}
	return set
}

func (o Options) flagSet() map[string]bool {
	set := make(map[string]bool, len(o.InclusionFlags))
	for _, f := range o.InclusionFlags {
		set[strings.TrimSpace(f)] = true
	}
	return set
}
