// Package store persists the peaked-cities registry and the run log.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/peaking-cli/internal/model"
)

// Store defines the persistence interface for peaking runs.
type Store interface {
	// Registry
	ListPeaked(ctx context.Context) ([]model.RegistryEntry, error)
	AppendPeaked(ctx context.Context, entries []model.RegistryEntry) (int, error)
	PutPeaked(ctx context.Context, entry model.RegistryEntry) error
	RemovePeaked(ctx context.Context, city string) error

	// Runs
	CreateRun(ctx context.Context, inputPath string, dryRun bool) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error
	FailRun(ctx context.Context, runID string, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// LookupPeaked returns the registry as a city to source mapping.
func LookupPeaked(ctx context.Context, s Store) (model.Registry, error) {
	entries, err := s.ListPeaked(ctx)
	if err != nil {
		return nil, err
	}
	return model.NewRegistry(entries), nil
}

// ErrNotFound is returned when a run or registry entry does not exist.
var ErrNotFound = eris.New("store: not found")

const defaultRunLimit = 50

func runLimit(f model.RunFilter) int {
	if f.Limit <= 0 {
		return defaultRunLimit
	}
	return f.Limit
}

func validateEntry(e model.RegistryEntry) error {
	if e.City == "" {
		return eris.New("store: registry entry has no city")
	}
	if !e.Source.Known() {
		return eris.Errorf("store: registry entry for %s has unknown source %q", e.City, e.Source)
	}
	return nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
