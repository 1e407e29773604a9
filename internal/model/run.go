package model

import "time"

// RunStatus represents the state of a peaking run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is a row in the peaking run log.
type Run struct {
	ID          string      `json:"id"`
	InputPath   string      `json:"input_path"`
	Status      RunStatus   `json:"status"`
	DryRun      bool        `json:"dry_run"`
	Summary     *RunSummary `json:"summary,omitempty"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// RunSummary holds the counts recorded when a run completes.
type RunSummary struct {
	RowsRead      int            `json:"rows_read"`
	RowsKept      int            `json:"rows_kept"`
	RowsDropped   map[string]int `json:"rows_dropped,omitempty"`
	Records       int            `json:"records"`
	Cities        int            `json:"cities"`
	Composites    int            `json:"composites"`
	StatusCounts  map[string]int `json:"status_counts,omitempty"`
	PeakedCount   int            `json:"peaked_count"`
	RegistryCount int            `json:"registry_count"`
	Overrides     int            `json:"overrides"`
	Reversed      int            `json:"reversed"`
	NewlyPeaked   []string       `json:"newly_peaked,omitempty"`
	Outputs       []string       `json:"outputs,omitempty"`
}

// RunFilter controls which runs ListRuns returns.
type RunFilter struct {
	Status RunStatus
	Limit  int
	Offset int
}
