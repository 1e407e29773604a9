package runner

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// ErrNoSnapshot is returned before the first successful refresh.
var ErrNoSnapshot = eris.New("runner: no result yet")

// Snapshot holds the latest successful outcome for readers such as the API.
// Refreshes are serialised; readers never block on a running refresh.
type Snapshot struct {
	runner *Runner
	req    Request

	refreshMu sync.Mutex
	mu        sync.RWMutex
	current   *Outcome
}

// NewSnapshot creates a Snapshot that refreshes with req.
func NewSnapshot(r *Runner, req Request) *Snapshot {
	return &Snapshot{runner: r, req: req}
}

// Refresh executes a run and publishes its outcome. On failure the previous
// outcome stays current.
func (s *Snapshot) Refresh(ctx context.Context) (*Outcome, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	out, err := s.runner.Execute(ctx, s.req)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.current = out
	s.mu.Unlock()
	return out, nil
}

// Current returns the latest outcome.
func (s *Snapshot) Current() (*Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNoSnapshot
	}
	return s.current, nil
}

// Set publishes an outcome produced elsewhere.
func (s *Snapshot) Set(out *Outcome) {
	s.mu.Lock()
	s.current = out
	s.mu.Unlock()
}
