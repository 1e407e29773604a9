package model

import (
	"sort"
	"time"
)

// RegistryEntry is a city already confirmed as peaked, with the source its
// peak was established on.
type RegistryEntry struct {
	City      string     `json:"city" yaml:"city"`
	Source    DataSource `json:"source" yaml:"source"`
	AddedAt   time.Time  `json:"added_at,omitzero" yaml:"-"`
	AddedBy   string     `json:"added_by,omitempty" yaml:"added_by,omitempty"`
	UpdatedAt time.Time  `json:"updated_at,omitzero" yaml:"-"`
}

// Registry maps a city name to the source of its confirmed peak.
type Registry map[string]DataSource

// NewRegistry builds a registry from entries. Later duplicates win.
func NewRegistry(entries []RegistryEntry) Registry {
	reg := make(Registry, len(entries))
	for _, e := range entries {
		reg[e.City] = e.Source
	}
	return reg
}

// Cities returns the registry cities in sorted order.
func (r Registry) Cities() []string {
	out := make([]string, 0, len(r))
	for c := range r {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
