// Package enrich supplies supplementary profile data fetched from an
// external source, cached with a freshness window so repeated runs do not
// refetch the same person.
package enrich

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable reports that the source was reached for (or refused) the
// identifier and no profile is accessible. It is a first-class outcome, not
// a transport failure: callers must distinguish "we tried and failed" from
// "we never tried", because only the former feeds the unable-to-enrich
// bucket directly instead of triggering another fetch.
var ErrUnavailable = errors.New("enrichment unavailable for profile")

// DefaultFreshness is the validity window for a cached record.
const DefaultFreshness = 30 * 24 * time.Hour

// Position is one role in the candidate's tenure history.
type Position struct {
	Title     string `json:"title"`
	Company   string `json:"company"`
	StartYear int    `json:"start_year,omitempty"`
	EndYear   int    `json:"end_year,omitempty"`
}

// Record is the cached enrichment payload for one external profile.
type Record struct {
	Identifier string     `json:"identifier"`
	Positions  []Position `json:"positions,omitempty"`
	Education  []string   `json:"education,omitempty"`
	Skills     []string   `json:"skills,omitempty"`
	Summary    string     `json:"summary,omitempty"`
	FetchedAt  time.Time  `json:"fetched_at"`
}

// Fresh reports whether the record is still within the freshness window.
func (r *Record) Fresh(now time.Time, window time.Duration) bool {
	if r == nil {
		return false
	}
	return now.Sub(r.FetchedAt) < window
}

// Fetcher performs the external lookup-by-identifier. Implementations
// return ErrUnavailable when the profile is inaccessible; any other error
// is a transport failure.
type Fetcher interface {
	Fetch(ctx context.Context, identifier string) (*Record, error)
}

// Status summarizes enrichment availability for one candidate, as seen by
// the decision engine.
type Status string

const (
	// StatusAvailable means a fresh record was supplied to the evaluator.
	StatusAvailable Status = "available"
	// StatusUnavailable means a fetch was attempted and explicitly failed.
	StatusUnavailable Status = "unavailable"
	// StatusSkipped means enrichment was not configured for the run.
	StatusSkipped Status = "skipped"
)
