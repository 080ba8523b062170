package ai

import (
	"context"

	"github.com/talentsift/talentsift/internal/candidate"
	"github.com/talentsift/talentsift/internal/criteria"
	"github.com/talentsift/talentsift/internal/enrich"
)

// Status is the three-valued outcome of judging one criterion.
type Status string

const (
	StatusMet     Status = "MET"
	StatusNotMet  Status = "NOT_MET"
	StatusUnknown Status = "UNKNOWN"
)

// Judgment is the structured verdict for one (candidate, criterion) pair.
// Judgments are written once per run and never edited; re-evaluation
// produces a new set under a new run.
type Judgment struct {
	CriterionID string `json:"criterion_id"`
	Status      Status `json:"status"`
	Reason      string `json:"reason"`
	Evidence    string `json:"evidence"`
	// Raw keeps the model's unparsed reply for audit.
	Raw string `json:"-"`
}

// Judge issues one judgment per criterion. Implementations must return
// exactly one of the three statuses; absence of evidence yields Unknown,
// never NotMet.
type Judge interface {
	Judge(ctx context.Context, rec *candidate.Record, crit criteria.Criterion, enrichment *enrich.Record) (*Judgment, error)
}
