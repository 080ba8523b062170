package evaluate

import (
	"github.com/talentsift/talentsift/internal/ai"
	"github.com/talentsift/talentsift/internal/criteria"
	"github.com/talentsift/talentsift/internal/enrich"
)

// Bucket is the routing decision for one candidate.
type Bucket string

const (
	BucketProceed        Bucket = "proceed"
	BucketHumanReview    Bucket = "human_review"
	BucketDismiss        Bucket = "dismiss"
	BucketUnableToEnrich Bucket = "unable_to_enrich"
)

// Decide routes a candidate into exactly one bucket. The rules are checked
// in strict priority order and the first match wins:
//
//  1. unable_to_enrich: enrichment was attempted but unavailable, and at
//     least one must-have came back UNKNOWN.
//  2. dismiss: any enabled gating parameter is MET, or any must-have is
//     NOT_MET.
//  3. proceed: every must-have is MET.
//  4. human_review: everything else.
//
// Nice-to-have judgments are recorded for reviewers but never move a
// candidate between buckets.
func Decide(def *criteria.Definition, judgments map[string]*ai.Judgment, enrichStatus enrich.Status) Bucket {
	anyMustHaveUnknown := false
	anyMustHaveNotMet := false
	allMustHavesMet := len(def.MustHaves) > 0

	for _, crit := range def.MustHaves {
		status := statusFor(judgments, crit.ID)
		switch status {
		case ai.StatusMet:
		case ai.StatusNotMet:
			anyMustHaveNotMet = true
			allMustHavesMet = false
		default:
			anyMustHaveUnknown = true
			allMustHavesMet = false
		}
	}

	if enrichStatus == enrich.StatusUnavailable && anyMustHaveUnknown {
		return BucketUnableToEnrich
	}

	for _, gate := range def.EnabledGating() {
		if statusFor(judgments, gate.ID) == ai.StatusMet {
			return BucketDismiss
		}
	}
	if anyMustHaveNotMet {
		return BucketDismiss
	}

	if allMustHavesMet {
		return BucketProceed
	}
	return BucketHumanReview
}

// statusFor treats a missing judgment as UNKNOWN so a partially judged
// candidate is never dismissed or advanced on absent data.
func statusFor(judgments map[string]*ai.Judgment, id string) ai.Status {
	j, ok := judgments[id]
	if !ok || j == nil {
		return ai.StatusUnknown
	}
	return j.Status
}
