package evaluate

import (
	"testing"

	"github.com/talentsift/talentsift/internal/ai"
	"github.com/talentsift/talentsift/internal/criteria"
	"github.com/talentsift/talentsift/internal/enrich"
)

func testDefinition() *criteria.Definition {
	return &criteria.Definition{
		MustHaves: []criteria.Criterion{
			{ID: "go_experience", Description: "Professional Go experience."},
			{ID: "relevant_location", Description: "Based in a supported region."},
		},
		GatingParams: []criteria.GatingParam{
			{ID: "currently_at_client", Description: "Works at the hiring client today.", Enabled: true},
			{ID: "recent_applicant", Description: "Applied in the last 90 days.", Enabled: false},
		},
		NiceToHaves: []criteria.Criterion{
			{ID: "open_source", Description: "Maintains open source projects."},
		},
	}
}

func judgments(pairs map[string]ai.Status) map[string]*ai.Judgment {
	out := make(map[string]*ai.Judgment, len(pairs))
	for id, status := range pairs {
		out[id] = &ai.Judgment{CriterionID: id, Status: status, Reason: "test"}
	}
	return out
}

func TestDecide(t *testing.T) {
	def := testDefinition()

	cases := []struct {
		name     string
		statuses map[string]ai.Status
		enrich   enrich.Status
		want     Bucket
	}{
		{
			name: "all must-haves met proceeds",
			statuses: map[string]ai.Status{
				"go_experience":       ai.StatusMet,
				"relevant_location":   ai.StatusMet,
				"currently_at_client": ai.StatusNotMet,
			},
			enrich: enrich.StatusAvailable,
			want:   BucketProceed,
		},
		{
			name: "enabled gating met dismisses even when must-haves pass",
			statuses: map[string]ai.Status{
				"go_experience":       ai.StatusMet,
				"relevant_location":   ai.StatusMet,
				"currently_at_client": ai.StatusMet,
			},
			enrich: enrich.StatusAvailable,
			want:   BucketDismiss,
		},
		{
			name: "disabled gating met is ignored",
			statuses: map[string]ai.Status{
				"go_experience":     ai.StatusMet,
				"relevant_location": ai.StatusMet,
				"recent_applicant":  ai.StatusMet,
			},
			enrich: enrich.StatusAvailable,
			want:   BucketProceed,
		},
		{
			name: "must-have not met dismisses",
			statuses: map[string]ai.Status{
				"go_experience":     ai.StatusNotMet,
				"relevant_location": ai.StatusMet,
			},
			enrich: enrich.StatusAvailable,
			want:   BucketDismiss,
		},
		{
			name: "unknown must-have with enrichment goes to human review",
			statuses: map[string]ai.Status{
				"go_experience":     ai.StatusMet,
				"relevant_location": ai.StatusUnknown,
			},
			enrich: enrich.StatusAvailable,
			want:   BucketHumanReview,
		},
		{
			name: "unknown must-have without enrichment is unable to enrich",
			statuses: map[string]ai.Status{
				"go_experience":     ai.StatusMet,
				"relevant_location": ai.StatusUnknown,
			},
			enrich: enrich.StatusUnavailable,
			want:   BucketUnableToEnrich,
		},
		{
			name: "unable to enrich outranks gating dismiss",
			statuses: map[string]ai.Status{
				"go_experience":       ai.StatusUnknown,
				"relevant_location":   ai.StatusMet,
				"currently_at_client": ai.StatusMet,
			},
			enrich: enrich.StatusUnavailable,
			want:   BucketUnableToEnrich,
		},
		{
			name: "not-met must-have without enrichment still dismisses",
			statuses: map[string]ai.Status{
				"go_experience":     ai.StatusNotMet,
				"relevant_location": ai.StatusMet,
			},
			enrich: enrich.StatusUnavailable,
			want:   BucketDismiss,
		},
		{
			name: "unknown and not-met must-haves without enrichment is unable to enrich",
			statuses: map[string]ai.Status{
				"go_experience":     ai.StatusNotMet,
				"relevant_location": ai.StatusUnknown,
			},
			enrich: enrich.StatusUnavailable,
			want:   BucketUnableToEnrich,
		},
		{
			name: "nice-to-have never moves the bucket",
			statuses: map[string]ai.Status{
				"go_experience":     ai.StatusMet,
				"relevant_location": ai.StatusMet,
				"open_source":       ai.StatusNotMet,
			},
			enrich: enrich.StatusAvailable,
			want:   BucketProceed,
		},
		{
			name: "missing judgment counts as unknown",
			statuses: map[string]ai.Status{
				"go_experience": ai.StatusMet,
			},
			enrich: enrich.StatusAvailable,
			want:   BucketHumanReview,
		},
		{
			name: "skipped enrichment never yields unable to enrich",
			statuses: map[string]ai.Status{
				"go_experience":     ai.StatusUnknown,
				"relevant_location": ai.StatusMet,
			},
			enrich: enrich.StatusSkipped,
			want:   BucketHumanReview,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Decide(def, judgments(tc.statuses), tc.enrich)
			if got != tc.want {
				t.Errorf("Decide() = %q, want %q", got, tc.want)
			}
		})
	}
}
