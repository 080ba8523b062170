package gemini

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/talentsift/talentsift/internal/ai"
	"github.com/talentsift/talentsift/internal/candidate"
	"github.com/talentsift/talentsift/internal/criteria"
)

type stubGenerator struct {
	responses []string
	errs      []error
	prompts   []string
}

func (s *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	idx := len(s.prompts) - 1
	if idx < len(s.errs) && s.errs[idx] != nil {
		return "", s.errs[idx]
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	return "", fmt.Errorf("unexpected call %d", idx)
}

func (s *stubGenerator) Model() string { return "stub-model" }

func testRecord() *candidate.Record {
	return &candidate.Record{
		LinkedinURL: "linkedin.com/in/jdoe",
		FirstName:   "Jane",
		LastName:    "Doe",
		Title:       "Platform Engineer",
	}
}

func testCriterion() criteria.Criterion {
	return criteria.Criterion{ID: "go_experience", Description: "Has professional Go experience."}
}

func TestJudgeParsesWellFormedResponse(t *testing.T) {
	gen := &stubGenerator{responses: []string{
		`{"status": "MET", "reason": "Title shows platform work in Go.", "evidence": "Platform Engineer"}`,
	}}
	judge := NewJudge(gen, 0, zap.NewNop())

	judgment, err := judge.Judge(context.Background(), testRecord(), testCriterion(), nil)
	if err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if judgment.Status != ai.StatusMet {
		t.Errorf("status = %q, want %q", judgment.Status, ai.StatusMet)
	}
	if judgment.CriterionID != "go_experience" {
		t.Errorf("criterion id = %q, want go_experience", judgment.CriterionID)
	}
	if judgment.Evidence != "Platform Engineer" {
		t.Errorf("evidence = %q", judgment.Evidence)
	}
	if len(gen.prompts) != 1 {
		t.Errorf("generator called %d times, want 1", len(gen.prompts))
	}
}

func TestJudgeRetriesOnceWithStrictReformulation(t *testing.T) {
	gen := &stubGenerator{responses: []string{
		"I think the candidate probably qualifies.",
		`{"status": "NOT_MET", "reason": "No Go experience listed."}`,
	}}
	judge := NewJudge(gen, 0, zap.NewNop())

	judgment, err := judge.Judge(context.Background(), testRecord(), testCriterion(), nil)
	if err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if judgment.Status != ai.StatusNotMet {
		t.Errorf("status = %q, want %q", judgment.Status, ai.StatusNotMet)
	}
	if len(gen.prompts) != 2 {
		t.Fatalf("generator called %d times, want 2", len(gen.prompts))
	}
	if !strings.Contains(gen.prompts[1], "could not be parsed") {
		t.Error("retry prompt did not carry the strict reformulation")
	}
}

func TestJudgeDowngradesToUnknownAfterSecondMalformedReply(t *testing.T) {
	gen := &stubGenerator{responses: []string{
		"not json",
		"still not json",
	}}
	judge := NewJudge(gen, 0, zap.NewNop())

	judgment, err := judge.Judge(context.Background(), testRecord(), testCriterion(), nil)
	if err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if judgment.Status != ai.StatusUnknown {
		t.Errorf("status = %q, want %q after downgrade", judgment.Status, ai.StatusUnknown)
	}
	if judgment.Reason == "" {
		t.Error("downgraded judgment has no reason")
	}
	if len(gen.prompts) != 2 {
		t.Errorf("generator called %d times, want exactly 2", len(gen.prompts))
	}
}

func TestJudgePropagatesTransportError(t *testing.T) {
	gen := &stubGenerator{errs: []error{fmt.Errorf("connection reset")}}
	judge := NewJudge(gen, 0, zap.NewNop())

	if _, err := judge.Judge(context.Background(), testRecord(), testCriterion(), nil); err == nil {
		t.Fatal("Judge() did not surface transport error")
	}
}

func TestJudgeStripsMarkdownFence(t *testing.T) {
	gen := &stubGenerator{responses: []string{
		"```json\n{\"status\": \"UNKNOWN\", \"reason\": \"Profile has no education section.\", \"evidence\": \"n/a\"}\n```",
	}}
	judge := NewJudge(gen, 0, zap.NewNop())

	judgment, err := judge.Judge(context.Background(), testRecord(), testCriterion(), nil)
	if err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if judgment.Status != ai.StatusUnknown {
		t.Errorf("status = %q, want %q", judgment.Status, ai.StatusUnknown)
	}
	if judgment.Evidence != "" {
		t.Errorf("evidence = %q, want empty for n/a", judgment.Evidence)
	}
}

func TestParseStatus(t *testing.T) {
	cases := []struct {
		raw     string
		want    ai.Status
		wantErr bool
	}{
		{raw: "MET", want: ai.StatusMet},
		{raw: "met", want: ai.StatusMet},
		{raw: "PASS", want: ai.StatusMet},
		{raw: "NOT_MET", want: ai.StatusNotMet},
		{raw: "not met", want: ai.StatusNotMet},
		{raw: "FAIL", want: ai.StatusNotMet},
		{raw: "UNKNOWN", want: ai.StatusUnknown},
		{raw: "unsure", want: ai.StatusUnknown},
		{raw: "MAYBE", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tc := range cases {
		got, err := parseStatus(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseStatus(%q) did not fail", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseStatus(%q) error = %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseStatus(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}
