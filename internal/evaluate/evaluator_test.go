package evaluate

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/talentsift/talentsift/internal/ai"
	"github.com/talentsift/talentsift/internal/candidate"
	"github.com/talentsift/talentsift/internal/criteria"
	"github.com/talentsift/talentsift/internal/enrich"
)

type stubJudge struct {
	statuses map[string]ai.Status
	errOn    map[string]bool
	calls    atomic.Int64
	block    chan struct{}
}

func (s *stubJudge) Judge(ctx context.Context, _ *candidate.Record, crit criteria.Criterion, _ *enrich.Record) (*ai.Judgment, error) {
	s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.errOn[crit.ID] {
		return nil, fmt.Errorf("model unreachable")
	}
	status, ok := s.statuses[crit.ID]
	if !ok {
		status = ai.StatusUnknown
	}
	return &ai.Judgment{CriterionID: crit.ID, Status: status, Reason: "stub"}, nil
}

type stubEnricher struct {
	records map[string]*enrich.Record
}

func (s *stubEnricher) GetOrFetch(_ context.Context, identifier string) (*enrich.Record, error) {
	rec, ok := s.records[identifier]
	if !ok {
		return nil, enrich.ErrUnavailable
	}
	return rec, nil
}

func records(n int) []*candidate.Record {
	out := make([]*candidate.Record, n)
	for i := range out {
		out[i] = &candidate.Record{
			LinkedinURL: fmt.Sprintf("linkedin.com/in/person%d", i),
			FirstName:   fmt.Sprintf("P%d", i),
			FileIndex:   0,
			RowIndex:    i,
		}
	}
	return out
}

func TestEvaluatePreservesInputOrder(t *testing.T) {
	def := testDefinition()
	judge := &stubJudge{statuses: map[string]ai.Status{
		"go_experience":     ai.StatusMet,
		"relevant_location": ai.StatusMet,
	}}
	ev := New(judge, def, Options{Workers: 3}, zap.NewNop())

	recs := records(10)
	got, err := ev.Evaluate(context.Background(), recs)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(got) != len(recs) {
		t.Fatalf("got %d evaluations, want %d", len(got), len(recs))
	}
	for i, e := range got {
		if e.Record != recs[i] {
			t.Fatalf("evaluation %d is out of order", i)
		}
		if e.Bucket != BucketProceed {
			t.Errorf("evaluation %d bucket = %q, want %q", i, e.Bucket, BucketProceed)
		}
	}
	if done := ev.Progress.Done.Load(); done != int64(len(recs)) {
		t.Errorf("progress done = %d, want %d", done, len(recs))
	}
}

func TestEvaluateRecordsFailedJudgmentAsUnknown(t *testing.T) {
	def := testDefinition()
	judge := &stubJudge{
		statuses: map[string]ai.Status{"go_experience": ai.StatusMet},
		errOn:    map[string]bool{"relevant_location": true},
	}
	ev := New(judge, def, Options{Workers: 1}, zap.NewNop())

	got, err := ev.Evaluate(context.Background(), records(1))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	e := got[0]
	if e.Failed != 1 {
		t.Errorf("failed count = %d, want 1", e.Failed)
	}
	j := e.Judgments["relevant_location"]
	if j == nil || j.Status != ai.StatusUnknown {
		t.Fatalf("failed criterion judgment = %+v, want UNKNOWN", j)
	}
	if e.Bucket != BucketHumanReview {
		t.Errorf("bucket = %q, want %q", e.Bucket, BucketHumanReview)
	}
}

func TestEvaluateEnrichmentStatuses(t *testing.T) {
	def := testDefinition()
	judge := &stubJudge{statuses: map[string]ai.Status{
		"go_experience":     ai.StatusMet,
		"relevant_location": ai.StatusUnknown,
	}}
	enricher := &stubEnricher{records: map[string]*enrich.Record{
		"person0": {Identifier: "person0", FetchedAt: time.Now()},
	}}
	ev := New(judge, def, Options{Workers: 1, Enricher: enricher}, zap.NewNop())

	recs := records(2)
	got, err := ev.Evaluate(context.Background(), recs)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got[0].EnrichStatus != enrich.StatusAvailable {
		t.Errorf("record 0 enrich status = %q, want available", got[0].EnrichStatus)
	}
	if got[0].Bucket != BucketHumanReview {
		t.Errorf("record 0 bucket = %q, want %q", got[0].Bucket, BucketHumanReview)
	}
	if got[1].EnrichStatus != enrich.StatusUnavailable {
		t.Errorf("record 1 enrich status = %q, want unavailable", got[1].EnrichStatus)
	}
	if got[1].Bucket != BucketUnableToEnrich {
		t.Errorf("record 1 bucket = %q, want %q", got[1].Bucket, BucketUnableToEnrich)
	}
}

func TestEvaluateWithoutEnricherSkipsEnrichment(t *testing.T) {
	def := testDefinition()
	judge := &stubJudge{statuses: map[string]ai.Status{
		"go_experience":     ai.StatusMet,
		"relevant_location": ai.StatusUnknown,
	}}
	ev := New(judge, def, Options{Workers: 1}, zap.NewNop())

	got, err := ev.Evaluate(context.Background(), records(1))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got[0].EnrichStatus != enrich.StatusSkipped {
		t.Errorf("enrich status = %q, want skipped", got[0].EnrichStatus)
	}
	if got[0].Bucket != BucketHumanReview {
		t.Errorf("bucket = %q, want %q", got[0].Bucket, BucketHumanReview)
	}
}

func TestEvaluateCancellationKeepsFinishedWork(t *testing.T) {
	def := &criteria.Definition{
		MustHaves: []criteria.Criterion{{ID: "go_experience", Description: "Go."}},
	}
	judge := &stubJudge{
		statuses: map[string]ai.Status{"go_experience": ai.StatusMet},
		block:    make(chan struct{}),
	}
	ev := New(judge, def, Options{Workers: 1}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	recs := records(5)

	type outcome struct {
		evs []*Evaluation
		err error
	}
	resCh := make(chan outcome, 1)
	go func() {
		evs, err := ev.Evaluate(ctx, recs)
		resCh <- outcome{evs, err}
	}()

	// Let the first candidate finish, then cancel while the second is in
	// flight.
	judge.block <- struct{}{}
	cancel()
	close(judge.block)

	res := <-resCh
	if res.err == nil {
		t.Fatal("Evaluate() returned nil error after cancellation")
	}
	if len(res.evs) == 0 {
		t.Fatal("cancellation discarded finished evaluations")
	}
	if len(res.evs) == len(recs) {
		t.Error("all candidates evaluated despite cancellation")
	}
	for _, e := range res.evs {
		if e.Record == nil {
			t.Fatal("evaluation missing its record")
		}
	}
}
