package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/talentsift/talentsift/internal/ai"
	"github.com/talentsift/talentsift/internal/candidate"
	"github.com/talentsift/talentsift/internal/criteria"
	"github.com/talentsift/talentsift/internal/enrich"
	"github.com/talentsift/talentsift/internal/evaluate"
	"github.com/talentsift/talentsift/internal/ingest"
	"github.com/talentsift/talentsift/internal/output"
	"github.com/talentsift/talentsift/internal/store"
)

type stubJudge struct {
	statuses map[string]ai.Status
}

func (s *stubJudge) Judge(_ context.Context, _ *candidate.Record, crit criteria.Criterion, _ *enrich.Record) (*ai.Judgment, error) {
	status, ok := s.statuses[crit.ID]
	if !ok {
		status = ai.StatusUnknown
	}
	return &ai.Judgment{CriterionID: crit.ID, Status: status, Reason: "stub"}, nil
}

// blockingJudge holds every judgment until release is closed, or until the
// call's context is cancelled.
type blockingJudge struct {
	release chan struct{}
}

func (b *blockingJudge) Judge(ctx context.Context, _ *candidate.Record, crit criteria.Criterion, _ *enrich.Record) (*ai.Judgment, error) {
	select {
	case <-b.release:
		return &ai.Judgment{CriterionID: crit.ID, Status: ai.StatusMet, Reason: "stub"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testVersion(t *testing.T, s *store.Store) *criteria.Version {
	t.Helper()
	def := &criteria.Definition{
		MustHaves: []criteria.Criterion{
			{ID: "go_experience", Description: "Professional Go experience."},
		},
		GatingParams: []criteria.GatingParam{
			{ID: "currently_at_client", Description: "Works at the hiring client.", Enabled: true},
		},
	}
	version, err := s.PushCriteriaVersion("backend-engineer", def)
	if err != nil {
		t.Fatal(err)
	}
	return version
}

func newTestPipeline(t *testing.T, judge ai.Judge) (*Pipeline, *store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "talentsift.db"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	outDir := filepath.Join(dir, "out")
	p := New(Deps{
		Mapper: ingest.NewMapper(ingest.MapperOptions{}, zap.NewNop()),
		Judge:  judge,
		Store:  s,
		Writer: output.NewWriter(outDir, zap.NewNop()),
		Logger: zap.NewNop(),
	}, Config{
		Role:        "backend-engineer",
		Workers:     2,
		CallTimeout: 5 * time.Second,
	})
	return p, s, outDir
}

const standardizedCSV = `linkedin_url,first_name,last_name,location,company_name,title
linkedin.com/in/jane,Jane,Doe,Berlin,Acme,Engineer
linkedin.com/in/bob,Bob,Ray,Munich,Beta,Manager
linkedin.com/in/jane,Jane,Doe,Berlin,Acme,
`

func TestRunEndToEnd(t *testing.T) {
	judge := &stubJudge{statuses: map[string]ai.Status{
		"go_experience":       ai.StatusMet,
		"currently_at_client": ai.StatusNotMet,
	}}
	p, s, outDir := newTestPipeline(t, judge)
	version := testVersion(t, s)

	input := writeInput(t, t.TempDir(), "batch1.csv", standardizedCSV)
	summary, err := p.Run(context.Background(), []string{input}, version)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Three rows, one duplicate pair merged.
	if summary.Ingest.Records != 2 {
		t.Errorf("records = %d, want 2", summary.Ingest.Records)
	}
	if summary.Ingest.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", summary.Ingest.Duplicates)
	}
	if summary.Buckets[evaluate.BucketProceed] != 2 {
		t.Errorf("proceed = %d, want 2 (buckets: %v)", summary.Buckets[evaluate.BucketProceed], summary.Buckets)
	}

	run, err := s.GetRun(summary.RunID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != store.RunStatusCompleted {
		t.Errorf("run status = %q, want completed", run.Status)
	}
	if run.Counts["proceed"] != 2 || run.Counts["duplicates"] != 1 {
		t.Errorf("run counts = %v", run.Counts)
	}

	results, err := s.ResultsForRun(summary.RunID)
	if err != nil {
		t.Fatalf("ResultsForRun() error = %v", err)
	}
	if len(results) != 2 {
		t.Errorf("persisted results = %d, want 2", len(results))
	}

	for _, name := range []string{output.StandardizedFile, output.DuplicatesFile, output.ResultsFile} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("artifact %s missing: %v", name, err)
		}
	}
}

func TestRunPublishesProgressWhileEvaluating(t *testing.T) {
	judge := &blockingJudge{release: make(chan struct{})}
	p, s, _ := newTestPipeline(t, judge)
	p.cfg.ProgressInterval = time.Millisecond
	version := testVersion(t, s)

	input := writeInput(t, t.TempDir(), "batch1.csv", standardizedCSV)

	type outcome struct {
		summary *Summary
		err     error
	}
	finished := make(chan outcome, 1)
	go func() {
		summary, err := p.Run(context.Background(), []string{input}, version)
		finished <- outcome{summary, err}
	}()

	// Every judgment is held open, so the run row must expose the live
	// counters while the run is still in the running state.
	deadline := time.After(10 * time.Second)
	for {
		runs, err := s.ListRuns(1)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) == 1 && runs[0].Status == store.RunStatusRunning && runs[0].Counts["total"] == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("run row never exposed progress counters during evaluation")
		case <-time.After(time.Millisecond):
		}
	}

	close(judge.release)
	res := <-finished
	if res.err != nil {
		t.Fatalf("Run() error = %v", res.err)
	}

	run, err := s.GetRun(res.summary.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Counts["evaluated"] != 2 || run.Counts["total"] != 2 {
		t.Errorf("final counts = %v, want evaluated 2 of 2", run.Counts)
	}
}

func TestRunCancelledMidEvaluationMarksRunFailed(t *testing.T) {
	judge := &blockingJudge{release: make(chan struct{})}
	p, s, _ := newTestPipeline(t, judge)
	version := testVersion(t, s)

	// More candidates than workers, so cancellation always catches the
	// dispatcher with work left to hand out.
	const bigBatchCSV = `linkedin_url,first_name,last_name,location,company_name,title
linkedin.com/in/p1,Ada,One,Berlin,Acme,Engineer
linkedin.com/in/p2,Ben,Two,Munich,Acme,Engineer
linkedin.com/in/p3,Cam,Three,Hamburg,Acme,Engineer
linkedin.com/in/p4,Dee,Four,Cologne,Acme,Engineer
linkedin.com/in/p5,Eli,Five,Bremen,Acme,Engineer
`
	input := writeInput(t, t.TempDir(), "batch1.csv", bigBatchCSV)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	finished := make(chan error, 1)
	go func() {
		_, err := p.Run(ctx, []string{input}, version)
		finished <- err
	}()

	// Cancel once the run row exists, with every judgment still held open.
	deadline := time.After(10 * time.Second)
	for {
		runs, err := s.ListRuns(1)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("run row never appeared")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	if err := <-finished; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}

	runs, err := s.ListRuns(1)
	if err != nil {
		t.Fatal(err)
	}
	run := runs[0]
	if run.Status != store.RunStatusFailed {
		t.Errorf("run status = %q, want failed", run.Status)
	}
	if run.Counts["evaluated"] >= 5 {
		t.Errorf("evaluated = %d, want fewer than the 5 candidates", run.Counts["evaluated"])
	}

	// Candidates that were in flight at cancellation are still persisted.
	results, err := s.ResultsForRun(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != run.Counts["evaluated"] {
		t.Errorf("persisted %d results, run counts say %d", len(results), run.Counts["evaluated"])
	}
}

func TestIngestSkipsUnreadableFileButContinues(t *testing.T) {
	p, _, _ := newTestPipeline(t, &stubJudge{})
	dir := t.TempDir()

	good := writeInput(t, dir, "good.csv", standardizedCSV)
	missing := filepath.Join(dir, "does-not-exist.csv")

	records, _, report, err := p.Ingest(context.Background(), []string{missing, good})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if report.FilesFailed != 1 || report.FilesRead != 1 {
		t.Errorf("report = %+v, want 1 failed, 1 read", report)
	}
	if len(records) != 2 {
		t.Errorf("records = %d, want 2", len(records))
	}
}

func TestIngestFailsWhenNoFileReadable(t *testing.T) {
	p, _, _ := newTestPipeline(t, &stubJudge{})
	dir := t.TempDir()

	unmappable := writeInput(t, dir, "odd.csv", "colour,shape\nred,circle\n")
	if _, _, _, err := p.Ingest(context.Background(), []string{unmappable}); err == nil {
		t.Fatal("Ingest() succeeded with no mappable file")
	}
}

func TestRunGatingDismissesEvenWhenMustHavesPass(t *testing.T) {
	judge := &stubJudge{statuses: map[string]ai.Status{
		"go_experience":       ai.StatusMet,
		"currently_at_client": ai.StatusMet,
	}}
	p, s, _ := newTestPipeline(t, judge)
	version := testVersion(t, s)

	input := writeInput(t, t.TempDir(), "batch1.csv", standardizedCSV)
	summary, err := p.Run(context.Background(), []string{input}, version)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Buckets[evaluate.BucketDismiss] != 2 {
		t.Errorf("dismiss = %d, want 2 (buckets: %v)", summary.Buckets[evaluate.BucketDismiss], summary.Buckets)
	}
}

func TestRunAbortedByConfirm(t *testing.T) {
	p, s, _ := newTestPipeline(t, &stubJudge{})
	version := testVersion(t, s)
	p.deps.Confirm = func(report *IngestReport) (bool, error) {
		if report.Records == 0 {
			t.Error("confirm called with empty report")
		}
		return false, nil
	}

	input := writeInput(t, t.TempDir(), "batch1.csv", standardizedCSV)
	if _, err := p.Run(context.Background(), []string{input}, version); !errors.Is(err, ErrAborted) {
		t.Fatalf("Run() error = %v, want ErrAborted", err)
	}

	// No run row is created for an aborted run.
	runs, err := s.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("aborted run left %d run rows", len(runs))
	}
}

func TestCriterionOrder(t *testing.T) {
	def := &criteria.Definition{
		MustHaves:   []criteria.Criterion{{ID: "a"}, {ID: "b"}},
		NiceToHaves: []criteria.Criterion{{ID: "d"}},
		GatingParams: []criteria.GatingParam{
			{ID: "c", Enabled: true},
			{ID: "x", Enabled: false},
		},
	}
	got := criterionOrder(def)
	want := []string{"a", "b", "c", "d"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("criterionOrder() = %v, want %v", got, want)
	}
}
