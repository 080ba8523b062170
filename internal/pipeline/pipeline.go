// Package pipeline chains the ingestion, deduplication, evaluation and
// output stages into one run. Each stage logs what it received, what it
// dropped and what moved on, so a run's log reads as a ledger.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/talentsift/talentsift/internal/ai"
	"github.com/talentsift/talentsift/internal/candidate"
	"github.com/talentsift/talentsift/internal/criteria"
	"github.com/talentsift/talentsift/internal/dedup"
	"github.com/talentsift/talentsift/internal/evaluate"
	"github.com/talentsift/talentsift/internal/ingest"
	"github.com/talentsift/talentsift/internal/output"
	"github.com/talentsift/talentsift/internal/store"
)

// ErrAborted reports that the operator declined to continue after the
// ingest preview.
var ErrAborted = errors.New("run aborted by operator")

// DefaultProgressInterval is how often evaluation progress is written to
// the run row.
const DefaultProgressInterval = 5 * time.Second

// Deps aggregates the collaborators shared across pipeline stages.
type Deps struct {
	Mapper   *ingest.Mapper
	Judge    ai.Judge
	Store    *store.Store
	Enricher evaluate.Enricher
	Writer   *output.Writer
	Logger   *zap.Logger
	// Confirm, when set, is asked after ingestion and before any judgment
	// call is made. Returning false aborts the run with ErrAborted.
	Confirm func(report *IngestReport) (bool, error)
}

// Config tunes a run.
type Config struct {
	Role        string
	Workers     int
	CallTimeout time.Duration
	// RequestsPerSecond caps judgment calls across all workers. Zero
	// disables the limiter.
	RequestsPerSecond float64
	// ProgressInterval is the period between run-row progress updates
	// during evaluation. Zero falls back to DefaultProgressInterval.
	ProgressInterval time.Duration
}

// IngestReport counts what happened per input file.
type IngestReport struct {
	FilesRead   int
	FilesFailed int
	RowsRead    int
	BadRows     int
	Records     int
	Incomplete  int
	Duplicates  int
}

// Summary is the final accounting of one run.
type Summary struct {
	RunID     string
	Ingest    IngestReport
	Evaluated int
	Buckets   map[evaluate.Bucket]int
	// Failures counts judgments that could not be obtained.
	Failures int
}

// Pipeline runs the stages. One Pipeline serves one process; runs are
// sequential.
type Pipeline struct {
	deps Deps
	cfg  Config
}

func New(deps Deps, cfg Config) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, cfg: cfg}
}

// Ingest reads, maps, normalizes and deduplicates the input files. A file
// that cannot be read or whose identity column cannot be mapped is skipped
// and counted; it never aborts the other files.
func (p *Pipeline) Ingest(ctx context.Context, paths []string) ([]*candidate.Record, []*dedup.Group, *IngestReport, error) {
	log := p.deps.Logger
	report := &IngestReport{}

	var all []*candidate.Record
	for i, path := range paths {
		file, err := ingest.ReadFile(path)
		if err != nil {
			report.FilesFailed++
			log.Error("input file skipped", zap.String("path", path), zap.Error(err))
			continue
		}

		detection := ingest.DetectSource(file.Headers)
		mapping, err := p.deps.Mapper.Map(ctx, file, detection)
		if err != nil {
			report.FilesFailed++
			log.Error("input file skipped: column mapping failed",
				zap.String("path", path),
				zap.String("source", string(detection.Source)),
				zap.Error(err),
			)
			continue
		}

		records := ingest.Normalize(file, mapping, i)
		report.FilesRead++
		report.RowsRead += len(file.Rows)
		report.BadRows += file.BadRows
		for _, rec := range records {
			if rec.Incomplete {
				report.Incomplete++
			}
		}
		all = append(all, records...)

		log.Info("input file ingested",
			zap.String("path", path),
			zap.String("source", string(detection.Source)),
			zap.Float64("confidence", detection.Confidence),
			zap.Int("rows", len(file.Rows)),
			zap.Int("bad_rows", file.BadRows),
			zap.Int("records", len(records)),
			zap.Strings("assisted_columns", mapping.Assisted),
		)
	}

	if report.FilesRead == 0 {
		return nil, nil, report, fmt.Errorf("no input file could be ingested (%d failed)", report.FilesFailed)
	}

	deduped, groups := dedup.Deduplicate(all, log)
	report.Records = len(deduped)
	for _, g := range groups {
		report.Duplicates += len(g.Duplicates)
	}

	log.Info("deduplication finished",
		zap.Int("initial", len(all)),
		zap.Int("dropped", report.Duplicates),
		zap.Int("left", len(deduped)),
	)
	return deduped, groups, report, nil
}

// Run executes the whole pipeline against a criteria version and writes
// every artifact. Cancellation mid-evaluation still persists the
// evaluations that finished and marks the run failed.
func (p *Pipeline) Run(ctx context.Context, paths []string, version *criteria.Version) (*Summary, error) {
	log := p.deps.Logger

	// A bad criteria version is fatal before any candidate is touched.
	if err := version.Validate(); err != nil {
		return nil, fmt.Errorf("criteria version %s: %w", version.ID, err)
	}

	records, groups, report, err := p.Ingest(ctx, paths)
	if err != nil {
		return nil, err
	}

	if err := p.deps.Writer.WriteStandardized(records); err != nil {
		return nil, err
	}
	if err := p.deps.Writer.WriteDuplicates(groups); err != nil {
		return nil, err
	}

	if p.deps.Confirm != nil {
		proceed, err := p.deps.Confirm(report)
		if err != nil {
			return nil, err
		}
		if !proceed {
			return nil, ErrAborted
		}
	}

	run, err := p.deps.Store.CreateRun(p.cfg.Role, version.ID)
	if err != nil {
		return nil, err
	}
	log.Info("run started",
		zap.String("run_id", run.ID),
		zap.String("criteria_version", version.ID),
		zap.Int("candidates", len(records)),
	)

	var limiter *rate.Limiter
	if p.cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.cfg.RequestsPerSecond), 1)
	}
	evaluator := evaluate.New(p.deps.Judge, &version.Definition, evaluate.Options{
		Workers:     p.cfg.Workers,
		CallTimeout: p.cfg.CallTimeout,
		Limiter:     limiter,
		Enricher:    p.deps.Enricher,
	}, log)

	stopProgress := p.publishProgress(run.ID, evaluator)
	evals, evalErr := evaluator.Evaluate(ctx, records)
	stopProgress()

	summary := &Summary{
		RunID:     run.ID,
		Ingest:    *report,
		Evaluated: len(evals),
		Buckets:   make(map[evaluate.Bucket]int),
	}
	for _, ev := range evals {
		summary.Buckets[ev.Bucket]++
		summary.Failures += ev.Failed
	}

	if err := p.persistResults(run.ID, evals); err != nil {
		return nil, err
	}
	if err := p.deps.Writer.WriteResults(evals, criterionOrder(&version.Definition), version.ID); err != nil {
		return nil, err
	}

	status := store.RunStatusCompleted
	if evalErr != nil {
		status = store.RunStatusFailed
	}
	if err := p.deps.Store.FinishRun(run.ID, status, runCounts(summary)); err != nil {
		return nil, err
	}

	log.Info("run finished",
		zap.String("run_id", run.ID),
		zap.String("status", status),
		zap.Int("evaluated", len(evals)),
		zap.Int("judgment_failures", summary.Failures),
	)
	return summary, evalErr
}

// publishProgress periodically copies the evaluator's live counters onto
// the run row so a concurrent reader of the store sees how far evaluation
// got. The returned stop function blocks until the last update is written,
// so FinishRun never races with a progress write.
func (p *Pipeline) publishProgress(runID string, evaluator *evaluate.Evaluator) (stop func()) {
	interval := p.cfg.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				evaluated := evaluator.Progress.Done.Load()
				total := evaluator.Progress.Total.Load()
				err := p.deps.Store.UpdateRunCounts(runID, map[string]int{
					"evaluated": int(evaluated),
					"total":     int(total),
				})
				if err != nil {
					p.deps.Logger.Warn("run progress update failed", zap.Error(err))
					continue
				}
				p.deps.Logger.Info("evaluation progress",
					zap.Int64("evaluated", evaluated),
					zap.Int64("total", total),
				)
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (p *Pipeline) persistResults(runID string, evals []*evaluate.Evaluation) error {
	results := make([]*store.Result, 0, len(evals))
	for _, ev := range evals {
		judgments, err := json.Marshal(ev.Judgments)
		if err != nil {
			return fmt.Errorf("marshal judgments: %w", err)
		}
		results = append(results, &store.Result{
			RunID:            runID,
			IdentityKey:      ev.Record.IdentityKey(),
			DisplayName:      ev.Record.DisplayName(),
			SourceFile:       ev.Record.SourceFile,
			Bucket:           string(ev.Bucket),
			EnrichmentStatus: string(ev.EnrichStatus),
			Judgments:        judgments,
		})
	}
	return p.deps.Store.SaveResults(results)
}

// criterionOrder fixes the result column order: must-haves, then enabled
// gating parameters, then nice-to-haves.
func criterionOrder(def *criteria.Definition) []string {
	var ids []string
	for _, c := range def.MustHaves {
		ids = append(ids, c.ID)
	}
	for _, g := range def.EnabledGating() {
		ids = append(ids, g.ID)
	}
	for _, c := range def.NiceToHaves {
		ids = append(ids, c.ID)
	}
	return ids
}

func runCounts(s *Summary) map[string]int {
	counts := map[string]int{
		"files_read":   s.Ingest.FilesRead,
		"files_failed": s.Ingest.FilesFailed,
		"rows_read":    s.Ingest.RowsRead,
		"bad_rows":     s.Ingest.BadRows,
		"candidates":   s.Ingest.Records,
		"duplicates":   s.Ingest.Duplicates,
		"incomplete":   s.Ingest.Incomplete,
		"evaluated":    s.Evaluated,
		"total":        s.Ingest.Records,
		"failures":     s.Failures,
	}
	for bucket, n := range s.Buckets {
		counts[string(bucket)] = n
	}
	return counts
}
