package evaluate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/talentsift/talentsift/internal/ai"
	"github.com/talentsift/talentsift/internal/candidate"
	"github.com/talentsift/talentsift/internal/criteria"
	"github.com/talentsift/talentsift/internal/enrich"
)

const (
	// DefaultWorkers bounds concurrent candidates in flight.
	DefaultWorkers = 4
	// DefaultCallTimeout caps a single judgment call.
	DefaultCallTimeout = 90 * time.Second
)

// Enricher supplies the enrichment record for an identity key. The
// production implementation is enrich.Cache.
type Enricher interface {
	GetOrFetch(ctx context.Context, identifier string) (*enrich.Record, error)
}

// Evaluation is the complete verdict for one candidate: every judgment
// issued, the enrichment availability seen at judging time, and the bucket.
type Evaluation struct {
	Record       *candidate.Record
	Judgments    map[string]*ai.Judgment
	EnrichStatus enrich.Status
	Bucket       Bucket
	// Failed counts criteria whose judgment could not be obtained even
	// after retries. Those criteria are recorded as UNKNOWN.
	Failed int
}

// Progress holds live evaluation counters. The pipeline periodically copies
// them onto the run row so run status can be polled mid-evaluation.
type Progress struct {
	Done  atomic.Int64
	Total atomic.Int64
}

// Evaluator judges candidates against a criteria definition with a bounded
// worker pool and a shared request rate limit.
type Evaluator struct {
	judge       ai.Judge
	def         *criteria.Definition
	enricher    Enricher
	limiter     *rate.Limiter
	workers     int
	callTimeout time.Duration
	logger      *zap.Logger

	// Progress is safe to read from another goroutine while Evaluate runs.
	Progress Progress
}

// Options tunes the evaluator. Zero values fall back to defaults; a nil
// Limiter disables rate limiting and a nil Enricher skips enrichment.
type Options struct {
	Workers     int
	CallTimeout time.Duration
	Limiter     *rate.Limiter
	Enricher    Enricher
}

func New(judge ai.Judge, def *criteria.Definition, opts Options, logger *zap.Logger) *Evaluator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		judge:       judge,
		def:         def,
		enricher:    opts.Enricher,
		limiter:     opts.Limiter,
		workers:     opts.Workers,
		callTimeout: opts.CallTimeout,
		logger:      logger,
	}
}

// Evaluate judges every record and returns evaluations in input order.
// Cancellation stops dispatching new candidates; candidates already in
// flight finish and their evaluations are included in the result, so the
// caller can persist partial progress before exiting.
func (e *Evaluator) Evaluate(ctx context.Context, records []*candidate.Record) ([]*Evaluation, error) {
	e.Progress.Total.Store(int64(len(records)))
	e.Progress.Done.Store(0)

	type job struct {
		idx int
		rec *candidate.Record
	}

	jobs := make(chan job)
	results := make([]*Evaluation, len(records))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				ev := e.evaluateOne(ctx, j.rec)
				mu.Lock()
				results[j.idx] = ev
				mu.Unlock()
				e.Progress.Done.Add(1)
			}
		}()
	}

	var dispatchErr error
dispatch:
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			dispatchErr = err
			break
		}
		select {
		case jobs <- job{idx: i, rec: rec}:
		case <-ctx.Done():
			dispatchErr = ctx.Err()
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	done := results[:0]
	for _, ev := range results {
		if ev != nil {
			done = append(done, ev)
		}
	}
	return done, dispatchErr
}

func (e *Evaluator) evaluateOne(ctx context.Context, rec *candidate.Record) *Evaluation {
	ev := &Evaluation{
		Record:       rec,
		Judgments:    make(map[string]*ai.Judgment),
		EnrichStatus: enrich.StatusSkipped,
	}

	var enrichment *enrich.Record
	if e.enricher != nil {
		if key := rec.IdentityKey(); key != "" {
			fetched, err := e.enricher.GetOrFetch(ctx, key)
			switch {
			case err == nil:
				enrichment = fetched
				ev.EnrichStatus = enrich.StatusAvailable
			case errors.Is(err, enrich.ErrUnavailable):
				ev.EnrichStatus = enrich.StatusUnavailable
			default:
				ev.EnrichStatus = enrich.StatusUnavailable
				e.logger.Warn("enrichment fetch failed",
					zap.String("candidate", rec.DisplayName()),
					zap.Error(err),
				)
			}
		} else {
			ev.EnrichStatus = enrich.StatusUnavailable
		}
	}

	for _, crit := range e.def.MustHaves {
		e.judgeInto(ctx, ev, rec, crit, enrichment)
	}
	for _, gate := range e.def.EnabledGating() {
		e.judgeInto(ctx, ev, rec, criteria.Criterion{ID: gate.ID, Description: gate.Description}, enrichment)
	}
	for _, crit := range e.def.NiceToHaves {
		e.judgeInto(ctx, ev, rec, crit, enrichment)
	}

	ev.Bucket = Decide(e.def, ev.Judgments, ev.EnrichStatus)
	return ev
}

func (e *Evaluator) judgeInto(ctx context.Context, ev *Evaluation, rec *candidate.Record, crit criteria.Criterion, enrichment *enrich.Record) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			ev.Judgments[crit.ID] = failedJudgment(crit.ID, "Evaluation cancelled before the criterion was judged.")
			ev.Failed++
			return
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	judgment, err := e.judge.Judge(callCtx, rec, crit, enrichment)
	if err != nil {
		e.logger.Warn("criterion judgment failed",
			zap.String("candidate", rec.DisplayName()),
			zap.String("criterion_id", crit.ID),
			zap.Error(err),
		)
		ev.Judgments[crit.ID] = failedJudgment(crit.ID, "Evaluator was unreachable for this criterion.")
		ev.Failed++
		return
	}
	ev.Judgments[crit.ID] = judgment
}

// failedJudgment records an unobtainable verdict as UNKNOWN so a transport
// failure never dismisses a candidate.
func failedJudgment(id, reason string) *ai.Judgment {
	return &ai.Judgment{CriterionID: id, Status: ai.StatusUnknown, Reason: reason}
}
