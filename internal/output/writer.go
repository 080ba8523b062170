// Package output writes the run's CSV artifacts. Every file is written to a
// temp file in the target directory and renamed into place, so readers never
// observe a partially written artifact.
package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/talentsift/talentsift/internal/ai"
	"github.com/talentsift/talentsift/internal/candidate"
	"github.com/talentsift/talentsift/internal/dedup"
	"github.com/talentsift/talentsift/internal/evaluate"
	"github.com/talentsift/talentsift/internal/schema"
)

// Artifact file names inside the run directory.
const (
	StandardizedFile = "standardized.csv"
	DuplicatesFile   = "duplicates.csv"
	ResultsFile      = "results.csv"
)

// BucketFile returns the per-bucket split file name.
func BucketFile(bucket evaluate.Bucket) string {
	return string(bucket) + ".csv"
}

// Writer emits the run artifacts into a single directory.
type Writer struct {
	dir    string
	logger *zap.Logger
}

func NewWriter(dir string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{dir: dir, logger: logger}
}

// WriteStandardized writes the post-normalization, post-dedup records under
// the canonical column order, with provenance columns appended.
func (w *Writer) WriteStandardized(records []*candidate.Record) error {
	header := append(append([]string{}, schema.AllColumns...), "source_file", "incomplete")
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, standardizedRow(rec))
	}
	return w.writeAtomic(StandardizedFile, header, rows)
}

func standardizedRow(rec *candidate.Record) []string {
	row := make([]string, 0, len(schema.AllColumns)+2)
	for _, col := range schema.AllColumns {
		row = append(row, rec.Get(col))
	}
	row = append(row, rec.SourceFile, strconv.FormatBool(rec.Incomplete))
	return row
}

// WriteDuplicates records every merged group: one row per discarded
// duplicate, pointing back at its survivor.
func (w *Writer) WriteDuplicates(groups []*dedup.Group) error {
	header := []string{"identity_key", "survivor_name", "survivor_file", "duplicate_name", "duplicate_file", "duplicate_row"}
	var rows [][]string
	for _, g := range groups {
		for _, dup := range g.Duplicates {
			rows = append(rows, []string{
				g.IdentityKey,
				g.Survivor.DisplayName(),
				g.Survivor.SourceFile,
				dup.DisplayName(),
				dup.SourceFile,
				strconv.Itoa(dup.RowIndex),
			})
		}
	}
	return w.writeAtomic(DuplicatesFile, header, rows)
}

// WriteResults writes the full verdict sheet plus one split file per
// bucket. The per-criterion columns follow the definition's order:
// status, reason and evidence for each criterion judged.
func (w *Writer) WriteResults(evals []*evaluate.Evaluation, criterionIDs []string, criteriaVersionID string) error {
	header := []string{"name", "linkedin_url", "source_file", "bucket", "enrichment_status", "criteria_version"}
	for _, id := range criterionIDs {
		header = append(header, id+"_status", id+"_reason", id+"_evidence")
	}

	rows := make([][]string, 0, len(evals))
	byBucket := make(map[evaluate.Bucket][][]string)
	for _, ev := range evals {
		row := resultRow(ev, criterionIDs, criteriaVersionID)
		rows = append(rows, row)
		byBucket[ev.Bucket] = append(byBucket[ev.Bucket], row)
	}

	if err := w.writeAtomic(ResultsFile, header, rows); err != nil {
		return err
	}

	for _, bucket := range []evaluate.Bucket{
		evaluate.BucketProceed,
		evaluate.BucketHumanReview,
		evaluate.BucketDismiss,
		evaluate.BucketUnableToEnrich,
	} {
		if err := w.writeAtomic(BucketFile(bucket), header, byBucket[bucket]); err != nil {
			return err
		}
	}
	return nil
}

func resultRow(ev *evaluate.Evaluation, criterionIDs []string, criteriaVersionID string) []string {
	rec := ev.Record
	row := []string{
		rec.DisplayName(),
		rec.Get(schema.FieldLinkedinURL),
		rec.SourceFile,
		string(ev.Bucket),
		string(ev.EnrichStatus),
		criteriaVersionID,
	}
	for _, id := range criterionIDs {
		j := ev.Judgments[id]
		if j == nil {
			j = &ai.Judgment{Status: ai.StatusUnknown}
		}
		row = append(row, string(j.Status), j.Reason, j.Evidence)
	}
	return row
}

// writeAtomic writes header+rows to a temp file in the artifact directory
// and renames it over the final name.
func (w *Writer) writeAtomic(name string, header []string, rows [][]string) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(w.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	cw := csv.NewWriter(tmp)
	if err := cw.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp artifact: %w", err)
	}

	final := filepath.Join(w.dir, name)
	if err := os.Rename(tmp.Name(), final); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	w.logger.Debug("artifact written", zap.String("path", final), zap.Int("rows", len(rows)))
	return nil
}
