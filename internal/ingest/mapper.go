package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/talentsift/talentsift/internal/schema"
)

// ErrIdentityUnmapped rejects a file whose profile-URL column cannot be
// found even after fallback matching. Producing identity-less records
// silently would poison deduplication downstream.
var ErrIdentityUnmapped = errors.New("identity column (linkedin_url) could not be mapped")

// Mapping relates one file's literal header strings to canonical fields.
// Headers absent from Columns are unmapped and dropped at normalization.
type Mapping struct {
	Source  schema.SourceType
	Columns map[string]string
	// Assisted lists headers that were mapped by the fuzzy or LLM fallback
	// rather than the synonym table, for audit logging.
	Assisted []string
}

// MapAssist proposes canonical fields for headers the synonym table does not
// recognize. Implementations are external inference calls and may fail.
type MapAssist interface {
	ProposeMapping(ctx context.Context, headers []string, sample []map[string]string) (map[string]string, error)
}

// MapperOptions carries the fallback-matching thresholds. The exact values
// are deliberately configurable, not constants.
type MapperOptions struct {
	// FuzzyThreshold is the minimum similarity (0..1) for a fuzzy match.
	FuzzyThreshold float64
	// Assist, when set, is consulted for headers still unmapped after the
	// fuzzy pass whenever required coverage is not met.
	Assist MapAssist
}

// DefaultFuzzyThreshold is used when the config does not set one.
const DefaultFuzzyThreshold = 0.8

// Mapper resolves file headers to canonical fields.
type Mapper struct {
	opts   MapperOptions
	logger *zap.Logger

	synonyms map[string]string // normalized synonym -> canonical field
}

// NewMapper builds a Mapper over the registry synonym tables.
func NewMapper(opts MapperOptions, logger *zap.Logger) *Mapper {
	if opts.FuzzyThreshold <= 0 || opts.FuzzyThreshold > 1 {
		opts.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	synonyms := make(map[string]string)
	for _, field := range schema.AllColumns {
		synonyms[normalizeHeader(field)] = field
		for _, syn := range schema.Synonyms[field] {
			key := normalizeHeader(syn)
			if _, taken := synonyms[key]; !taken {
				synonyms[key] = field
			}
		}
	}

	return &Mapper{opts: opts, logger: logger, synonyms: synonyms}
}

// Map produces the column mapping for one file's header row. Direct synonym
// matches are authoritative; the fuzzy and assisted fallbacks only ever fill
// gaps, never override. The file is rejected when the identity column cannot
// be mapped at all.
func (m *Mapper) Map(ctx context.Context, file *File, detection Detection) (*Mapping, error) {
	mapping := &Mapping{Source: detection.Source, Columns: make(map[string]string)}

	mapped := make(map[string]bool) // canonical fields already claimed
	for _, header := range file.Headers {
		if header == "" {
			continue
		}
		field, ok := m.synonyms[normalizeHeader(header)]
		if !ok || mapped[field] {
			continue
		}
		mapping.Columns[header] = field
		mapped[field] = true
	}

	applySourceQuirks(mapping, file.Headers, mapped)

	if coversRequired(mapped) {
		return mapping, nil
	}

	m.fuzzyPass(mapping, file.Headers, mapped)

	if !coversRequired(mapped) && m.opts.Assist != nil {
		m.assistPass(ctx, mapping, file, mapped)
	}

	if !mapped[schema.FieldLinkedinURL] {
		return nil, fmt.Errorf("%s: %w", file.Path, ErrIdentityUnmapped)
	}

	return mapping, nil
}

func coversRequired(mapped map[string]bool) bool {
	for _, field := range schema.RequiredColumns {
		if !mapped[field] {
			return false
		}
	}
	return true
}

func (m *Mapper) fuzzyPass(mapping *Mapping, headers []string, mapped map[string]bool) {
	for _, header := range headers {
		if header == "" {
			continue
		}
		if _, done := mapping.Columns[header]; done {
			continue
		}

		bestField := ""
		bestScore := 0.0
		norm := normalizeHeader(header)
		for _, field := range schema.AllColumns {
			if mapped[field] {
				continue
			}
			for _, syn := range append([]string{field}, schema.Synonyms[field]...) {
				score := similarity(norm, normalizeHeader(syn))
				if score > bestScore {
					bestScore = score
					bestField = field
				}
			}
		}

		if bestField != "" && bestScore >= m.opts.FuzzyThreshold {
			mapping.Columns[header] = bestField
			mapping.Assisted = append(mapping.Assisted, header)
			mapped[bestField] = true
			m.logger.Debug("fuzzy-matched column",
				zap.String("header", header),
				zap.String("field", bestField),
				zap.Float64("score", bestScore),
			)
		}
	}
}

func (m *Mapper) assistPass(ctx context.Context, mapping *Mapping, file *File, mapped map[string]bool) {
	var unmapped []string
	for _, header := range file.Headers {
		if header == "" {
			continue
		}
		if _, done := mapping.Columns[header]; !done {
			unmapped = append(unmapped, header)
		}
	}
	if len(unmapped) == 0 {
		return
	}

	proposals, err := m.opts.Assist.ProposeMapping(ctx, unmapped, file.SampleRows(2))
	if err != nil {
		m.logger.Warn("assisted column mapping failed", zap.String("file", file.Path), zap.Error(err))
		return
	}

	for header, field := range proposals {
		if _, done := mapping.Columns[header]; done {
			continue
		}
		if !schema.IsCanonical(field) || mapped[field] {
			continue
		}
		mapping.Columns[header] = field
		mapping.Assisted = append(mapping.Assisted, header)
		mapped[field] = true
		m.logger.Info("assist-matched column",
			zap.String("header", header),
			zap.String("field", field),
		)
	}
}

// applySourceQuirks maps headers that only make sense with knowledge of the
// originating export tool, such as Pin's nested candidate.* columns and
// SeekOut's obfuscated class-name columns.
func applySourceQuirks(mapping *Mapping, headers []string, mapped map[string]bool) {
	claim := func(header, field string) {
		if mapped[field] {
			return
		}
		mapping.Columns[header] = field
		mapped[field] = true
	}

	switch mapping.Source {
	case schema.SourcePin:
		for _, header := range headers {
			switch header {
			case "candidate.linkedin":
				claim(header, schema.FieldLinkedinURL)
			case "candidate.firstName":
				claim(header, schema.FieldFirstName)
			case "candidate.lastName":
				claim(header, schema.FieldLastName)
			case "candidate.location":
				claim(header, schema.FieldLocation)
			case "candidate.experiences.0.title":
				claim(header, schema.FieldTitle)
			case "candidate.experiences.0.company":
				claim(header, schema.FieldCompanyName)
			}
		}
	case schema.SourceSeekout:
		for _, header := range headers {
			lower := strings.ToLower(header)
			switch {
			case strings.Contains(lower, "candidatename") && strings.Contains(lower, "href"):
				claim(header, schema.FieldLinkedinURL)
			case strings.Contains(lower, "candidatedisplayname") && !strings.Contains(lower, "href"):
				claim(header, schema.FieldFirstName)
			case strings.Contains(lower, "candidatedetails") && !strings.Contains(lower, "href"):
				claim(header, schema.FieldTitle)
			case strings.Contains(lower, "content") && strings.Contains(header, "_rn39w_34"):
				claim(header, schema.FieldExperience)
			case strings.Contains(lower, "education"):
				claim(header, schema.FieldEducation)
			}
		}
	}
}

// normalizeHeader lowercases a header and strips punctuation and whitespace
// so "First Name", "first_name" and "FIRST-NAME" all compare equal.
func normalizeHeader(header string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(header) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// similarity blends token overlap and edit distance into a 0..1 score.
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	overlap := 0.0
	if strings.Contains(a, b) || strings.Contains(b, a) {
		shorter, longer := len(a), len(b)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		overlap = float64(shorter) / float64(longer)
	}

	dist := levenshtein(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	editScore := 1.0 - float64(dist)/float64(maxLen)

	if overlap > editScore {
		return overlap
	}
	return editScore
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
