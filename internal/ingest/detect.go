package ingest

import (
	"strings"

	"github.com/talentsift/talentsift/internal/schema"
)

// Detection describes the outcome of source fingerprinting for one file.
type Detection struct {
	Source     schema.SourceType
	Confidence float64
	Evidence   []string
}

// DetectSource identifies which export tool produced the file by looking at
// its header row. Files whose headers already carry the canonical schema are
// treated as standardized regardless of other signals, so source-specific
// parsing quirks never fire on our own output.
func DetectSource(headers []string) Detection {
	lower := make([]string, 0, len(headers))
	set := make(map[string]bool, len(headers))
	for _, h := range headers {
		l := strings.ToLower(strings.TrimSpace(h))
		lower = append(lower, l)
		set[l] = true
	}

	standardized := true
	for _, col := range schema.RequiredColumns {
		if !set[col] {
			standardized = false
			break
		}
	}
	if standardized {
		return Detection{
			Source:     schema.SourceClay,
			Confidence: 1.0,
			Evidence:   []string{"headers already match the canonical schema"},
		}
	}

	// Pin exports nest everything under candidate.* columns. Checked before
	// the generic scoring to avoid wrangle false positives.
	for _, h := range lower {
		if strings.Contains(h, "candidate.linkedin") || strings.Contains(h, "candidate.firstname") || strings.Contains(h, "candidate.experiences.0") {
			return Detection{
				Source:     schema.SourcePin,
				Confidence: 1.0,
				Evidence:   []string{"candidate.* nested columns"},
			}
		}
	}

	best := Detection{Source: schema.SourceUnknown}
	bestScore := 0.0
	for source, indicators := range schema.SourcePatterns {
		score := 0.0
		var evidence []string
		for _, indicator := range indicators {
			needle := strings.ToLower(indicator)
			for _, h := range lower {
				if strings.Contains(h, needle) {
					score++
					evidence = append(evidence, "found "+indicator+" in column names")
					break
				}
			}
		}
		if score > bestScore {
			bestScore = score
			best = Detection{Source: source, Evidence: evidence}
		}
	}

	// Wrangle has simple one-word columns; require all four to be present.
	wrangleCols := []string{"name", "title", "company", "linkedin"}
	wrangle := true
	for _, wc := range wrangleCols {
		found := false
		for _, h := range lower {
			if strings.Contains(h, wc) {
				found = true
				break
			}
		}
		if !found {
			wrangle = false
			break
		}
	}
	if wrangle && bestScore < 4 {
		bestScore = 4
		best = Detection{Source: schema.SourceWrangle, Evidence: []string{"simple Name/Title/Company/Linkedin columns"}}
	}

	if bestScore == 0 {
		return Detection{Source: schema.SourceUnknown, Evidence: []string{"no known patterns detected"}}
	}

	best.Confidence = bestScore / 5.0
	if best.Confidence > 1.0 {
		best.Confidence = 1.0
	}
	return best
}
