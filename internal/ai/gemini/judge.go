package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/talentsift/talentsift/internal/ai"
	"github.com/talentsift/talentsift/internal/candidate"
	"github.com/talentsift/talentsift/internal/criteria"
	"github.com/talentsift/talentsift/internal/enrich"
	"github.com/talentsift/talentsift/internal/utils"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

//go:embed judge_prompt.md
var judgePromptTemplate string

const (
	defaultMaxLogLength = 200

	// strictSuffix is appended for the single reformulation retry after a
	// malformed reply.
	strictSuffix = "\n\nYour previous reply could not be parsed. Respond with the JSON object ONLY: no prose, no markdown fences, and a status field that is exactly MET, NOT_MET or UNKNOWN."
)

// Judge obtains per-criterion judgments from Gemini under a strict output
// contract: malformed output is retried once with a stricter reformulation
// and then downgraded to UNKNOWN, never to NOT_MET.
type Judge struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

// NewJudge builds a Judge over the given generator.
func NewJudge(generator contentGenerator, maxLogLength int, logger *zap.Logger) *Judge {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Judge{generator: generator, logger: logger, maxLogLen: maxLogLength}
}

// Judge implements ai.Judge.
func (j *Judge) Judge(ctx context.Context, rec *candidate.Record, crit criteria.Criterion, enrichment *enrich.Record) (*ai.Judgment, error) {
	if rec == nil {
		return nil, fmt.Errorf("candidate record is required")
	}

	prompt, err := buildJudgePrompt(rec, crit, enrichment)
	if err != nil {
		return nil, err
	}

	j.logger.Debug("gemini judgment request",
		zap.String("criterion_id", crit.ID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, j.maxLogLen)),
	)

	raw, err := j.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	judgment, parseErr := parseJudgment(raw)
	if parseErr != nil {
		j.logger.Warn("malformed judgment, retrying with strict reformulation",
			zap.String("criterion_id", crit.ID),
			zap.String("response_preview", utils.TruncateForLog(raw, j.maxLogLen)),
			zap.Error(parseErr),
		)

		raw, err = j.generator.GenerateContent(ctx, prompt+strictSuffix)
		if err != nil {
			return nil, err
		}
		judgment, parseErr = parseJudgment(raw)
	}

	if parseErr != nil {
		// Content failure after the bounded retry: downgrade to UNKNOWN for
		// audit, never treat an unparseable reply as a failed criterion.
		j.logger.Warn("judgment downgraded to UNKNOWN after malformed output",
			zap.String("criterion_id", crit.ID),
			zap.String("response_preview", utils.TruncateForLog(raw, j.maxLogLen)),
			zap.Error(parseErr),
		)
		judgment = &ai.Judgment{
			Status: ai.StatusUnknown,
			Reason: "Evaluator returned unparseable output.",
		}
	}

	judgment.CriterionID = crit.ID
	judgment.Raw = raw
	return judgment, nil
}

func buildJudgePrompt(rec *candidate.Record, crit criteria.Criterion, enrichment *enrich.Record) (string, error) {
	candidateJSON, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidate payload: %w", err)
	}

	enrichmentJSON := []byte("null")
	if enrichment != nil {
		enrichmentJSON, err = json.MarshalIndent(enrichment, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal enrichment payload: %w", err)
		}
	}

	prompt := strings.ReplaceAll(judgePromptTemplate, "{{CRITERION_ID}}", crit.ID)
	prompt = strings.ReplaceAll(prompt, "{{CRITERION_DESCRIPTION}}", crit.Description)
	prompt = strings.ReplaceAll(prompt, "{{CANDIDATE_JSON}}", string(candidateJSON))
	prompt = strings.ReplaceAll(prompt, "{{ENRICHMENT_JSON}}", string(enrichmentJSON))
	return prompt, nil
}

func parseJudgment(raw string) (*ai.Judgment, error) {
	cleaned := extractJSON(raw)

	var payload struct {
		Status   string `json:"status"`
		Reason   string `json:"reason"`
		Evidence string `json:"evidence"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("parse judgment response: %w", err)
	}

	status, err := parseStatus(payload.Status)
	if err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(payload.Reason)
	if reason == "" {
		return nil, fmt.Errorf("judgment response is missing a reason")
	}

	evidence := strings.TrimSpace(payload.Evidence)
	if strings.EqualFold(evidence, "n/a") {
		evidence = ""
	}

	return &ai.Judgment{Status: status, Reason: reason, Evidence: evidence}, nil
}

func parseStatus(raw string) (ai.Status, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	switch normalized {
	case "MET", "PASS":
		return ai.StatusMet, nil
	case "NOT_MET", "FAIL":
		return ai.StatusNotMet, nil
	case "UNKNOWN", "UNSURE":
		return ai.StatusUnknown, nil
	default:
		return "", fmt.Errorf("unrecognized judgment status %q", raw)
	}
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
