package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"go.uber.org/zap"

	"github.com/talentsift/talentsift/internal/schema"
	"github.com/talentsift/talentsift/internal/utils"
)

//go:embed mapper_prompt.md
var mapperPromptTemplate string

// MapAssist proposes canonical fields for headers the synonym tables do not
// recognize. It satisfies ingest.MapAssist.
type MapAssist struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

// NewMapAssist builds the assisted-mapping fallback over the generator.
func NewMapAssist(generator contentGenerator, maxLogLength int, logger *zap.Logger) *MapAssist {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MapAssist{generator: generator, logger: logger, maxLogLen: maxLogLength}
}

// ProposeMapping asks the model to map the unrecognized headers to canonical
// fields. Proposals pointing at non-canonical fields are discarded; the
// caller decides precedence and never lets a proposal override a direct
// synonym match.
func (m *MapAssist) ProposeMapping(ctx context.Context, headers []string, sample []map[string]string) (map[string]string, error) {
	if len(headers) == 0 {
		return nil, nil
	}

	sampleJSON, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal sample rows: %w", err)
	}

	prompt := strings.ReplaceAll(mapperPromptTemplate, "{{SOURCE_COLUMNS}}", strings.Join(headers, ", "))
	prompt = strings.ReplaceAll(prompt, "{{SAMPLE_ROWS}}", string(sampleJSON))
	prompt = strings.ReplaceAll(prompt, "{{SCHEMA_DESCRIPTION}}", schema.Description())

	raw, err := m.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("gemini mapping response",
		zap.String("response_preview", utils.TruncateForLog(raw, m.maxLogLen)),
	)

	var proposals map[string]string
	if err := json.Unmarshal([]byte(extractJSON(raw)), &proposals); err != nil {
		return nil, fmt.Errorf("parse mapping response: %w", err)
	}

	result := make(map[string]string, len(proposals))
	for header, field := range proposals {
		field = strings.TrimSpace(field)
		if !schema.IsCanonical(field) {
			continue
		}
		result[header] = field
	}

	return result, nil
}
