package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/talentsift/talentsift/internal/utils"
)

const (
	defaultModel   = "gemini-2.5-pro"
	defaultRetries = 2
	retryBackoff   = 2 * time.Second
)

// Generator wraps the Google GenAI client to provide simple prompt-based
// interactions with bounded retries on transport failures. Malformed model
// output is a content problem and is never retried here; that belongs to
// the caller's parsing contract.
type Generator struct {
	client     *genai.Client
	modelName  string
	maxRetries int
	logger     *zap.Logger
}

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey, model string, maxRetries int, logger *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	if maxRetries <= 0 {
		maxRetries = defaultRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{client: client, modelName: model, maxRetries: maxRetries, logger: logger}, nil
}

// GenerateContent sends the prompt to Gemini and returns the first textual
// response, retrying transport failures with backoff.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.client == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Warn("retrying gemini request",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", g.maxRetries),
				zap.Error(lastErr),
			)
			if err := utils.WaitFor(ctx, retryBackoff*time.Duration(attempt)); err != nil {
				return "", err
			}
		}

		resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(prompt), nil)
		if err != nil {
			lastErr = fmt.Errorf("generate content: %w", err)
			continue
		}

		output := collectText(resp)
		if output == "" {
			lastErr = errors.New("gemini api returned empty response")
			continue
		}

		return output, nil
	}

	return "", lastErr
}

func collectText(resp *genai.GenerateContentResponse) string {
	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}
	return strings.TrimSpace(builder.String())
}

// Model returns the configured model name.
func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.modelName
}
