package enrich

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip, deflate, br"
	defaultAgent    = "talentsift (github.com/talentsift/talentsift)"
)

// Client fetches enrichment payloads from the profile lookup API.
type Client struct {
	baseURL    string
	token      string
	logger     *zap.Logger
	breaker    *gobreaker.CircuitBreaker[*Record]
	HTTPClient *http.Client
	UserAgent  string
}

// NewClient builds the HTTP fetcher. The circuit breaker opens after a
// sustained failure ratio so a dead upstream fails fast instead of making
// every worker wait out its timeout.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:    "enrichment",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("enrichment breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		logger:  logger,
		breaker: gobreaker.NewCircuitBreaker[*Record](settings),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		UserAgent: defaultAgent,
	}
}

// Fetch looks up one profile by identifier. A 404 from the source is the
// explicit ErrUnavailable outcome; other failures are transport errors.
func (c *Client) Fetch(ctx context.Context, identifier string) (*Record, error) {
	rec, err := c.breaker.Execute(func() (*Record, error) {
		return c.fetch(ctx, identifier)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) fetch(ctx context.Context, identifier string) (*Record, error) {
	endpoint := fmt.Sprintf("%s/profiles/%s", c.baseURL, url.PathEscape(identifier))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	c.logger.Debug("fetching enrichment", zap.String("url", endpoint))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enrichment request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone, http.StatusForbidden:
		return nil, fmt.Errorf("%s: %w", resp.Status, ErrUnavailable)
	default:
		return nil, fmt.Errorf("enrichment source: bad status %s", resp.Status)
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}

	var rec Record
	if err := json.NewDecoder(reader).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decoding enrichment payload: %w", err)
	}

	return &rec, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept-Encoding", contentEncoding)
}
