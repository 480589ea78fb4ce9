package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/carewellhealth/patient-portal/pkg/logging"
)

// jailbreakLabel is the only classifier label the decision uses.
const jailbreakLabel = "JAILBREAK"

// jailbreakThreshold blocks scores strictly greater than this value.
const jailbreakThreshold = 0.5

// LabelScore is one entry of the classifier's ranked output.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ClassifierClient calls an external text-classification model that scores
// input for prompt-injection and jailbreak intent.
type ClassifierClient struct {
	endpoint   string
	token      string
	httpClient *http.Client
	logger     *logging.Logger
}

// ClassifierOption is a functional option for configuring the client.
type ClassifierOption func(*ClassifierClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClassifierOption {
	return func(c *ClassifierClient) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) ClassifierOption {
	return func(c *ClassifierClient) {
		c.logger = logger
	}
}

// NewClassifierClient creates a client for the inference endpoint.
func NewClassifierClient(endpoint, token string, opts ...ClassifierOption) *ClassifierClient {
	c := &ClassifierClient{
		endpoint: endpoint,
		token:    token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsMalicious scores text and reports whether its JAILBREAK score exceeds the
// threshold. Every failure mode (transport, non-2xx, malformed body) maps to
// false: the classifier is a fail-open stage so that chat stays available
// when the external model is down. Do not flip this to fail-closed without
// revisiting the availability trade-off; the validator stage is the
// fail-closed counterpart.
func (c *ClassifierClient) IsMalicious(ctx context.Context, text string) bool {
	scores, err := c.classify(ctx, text)
	if err != nil {
		c.logger.Warn("classifier unavailable, treating input as benign", "error", err)
		return false
	}
	return jailbreakScore(scores) > jailbreakThreshold
}

// classify posts the text and returns the first ranked score group.
func (c *ClassifierClient) classify(ctx context.Context, text string) ([]LabelScore, error) {
	payload, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return nil, fmt.Errorf("guard: marshal classifier request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("guard: create classifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("guard: classifier request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("guard: classifier returned status %d: %s", resp.StatusCode, string(body))
	}

	// The service returns one score group per input: [][]{label, score}.
	var groups [][]LabelScore
	if err := json.NewDecoder(resp.Body).Decode(&groups); err != nil {
		return nil, fmt.Errorf("guard: decode classifier response: %w", err)
	}
	if len(groups) == 0 {
		return nil, nil
	}
	return groups[0], nil
}

// jailbreakScore extracts the JAILBREAK score, defaulting to 0 when absent.
func jailbreakScore(scores []LabelScore) float64 {
	for _, s := range scores {
		if s.Label == jailbreakLabel {
			return s.Score
		}
	}
	return 0
}
