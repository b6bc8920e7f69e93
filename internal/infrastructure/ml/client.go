package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/ports"
)

// Client talks to an external inference service for sentiment and threat scoring.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	now      func() time.Time
}

var _ ports.Classifier = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
		now:      time.Now,
	}
}

func (c *Client) Name() string {
	return "ml"
}

type classifyRequest struct {
	Text     string   `json:"text"`
	Title    string   `json:"title,omitempty"`
	Source   string   `json:"source,omitempty"`
	GeoUnit  string   `json:"geoUnit,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

type classifyResponse struct {
	Sentiment   string   `json:"sentiment"`
	Score       float64  `json:"score"`
	Confidence  float64  `json:"confidence"`
	ThreatLevel string   `json:"threatLevel"`
	RiskFactors []string `json:"riskFactors"`
	Topics      []string `json:"topics"`
	Entities    []string `json:"entities"`
	Model       string   `json:"model"`
}

// Classify sends the item text for scoring.
func (c *Client) Classify(ctx context.Context, text string, hints domain.ClassifyContext) (domain.SentimentAnalysis, error) {
	payload := classifyRequest{
		Text:     text,
		Title:    hints.Title,
		Source:   hints.Source,
		GeoUnit:  hints.GeoUnit,
		Keywords: hints.Keywords,
	}

	var resp classifyResponse
	if err := c.post(ctx, "/classify", payload, &resp); err != nil {
		return domain.SentimentAnalysis{}, err
	}

	method := c.Name()
	if resp.Model != "" {
		method = c.Name() + ":" + resp.Model
	}
	analysis := domain.SentimentAnalysis{
		Sentiment:   domain.Sentiment(strings.ToLower(resp.Sentiment)),
		Score:       resp.Score,
		Confidence:  resp.Confidence,
		ThreatLevel: domain.ThreatLevel(strings.ToLower(resp.ThreatLevel)),
		RiskFactors: orEmpty(resp.RiskFactors),
		Topics:      orEmpty(resp.Topics),
		Entities:    orEmpty(resp.Entities),
		Method:      method,
		AnalyzedAt:  c.now().UTC(),
	}
	if err := analysis.Validate(); err != nil {
		return domain.SentimentAnalysis{}, err
	}
	return analysis, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: do request: %v", domain.ErrClassifier, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: inference service %s", domain.ErrClassifierRateLimited, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: unexpected status %s", domain.ErrClassifier, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrInvalidAnalysis, err)
	}
	return nil
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
