package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ElectionWatch/internal/config"
	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/ports"
)

// ChatGPTClassifier implements ports.Classifier backed by OpenAI-compatible APIs.
type ChatGPTClassifier struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
	now          func() time.Time
}

var _ ports.Classifier = (*ChatGPTClassifier)(nil)

// NewChatGPTClassifier builds a client from configuration. The caller's
// context bounds each call; the client timeout is only a backstop.
func NewChatGPTClassifier(cfg config.ChatGPTConfig, httpClient *http.Client) *ChatGPTClassifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ChatGPTClassifier{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient:   httpClient,
		now:          time.Now,
	}
}

func (c *ChatGPTClassifier) Name() string {
	return config.ProviderChatGPT
}

// Classify sends the item text as a user message and asks for a JSON object reply.
func (c *ChatGPTClassifier) Classify(ctx context.Context, text string, hints domain.ClassifyContext) (domain.SentimentAnalysis, error) {
	if c == nil {
		return domain.SentimentAnalysis{}, fmt.Errorf("%w: chatgpt client is nil", domain.ErrClassifier)
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return domain.SentimentAnalysis{}, fmt.Errorf("%w: chatgpt client misconfigured", domain.ErrClassifier)
	}

	body, err := json.Marshal(map[string]any{
		"model":           c.model,
		"temperature":     0,
		"response_format": map[string]string{"type": "json_object"},
		"messages": []map[string]string{
			{"role": "system", "content": safePrompt(c.systemPrompt)},
			{"role": "user", "content": userMessage(text, hints)},
		},
	})
	if err != nil {
		return domain.SentimentAnalysis{}, fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.SentimentAnalysis{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.SentimentAnalysis{}, fmt.Errorf("%w: send: %v", domain.ErrClassifier, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.SentimentAnalysis{}, fmt.Errorf("%w: chatgpt %s", domain.ErrClassifierRateLimited, resp.Status)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.SentimentAnalysis{}, fmt.Errorf("%w: chatgpt error %s: %s", domain.ErrClassifier, resp.Status, strings.TrimSpace(string(payload)))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return domain.SentimentAnalysis{}, fmt.Errorf("%w: decode completion: %v", domain.ErrInvalidAnalysis, err)
	}
	if len(completion.Choices) == 0 {
		return domain.SentimentAnalysis{}, fmt.Errorf("%w: completion without choices", domain.ErrInvalidAnalysis)
	}

	return parseStructured(completion.Choices[0].Message.Content, c.Name(), c.now())
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return classificationPrompt
	}
	return prompt
}
