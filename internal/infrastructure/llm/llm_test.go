package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"ElectionWatch/internal/config"
	"ElectionWatch/internal/domain"
)

func TestParseStructuredAcceptsFencedJSON(t *testing.T) {
	t.Parallel()

	raw := "```json\n{\"sentiment\":\"Negative\",\"score\":-0.7,\"confidence\":0.8,\"threatLevel\":\"HIGH\",\"topics\":[\"violence\"]}\n```"
	got, err := parseStructured(raw, "gemini", time.Unix(0, 0))
	if err != nil {
		t.Fatalf("parseStructured: %v", err)
	}
	if got.Sentiment != domain.SentimentNegative || got.ThreatLevel != domain.ThreatHigh {
		t.Fatalf("unexpected enums: %+v", got)
	}
	if got.Method != "gemini" || got.Entities == nil || got.RiskFactors == nil {
		t.Fatalf("unexpected analysis: %+v", got)
	}
}

func TestParseStructuredRejectsInvalidOutput(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":      "I think this is negative",
		"bad sentiment": `{"sentiment":"furious","score":0,"confidence":0.5,"threatLevel":"low"}`,
		"score range":   `{"sentiment":"neutral","score":3,"confidence":0.5,"threatLevel":"low"}`,
		"bad threat":    `{"sentiment":"neutral","score":0,"confidence":0.5,"threatLevel":"extreme"}`,
		"empty":         "   ",
	}
	for name, raw := range cases {
		if _, err := parseStructured(raw, "chatgpt", time.Now()); !errors.Is(err, domain.ErrInvalidAnalysis) {
			t.Fatalf("%s: expected ErrInvalidAnalysis, got %v", name, err)
		}
	}
}

func completion(content string) []byte {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
	})
	return body
}

func TestChatGPTClassifierSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		var req struct {
			Model          string            `json:"model"`
			ResponseFormat map[string]string `json:"response_format"`
			Messages       []map[string]string
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ResponseFormat["type"] != "json_object" || len(req.Messages) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		if !strings.Contains(req.Messages[1]["content"], "Parish: St. James") {
			t.Errorf("geo hint missing from user message: %q", req.Messages[1]["content"])
		}
		_, _ = w.Write(completion(`{"sentiment":"positive","score":0.4,"confidence":0.7,"threatLevel":"low","entities":["JLP"]}`))
	}))
	defer server.Close()

	c := NewChatGPTClassifier(config.ChatGPTConfig{Endpoint: server.URL, Model: "gpt-test", APIKey: "key"}, server.Client())
	got, err := c.Classify(context.Background(), "JLP rally in Montego Bay", domain.ClassifyContext{GeoUnit: "St. James"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Sentiment != domain.SentimentPositive || got.Method != config.ProviderChatGPT || len(got.Entities) != 1 {
		t.Fatalf("unexpected analysis: %+v", got)
	}
}

func TestChatGPTClassifierRateLimited(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewChatGPTClassifier(config.ChatGPTConfig{Endpoint: server.URL, Model: "gpt-test", APIKey: "key"}, server.Client())
	if _, err := c.Classify(context.Background(), "text", domain.ClassifyContext{}); !errors.Is(err, domain.ErrClassifierRateLimited) {
		t.Fatalf("expected ErrClassifierRateLimited, got %v", err)
	}
}

func TestChatGPTClassifierServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewChatGPTClassifier(config.ChatGPTConfig{Endpoint: server.URL, Model: "gpt-test", APIKey: "key"}, server.Client())
	_, err := c.Classify(context.Background(), "text", domain.ClassifyContext{})
	if !errors.Is(err, domain.ErrClassifier) || errors.Is(err, domain.ErrClassifierRateLimited) {
		t.Fatalf("expected plain ErrClassifier, got %v", err)
	}
}

func TestChatGPTClassifierMisconfigured(t *testing.T) {
	t.Parallel()

	c := NewChatGPTClassifier(config.ChatGPTConfig{Endpoint: "http://localhost"}, nil)
	if _, err := c.Classify(context.Background(), "text", domain.ClassifyContext{}); !errors.Is(err, domain.ErrClassifier) {
		t.Fatalf("expected ErrClassifier, got %v", err)
	}
}

func TestIsQuotaError(t *testing.T) {
	t.Parallel()

	if !isQuotaError(&googleapi.Error{Code: http.StatusTooManyRequests}) {
		t.Fatalf("429 must count as quota")
	}
	if !isQuotaError(errors.New("rpc error: code = ResourceExhausted desc = RESOURCE_EXHAUSTED")) {
		t.Fatalf("RESOURCE_EXHAUSTED must count as quota")
	}
	if isQuotaError(errors.New("invalid argument")) {
		t.Fatalf("unrelated errors are not quota errors")
	}
}
