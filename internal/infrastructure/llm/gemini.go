package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"ElectionWatch/internal/config"
	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/ports"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiClassifier implements ports.Classifier on Google Generative AI.
type GeminiClassifier struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	now       func() time.Time
}

var _ ports.Classifier = (*GeminiClassifier)(nil)

// NewGeminiClassifier creates the SDK client; Close releases it.
func NewGeminiClassifier(ctx context.Context, cfg config.GeminiConfig) (*GeminiClassifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	name := cfg.Model
	if name == "" {
		name = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := client.GenerativeModel(name)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(classificationPrompt)},
	}
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = analysisSchema()
	model.SetTemperature(0)
	model.SetMaxOutputTokens(512)

	return &GeminiClassifier{client: client, model: model, modelName: name, now: time.Now}, nil
}

// Close releases the SDK connection.
func (g *GeminiClassifier) Close() error {
	return g.client.Close()
}

func (g *GeminiClassifier) Name() string {
	return config.ProviderGemini
}

// Classify asks the model for the structured analysis of one item.
func (g *GeminiClassifier) Classify(ctx context.Context, text string, hints domain.ClassifyContext) (domain.SentimentAnalysis, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(userMessage(text, hints)))
	if err != nil {
		if isQuotaError(err) {
			return domain.SentimentAnalysis{}, fmt.Errorf("%w: gemini: %v", domain.ErrClassifierRateLimited, err)
		}
		return domain.SentimentAnalysis{}, fmt.Errorf("%w: gemini: %v", domain.ErrClassifier, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return domain.SentimentAnalysis{}, fmt.Errorf("%w: empty response from gemini", domain.ErrInvalidAnalysis)
	}

	var reply strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			reply.WriteString(string(t))
		}
	}

	return parseStructured(reply.String(), g.Name(), g.now())
}

func analysisSchema() *genai.Schema {
	list := &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"sentiment":   {Type: genai.TypeString, Enum: []string{"positive", "negative", "neutral"}},
			"score":       {Type: genai.TypeNumber},
			"confidence":  {Type: genai.TypeNumber},
			"threatLevel": {Type: genai.TypeString, Enum: []string{"low", "medium", "high", "critical"}},
			"riskFactors": list,
			"topics":      list,
			"entities":    list,
		},
		Required: []string{"sentiment", "score", "confidence", "threatLevel"},
	}
}

func isQuotaError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "quota") || strings.Contains(msg, "429")
}
