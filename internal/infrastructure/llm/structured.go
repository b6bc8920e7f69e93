package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"ElectionWatch/internal/domain"
)

const classificationPrompt = `You analyse Jamaican news and social posts about elections.
Reply with a single JSON object and nothing else, using exactly these keys:
  "sentiment": one of "positive", "negative", "neutral"
  "score": number from -1 (most negative) to 1 (most positive)
  "confidence": number from 0 to 1
  "threatLevel": one of "low", "medium", "high", "critical" describing risk to public order or electoral integrity
  "riskFactors": array of short phrases
  "topics": array of short topic labels
  "entities": array of people, parties and places mentioned`

// payload is the structured output requested from every LLM provider.
type payload struct {
	Sentiment   string   `json:"sentiment"`
	Score       float64  `json:"score"`
	Confidence  float64  `json:"confidence"`
	ThreatLevel string   `json:"threatLevel"`
	RiskFactors []string `json:"riskFactors"`
	Topics      []string `json:"topics"`
	Entities    []string `json:"entities"`
}

func userMessage(text string, hints domain.ClassifyContext) string {
	var b strings.Builder
	if hints.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", hints.Source)
	}
	if hints.GeoUnit != "" {
		fmt.Fprintf(&b, "Parish: %s\n", hints.GeoUnit)
	}
	if len(hints.Keywords) > 0 {
		fmt.Fprintf(&b, "Matched keywords: %s\n", strings.Join(hints.Keywords, ", "))
	}
	b.WriteString("\n")
	b.WriteString(text)
	return b.String()
}

// parseStructured decodes a provider reply into an analysis. Markdown code
// fences around the JSON are tolerated; anything else is ErrInvalidAnalysis.
func parseStructured(raw, method string, now time.Time) (domain.SentimentAnalysis, error) {
	raw = stripFences(raw)
	if raw == "" {
		return domain.SentimentAnalysis{}, fmt.Errorf("%w: empty reply", domain.ErrInvalidAnalysis)
	}

	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.SentimentAnalysis{}, fmt.Errorf("%w: %v", domain.ErrInvalidAnalysis, err)
	}

	analysis := domain.SentimentAnalysis{
		Sentiment:   domain.Sentiment(strings.ToLower(strings.TrimSpace(p.Sentiment))),
		Score:       p.Score,
		Confidence:  p.Confidence,
		ThreatLevel: domain.ThreatLevel(strings.ToLower(strings.TrimSpace(p.ThreatLevel))),
		RiskFactors: nonNil(p.RiskFactors),
		Topics:      nonNil(p.Topics),
		Entities:    nonNil(p.Entities),
		Method:      method,
		AnalyzedAt:  now.UTC(),
	}
	if math.IsNaN(analysis.Score) || math.IsNaN(analysis.Confidence) {
		return domain.SentimentAnalysis{}, fmt.Errorf("%w: NaN in reply", domain.ErrInvalidAnalysis)
	}
	if err := analysis.Validate(); err != nil {
		return domain.SentimentAnalysis{}, err
	}
	return analysis, nil
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```")
	if nl := strings.IndexByte(raw, '\n'); nl >= 0 {
		raw = raw[nl+1:]
	}
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
