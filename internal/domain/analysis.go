package domain

import (
	"fmt"
	"time"
)

// Sentiment is the polarity bucket of a classified item.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// ParseSentiment normalises provider output into the enumerated set.
func ParseSentiment(v string) (Sentiment, bool) {
	switch Sentiment(v) {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return Sentiment(v), true
	}
	return "", false
}

// ThreatLevel doubles as alert severity; the order matters.
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

var threatRank = map[ThreatLevel]int{
	ThreatLow:      1,
	ThreatMedium:   2,
	ThreatHigh:     3,
	ThreatCritical: 4,
}

// ParseThreatLevel validates a provider supplied level.
func ParseThreatLevel(v string) (ThreatLevel, bool) {
	level := ThreatLevel(v)
	_, ok := threatRank[level]
	return level, ok
}

// Rank orders levels from low (1) to critical (4); unknown levels rank 0.
func (t ThreatLevel) Rank() int {
	return threatRank[t]
}

// AtLeast reports whether t is as severe as other.
func (t ThreatLevel) AtLeast(other ThreatLevel) bool {
	return t.Rank() >= other.Rank()
}

// Lower returns the next less severe level, bottoming out at low.
func (t ThreatLevel) Lower() ThreatLevel {
	switch t {
	case ThreatCritical:
		return ThreatHigh
	case ThreatHigh:
		return ThreatMedium
	default:
		return ThreatLow
	}
}

// Classification methods recorded on each analysis.
const (
	MethodHeuristic = "heuristic"
)

// ClassifyContext carries the hints a classifier may use beyond the raw text.
type ClassifyContext struct {
	Title    string
	Source   string
	GeoUnit  string
	Keywords []string
}

// SentimentAnalysis is the structured classifier output for one item.
type SentimentAnalysis struct {
	ItemID      string
	Sentiment   Sentiment
	Score       float64
	Confidence  float64
	ThreatLevel ThreatLevel
	RiskFactors []string
	Topics      []string
	Entities    []string
	Method      string
	AnalyzedAt  time.Time
}

// IsFallback reports whether the heuristic path produced the analysis.
func (a SentimentAnalysis) IsFallback() bool {
	return a.Method == MethodHeuristic
}

// Validate enforces the output shape shared by every classifier.
func (a SentimentAnalysis) Validate() error {
	if _, ok := ParseSentiment(string(a.Sentiment)); !ok {
		return fmt.Errorf("%w: sentiment %q", ErrInvalidAnalysis, a.Sentiment)
	}
	if _, ok := ParseThreatLevel(string(a.ThreatLevel)); !ok {
		return fmt.Errorf("%w: threat level %q", ErrInvalidAnalysis, a.ThreatLevel)
	}
	if a.Score < -1 || a.Score > 1 {
		return fmt.Errorf("%w: score %.3f out of range", ErrInvalidAnalysis, a.Score)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.3f out of range", ErrInvalidAnalysis, a.Confidence)
	}
	if a.Method == "" {
		return fmt.Errorf("%w: missing method", ErrInvalidAnalysis)
	}
	return nil
}
