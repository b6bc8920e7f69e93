package classify

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/lexicon"
	"ElectionWatch/internal/ports"
)

// FallbackConfidence is attached to every heuristic result.
const FallbackConfidence = 0.35

const polarityDeadZone = 0.1

var (
	positiveTerms = map[string]float64{
		"win": 1, "wins": 1, "victory": 1.5, "support": 1, "welcome": 1, "welcomed": 1,
		"improve": 1, "improved": 1, "growth": 1, "peaceful": 1.5, "celebrate": 1,
		"success": 1.5, "successful": 1.5, "praised": 1, "agreement": 1, "calm": 1,
		"investment": 0.5, "progress": 1, "hope": 0.5, "unity": 1, "commend": 1,
	}
	negativeTerms = map[string]float64{
		"violence": 2, "violent": 2, "attack": 2, "shooting": 2.5, "killed": 2.5,
		"murder": 2.5, "riot": 2, "fraud": 2, "corruption": 2, "scandal": 1.5,
		"protest": 1, "clash": 1.5, "intimidation": 2, "threat": 1.5, "crisis": 1.5,
		"angry": 1, "outrage": 1.5, "condemn": 1, "condemned": 1, "fear": 1,
		"unrest": 1.5, "rigging": 2, "vote buying": 2, "arson": 2, "roadblock": 1,
	}

	threatTiers = []struct {
		level domain.ThreatLevel
		terms []string
	}{
		{level: domain.ThreatCritical, terms: []string{"shooting", "gunfire", "killed", "murder", "bomb", "massacre", "assassination"}},
		{level: domain.ThreatHigh, terms: []string{"violence", "violent", "attack", "riot", "arson", "intimidation", "armed", "gunmen", "threatened"}},
		{level: domain.ThreatMedium, terms: []string{"protest", "clash", "unrest", "roadblock", "fraud", "rigging", "vote buying", "tension", "dispute"}},
	}

	topicGroups = []struct {
		topic string
		terms []string
	}{
		{topic: "election", terms: []string{"election", "vote", "ballot", "polling", "candidate", "campaign", "constituency"}},
		{topic: "crime", terms: []string{"crime", "shooting", "murder", "police", "gunmen", "violence"}},
		{topic: "economy", terms: []string{"economy", "jobs", "budget", "tax", "inflation", "investment"}},
		{topic: "corruption", terms: []string{"corruption", "fraud", "scandal", "bribery", "vote buying"}},
		{topic: "infrastructure", terms: []string{"road", "water", "electricity", "housing", "bridge"}},
		{topic: "health", terms: []string{"health", "hospital", "clinic", "disease"}},
		{topic: "education", terms: []string{"school", "education", "teacher", "students"}},
	}
)

type weightedSet struct {
	set     *lexicon.Set
	weights map[string]float64
}

func newWeightedSet(weights map[string]float64) weightedSet {
	terms := make([]string, 0, len(weights))
	for t := range weights {
		terms = append(terms, t)
	}
	return weightedSet{set: lexicon.NewSet(terms), weights: weights}
}

func (w weightedSet) score(text string) float64 {
	var total float64
	for _, term := range w.set.Matches(text) {
		total += w.weights[term]
	}
	return total
}

type tier struct {
	level domain.ThreatLevel
	set   *lexicon.Set
}

type topic struct {
	name string
	set  *lexicon.Set
}

// Heuristic is the local lexicon classifier used when the primary path is
// unavailable. It never calls out and always returns the full output shape.
type Heuristic struct {
	positive weightedSet
	negative weightedSet
	tiers    []tier
	topics   []topic
	places   *lexicon.Set
	entities *lexicon.Set
	now      func() time.Time
}

var _ ports.Classifier = (*Heuristic)(nil)

// NewHeuristic builds the fallback; places and entities feed the
// mentioned-entities list.
func NewHeuristic(places, entities []string) *Heuristic {
	h := &Heuristic{
		positive: newWeightedSet(positiveTerms),
		negative: newWeightedSet(negativeTerms),
		places:   lexicon.NewSet(places),
		entities: lexicon.NewSet(entities),
		now:      time.Now,
	}
	for _, t := range threatTiers {
		h.tiers = append(h.tiers, tier{level: t.level, set: lexicon.NewSet(t.terms)})
	}
	for _, g := range topicGroups {
		h.topics = append(h.topics, topic{name: g.topic, set: lexicon.NewSet(g.terms)})
	}
	return h
}

// Name identifies the classifier in analyses and logs.
func (h *Heuristic) Name() string {
	return domain.MethodHeuristic
}

// Classify scores polarity from weighted term hits and threat level from the
// most severe tier that matches.
func (h *Heuristic) Classify(_ context.Context, text string, hints domain.ClassifyContext) (domain.SentimentAnalysis, error) {
	if strings.TrimSpace(text) == "" {
		return domain.SentimentAnalysis{}, fmt.Errorf("%w: empty text", domain.ErrClassifier)
	}

	pos := h.positive.score(text)
	neg := h.negative.score(text)

	score := 0.0
	if pos+neg > 0 {
		score = (pos - neg) / (pos + neg)
	}
	score = math.Max(-1, math.Min(1, score))

	sentiment := domain.SentimentNeutral
	switch {
	case score > polarityDeadZone:
		sentiment = domain.SentimentPositive
	case score < -polarityDeadZone:
		sentiment = domain.SentimentNegative
	}

	level := domain.ThreatLow
	risks := []string{}
	for _, t := range h.tiers {
		matches := t.set.Matches(text)
		if len(matches) == 0 {
			continue
		}
		if !level.AtLeast(t.level) {
			level = t.level
		}
		risks = append(risks, matches...)
	}

	topics := []string{}
	for _, tp := range h.topics {
		if tp.set.Any(text) {
			topics = append(topics, tp.name)
		}
	}

	entities := append([]string{}, h.entities.Matches(text)...)
	entities = append(entities, h.places.Matches(text)...)
	if hints.GeoUnit != "" && !containsFold(entities, hints.GeoUnit) {
		entities = append(entities, hints.GeoUnit)
	}

	return domain.SentimentAnalysis{
		Sentiment:   sentiment,
		Score:       math.Round(score*1000) / 1000,
		Confidence:  FallbackConfidence,
		ThreatLevel: level,
		RiskFactors: risks,
		Topics:      topics,
		Entities:    entities,
		Method:      domain.MethodHeuristic,
		AnalyzedAt:  h.now().UTC(),
	}, nil
}

func containsFold(values []string, v string) bool {
	for _, x := range values {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}
