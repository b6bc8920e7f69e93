// Package alerting evaluates the fixed risk patterns over freshly classified
// items and the recent history of their geo units.
package alerting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"ElectionWatch/internal/domain"
)

// Config holds the pattern thresholds.
type Config struct {
	ViralMedium        int
	ViralHigh          int
	SentimentThreshold float64
	SentimentSevere    float64
	Window             time.Duration
	MinWindowItems     int
	DiscountFallback   bool
}

// DefaultConfig mirrors the shipped configuration defaults.
func DefaultConfig() Config {
	return Config{
		ViralMedium:        1000,
		ViralHigh:          5000,
		SentimentThreshold: -0.3,
		SentimentSevere:    -0.6,
		Window:             24 * time.Hour,
		MinWindowItems:     3,
	}
}

// Engine is stateless between runs; every Evaluate call starts a fresh
// dedupe set.
type Engine struct {
	cfg   Config
	newID func() string
}

func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.ViralMedium <= 0 {
		cfg.ViralMedium = def.ViralMedium
	}
	if cfg.ViralHigh < cfg.ViralMedium {
		cfg.ViralHigh = cfg.ViralMedium
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MinWindowItems <= 0 {
		cfg.MinWindowItems = 1
	}
	if cfg.SentimentSevere > cfg.SentimentThreshold {
		cfg.SentimentSevere = cfg.SentimentThreshold
	}
	return &Engine{cfg: cfg, newID: uuid.NewString}
}

// Window is the sentiment aggregation window; callers load twice this span
// of history so the prior window can be compared.
func (e *Engine) Window() time.Duration {
	return e.cfg.Window
}

// Evaluate runs threat, viral and sentiment-shift checks in that order.
// Items without an analysis are ignored. recent may overlap newItems.
func (e *Engine) Evaluate(newItems, recent []domain.ProcessedItem, now time.Time) []domain.Alert {
	now = now.UTC()
	seen := map[string]bool{}
	var alerts []domain.Alert

	emit := func(key string, a domain.Alert) {
		if seen[key] {
			return
		}
		seen[key] = true
		a.ID = e.newID()
		a.CreatedAt = now
		alerts = append(alerts, a)
	}

	var touched []string
	touchedSet := map[string]bool{}

	for _, item := range newItems {
		if item.Analysis == nil {
			continue
		}
		if a, ok := e.threat(item); ok {
			emit(string(domain.AlertThreat)+"|"+item.ID, a)
		}
		if a, ok := e.viral(item); ok {
			emit(string(domain.AlertViral)+"|"+item.ID, a)
		}
		if item.GeoUnit != "" && !touchedSet[item.GeoUnit] {
			touchedSet[item.GeoUnit] = true
			touched = append(touched, item.GeoUnit)
		}
	}

	pool := mergeByID(newItems, recent)
	for _, geo := range touched {
		if a, ok := e.sentimentShift(geo, pool, now); ok {
			emit(string(domain.AlertSentimentShift)+"|"+geo, a)
		}
	}

	return alerts
}

func (e *Engine) threat(item domain.ProcessedItem) (domain.Alert, bool) {
	level := item.Analysis.ThreatLevel
	if !level.AtLeast(domain.ThreatHigh) {
		return domain.Alert{}, false
	}
	severity := level
	if e.cfg.DiscountFallback && item.Analysis.IsFallback() {
		severity = severity.Lower()
	}

	desc := "No specific risk factors reported."
	if len(item.Analysis.RiskFactors) > 0 {
		desc = "Risk factors: " + strings.Join(item.Analysis.RiskFactors, ", ")
	}
	if item.Analysis.IsFallback() {
		desc += " (heuristic classification)"
	}

	return domain.Alert{
		Type:           domain.AlertThreat,
		Severity:       severity,
		Title:          fmt.Sprintf("%s threat: %s", titleCase(string(level)), item.Title),
		Description:    desc,
		GeoUnit:        item.GeoUnit,
		RelatedItemIDs: []string{item.ID},
	}, true
}

func (e *Engine) viral(item domain.ProcessedItem) (domain.Alert, bool) {
	if item.Engagement == nil {
		return domain.Alert{}, false
	}
	total := item.Engagement.Total()

	var severity domain.ThreatLevel
	switch {
	case total >= e.cfg.ViralHigh:
		severity = domain.ThreatHigh
	case total >= e.cfg.ViralMedium:
		severity = domain.ThreatMedium
	default:
		return domain.Alert{}, false
	}

	return domain.Alert{
		Type:     domain.AlertViral,
		Severity: severity,
		Title:    fmt.Sprintf("High engagement: %s", item.Title),
		Description: fmt.Sprintf("%d interactions (%d likes, %d shares, %d replies) across %d occurrence(s)",
			total, item.Engagement.Likes, item.Engagement.Shares, item.Engagement.Replies, max(item.Occurrences, 1)),
		GeoUnit:        item.GeoUnit,
		RelatedItemIDs: []string{item.ID},
	}, true
}

func (e *Engine) sentimentShift(geo string, pool []domain.ProcessedItem, now time.Time) (domain.Alert, bool) {
	currentStart := now.Add(-e.cfg.Window)
	priorStart := currentStart.Add(-e.cfg.Window)

	var current, prior []domain.ProcessedItem
	for _, item := range pool {
		if item.Analysis == nil || item.GeoUnit != geo {
			continue
		}
		at := observedAt(item)
		switch {
		case at.After(now):
		case !at.Before(currentStart):
			current = append(current, item)
		case !at.Before(priorStart):
			prior = append(prior, item)
		}
	}

	if len(current) < e.cfg.MinWindowItems {
		return domain.Alert{}, false
	}
	avg := averageScore(current)
	if avg >= e.cfg.SentimentThreshold {
		return domain.Alert{}, false
	}
	if len(prior) > 0 && averageScore(prior) < e.cfg.SentimentThreshold {
		return domain.Alert{}, false
	}

	severity := domain.ThreatMedium
	if avg < e.cfg.SentimentSevere {
		severity = domain.ThreatHigh
	}

	ids := make([]string, 0, len(current))
	for _, item := range current {
		ids = append(ids, item.ID)
	}
	sort.Strings(ids)

	desc := fmt.Sprintf("Average sentiment %.2f over %d items in the last %s", avg, len(current), e.cfg.Window)
	if len(prior) > 0 {
		desc += fmt.Sprintf(", previous window %.2f over %d items", averageScore(prior), len(prior))
	}

	return domain.Alert{
		Type:           domain.AlertSentimentShift,
		Severity:       severity,
		Title:          fmt.Sprintf("Negative sentiment shift in %s", geo),
		Description:    desc,
		GeoUnit:        geo,
		RelatedItemIDs: ids,
	}, true
}

// observedAt places an item on the window timeline by when it was fetched.
func observedAt(item domain.ProcessedItem) time.Time {
	if !item.FetchedAt.IsZero() {
		return item.FetchedAt
	}
	return item.CreatedAt
}

func averageScore(items []domain.ProcessedItem) float64 {
	var sum float64
	for _, item := range items {
		sum += item.Analysis.Score
	}
	return sum / float64(len(items))
}

func mergeByID(primary, extra []domain.ProcessedItem) []domain.ProcessedItem {
	out := make([]domain.ProcessedItem, 0, len(primary)+len(extra))
	seen := map[string]bool{}
	for _, group := range [][]domain.ProcessedItem{primary, extra} {
		for _, item := range group {
			if item.ID == "" || seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			out = append(out, item)
		}
	}
	return out
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
