package storage

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"ElectionWatch/internal/domain"
)

// stringList is stored as a JSON array in a TEXT column on both dialects.
type stringList []string

func (l stringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *stringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = stringList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("stringList: unsupported type %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("stringList: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*l = out
	return nil
}

type itemRow struct {
	ID              string     `db:"id"`
	Fingerprint     string     `db:"fingerprint"`
	SourceID        string     `db:"source_id"`
	ExternalID      string     `db:"external_id"`
	Title           string     `db:"title"`
	Body            string     `db:"body"`
	URL             string     `db:"url"`
	PublishedAt     time.Time  `db:"published_at"`
	FetchedAt       time.Time  `db:"fetched_at"`
	RelevanceScore  float64    `db:"relevance_score"`
	MatchedKeywords stringList `db:"matched_keywords"`
	GeoUnit         string     `db:"geo_unit"`
	Locality        string     `db:"locality"`
	HasEngagement   bool       `db:"has_engagement"`
	Likes           int        `db:"likes"`
	Shares          int        `db:"shares"`
	Replies         int        `db:"replies"`
	Occurrences     int        `db:"occurrences"`
	IsDuplicate     bool       `db:"is_duplicate"`
	CreatedAt       time.Time  `db:"created_at"`

	// Analysis columns come from a LEFT JOIN and are null when unclassified.
	Sentiment   sql.NullString  `db:"a_sentiment"`
	Score       sql.NullFloat64 `db:"a_score"`
	Confidence  sql.NullFloat64 `db:"a_confidence"`
	ThreatLevel sql.NullString  `db:"a_threat_level"`
	RiskFactors stringList      `db:"a_risk_factors"`
	Topics      stringList      `db:"a_topics"`
	Entities    stringList      `db:"a_entities"`
	Method      sql.NullString  `db:"a_method"`
	AnalyzedAt  sql.NullTime    `db:"a_analyzed_at"`
}

func (r itemRow) toDomain() domain.ProcessedItem {
	item := domain.ProcessedItem{
		ID:              r.ID,
		Fingerprint:     r.Fingerprint,
		ExternalID:      r.ExternalID,
		Title:           r.Title,
		Body:            r.Body,
		URL:             r.URL,
		Source:          r.SourceID,
		PublishedAt:     r.PublishedAt.UTC(),
		FetchedAt:       r.FetchedAt.UTC(),
		RelevanceScore:  r.RelevanceScore,
		MatchedKeywords: []string(r.MatchedKeywords),
		GeoUnit:         r.GeoUnit,
		Locality:        r.Locality,
		Occurrences:     r.Occurrences,
		IsDuplicate:     r.IsDuplicate,
		CreatedAt:       r.CreatedAt.UTC(),
	}
	if r.HasEngagement {
		item.Engagement = &domain.Engagement{Likes: r.Likes, Shares: r.Shares, Replies: r.Replies}
	}
	if r.Method.Valid {
		item.Analysis = &domain.SentimentAnalysis{
			ItemID:      r.ID,
			Sentiment:   domain.Sentiment(r.Sentiment.String),
			Score:       r.Score.Float64,
			Confidence:  r.Confidence.Float64,
			ThreatLevel: domain.ThreatLevel(r.ThreatLevel.String),
			RiskFactors: []string(r.RiskFactors),
			Topics:      []string(r.Topics),
			Entities:    []string(r.Entities),
			Method:      r.Method.String,
			AnalyzedAt:  r.AnalyzedAt.Time.UTC(),
		}
	}
	return item
}

type alertRow struct {
	ID             string       `db:"id"`
	Type           string       `db:"type"`
	Severity       string       `db:"severity"`
	Title          string       `db:"title"`
	Description    string       `db:"description"`
	GeoUnit        string       `db:"geo_unit"`
	RelatedItemIDs stringList   `db:"related_item_ids"`
	CreatedAt      time.Time    `db:"created_at"`
	IsResolved     bool         `db:"is_resolved"`
	IsAcknowledged bool         `db:"is_acknowledged"`
	ResolvedAt     sql.NullTime `db:"resolved_at"`
	AcknowledgedAt sql.NullTime `db:"acknowledged_at"`
}

func (r alertRow) toDomain() domain.Alert {
	a := domain.Alert{
		ID:             r.ID,
		Type:           domain.AlertType(r.Type),
		Severity:       domain.ThreatLevel(r.Severity),
		Title:          r.Title,
		Description:    r.Description,
		GeoUnit:        r.GeoUnit,
		RelatedItemIDs: []string(r.RelatedItemIDs),
		CreatedAt:      r.CreatedAt.UTC(),
		IsResolved:     r.IsResolved,
		IsAcknowledged: r.IsAcknowledged,
	}
	if r.ResolvedAt.Valid {
		at := r.ResolvedAt.Time.UTC()
		a.ResolvedAt = &at
	}
	if r.AcknowledgedAt.Valid {
		at := r.AcknowledgedAt.Time.UTC()
		a.AcknowledgedAt = &at
	}
	return a
}

type configRow struct {
	ID               string       `db:"id"`
	Name             string       `db:"name"`
	Keywords         stringList   `db:"keywords"`
	ExcludeKeywords  stringList   `db:"exclude_keywords"`
	GeoUnits         stringList   `db:"geo_units"`
	FrequencyMinutes int          `db:"frequency_minutes"`
	MaxItemsPerRun   int          `db:"max_items_per_run"`
	RelevanceFloor   float64      `db:"relevance_floor"`
	AnalysisFloor    float64      `db:"analysis_floor"`
	LastExecuted     sql.NullTime `db:"last_executed"`
	NextExecution    sql.NullTime `db:"next_execution"`
	IsActive         bool         `db:"is_active"`
}

func (r configRow) toDomain() domain.MonitoringConfig {
	cfg := domain.MonitoringConfig{
		ID:               r.ID,
		Name:             r.Name,
		Keywords:         []string(r.Keywords),
		ExcludeKeywords:  []string(r.ExcludeKeywords),
		GeoUnits:         []string(r.GeoUnits),
		FrequencyMinutes: r.FrequencyMinutes,
		MaxItemsPerRun:   r.MaxItemsPerRun,
		RelevanceFloor:   r.RelevanceFloor,
		AnalysisFloor:    r.AnalysisFloor,
		IsActive:         r.IsActive,
	}
	if r.LastExecuted.Valid {
		cfg.LastExecuted = r.LastExecuted.Time.UTC()
	}
	if r.NextExecution.Valid {
		cfg.NextExecution = r.NextExecution.Time.UTC()
	}
	return cfg
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
