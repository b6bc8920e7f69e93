package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/ports"
)

const recentItemsLimit = 2000

// Repository persists items, analyses, alerts and monitoring configs in
// Postgres or SQLite.
type Repository struct {
	db    *sqlx.DB
	sb    sq.StatementBuilderType
	newID func() string
}

var (
	_ ports.Repository      = (*Repository)(nil)
	_ ports.AdminRepository = (*Repository)(nil)
)

// NewRepository wires the query builder for the given driver.
func NewRepository(db *sqlx.DB, driver string) *Repository {
	placeholder := sq.Question
	if driver == DriverPostgres {
		placeholder = sq.Dollar
	}
	return &Repository{
		db:    db,
		sb:    sq.StatementBuilder.PlaceholderFormat(placeholder),
		newID: uuid.NewString,
	}
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, op, err)
}

// UpsertItem inserts the item unless its fingerprint or (source, external id)
// already exists, in which case the stored id is returned with WasNew false.
func (r *Repository) UpsertItem(ctx context.Context, item domain.ProcessedItem) (ports.UpsertResult, error) {
	id := item.ID
	if id == "" {
		id = r.newID()
	}
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var likes, shares, replies int
	if item.Engagement != nil {
		likes, shares, replies = item.Engagement.Likes, item.Engagement.Shares, item.Engagement.Replies
	}
	occurrences := item.Occurrences
	if occurrences < 1 {
		occurrences = 1
	}

	query, args, err := r.sb.Insert("processed_items").
		Columns(
			"id", "fingerprint", "source_id", "external_id", "title", "body", "url",
			"published_at", "fetched_at", "relevance_score", "matched_keywords",
			"geo_unit", "locality", "has_engagement", "likes", "shares", "replies",
			"occurrences", "is_duplicate", "created_at",
		).
		Values(
			id, item.Fingerprint, item.Source, item.ExternalID, item.Title, item.Body, item.URL,
			item.PublishedAt.UTC(), item.FetchedAt.UTC(), item.RelevanceScore, stringList(item.MatchedKeywords),
			item.GeoUnit, item.Locality, item.Engagement != nil, likes, shares, replies,
			occurrences, item.IsDuplicate, createdAt.UTC(),
		).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return ports.UpsertResult{}, persistErr("build upsert", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return ports.UpsertResult{}, persistErr("upsert item", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ports.UpsertResult{}, persistErr("rows affected", err)
	}
	if affected == 1 {
		return ports.UpsertResult{ID: id, WasNew: true}, nil
	}

	existing, err := r.findItemID(ctx, item)
	if err != nil {
		return ports.UpsertResult{}, err
	}
	return ports.UpsertResult{ID: existing, WasNew: false}, nil
}

func (r *Repository) findItemID(ctx context.Context, item domain.ProcessedItem) (string, error) {
	match := sq.Or{sq.Eq{"fingerprint": item.Fingerprint}}
	if item.ExternalID != "" {
		match = append(match, sq.Eq{"source_id": item.Source, "external_id": item.ExternalID})
	}

	query, args, err := r.sb.Select("id").From("processed_items").Where(match).Limit(1).ToSql()
	if err != nil {
		return "", persistErr("build lookup", err)
	}

	var id string
	if err := r.db.GetContext(ctx, &id, query, args...); err != nil {
		return "", persistErr("lookup existing item", err)
	}
	return id, nil
}

// InsertAnalysis stores the analysis once per item; repeats are ignored.
func (r *Repository) InsertAnalysis(ctx context.Context, a domain.SentimentAnalysis) error {
	if a.ItemID == "" {
		return persistErr("insert analysis", errors.New("missing item id"))
	}
	analyzedAt := a.AnalyzedAt
	if analyzedAt.IsZero() {
		analyzedAt = time.Now()
	}

	query, args, err := r.sb.Insert("sentiment_analyses").
		Columns("item_id", "sentiment", "score", "confidence", "threat_level",
			"risk_factors", "topics", "entities", "method", "analyzed_at").
		Values(a.ItemID, string(a.Sentiment), a.Score, a.Confidence, string(a.ThreatLevel),
			stringList(a.RiskFactors), stringList(a.Topics), stringList(a.Entities), a.Method, analyzedAt.UTC()).
		Suffix("ON CONFLICT (item_id) DO NOTHING").
		ToSql()
	if err != nil {
		return persistErr("build analysis insert", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return persistErr("insert analysis", err)
	}
	return nil
}

// InsertAlert always stores a new alert row.
func (r *Repository) InsertAlert(ctx context.Context, a domain.Alert) error {
	if a.ID == "" {
		a.ID = r.newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	query, args, err := r.sb.Insert("alerts").
		Columns("id", "type", "severity", "title", "description", "geo_unit",
			"related_item_ids", "created_at", "is_resolved", "is_acknowledged").
		Values(a.ID, string(a.Type), string(a.Severity), a.Title, a.Description, a.GeoUnit,
			stringList(a.RelatedItemIDs), a.CreatedAt.UTC(), a.IsResolved, a.IsAcknowledged).
		ToSql()
	if err != nil {
		return persistErr("build alert insert", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return persistErr("insert alert", err)
	}
	return nil
}

// GetRecentItems returns items fetched at or after since, newest first, with
// their analysis attached when one exists. An empty geoUnit matches all.
func (r *Repository) GetRecentItems(ctx context.Context, geoUnit string, since time.Time) ([]domain.ProcessedItem, error) {
	q := r.sb.Select(
		"p.id", "p.fingerprint", "p.source_id", "p.external_id", "p.title", "p.body", "p.url",
		"p.published_at", "p.fetched_at", "p.relevance_score", "p.matched_keywords",
		"p.geo_unit", "p.locality", "p.has_engagement", "p.likes", "p.shares", "p.replies",
		"p.occurrences", "p.is_duplicate", "p.created_at",
		"a.sentiment AS a_sentiment", "a.score AS a_score", "a.confidence AS a_confidence",
		"a.threat_level AS a_threat_level", "a.risk_factors AS a_risk_factors",
		"a.topics AS a_topics", "a.entities AS a_entities", "a.method AS a_method",
		"a.analyzed_at AS a_analyzed_at",
	).
		From("processed_items p").
		LeftJoin("sentiment_analyses a ON a.item_id = p.id").
		Where(sq.GtOrEq{"p.fetched_at": since.UTC()}).
		OrderBy("p.fetched_at DESC").
		Limit(recentItemsLimit)
	if geoUnit != "" {
		q = q.Where(sq.Eq{"p.geo_unit": geoUnit})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, persistErr("build recent items query", err)
	}

	var rows []itemRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, persistErr("select recent items", err)
	}

	items := make([]domain.ProcessedItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toDomain())
	}
	return items, nil
}

var configColumns = []string{
	"id", "name", "keywords", "exclude_keywords", "geo_units", "frequency_minutes",
	"max_items_per_run", "relevance_floor", "analysis_floor", "last_executed",
	"next_execution", "is_active",
}

// GetConfigs returns one config when id is set, otherwise all of them.
func (r *Repository) GetConfigs(ctx context.Context, id string) ([]domain.MonitoringConfig, error) {
	q := r.sb.Select(configColumns...).From("monitoring_configs").OrderBy("id")
	if id != "" {
		q = q.Where(sq.Eq{"id": id})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, persistErr("build configs query", err)
	}

	var rows []configRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, persistErr("select configs", err)
	}
	if id != "" && len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, id)
	}

	configs := make([]domain.MonitoringConfig, 0, len(rows))
	for _, row := range rows {
		configs = append(configs, row.toDomain())
	}
	return configs, nil
}

// UpdateConfigExecution records a finished run.
func (r *Repository) UpdateConfigExecution(ctx context.Context, id string, lastExecuted, nextExecution time.Time) error {
	query, args, err := r.sb.Update("monitoring_configs").
		Set("last_executed", lastExecuted.UTC()).
		Set("next_execution", nextExecution.UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return persistErr("build config update", err)
	}
	return r.execOne(ctx, query, args, domain.ErrConfigNotFound, id)
}

// UpsertConfig writes the policy fields of cfg. Execution timestamps of an
// existing row are left alone so restarts do not reset the schedule.
func (r *Repository) UpsertConfig(ctx context.Context, cfg domain.MonitoringConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	query, args, err := r.sb.Insert("monitoring_configs").
		Columns(configColumns...).
		Values(cfg.ID, cfg.Name, stringList(cfg.Keywords), stringList(cfg.ExcludeKeywords),
			stringList(cfg.GeoUnits), cfg.FrequencyMinutes, cfg.MaxItemsPerRun,
			cfg.RelevanceFloor, cfg.AnalysisFloor, nullTime(cfg.LastExecuted),
			nullTime(cfg.NextExecution), cfg.IsActive).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			keywords = excluded.keywords,
			exclude_keywords = excluded.exclude_keywords,
			geo_units = excluded.geo_units,
			frequency_minutes = excluded.frequency_minutes,
			max_items_per_run = excluded.max_items_per_run,
			relevance_floor = excluded.relevance_floor,
			analysis_floor = excluded.analysis_floor,
			is_active = excluded.is_active`).
		ToSql()
	if err != nil {
		return persistErr("build config upsert", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return persistErr("upsert config", err)
	}
	return nil
}

// ListOpenAlerts returns unresolved alerts, newest first.
func (r *Repository) ListOpenAlerts(ctx context.Context, limit int) ([]domain.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	query, args, err := r.sb.Select(
		"id", "type", "severity", "title", "description", "geo_unit", "related_item_ids",
		"created_at", "is_resolved", "is_acknowledged", "resolved_at", "acknowledged_at",
	).
		From("alerts").
		Where(sq.Eq{"is_resolved": false}).
		OrderBy("created_at DESC", "id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, persistErr("build alerts query", err)
	}

	var rows []alertRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, persistErr("select alerts", err)
	}

	alerts := make([]domain.Alert, 0, len(rows))
	for _, row := range rows {
		alerts = append(alerts, row.toDomain())
	}
	return alerts, nil
}

// ResolveAlert is the manual operator action that closes an alert.
func (r *Repository) ResolveAlert(ctx context.Context, id string, at time.Time) error {
	query, args, err := r.sb.Update("alerts").
		Set("is_resolved", true).
		Set("resolved_at", at.UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return persistErr("build resolve", err)
	}
	return r.execOne(ctx, query, args, domain.ErrAlertNotFound, id)
}

func (r *Repository) AcknowledgeAlert(ctx context.Context, id string, at time.Time) error {
	query, args, err := r.sb.Update("alerts").
		Set("is_acknowledged", true).
		Set("acknowledged_at", at.UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return persistErr("build acknowledge", err)
	}
	return r.execOne(ctx, query, args, domain.ErrAlertNotFound, id)
}

func (r *Repository) execOne(ctx context.Context, query string, args []any, notFound error, id string) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return persistErr("update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistErr("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}

// Ping reports whether the store is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return persistErr("ping", err)
	}
	return nil
}
