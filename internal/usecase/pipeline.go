package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ElectionWatch/internal/alerting"
	"ElectionWatch/internal/classify"
	"ElectionWatch/internal/dedup"
	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/geo"
	"ElectionWatch/internal/normalize"
	"ElectionWatch/internal/ports"
	"ElectionWatch/internal/relevance"
	"ElectionWatch/internal/scanner"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source          ports.ItemSource
	Sources         *scanner.SourceRegistry
	Repository      ports.Repository
	Classifier      *classify.Service
	Geo             *geo.Resolver
	Taxonomy        relevance.Taxonomy
	Alerts          *alerting.Engine
	Notifiers       []ports.Notifier
	Lock            ports.RunLock
	LockTTL         time.Duration
	ClassifyWorkers int
	Clock           func() time.Time
	Logger          *slog.Logger
}

// Pipeline implements one monitoring run: fetch, normalise, dedupe, score,
// resolve geography, store, classify, alert.
type Pipeline struct {
	source          ports.ItemSource
	sources         *scanner.SourceRegistry
	repository      ports.Repository
	classifier      *classify.Service
	geo             *geo.Resolver
	taxonomy        relevance.Taxonomy
	alerts          *alerting.Engine
	notifiers       []ports.Notifier
	lock            ports.RunLock
	lockTTL         time.Duration
	classifyWorkers int
	now             func() time.Time
	logger          *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	workers := deps.ClassifyWorkers
	if workers < 1 {
		workers = 1
	}
	ttl := deps.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	sources := deps.Sources
	if sources == nil {
		sources = scanner.NewSourceRegistry(nil)
	}
	return &Pipeline{
		source:          deps.Source,
		sources:         sources,
		repository:      deps.Repository,
		classifier:      deps.Classifier,
		geo:             deps.Geo,
		taxonomy:        deps.Taxonomy,
		alerts:          deps.Alerts,
		notifiers:       deps.Notifiers,
		lock:            deps.Lock,
		lockTTL:         ttl,
		classifyWorkers: workers,
		now:             clock,
		logger:          logger,
		inFlight:        map[string]bool{},
	}
}

// RunOnce executes the config if it is due. Skips return a summary with
// RunSkipped and change nothing. The returned error is reserved for runs
// that could not start at all (unknown config, unreadable store).
func (p *Pipeline) RunOnce(ctx context.Context, configID string) (domain.RunSummary, error) {
	started := p.now().UTC()
	summary := domain.RunSummary{ConfigID: configID, StartedAt: started}

	if !p.enter(configID) {
		return p.skip(summary, domain.SkipInFlight), nil
	}
	defer p.leave(configID)

	configs, err := p.repository.GetConfigs(ctx, configID)
	if err != nil {
		summary.Status = domain.RunFailed
		summary.FinishedAt = p.now().UTC()
		return summary, fmt.Errorf("load config %s: %w", configID, err)
	}
	if len(configs) == 0 {
		summary.Status = domain.RunFailed
		summary.FinishedAt = p.now().UTC()
		return summary, fmt.Errorf("load config %s: %w", configID, domain.ErrConfigNotFound)
	}
	cfg := configs[0]

	if !cfg.IsActive {
		return p.skip(summary, domain.SkipInactive), nil
	}
	if !cfg.Due(started) {
		return p.skip(summary, domain.SkipNotDue), nil
	}

	if p.lock != nil {
		release, ok, err := p.lock.TryAcquire(ctx, configID, p.lockTTL)
		switch {
		case err != nil:
			p.logger.Warn("run lock unavailable, continuing with local guard", "config", configID, "error", err)
		case !ok:
			return p.skip(summary, domain.SkipInFlight), nil
		default:
			defer release()
		}
	}

	log := p.logger.With("config", configID)
	log.Info("run started")

	cancelled := p.execute(ctx, cfg, &summary, log)

	p.finish(ctx, cfg, &summary, cancelled, log)
	return summary, nil
}

func (p *Pipeline) enter(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight[id] {
		return false
	}
	p.inFlight[id] = true
	return true
}

func (p *Pipeline) leave(id string) {
	p.mu.Lock()
	delete(p.inFlight, id)
	p.mu.Unlock()
}

func (p *Pipeline) skip(summary domain.RunSummary, reason string) domain.RunSummary {
	summary.Status = domain.RunSkipped
	summary.SkipReason = reason
	summary.FinishedAt = p.now().UTC()
	p.logger.Debug("run skipped", "config", summary.ConfigID, "reason", reason)
	return summary
}

// execute runs the stages and fills summary counts. It reports whether the
// run was cut short by cancellation. Cancellation is only observed while
// sources are fetched; once items are stored, classification and alerting
// finish so no stored item is left without its analysis.
func (p *Pipeline) execute(ctx context.Context, cfg domain.MonitoringConfig, summary *domain.RunSummary, log *slog.Logger) bool {
	now := p.now().UTC()

	fetched := p.source.FetchAll(ctx, p.sources.Active(), cfg.Keywords)
	summary.Fetched = len(fetched.Items)
	for _, e := range fetched.Errors {
		summary.AddError(e)
	}
	if fetched.Cancelled || ctx.Err() != nil {
		return true
	}

	items := normalize.Items(fetched.Items, now)
	items = p.capItems(items, cfg.MaxItemsPerRun)

	candidates := make([]dedup.Candidate, 0, len(items))
	for _, item := range items {
		src, _ := p.sources.Lookup(item.SourceID)
		candidates = append(candidates, dedup.Candidate{
			Item:        item,
			Priority:    src.Priority,
			TopicWeight: src.TopicWeight,
		})
	}
	candidates = dedup.Dedupe(candidates)

	scorer := relevance.NewScorer(p.taxonomy, cfg)
	var retained []domain.ProcessedItem
	var analyze []bool
	for _, c := range candidates {
		if c.Duplicate {
			summary.Duplicates++
			continue
		}
		res := scorer.Score(c.Item, c.TopicWeight)
		if res.Rejected {
			summary.Rejected++
			continue
		}
		retained = append(retained, p.buildItem(c, res, now))
		analyze = append(analyze, res.Analyze)
	}
	summary.Processed = len(retained)

	work := context.WithoutCancel(ctx)
	newItems, toClassify := p.store(work, retained, analyze, summary, log)
	p.classify(work, newItems, toClassify, summary, log)
	p.raiseAlerts(work, newItems, summary, now, log)
	return false
}

func (p *Pipeline) buildItem(c dedup.Candidate, res relevance.Result, now time.Time) domain.ProcessedItem {
	item := domain.ProcessedItem{
		Fingerprint:     c.Fingerprint,
		ExternalID:      c.Item.ExternalID,
		Title:           c.Item.Title,
		Body:            c.Item.Body,
		URL:             c.Item.URL,
		Source:          c.Item.SourceID,
		PublishedAt:     c.Item.PublishedAt,
		FetchedAt:       c.Item.FetchedAt,
		RelevanceScore:  res.Score,
		MatchedKeywords: res.MatchedKeywords,
		Engagement:      c.Item.Engagement,
		Occurrences:     c.Occurrences,
		CreatedAt:       now,
	}
	if p.geo == nil {
		return item
	}
	if unit, ok := p.geo.Resolve(c.Item.Title + "\n" + c.Item.Body); ok {
		item.GeoUnit = unit.Name
		item.Locality = unit.Locality
	}
	return item
}

// capItems keeps at most max items, preferring higher priority sources and
// then the most recent items. Zero means unlimited.
func (p *Pipeline) capItems(items []domain.RawItem, max int) []domain.RawItem {
	if max <= 0 || len(items) <= max {
		return items
	}
	ordered := make([]domain.RawItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, _ := p.sources.Lookup(ordered[i].SourceID)
		pj, _ := p.sources.Lookup(ordered[j].SourceID)
		if pi.Priority != pj.Priority {
			return pi.Priority > pj.Priority
		}
		return ordered[i].PublishedAt.After(ordered[j].PublishedAt)
	})
	return ordered[:max]
}

// store upserts retained items one by one. Only newly stored items move on
// to classification and alerting so a repeated run changes nothing.
func (p *Pipeline) store(ctx context.Context, retained []domain.ProcessedItem, analyze []bool, summary *domain.RunSummary, log *slog.Logger) ([]domain.ProcessedItem, []int) {
	var newItems []domain.ProcessedItem
	var toClassify []int
	failures := 0

	for i, item := range retained {
		res, err := p.repository.UpsertItem(ctx, item)
		if err != nil {
			failures++
			summary.Failed++
			summary.AddError(domain.NewSourceError(item.Source, err))
			log.Warn("store item failed", "source", item.Source, "error", err)
			continue
		}
		if !res.WasNew {
			continue
		}
		item.ID = res.ID
		summary.Stored++
		if analyze[i] {
			toClassify = append(toClassify, len(newItems))
		}
		newItems = append(newItems, item)
	}

	if len(retained) > 0 && failures == len(retained) {
		summary.Status = domain.RunFailed
	}
	return newItems, toClassify
}

// classify runs the bounded classification pool over the selected items and
// persists the analyses. Items whose classification fails stay stored
// without analysis.
func (p *Pipeline) classify(ctx context.Context, items []domain.ProcessedItem, indexes []int, summary *domain.RunSummary, log *slog.Logger) {
	if p.classifier == nil || len(indexes) == 0 {
		return
	}

	session := p.classifier.NewSession()
	results := make([]*domain.SentimentAnalysis, len(items))

	var g errgroup.Group
	g.SetLimit(p.classifyWorkers)
	for _, idx := range indexes {
		g.Go(func() error {
			analysis, err := session.Classify(ctx, items[idx])
			if err != nil {
				log.Warn("item left unclassified", "item", items[idx].ID, "error", err)
				return nil
			}
			results[idx] = &analysis
			return nil
		})
	}
	_ = g.Wait()

	for _, idx := range indexes {
		analysis := results[idx]
		if analysis == nil {
			continue
		}
		if err := p.repository.InsertAnalysis(ctx, *analysis); err != nil {
			summary.Failed++
			summary.AddError(domain.NewSourceError(items[idx].Source, err))
			log.Warn("store analysis failed", "item", items[idx].ID, "error", err)
			continue
		}
		items[idx].Analysis = analysis
		summary.Classified++
		if analysis.IsFallback() {
			summary.Fallbacks++
		}
	}

	if session.Degraded() {
		log.Warn("run finished on the fallback classifier", "fallbacks", summary.Fallbacks)
	}
}

func (p *Pipeline) raiseAlerts(ctx context.Context, newItems []domain.ProcessedItem, summary *domain.RunSummary, now time.Time, log *slog.Logger) {
	if p.alerts == nil || len(newItems) == 0 {
		return
	}

	since := now.Add(-2 * p.alerts.Window())
	seen := map[string]bool{}
	var recent []domain.ProcessedItem
	for _, item := range newItems {
		if item.Analysis == nil || item.GeoUnit == "" || seen[item.GeoUnit] {
			continue
		}
		seen[item.GeoUnit] = true
		window, err := p.repository.GetRecentItems(ctx, item.GeoUnit, since)
		if err != nil {
			summary.AddError(domain.NewSourceError("repository", err))
			log.Warn("load recent window failed", "geo", item.GeoUnit, "error", err)
			continue
		}
		recent = append(recent, window...)
	}

	for _, alert := range p.alerts.Evaluate(newItems, recent, now) {
		if err := p.repository.InsertAlert(ctx, alert); err != nil {
			summary.Failed++
			summary.AddError(domain.NewSourceError("repository", err))
			log.Error("store alert failed", "alert", alert.Title, "error", err)
			continue
		}
		summary.Alerts++
		log.Info("alert raised", "type", alert.Type, "severity", alert.Severity, "geo", alert.GeoUnit)
		p.notify(ctx, alert, log)
	}
}

func (p *Pipeline) notify(ctx context.Context, alert domain.Alert, log *slog.Logger) {
	for _, n := range p.notifiers {
		if err := n.PublishAlert(ctx, alert); err != nil {
			log.Warn("alert notification failed", "alert", alert.ID, "error", err)
		}
	}
}

// finish settles the status and always advances the schedule, even for
// failed or cancelled runs, so a broken config cannot spin.
func (p *Pipeline) finish(ctx context.Context, cfg domain.MonitoringConfig, summary *domain.RunSummary, cancelled bool, log *slog.Logger) {
	switch {
	case cancelled:
		summary.Status = domain.RunCancelled
	case summary.Status == domain.RunFailed:
	case len(summary.Errors) > 0:
		summary.Status = domain.RunPartial
	default:
		summary.Status = domain.RunCompleted
	}

	finished := p.now().UTC()
	last, next := cfg.Advance(finished)
	if err := p.repository.UpdateConfigExecution(context.WithoutCancel(ctx), cfg.ID, last, next); err != nil {
		summary.AddError(domain.NewSourceError("repository", err))
		if summary.Status == domain.RunCompleted {
			summary.Status = domain.RunPartial
		}
		log.Error("advance schedule failed", "error", err)
	}
	summary.FinishedAt = finished

	level := slog.LevelInfo
	if summary.Status == domain.RunFailed {
		level = slog.LevelError
	}
	log.Log(ctx, level, "run finished",
		"status", summary.Status,
		"fetched", summary.Fetched,
		"processed", summary.Processed,
		"duplicates", summary.Duplicates,
		"rejected", summary.Rejected,
		"stored", summary.Stored,
		"classified", summary.Classified,
		"fallbacks", summary.Fallbacks,
		"alerts", summary.Alerts,
		"failed", summary.Failed,
		"errors", len(summary.Errors),
		"duration", finished.Sub(summary.StartedAt),
	)
}
