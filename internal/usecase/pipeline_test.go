package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ElectionWatch/internal/alerting"
	"ElectionWatch/internal/classify"
	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/geo"
	"ElectionWatch/internal/logging"
	"ElectionWatch/internal/ports"
	"ElectionWatch/internal/relevance"
	"ElectionWatch/internal/scanner"
)

var baseTime = time.Date(2025, 8, 20, 14, 0, 0, 0, time.UTC)

type fakeSource struct {
	result  ports.FetchResult
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (f *fakeSource) FetchAll(ctx context.Context, _ []domain.Source, _ []string) ports.FetchResult {
	f.calls.Add(1)
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	if ctx.Err() != nil {
		return ports.FetchResult{Cancelled: true}
	}
	return f.result
}

type fakeRepo struct {
	mu         sync.Mutex
	items      map[string]domain.ProcessedItem
	analyses   map[string]domain.SentimentAnalysis
	alerts     []domain.Alert
	configs    map[string]domain.MonitoringConfig
	updates    int
	failUpsert bool
	noConfigs  bool
}

func newFakeRepo(cfgs ...domain.MonitoringConfig) *fakeRepo {
	r := &fakeRepo{
		items:    map[string]domain.ProcessedItem{},
		analyses: map[string]domain.SentimentAnalysis{},
		configs:  map[string]domain.MonitoringConfig{},
	}
	for _, c := range cfgs {
		r.configs[c.ID] = c
	}
	return r
}

func (r *fakeRepo) UpsertItem(_ context.Context, item domain.ProcessedItem) (ports.UpsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpsert {
		return ports.UpsertResult{}, fmt.Errorf("%w: connection refused", domain.ErrPersistence)
	}
	if existing, ok := r.items[item.Fingerprint]; ok {
		return ports.UpsertResult{ID: existing.ID}, nil
	}
	item.ID = fmt.Sprintf("item-%d", len(r.items)+1)
	r.items[item.Fingerprint] = item
	return ports.UpsertResult{ID: item.ID, WasNew: true}, nil
}

func (r *fakeRepo) InsertAnalysis(_ context.Context, a domain.SentimentAnalysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.analyses[a.ItemID]; !ok {
		r.analyses[a.ItemID] = a
	}
	return nil
}

func (r *fakeRepo) InsertAlert(_ context.Context, a domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *fakeRepo) GetRecentItems(_ context.Context, geoUnit string, since time.Time) ([]domain.ProcessedItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ProcessedItem
	for _, item := range r.items {
		if item.GeoUnit != geoUnit || item.FetchedAt.Before(since) {
			continue
		}
		if a, ok := r.analyses[item.ID]; ok {
			item.Analysis = &a
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *fakeRepo) GetConfigs(_ context.Context, id string) ([]domain.MonitoringConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.noConfigs {
		return nil, nil
	}
	if id == "" {
		var out []domain.MonitoringConfig
		for _, c := range r.configs {
			out = append(out, c)
		}
		return out, nil
	}
	c, ok := r.configs[id]
	if !ok {
		return nil, domain.ErrConfigNotFound
	}
	return []domain.MonitoringConfig{c}, nil
}

func (r *fakeRepo) UpdateConfigExecution(_ context.Context, id string, last, next time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.configs[id]
	c.LastExecuted, c.NextExecution = last, next
	r.configs[id] = c
	r.updates++
	return nil
}

func (r *fakeRepo) config(id string) domain.MonitoringConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.configs[id]
}

type fakeLock struct{ ok bool }

func (l fakeLock) TryAcquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, l.ok, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (n *recordingNotifier) PublishAlert(_ context.Context, a domain.Alert) error {
	n.mu.Lock()
	n.alerts = append(n.alerts, a)
	n.mu.Unlock()
	return nil
}

type rateLimitedPrimary struct{ calls atomic.Int32 }

func (p *rateLimitedPrimary) Name() string { return "chatgpt" }

func (p *rateLimitedPrimary) Classify(context.Context, string, domain.ClassifyContext) (domain.SentimentAnalysis, error) {
	p.calls.Add(1)
	return domain.SentimentAnalysis{}, domain.ErrClassifierRateLimited
}

type failingClassifier struct{}

func (failingClassifier) Name() string { return "broken" }

func (failingClassifier) Classify(context.Context, string, domain.ClassifyContext) (domain.SentimentAnalysis, error) {
	return domain.SentimentAnalysis{}, fmt.Errorf("%w: upstream unavailable", domain.ErrClassifier)
}

// cancellingPrimary cancels the run context on its first call and still
// answers, like a shutdown signal arriving mid-classification.
type cancellingPrimary struct {
	cancel context.CancelFunc
	calls  atomic.Int32
}

func (c *cancellingPrimary) Name() string { return "chatgpt" }

func (c *cancellingPrimary) Classify(context.Context, string, domain.ClassifyContext) (domain.SentimentAnalysis, error) {
	c.calls.Add(1)
	c.cancel()
	return domain.SentimentAnalysis{
		Sentiment:   domain.SentimentPositive,
		Score:       0.5,
		Confidence:  0.9,
		ThreatLevel: domain.ThreatLow,
	}, nil
}

func testConfig() domain.MonitoringConfig {
	return domain.MonitoringConfig{
		ID:               "jamaica-general",
		Name:             "Jamaica general election",
		Keywords:         []string{"constituency"},
		ExcludeKeywords:  []string{"KFC", "chicken"},
		FrequencyMinutes: 30,
		RelevanceFloor:   5,
		AnalysisFloor:    6,
		IsActive:         true,
	}
}

func testSources() []domain.Source {
	return []domain.Source{
		{ID: "gleaner", Kind: domain.SourceRSS, IsActive: true, Priority: 5, TopicWeight: 1},
		{ID: "observer", Kind: domain.SourceRSS, IsActive: true, Priority: 3, TopicWeight: 1},
		{ID: "blog", Kind: domain.SourceHTML, IsActive: true, Priority: 1},
	}
}

func scenarioItems() []domain.RawItem {
	return []domain.RawItem{
		{SourceID: "gleaner", ExternalID: "g-1", Title: "Andrew Holness announces new JLP policy for St. Andrew", PublishedAt: baseTime.Add(-time.Hour)},
		{SourceID: "gleaner", ExternalID: "g-2", Title: "Shooting at PNP rally in Spanish Town as violence flares in St. Catherine", PublishedAt: baseTime.Add(-2 * time.Hour)},
		{SourceID: "observer", ExternalID: "o-1", Title: "Andrew Holness announces new JLP policy for St. Andrew", PublishedAt: baseTime.Add(-time.Hour)},
		{SourceID: "blog", ExternalID: "b-1", Title: "KFC opens new branch in Kingston", PublishedAt: baseTime},
	}
}

type harness struct {
	pipeline *Pipeline
	repo     *fakeRepo
	source   *fakeSource
	notifier *recordingNotifier
	clock    *time.Time
}

func newHarness(t *testing.T, items []domain.RawItem, primary ports.Classifier, lock ports.RunLock) *harness {
	t.Helper()

	tax := relevance.Taxonomy{
		ElectionKeywords: []string{"election", "JLP", "PNP", "ballot"},
		Entities:         []string{"Andrew Holness", "Mark Golding"},
		SecondaryTerms:   []string{"policy", "minister"},
		CountryMarkers:   []string{"Jamaica"},
		PlaceNames:       []string{"Kingston", "St. Andrew", "St. Catherine", "Spanish Town"},
	}
	resolver := geo.NewResolver(
		[]string{"Kingston", "St. Andrew", "St. Catherine"},
		[]geo.Locality{{Name: "Spanish Town", Region: "St. Catherine"}},
		nil,
	)
	logger := logging.Discard()
	svc := classify.NewService(primary, classify.NewHeuristic(resolver.PlaceNames(), tax.Entities), nil, time.Second, logger)

	now := baseTime
	h := &harness{
		repo:     newFakeRepo(testConfig()),
		source:   &fakeSource{result: ports.FetchResult{Items: items}},
		notifier: &recordingNotifier{},
		clock:    &now,
	}
	h.pipeline = NewPipeline(PipelineDeps{
		Source:          h.source,
		Sources:         scanner.NewSourceRegistry(testSources()),
		Repository:      h.repo,
		Classifier:      svc,
		Geo:             resolver,
		Taxonomy:        tax,
		Alerts:          alerting.NewEngine(alerting.DefaultConfig()),
		Notifiers:       []ports.Notifier{h.notifier},
		Lock:            lock,
		ClassifyWorkers: 2,
		Clock:           func() time.Time { return *h.clock },
		Logger:          logger,
	})
	return h
}

func TestRunOnceScenario(t *testing.T) {
	t.Parallel()

	h := newHarness(t, scenarioItems(), nil, nil)
	summary, err := h.pipeline.RunOnce(context.Background(), "jamaica-general")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if summary.Status != domain.RunCompleted {
		t.Fatalf("expected completed, got %s (%v)", summary.Status, summary.ErrorDigest)
	}
	if summary.Fetched != 4 || summary.Duplicates != 1 || summary.Rejected != 1 {
		t.Fatalf("unexpected intake counts: %+v", summary)
	}
	if summary.Processed != 2 || summary.Stored != 2 || summary.Classified != 2 || summary.Fallbacks != 2 {
		t.Fatalf("unexpected processing counts: %+v", summary)
	}
	if len(h.repo.items) != 2 || len(h.repo.analyses) != 2 {
		t.Fatalf("expected 2 items and 2 analyses, got %d and %d", len(h.repo.items), len(h.repo.analyses))
	}

	var shooting domain.ProcessedItem
	for _, item := range h.repo.items {
		if item.ExternalID == "g-2" {
			shooting = item
		}
		if item.ExternalID == "g-1" && item.Occurrences != 2 {
			t.Fatalf("canonical item must count its duplicate, got %d", item.Occurrences)
		}
	}
	if shooting.GeoUnit != "St. Catherine" {
		t.Fatalf("expected St. Catherine, got %q", shooting.GeoUnit)
	}

	if summary.Alerts != 1 || len(h.repo.alerts) != 1 {
		t.Fatalf("expected one threat alert, got %d", len(h.repo.alerts))
	}
	alert := h.repo.alerts[0]
	if alert.Type != domain.AlertThreat || alert.Severity != domain.ThreatCritical {
		t.Fatalf("unexpected alert %+v", alert)
	}
	if len(alert.RelatedItemIDs) != 1 || alert.RelatedItemIDs[0] != shooting.ID {
		t.Fatalf("alert must reference the stored item, got %v", alert.RelatedItemIDs)
	}
	if len(h.notifier.alerts) != 1 {
		t.Fatalf("expected alert to be published once, got %d", len(h.notifier.alerts))
	}

	cfg := h.repo.config("jamaica-general")
	if !cfg.LastExecuted.Equal(baseTime) || !cfg.NextExecution.Equal(baseTime.Add(30*time.Minute)) {
		t.Fatalf("schedule not advanced: last=%s next=%s", cfg.LastExecuted, cfg.NextExecution)
	}
}

func TestRunOnceRepeatedRunAddsNothing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, scenarioItems(), nil, nil)
	if _, err := h.pipeline.RunOnce(context.Background(), "jamaica-general"); err != nil {
		t.Fatalf("first run: %v", err)
	}

	*h.clock = baseTime.Add(31 * time.Minute)
	summary, err := h.pipeline.RunOnce(context.Background(), "jamaica-general")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Status != domain.RunCompleted {
		t.Fatalf("expected completed, got %s", summary.Status)
	}
	if summary.Stored != 0 || summary.Classified != 0 || summary.Alerts != 0 {
		t.Fatalf("repeated run must not store or alert again: %+v", summary)
	}
	if len(h.repo.items) != 2 || len(h.repo.alerts) != 1 {
		t.Fatalf("store changed on repeat: items=%d alerts=%d", len(h.repo.items), len(h.repo.alerts))
	}
}

func TestRunOnceSkipsWhenNotDue(t *testing.T) {
	t.Parallel()

	h := newHarness(t, scenarioItems(), nil, nil)
	cfg := testConfig()
	cfg.NextExecution = baseTime.Add(10 * time.Minute)
	h.repo.configs[cfg.ID] = cfg

	summary, err := h.pipeline.RunOnce(context.Background(), cfg.ID)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Status != domain.RunSkipped || summary.SkipReason != domain.SkipNotDue {
		t.Fatalf("expected not-due skip, got %s/%s", summary.Status, summary.SkipReason)
	}
	if h.source.calls.Load() != 0 || h.repo.updates != 0 {
		t.Fatalf("skip must have no side effects: fetches=%d updates=%d", h.source.calls.Load(), h.repo.updates)
	}
}

func TestRunOnceSkipsInactiveConfig(t *testing.T) {
	t.Parallel()

	h := newHarness(t, scenarioItems(), nil, nil)
	cfg := testConfig()
	cfg.IsActive = false
	h.repo.configs[cfg.ID] = cfg

	summary, _ := h.pipeline.RunOnce(context.Background(), cfg.ID)
	if summary.Status != domain.RunSkipped || summary.SkipReason != domain.SkipInactive {
		t.Fatalf("expected inactive skip, got %s/%s", summary.Status, summary.SkipReason)
	}
}

func TestRunOnceUnknownConfig(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, nil, nil)
	_, err := h.pipeline.RunOnce(context.Background(), "missing")
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestRunOnceConcurrentTriggerIsNoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, scenarioItems(), nil, nil)
	h.source.started = make(chan struct{})
	h.source.release = make(chan struct{})

	done := make(chan domain.RunSummary, 1)
	go func() {
		summary, _ := h.pipeline.RunOnce(context.Background(), "jamaica-general")
		done <- summary
	}()

	<-h.source.started
	second, err := h.pipeline.RunOnce(context.Background(), "jamaica-general")
	if err != nil {
		t.Fatalf("second trigger: %v", err)
	}
	if second.Status != domain.RunSkipped || second.SkipReason != domain.SkipInFlight {
		t.Fatalf("expected in-flight skip, got %s/%s", second.Status, second.SkipReason)
	}

	close(h.source.release)
	first := <-done
	if first.Status != domain.RunCompleted {
		t.Fatalf("first run should complete, got %s", first.Status)
	}
	if h.source.calls.Load() != 1 {
		t.Fatalf("expected a single fetch, got %d", h.source.calls.Load())
	}
}

func TestRunOnceHeldRunLockSkips(t *testing.T) {
	t.Parallel()

	h := newHarness(t, scenarioItems(), nil, fakeLock{ok: false})
	summary, err := h.pipeline.RunOnce(context.Background(), "jamaica-general")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.SkipReason != domain.SkipInFlight || h.source.calls.Load() != 0 {
		t.Fatalf("held lock must skip without fetching: %+v", summary)
	}
}

func TestRunOnceSourceFailureIsPartial(t *testing.T) {
	t.Parallel()

	h := newHarness(t, scenarioItems(), nil, fakeLock{ok: true})
	h.source.result.Errors = []domain.SourceError{
		domain.NewSourceError("observer", fmt.Errorf("%w: status 503", domain.ErrSourceFetch)),
	}

	summary, err := h.pipeline.RunOnce(context.Background(), "jamaica-general")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Status != domain.RunPartial || len(summary.Errors) != 1 {
		t.Fatalf("expected partial with one error, got %s %v", summary.Status, summary.ErrorDigest)
	}
	if summary.Stored != 2 {
		t.Fatalf("healthy sources must still be stored, got %d", summary.Stored)
	}
	if h.repo.updates != 1 {
		t.Fatalf("schedule must advance on partial runs")
	}
}

func TestRunOnceRepositoryDownMarksFailedAndAdvances(t *testing.T) {
	t.Parallel()

	h := newHarness(t, scenarioItems(), nil, nil)
	h.repo.failUpsert = true

	summary, err := h.pipeline.RunOnce(context.Background(), "jamaica-general")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Status != domain.RunFailed {
		t.Fatalf("expected failed, got %s", summary.Status)
	}
	if summary.Failed != 2 || summary.Errors[0].Kind != domain.KindPersistence {
		t.Fatalf("unexpected failure accounting: %+v", summary)
	}
	if cfg := h.repo.config("jamaica-general"); cfg.NextExecution.IsZero() {
		t.Fatalf("schedule must advance even when the run failed")
	}
}

func TestRunOnceRateLimitedPrimaryFallsBack(t *testing.T) {
	t.Parallel()

	primary := &rateLimitedPrimary{}
	h := newHarness(t, scenarioItems(), primary, nil)
	h.pipeline.classifyWorkers = 1

	summary, err := h.pipeline.RunOnce(context.Background(), "jamaica-general")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Classified != 2 || summary.Fallbacks != 2 {
		t.Fatalf("every item should be classified by the fallback: %+v", summary)
	}
	if primary.calls.Load() != 1 {
		t.Fatalf("primary must not be called after a rate limit, got %d calls", primary.calls.Load())
	}
	for _, a := range h.repo.analyses {
		if a.Method != domain.MethodHeuristic || a.Confidence != classify.FallbackConfidence {
			t.Fatalf("unexpected fallback analysis %+v", a)
		}
	}
}

func TestRunOnceCapsItemsByPriority(t *testing.T) {
	t.Parallel()

	items := []domain.RawItem{
		{SourceID: "blog", ExternalID: "b-1", Title: "PNP candidate tours St. Andrew constituency", PublishedAt: baseTime},
		{SourceID: "gleaner", ExternalID: "g-1", Title: "JLP ballot count in Kingston constituency", PublishedAt: baseTime.Add(-time.Hour)},
	}
	h := newHarness(t, items, nil, nil)
	cfg := testConfig()
	cfg.MaxItemsPerRun = 1
	h.repo.configs[cfg.ID] = cfg

	summary, err := h.pipeline.RunOnce(context.Background(), cfg.ID)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Stored != 1 {
		t.Fatalf("expected one stored item, got %d", summary.Stored)
	}
	for _, item := range h.repo.items {
		if item.Source != "gleaner" {
			t.Fatalf("higher priority source must win the cap, got %s", item.Source)
		}
	}
}

func TestRunOnceCancelledRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t, scenarioItems(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := h.pipeline.RunOnce(ctx, "jamaica-general")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Status != domain.RunCancelled {
		t.Fatalf("expected cancelled, got %s", summary.Status)
	}
	if len(h.repo.items) != 0 {
		t.Fatalf("cancelled run must not store items")
	}
	if h.repo.updates != 1 {
		t.Fatalf("cancelled run still records its execution")
	}
}

func TestSchedulerRunDueRunsOnlyDueConfigs(t *testing.T) {
	t.Parallel()

	h := newHarness(t, scenarioItems(), nil, nil)
	later := testConfig()
	later.ID = "later"
	later.NextExecution = baseTime.Add(time.Hour)
	paused := testConfig()
	paused.ID = "paused"
	paused.IsActive = false
	h.repo.configs[later.ID] = later
	h.repo.configs[paused.ID] = paused

	s := NewScheduler(nil, h.pipeline, h.repo, logging.Discard())
	summaries := s.RunDue(context.Background(), baseTime)
	if len(summaries) != 1 || summaries[0].ConfigID != "jamaica-general" {
		t.Fatalf("expected only the due config to run, got %+v", summaries)
	}
}

func TestRunOnceEmptyConfigResultIsNotFound(t *testing.T) {
	t.Parallel()

	h := newHarness(t, scenarioItems(), nil, nil)
	h.repo.noConfigs = true

	summary, err := h.pipeline.RunOnce(context.Background(), "jamaica-general")
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
	if summary.Status != domain.RunFailed || h.source.calls.Load() != 0 {
		t.Fatalf("run must not start without a config: %+v", summary)
	}
}

func TestRunOnceBetweenFloorsStoredWithoutAnalysis(t *testing.T) {
	t.Parallel()

	// PNP (2) + Kingston (3) + topic weight 1 (0.5) = 5.5: above the
	// relevance floor of 5, below the analysis floor of 6.
	items := []domain.RawItem{
		{SourceID: "gleaner", ExternalID: "g-9", Title: "PNP supporters gather in Kingston", PublishedAt: baseTime},
	}
	h := newHarness(t, items, nil, nil)

	summary, err := h.pipeline.RunOnce(context.Background(), "jamaica-general")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Stored != 1 || summary.Classified != 0 {
		t.Fatalf("expected stored but unclassified item: %+v", summary)
	}
	for _, item := range h.repo.items {
		if item.RelevanceScore < 5 || item.RelevanceScore >= 6 {
			t.Fatalf("item should score between the floors, got %.1f", item.RelevanceScore)
		}
		if _, ok := h.repo.analyses[item.ID]; ok {
			t.Fatalf("item below the analysis floor must have no analysis")
		}
	}
	if len(h.repo.alerts) != 0 {
		t.Fatalf("unanalysed item must not raise alerts")
	}
}

func TestRunOnceUnclassifiableItemStoredNotAlerted(t *testing.T) {
	t.Parallel()

	items := []domain.RawItem{
		{SourceID: "gleaner", ExternalID: "g-2", Title: "Shooting at PNP rally in Spanish Town as violence flares in St. Catherine", PublishedAt: baseTime},
	}
	h := newHarness(t, items, nil, nil)
	h.pipeline.classifier = classify.NewService(failingClassifier{}, failingClassifier{}, nil, time.Second, logging.Discard())

	summary, err := h.pipeline.RunOnce(context.Background(), "jamaica-general")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Status != domain.RunCompleted {
		t.Fatalf("classification failure is not a run failure, got %s", summary.Status)
	}
	if summary.Stored != 1 || summary.Classified != 0 || len(h.repo.analyses) != 0 {
		t.Fatalf("item must be stored without analysis: %+v", summary)
	}
	if summary.Alerts != 0 || len(h.repo.alerts) != 0 || len(h.notifier.alerts) != 0 {
		t.Fatalf("unclassified item must not raise alerts, got %d", len(h.repo.alerts))
	}
}

func TestRunOnceCancelAfterFetchStillClassifiesStoredItems(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	primary := &cancellingPrimary{cancel: cancel}
	h := newHarness(t, scenarioItems(), primary, nil)
	h.pipeline.classifyWorkers = 1

	summary, err := h.pipeline.RunOnce(ctx, "jamaica-general")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if ctx.Err() == nil {
		t.Fatalf("context should have been cancelled during classification")
	}
	if summary.Stored != 2 || summary.Classified != 2 || len(h.repo.analyses) != 2 {
		t.Fatalf("stored items must all be classified after a late cancel: %+v", summary)
	}
	if summary.Fallbacks != 0 || primary.calls.Load() != 2 {
		t.Fatalf("primary should classify both items, got %d calls and %d fallbacks",
			primary.calls.Load(), summary.Fallbacks)
	}
	if summary.Status != domain.RunCompleted {
		t.Fatalf("a run that finished all stages is completed, got %s", summary.Status)
	}
}
