package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"ElectionWatch/internal/alerting"
	"ElectionWatch/internal/classify"
	"ElectionWatch/internal/config"
	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/geo"
	"ElectionWatch/internal/infrastructure/llm"
	"ElectionWatch/internal/infrastructure/ml"
	"ElectionWatch/internal/infrastructure/natsbus"
	"ElectionWatch/internal/infrastructure/parser"
	"ElectionWatch/internal/infrastructure/redislock"
	"ElectionWatch/internal/infrastructure/scheduler"
	"ElectionWatch/internal/infrastructure/storage"
	"ElectionWatch/internal/infrastructure/telegram"
	"ElectionWatch/internal/logging"
	"ElectionWatch/internal/ports"
	"ElectionWatch/internal/quota"
	"ElectionWatch/internal/relevance"
	"ElectionWatch/internal/scanner"
	"ElectionWatch/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	db         *sqlx.DB
	repository *storage.Repository
	pipeline   *usecase.Pipeline
	scheduler  *usecase.Scheduler
	closers    []func() error
}

// New opens the store, applies migrations, seeds monitoring configs and
// builds the pipeline with every configured adapter.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &Application{cfg: cfg, logger: baseLogger}

	db, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	if err := storage.Migrate(db, cfg.Database.Driver); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.repository = storage.NewRepository(db, cfg.Database.Driver)

	if err := a.seedConfigs(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	resolver := geo.NewResolver(cfg.Geo.Regions, localities(cfg.Geo.Localities), cfg.Geo.Aliases)

	classifier, err := a.buildClassifier(ctx, resolver)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	notifiers, err := a.buildNotifiers()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var lock ports.RunLock
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		lock = redislock.New(client)
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Source:     a.buildSource(),
		Sources:    scanner.NewSourceRegistry(sources(cfg.Sources)),
		Repository: a.repository,
		Classifier: classifier,
		Geo:        resolver,
		Taxonomy: relevance.Taxonomy{
			ElectionKeywords: cfg.Taxonomy.ElectionKeywords,
			Entities:         cfg.Taxonomy.Entities,
			SecondaryTerms:   cfg.Taxonomy.SecondaryTerms,
			CountryMarkers:   cfg.Taxonomy.CountryMarkers,
			PlaceNames:       resolver.PlaceNames(),
		},
		Alerts: alerting.NewEngine(alerting.Config{
			ViralMedium:        cfg.Alerts.ViralMedium,
			ViralHigh:          cfg.Alerts.ViralHigh,
			SentimentThreshold: cfg.Alerts.SentimentThreshold,
			SentimentSevere:    cfg.Alerts.SentimentSevere,
			Window:             cfg.Alerts.Window,
			MinWindowItems:     cfg.Alerts.MinWindowItems,
			DiscountFallback:   cfg.Alerts.DiscountFallback,
		}),
		Notifiers:       notifiers,
		Lock:            lock,
		LockTTL:         cfg.Pipeline.RunLockTTL,
		ClassifyWorkers: cfg.Pipeline.ClassifyWorkers,
		Logger:          baseLogger.With("component", "pipeline"),
	})

	driver := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location(), baseLogger)
	a.scheduler = usecase.NewScheduler(driver, a.pipeline, a.repository, baseLogger.With("component", "scheduler"))

	return a, nil
}

func (a *Application) seedConfigs(ctx context.Context) error {
	for _, m := range a.cfg.Monitoring {
		mc := m.Domain()
		if err := mc.Validate(); err != nil {
			return err
		}
		if err := a.repository.UpsertConfig(ctx, mc); err != nil {
			return fmt.Errorf("seed monitoring config %s: %w", mc.ID, err)
		}
	}
	return nil
}

func (a *Application) buildSource() ports.ItemSource {
	q := a.cfg.Quota
	guard := quota.NewGuard(quota.Policy{
		Rate:           q.FetchPerSecond,
		Burst:          q.FetchBurst,
		MaxRetries:     q.MaxRetries,
		InitialBackoff: q.InitialBackoff,
		MaxBackoff:     q.MaxBackoff,
	})
	fetcher := parser.NewFetcher(&http.Client{}, guard, parser.FetchOptions{
		UserAgent: a.cfg.Pipeline.UserAgent,
		MaxBytes:  a.cfg.Pipeline.MaxBodyBytes,
		Timeout:   a.cfg.Pipeline.FetchTimeout,
	})

	registry := scanner.NewRegistry()
	registry.Register(parser.NewRSSScanner(fetcher))
	registry.Register(parser.NewHTMLScanner(fetcher))
	registry.Register(parser.NewSearchScanner(fetcher))

	return parser.NewStrategySource(registry, a.cfg.Pipeline.FetchWorkers, a.logger.With("component", "source"))
}

func (a *Application) buildClassifier(ctx context.Context, resolver *geo.Resolver) (*classify.Service, error) {
	fallback := classify.NewHeuristic(resolver.PlaceNames(), a.cfg.Taxonomy.Entities)

	var primary ports.Classifier
	switch a.cfg.Classifier.Provider {
	case config.ProviderChatGPT:
		primary = llm.NewChatGPTClassifier(a.cfg.ChatGPT, &http.Client{})
	case config.ProviderGemini:
		g, err := llm.NewGeminiClassifier(ctx, a.cfg.Gemini)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		primary = g
	case config.ProviderML:
		primary = ml.NewClient(a.cfg.ML.InferenceURL, a.cfg.ML.APIKey)
	}

	q := a.cfg.Quota
	guard := quota.NewGuard(quota.PerMinute(q.ClassifierCallsPerMinute, q.MaxRetries, q.InitialBackoff, q.MaxBackoff))

	name := config.ProviderHeuristic
	if primary != nil {
		name = primary.Name()
	}
	a.logger.Info("classifier configured", "primary", name, "fallback", fallback.Name())

	return classify.NewService(primary, fallback, guard, a.cfg.Pipeline.ClassifyTimeout, a.logger), nil
}

func (a *Application) buildNotifiers() ([]ports.Notifier, error) {
	var out []ports.Notifier

	if tg := a.cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		n, err := telegram.NewNotifier(tg, &http.Client{Timeout: 15 * time.Second})
		if err != nil {
			a.logger.Warn("telegram notifier disabled", "error", err)
		} else {
			out = append(out, n)
		}
	}

	if nc := a.cfg.Notifications.NATS; nc.URL != "" {
		p, err := natsbus.Connect(nc.URL, nc.SubjectPrefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		out = append(out, p)
	}

	return out, nil
}

// Serve runs the cron scheduler until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.scheduler.Stop(stopCtx); err != nil {
		a.logger.Warn("scheduler did not stop cleanly", "error", err)
	}
	a.logger.Info("scheduler stopped")
	return nil
}

// RunOnce executes a single gated run of one config.
func (a *Application) RunOnce(ctx context.Context, configID string) (domain.RunSummary, error) {
	return a.pipeline.RunOnce(ctx, configID)
}

// ListAlerts returns open alerts, newest first.
func (a *Application) ListAlerts(ctx context.Context, limit int) ([]domain.Alert, error) {
	return a.repository.ListOpenAlerts(ctx, limit)
}

// ResolveAlert closes an alert.
func (a *Application) ResolveAlert(ctx context.Context, id string) error {
	return a.repository.ResolveAlert(ctx, id, time.Now().UTC())
}

// AcknowledgeAlert marks an alert as seen without closing it.
func (a *Application) AcknowledgeAlert(ctx context.Context, id string) error {
	return a.repository.AcknowledgeAlert(ctx, id, time.Now().UTC())
}

// Close releases connections in reverse order of acquisition.
func (a *Application) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func sources(in []config.SourceConfig) []domain.Source {
	out := make([]domain.Source, 0, len(in))
	for _, s := range in {
		out = append(out, s.Domain())
	}
	return out
}

func localities(in []config.LocalityConfig) []geo.Locality {
	out := make([]geo.Locality, 0, len(in))
	for _, l := range in {
		out = append(out, geo.Locality{Name: l.Name, Region: l.Region})
	}
	return out
}
