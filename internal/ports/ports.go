package ports

import (
	"context"
	"time"

	"ElectionWatch/internal/domain"
)

// FetchResult is the outcome of fetching every active source once.
type FetchResult struct {
	Items  []domain.RawItem
	Errors []domain.SourceError
	// Cancelled is set when the run context was cancelled before every
	// source could start.
	Cancelled bool
}

// ItemSource pulls raw items from all configured sources.
type ItemSource interface {
	FetchAll(ctx context.Context, sources []domain.Source, keywords []string) FetchResult
}

// Classifier turns item text into a structured sentiment/threat analysis.
// Implementations must return domain.ErrClassifierRateLimited for quota
// rejections so callers can switch paths without spending retries.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, text string, hints domain.ClassifyContext) (domain.SentimentAnalysis, error)
}

// UpsertResult reports the identity of the stored row.
type UpsertResult struct {
	ID     string
	WasNew bool
}

// Repository persists pipeline output and monitoring configs.
type Repository interface {
	UpsertItem(ctx context.Context, item domain.ProcessedItem) (UpsertResult, error)
	InsertAnalysis(ctx context.Context, analysis domain.SentimentAnalysis) error
	InsertAlert(ctx context.Context, alert domain.Alert) error
	GetRecentItems(ctx context.Context, geoUnit string, since time.Time) ([]domain.ProcessedItem, error)
	GetConfigs(ctx context.Context, id string) ([]domain.MonitoringConfig, error)
	UpdateConfigExecution(ctx context.Context, id string, lastExecuted, nextExecution time.Time) error
}

// AdminRepository covers operator actions outside the run loop.
type AdminRepository interface {
	UpsertConfig(ctx context.Context, cfg domain.MonitoringConfig) error
	ListOpenAlerts(ctx context.Context, limit int) ([]domain.Alert, error)
	ResolveAlert(ctx context.Context, id string, at time.Time) error
	AcknowledgeAlert(ctx context.Context, id string, at time.Time) error
}

// Notifier streams raised alerts to Telegram or other channels.
type Notifier interface {
	PublishAlert(ctx context.Context, alert domain.Alert) error
}

// RunLock guards a config against concurrent runs across processes.
type RunLock interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
