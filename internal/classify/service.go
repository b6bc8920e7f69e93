package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/ports"
	"ElectionWatch/internal/quota"
)

// Service routes items to the primary classifier while the quota allows and
// to the local fallback otherwise.
type Service struct {
	primary  ports.Classifier
	fallback ports.Classifier
	guard    *quota.Guard
	timeout  time.Duration
	logger   *slog.Logger
}

// NewService wires the classification path. A nil primary runs every item
// through the fallback.
func NewService(primary, fallback ports.Classifier, guard *quota.Guard, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		primary:  primary,
		fallback: fallback,
		guard:    guard,
		timeout:  timeout,
		logger:   logger.With("component", "classifier"),
	}
}

// NewSession starts the per-run state. Once a session is degraded every
// remaining item in the run goes straight to the fallback.
func (s *Service) NewSession() *Session {
	return &Session{svc: s}
}

// Session classifies the items of a single run.
type Session struct {
	svc      *Service
	degraded atomic.Bool
}

// Degraded reports whether the session stopped calling the primary.
func (s *Session) Degraded() bool {
	return s.degraded.Load()
}

// Classify returns a validated analysis for item. An error means neither the
// primary nor the fallback produced one; the item is then stored without it.
func (s *Session) Classify(ctx context.Context, item domain.ProcessedItem) (domain.SentimentAnalysis, error) {
	text := item.Text()
	hints := domain.ClassifyContext{
		Title:    item.Title,
		Source:   item.Source,
		GeoUnit:  item.GeoUnit,
		Keywords: item.MatchedKeywords,
	}

	if s.svc.primary != nil && !s.degraded.Load() {
		analysis, err := s.callPrimary(ctx, text, hints)
		if err == nil {
			analysis.ItemID = item.ID
			return analysis, nil
		}
		if errors.Is(err, domain.ErrClassifierRateLimited) {
			if s.degraded.CompareAndSwap(false, true) {
				s.svc.logger.Warn("classifier quota exhausted, switching run to fallback",
					"classifier", s.svc.primary.Name(),
				)
			}
		} else if ctx.Err() == nil {
			s.svc.logger.Warn("primary classification failed",
				"classifier", s.svc.primary.Name(),
				"item", item.ID,
				"error", err,
			)
		}
	}

	return s.callFallback(ctx, item.ID, text, hints)
}

func (s *Session) callPrimary(ctx context.Context, text string, hints domain.ClassifyContext) (domain.SentimentAnalysis, error) {
	var result domain.SentimentAnalysis
	err := s.svc.guard.Retry(ctx, func() error {
		if s.degraded.Load() || !s.svc.guard.Allow() {
			return quota.Permanent(domain.ErrClassifierRateLimited)
		}

		callCtx, cancel := s.withTimeout(ctx)
		defer cancel()

		analysis, err := s.svc.primary.Classify(callCtx, text, hints)
		if err != nil {
			if errors.Is(err, domain.ErrClassifierRateLimited) || ctx.Err() != nil {
				return quota.Permanent(err)
			}
			return err
		}
		if analysis.Method == "" {
			analysis.Method = s.svc.primary.Name()
		}
		if err := analysis.Validate(); err != nil {
			return err
		}
		result = analysis
		return nil
	})
	return result, err
}

func (s *Session) callFallback(ctx context.Context, itemID, text string, hints domain.ClassifyContext) (domain.SentimentAnalysis, error) {
	if s.svc.fallback == nil {
		return domain.SentimentAnalysis{}, fmt.Errorf("%w: no fallback classifier", domain.ErrClassifier)
	}
	analysis, err := s.svc.fallback.Classify(ctx, text, hints)
	if err != nil {
		return domain.SentimentAnalysis{}, fmt.Errorf("fallback classifier: %w", err)
	}
	if err := analysis.Validate(); err != nil {
		return domain.SentimentAnalysis{}, err
	}
	analysis.ItemID = itemID
	return analysis, nil
}

func (s *Session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.svc.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.svc.timeout)
}
