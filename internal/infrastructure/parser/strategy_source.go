package parser

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/ports"
	"ElectionWatch/internal/scanner"
)

// StrategySource implements ItemSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	workers  int
	logger   *slog.Logger
}

var _ ports.ItemSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with a bounded worker count.
func NewStrategySource(reg *scanner.Registry, workers int, log *slog.Logger) *StrategySource {
	if workers < 1 {
		workers = 1
	}
	return &StrategySource{
		registry: reg,
		workers:  workers,
		logger:   log,
	}
}

type sourceOutcome struct {
	items   []domain.RawItem
	err     error
	started bool
}

// FetchAll scans every source with bounded parallelism. A failing source is
// recorded and contributes no items; it never stops the others. Cancellation
// is honoured before a source starts, while a started fetch runs to its own
// timeout.
func (s *StrategySource) FetchAll(ctx context.Context, sources []domain.Source, keywords []string) ports.FetchResult {
	s.debug("fetch all", "sources", len(sources), "workers", s.workers)

	outcomes := make([]sourceOutcome, len(sources))
	fetchCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(s.workers)

	for i, src := range sources {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcomes[i].started = true
			outcomes[i].items, outcomes[i].err = s.scan(fetchCtx, src, keywords)
			return nil
		})
	}
	_ = g.Wait()

	var result ports.FetchResult
	for i, out := range outcomes {
		src := sources[i]
		if !out.started {
			result.Cancelled = true
			continue
		}
		if out.err != nil {
			s.warn("source failed", "source", src.ID, "kind", src.Kind, "error", out.err)
			result.Errors = append(result.Errors, domain.NewSourceError(src.ID, out.err))
			continue
		}
		s.debug("source produced items", "source", src.ID, "count", len(out.items))
		result.Items = append(result.Items, out.items...)
	}

	s.debug("strategy source done", "total_items", len(result.Items), "failed_sources", len(result.Errors))
	return result
}

func (s *StrategySource) scan(ctx context.Context, src domain.Source, keywords []string) ([]domain.RawItem, error) {
	strategy, err := s.registry.Resolve(src.Kind)
	if err != nil {
		return nil, err
	}

	items, err := strategy.Scan(ctx, scanner.Request{Source: src, Keywords: keywords})
	if err != nil {
		return nil, err
	}

	for i := range items {
		if items[i].SourceID == "" {
			items[i].SourceID = src.ID
		}
	}
	return items, nil
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *StrategySource) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
