package scanner

import (
	"context"
	"fmt"
	"sort"

	"ElectionWatch/internal/domain"
)

// Request carries all parameters required to scan one source.
type Request struct {
	Source   domain.Source
	Keywords []string
}

// Option returns a source option or fallback when unset.
func (r Request) Option(key, fallback string) string {
	if v, ok := r.Source.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Scanner captures a single fetch strategy (RSS, HTML, search API).
type Scanner interface {
	Kind() domain.SourceKind
	Scan(ctx context.Context, req Request) ([]domain.RawItem, error)
}

// Registry keeps a mapping from source kinds to their implementations.
type Registry struct {
	scanners map[domain.SourceKind]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[domain.SourceKind]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[domain.SourceKind]Scanner{}
	}
	r.scanners[scanner.Kind()] = scanner
}

// Resolve returns the scanner for a kind or an error if it is absent.
func (r *Registry) Resolve(kind domain.SourceKind) (Scanner, error) {
	if scanner, ok := r.scanners[kind]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner for %s is not registered", kind)
}

// SourceRegistry is an immutable snapshot of the configured sources, taken
// when the application starts. Source edits apply after a restart.
type SourceRegistry struct {
	sources []domain.Source
}

// NewSourceRegistry copies sources into a snapshot.
func NewSourceRegistry(sources []domain.Source) *SourceRegistry {
	snapshot := make([]domain.Source, len(sources))
	copy(snapshot, sources)
	return &SourceRegistry{sources: snapshot}
}

// Active returns active sources, highest priority first, then by id.
func (s *SourceRegistry) Active() []domain.Source {
	var active []domain.Source
	for _, src := range s.sources {
		if src.IsActive {
			active = append(active, src)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority > active[j].Priority
		}
		return active[i].ID < active[j].ID
	})
	return active
}

// Lookup finds a source by id.
func (s *SourceRegistry) Lookup(id string) (domain.Source, bool) {
	for _, src := range s.sources {
		if src.ID == id {
			return src, true
		}
	}
	return domain.Source{}, false
}
