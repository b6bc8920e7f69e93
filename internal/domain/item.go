package domain

import "time"

// SourceKind selects the fetch strategy used for a source.
type SourceKind string

const (
	SourceRSS       SourceKind = "rss"
	SourceHTML      SourceKind = "html"
	SourceSearchAPI SourceKind = "searchApi"
)

// Valid reports whether the kind has a known fetch strategy.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceRSS, SourceHTML, SourceSearchAPI:
		return true
	}
	return false
}

// Source is a configured content provider.
type Source struct {
	ID          string
	Name        string
	Kind        SourceKind
	Endpoint    string
	IsActive    bool
	Priority    int
	TopicWeight int
	Options     map[string]string
}

// Engagement holds social interaction counters when a provider exposes them.
type Engagement struct {
	Likes   int
	Shares  int
	Replies int
}

// Total is the volume metric used by viral alerts.
func (e Engagement) Total() int {
	return e.Likes + e.Shares + e.Replies
}

// RawItem is a single entry produced by a fetch, before any filtering.
type RawItem struct {
	SourceID    string
	ExternalID  string
	Title       string
	Body        string
	URL         string
	PublishedAt time.Time
	FetchedAt   time.Time
	Engagement  *Engagement
}

// ProcessedItem is an item that passed relevance scoring and is persisted.
type ProcessedItem struct {
	ID              string
	Fingerprint     string
	ExternalID      string
	Title           string
	Body            string
	URL             string
	Source          string
	PublishedAt     time.Time
	FetchedAt       time.Time
	RelevanceScore  float64
	MatchedKeywords []string
	GeoUnit         string
	Locality        string
	Engagement      *Engagement
	Occurrences     int
	IsDuplicate     bool
	Analysis        *SentimentAnalysis
	CreatedAt       time.Time
}

// Text is the classifier input for the item.
func (p ProcessedItem) Text() string {
	if p.Body == "" {
		return p.Title
	}
	return p.Title + "\n\n" + p.Body
}

// GeoUnit is an administrative region, optionally reached through a locality.
type GeoUnit struct {
	Name     string
	Locality string
}
