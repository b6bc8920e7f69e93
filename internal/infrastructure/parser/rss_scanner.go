package parser

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"

	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/scanner"
)

// RSSScanner reads RSS and Atom feeds.
type RSSScanner struct {
	fetcher *Fetcher
	now     func() time.Time
}

// NewRSSScanner wires the shared fetcher.
func NewRSSScanner(fetcher *Fetcher) *RSSScanner {
	return &RSSScanner{fetcher: fetcher, now: time.Now}
}

// Kind identifies the strategy inside the registry.
func (s *RSSScanner) Kind() domain.SourceKind {
	return domain.SourceRSS
}

// Scan downloads the feed and maps every entry to a RawItem.
func (s *RSSScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.RawItem, error) {
	payload, err := s.fetcher.Get(ctx, req.Source.Endpoint, nil)
	if err != nil {
		return nil, err
	}
	return parseFeed(payload, req.Source.ID, s.now().UTC())
}

func parseFeed(payload []byte, sourceID string, fetchedAt time.Time) ([]domain.RawItem, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: feed: %v", domain.ErrParse, err)
	}

	items := make([]domain.RawItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		body := entry.Description
		if body == "" {
			body = entry.Content
		}

		// Zero times are replaced with the fetch time by the normaliser.
		var published time.Time
		switch {
		case entry.PublishedParsed != nil:
			published = *entry.PublishedParsed
		case entry.UpdatedParsed != nil:
			published = *entry.UpdatedParsed
		}

		items = append(items, domain.RawItem{
			SourceID:    sourceID,
			ExternalID:  entry.GUID,
			Title:       entry.Title,
			Body:        body,
			URL:         entry.Link,
			PublishedAt: published,
			FetchedAt:   fetchedAt,
		})
	}
	return items, nil
}
