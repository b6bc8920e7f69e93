package normalize

import (
	"html"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"ElectionWatch/internal/domain"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

func stripPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// StripMarkup removes tags and entities and collapses whitespace.
func StripMarkup(s string) string {
	if s == "" {
		return ""
	}
	// Feeds routinely double-encode entities ("&amp;amp;"), so unescape before
	// and after sanitising.
	cleaned := stripPolicy().Sanitize(html.UnescapeString(s))
	cleaned = html.UnescapeString(cleaned)
	return CollapseWhitespace(cleaned)
}

// CollapseWhitespace joins all whitespace runs into a single space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Item returns a cleaned copy of raw. A missing publish date becomes now.
func Item(raw domain.RawItem, now time.Time) domain.RawItem {
	out := raw
	out.Title = StripMarkup(raw.Title)
	out.Body = StripMarkup(raw.Body)
	out.URL = strings.TrimSpace(raw.URL)
	if out.PublishedAt.IsZero() {
		out.PublishedAt = now
	}
	if out.FetchedAt.IsZero() {
		out.FetchedAt = now
	}
	out.PublishedAt = out.PublishedAt.UTC()
	out.FetchedAt = out.FetchedAt.UTC()
	if raw.Engagement != nil {
		e := *raw.Engagement
		out.Engagement = &e
	}
	return out
}

// Items normalises a batch and drops entries left without any text.
func Items(raws []domain.RawItem, now time.Time) []domain.RawItem {
	out := make([]domain.RawItem, 0, len(raws))
	for _, raw := range raws {
		item := Item(raw, now)
		if item.Title == "" && item.Body == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
