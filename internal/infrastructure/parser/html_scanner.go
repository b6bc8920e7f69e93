package parser

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/scanner"
)

const (
	defaultAnchorSelector = "a[href]"
	defaultMinTitleLength = 20
)

// HTMLScanner extracts headline links from a listing page.
//
// Options: "selector" (CSS selector for anchors, default a[href]) and
// "minTitleLength" (anchors with shorter text are navigation noise).
type HTMLScanner struct {
	fetcher *Fetcher
	now     func() time.Time
}

// NewHTMLScanner wires the shared fetcher.
func NewHTMLScanner(fetcher *Fetcher) *HTMLScanner {
	return &HTMLScanner{fetcher: fetcher, now: time.Now}
}

// Kind identifies the strategy inside the registry.
func (h *HTMLScanner) Kind() domain.SourceKind {
	return domain.SourceHTML
}

// Scan downloads the page and returns one item per qualifying anchor.
func (h *HTMLScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.RawItem, error) {
	payload, err := h.fetcher.Get(ctx, req.Source.Endpoint, nil)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: parse document: %v", domain.ErrParse, err)
	}

	minLen, err := strconv.Atoi(req.Option("minTitleLength", strconv.Itoa(defaultMinTitleLength)))
	if err != nil {
		minLen = defaultMinTitleLength
	}

	base, err := documentBase(doc, req.Source.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}

	return extractAnchors(doc, base, req.Option("selector", defaultAnchorSelector), minLen, req.Source.ID, h.now().UTC()), nil
}

func extractAnchors(doc *goquery.Document, base *url.URL, selector string, minLen int, sourceID string, fetchedAt time.Time) []domain.RawItem {
	var (
		items []domain.RawItem
		seen  = map[string]struct{}{}
	)

	doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		link, ok := resolveLink(base, href)
		if !ok {
			return
		}

		title := strings.Join(strings.Fields(a.Text()), " ")
		if len([]rune(title)) < minLen {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}

		body, _ := a.Attr("title")
		items = append(items, domain.RawItem{
			SourceID:  sourceID,
			Title:     title,
			Body:      strings.TrimSpace(body),
			URL:       link,
			FetchedAt: fetchedAt,
		})
	})

	return items
}

// documentBase honours <base href> and falls back to the page URL.
func documentBase(doc *goquery.Document, pageURL string) (*url.URL, error) {
	page, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %s: %w", pageURL, err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := url.Parse(strings.TrimSpace(href)); err == nil {
			return page.ResolveReference(b), nil
		}
	}
	return page, nil
}

func resolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	return resolved.String(), true
}
