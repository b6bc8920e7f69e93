package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/scanner"
)

// Search API providers selected with the "provider" source option.
const (
	ProviderNewsAPI = "newsapi"
	ProviderSocial  = "social"
)

// SearchScanner queries keyword search endpoints that answer with JSON.
//
// Options: "provider" (newsapi|social), "query" (overrides the keyword
// query), "apiKey" or "apiKeyEnv" (credential or the env var holding it),
// "pageSize", "language".
type SearchScanner struct {
	fetcher *Fetcher
	now     func() time.Time
}

// NewSearchScanner wires the shared fetcher.
func NewSearchScanner(fetcher *Fetcher) *SearchScanner {
	return &SearchScanner{fetcher: fetcher, now: time.Now}
}

// Kind identifies the strategy inside the registry.
func (s *SearchScanner) Kind() domain.SourceKind {
	return domain.SourceSearchAPI
}

// Scan runs the keyword query and maps provider fields directly.
func (s *SearchScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.RawItem, error) {
	provider := req.Option("provider", ProviderNewsAPI)
	query := req.Option("query", BuildQuery(req.Keywords))
	if query == "" {
		return nil, fmt.Errorf("%w: source %s has no query terms", domain.ErrSourceFetch, req.Source.ID)
	}

	target, headers, err := buildSearchRequest(req, provider, query)
	if err != nil {
		return nil, err
	}

	payload, err := s.fetcher.Get(ctx, target, headers)
	if err != nil {
		return nil, err
	}

	fetchedAt := s.now().UTC()
	switch provider {
	case ProviderSocial:
		return parseSocial(payload, req.Source.ID, fetchedAt)
	default:
		return parseNewsAPI(payload, req.Source.ID, fetchedAt)
	}
}

// BuildQuery ORs the quoted keywords together.
func BuildQuery(keywords []string) string {
	parts := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if strings.ContainsAny(k, " \t") {
			k = strconv.Quote(k)
		}
		parts = append(parts, k)
	}
	return strings.Join(parts, " OR ")
}

func buildSearchRequest(req scanner.Request, provider, query string) (string, map[string]string, error) {
	endpoint, err := url.Parse(req.Source.Endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("%w: invalid endpoint %s: %v", domain.ErrSourceFetch, req.Source.Endpoint, err)
	}

	key := req.Option("apiKey", "")
	if env := req.Option("apiKeyEnv", ""); key == "" && env != "" {
		key = os.Getenv(env)
	}

	params := endpoint.Query()
	headers := map[string]string{"Accept": "application/json"}

	switch provider {
	case ProviderSocial:
		params.Set("query", query)
		params.Set("max_results", req.Option("pageSize", "50"))
		params.Set("tweet.fields", "created_at,public_metrics")
		if key != "" {
			headers["Authorization"] = "Bearer " + key
		}
	case ProviderNewsAPI:
		params.Set("q", query)
		params.Set("pageSize", req.Option("pageSize", "50"))
		params.Set("sortBy", "publishedAt")
		if lang := req.Option("language", ""); lang != "" {
			params.Set("language", lang)
		}
		if key != "" {
			headers["X-Api-Key"] = key
		}
	default:
		return "", nil, fmt.Errorf("%w: unknown search provider %q", domain.ErrSourceFetch, provider)
	}

	endpoint.RawQuery = params.Encode()
	return endpoint.String(), headers, nil
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Content     string `json:"content"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

func parseNewsAPI(payload []byte, sourceID string, fetchedAt time.Time) ([]domain.RawItem, error) {
	var resp newsAPIResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: search response: %v", domain.ErrParse, err)
	}
	if resp.Status == "error" {
		return nil, fmt.Errorf("%w: provider error: %s", domain.ErrSourceFetch, resp.Message)
	}

	items := make([]domain.RawItem, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		body := a.Description
		if body == "" {
			body = a.Content
		}
		items = append(items, domain.RawItem{
			SourceID:    sourceID,
			Title:       a.Title,
			Body:        body,
			URL:         a.URL,
			PublishedAt: parseTimestamp(a.PublishedAt),
			FetchedAt:   fetchedAt,
		})
	}
	return items, nil
}

type socialResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		CreatedAt     string `json:"created_at"`
		PublicMetrics struct {
			LikeCount    int `json:"like_count"`
			RetweetCount int `json:"retweet_count"`
			QuoteCount   int `json:"quote_count"`
			ReplyCount   int `json:"reply_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func parseSocial(payload []byte, sourceID string, fetchedAt time.Time) ([]domain.RawItem, error) {
	var resp socialResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: social response: %v", domain.ErrParse, err)
	}
	if len(resp.Data) == 0 && len(resp.Errors) > 0 {
		return nil, fmt.Errorf("%w: provider error: %s", domain.ErrSourceFetch, resp.Errors[0].Message)
	}

	items := make([]domain.RawItem, 0, len(resp.Data))
	for _, post := range resp.Data {
		m := post.PublicMetrics
		items = append(items, domain.RawItem{
			SourceID:    sourceID,
			ExternalID:  post.ID,
			Title:       post.Text,
			PublishedAt: parseTimestamp(post.CreatedAt),
			FetchedAt:   fetchedAt,
			Engagement: &domain.Engagement{
				Likes:   m.LikeCount,
				Shares:  m.RetweetCount + m.QuoteCount,
				Replies: m.ReplyCount,
			},
		})
	}
	return items, nil
}

// parseTimestamp returns the zero time for unparsable input; the normaliser
// substitutes the fetch time.
func parseTimestamp(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
