package parser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/scanner"
)

func TestBuildQuery(t *testing.T) {
	t.Parallel()

	got := BuildQuery([]string{"JLP", " ", "general election", "PNP"})
	want := `JLP OR "general election" OR PNP`
	if got != want {
		t.Fatalf("BuildQuery = %q, want %q", got, want)
	}
}

func TestSearchScannerNewsAPI(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "JLP OR PNP" {
			t.Errorf("unexpected query %q", got)
		}
		if got := r.Header.Get("X-Api-Key"); got != "secret" {
			t.Errorf("unexpected api key %q", got)
		}
		_, _ = w.Write([]byte(`{"status":"ok","articles":[
			{"source":{"name":"Observer"},"title":"JLP campaign launch","description":"Rally in Portmore","url":"https://observer.example/1","publishedAt":"2026-02-01T10:00:00Z"},
			{"title":"PNP responds","content":"Golding replies","url":"https://observer.example/2","publishedAt":"not a date"}
		]}`))
	}))
	defer server.Close()

	sc := NewSearchScanner(NewFetcher(server.Client(), nil, FetchOptions{}))
	req := scanner.Request{
		Source:   domain.Source{ID: "newsapi", Endpoint: server.URL + "/v2/everything", Options: map[string]string{"apiKey": "secret"}},
		Keywords: []string{"JLP", "PNP"},
	}

	items, err := sc.Scan(context.Background(), req)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Body != "Rally in Portmore" || items[0].PublishedAt.IsZero() {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[1].Body != "Golding replies" || !items[1].PublishedAt.IsZero() {
		t.Fatalf("unexpected second item: %+v", items[1])
	}
}

func TestSearchScannerSocial(t *testing.T) {
	t.Setenv("TEST_SOCIAL_TOKEN", "bearer-token")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer bearer-token" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.URL.Query().Get("query"); got != "#JamaicaDecides" {
			t.Errorf("unexpected query %q", got)
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"1789","text":"Crowds in Montego Bay for the JLP","created_at":"2026-02-01T12:00:00.000Z",
			"public_metrics":{"like_count":900,"retweet_count":200,"quote_count":50,"reply_count":75}}]}`))
	}))
	defer server.Close()

	sc := NewSearchScanner(NewFetcher(server.Client(), nil, FetchOptions{}))
	req := scanner.Request{
		Source: domain.Source{ID: "x", Endpoint: server.URL, Options: map[string]string{
			"provider":  ProviderSocial,
			"query":     "#JamaicaDecides",
			"apiKeyEnv": "TEST_SOCIAL_TOKEN",
		}},
	}

	items, err := sc.Scan(context.Background(), req)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	post := items[0]
	if post.ExternalID != "1789" || post.Engagement == nil {
		t.Fatalf("unexpected post: %+v", post)
	}
	if post.Engagement.Total() != 1225 {
		t.Fatalf("unexpected engagement total %d", post.Engagement.Total())
	}
}

func TestSearchScannerMalformedJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"articles": [`))
	}))
	defer server.Close()

	sc := NewSearchScanner(NewFetcher(server.Client(), nil, FetchOptions{}))
	_, err := sc.Scan(context.Background(), scanner.Request{
		Source:   domain.Source{ID: "newsapi", Endpoint: server.URL},
		Keywords: []string{"JLP"},
	})
	if !errors.Is(err, domain.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}
