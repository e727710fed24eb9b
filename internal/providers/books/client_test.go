package books

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"kidshelf/discovery/internal/domain"
)

const samplePayload = `{
	"totalItems": 2,
	"items": [
		{
			"id": "vol1",
			"volumeInfo": {
				"title": "Dinosaur Facts",
				"authors": ["Jane Doe"],
				"categories": ["Juvenile Nonfiction"],
				"maturityRating": "NOT_MATURE",
				"description": "All about dinosaurs.",
				"imageLinks": {"thumbnail": "https://img.test/vol1.jpg"},
				"previewLink": "https://example.test/preview/vol1"
			},
			"searchInfo": {"textSnippet": "All about <b>dinosaurs</b>."}
		},
		{
			"id": "vol2",
			"volumeInfo": {
				"title": "Dinosaur Tales",
				"imageLinks": {"smallThumbnail": "https://img.test/vol2-small.jpg"}
			}
		}
	]
}`

func TestFetchPage(t *testing.T) {
	var gotQuery, gotLang, gotStart, gotMax, gotKey, gotPrint string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = q.Get("q")
		gotLang = q.Get("langRestrict")
		gotStart = q.Get("startIndex")
		gotMax = q.Get("maxResults")
		gotKey = q.Get("key")
		gotPrint = q.Get("printType")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL, APIKey: "test-key"})
	page, err := client.FetchPage(context.Background(), "dinosaurs subject:juvenile", "en", 40, 40)
	if err != nil {
		t.Fatalf("fetch error: %v", err)
	}

	if gotQuery != "dinosaurs subject:juvenile" {
		t.Fatalf("unexpected q param %q", gotQuery)
	}
	if gotLang != "en" || gotStart != "40" || gotMax != "40" || gotKey != "test-key" || gotPrint != "books" {
		t.Fatalf("unexpected params: lang=%q start=%q max=%q key=%q printType=%q", gotLang, gotStart, gotMax, gotKey, gotPrint)
	}

	if page.TotalItems != 2 || len(page.Items) != 2 {
		t.Fatalf("unexpected page: total=%d items=%d", page.TotalItems, len(page.Items))
	}
	first := page.Items[0]
	if first.ID != "vol1" || first.Title != "Dinosaur Facts" || first.MaturityRating != "NOT_MATURE" {
		t.Fatalf("unexpected first record: %+v", first)
	}
	if first.Thumbnail != "https://img.test/vol1.jpg" || first.Snippet != "All about <b>dinosaurs</b>." {
		t.Fatalf("unexpected first record media: %+v", first)
	}
	if page.Items[1].Thumbnail != "https://img.test/vol2-small.jpg" {
		t.Fatalf("expected smallThumbnail fallback, got %q", page.Items[1].Thumbnail)
	}
}

func TestFetchPageCapsMaxResults(t *testing.T) {
	var gotMax string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMax = r.URL.Query().Get("maxResults")
		_, _ = w.Write([]byte(`{"totalItems": 0}`))
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL})
	if _, err := client.FetchPage(context.Background(), "q", "", 0, 500); err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	if gotMax != "40" {
		t.Fatalf("expected maxResults capped at 40, got %q", gotMax)
	}
}

func TestFetchPageUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL})
	_, err := client.FetchPage(context.Background(), "q", "", 0, 40)
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestConfigured(t *testing.T) {
	if NewClient(Config{}).Configured() {
		t.Fatal("client without key must report unconfigured")
	}
	if !NewClient(Config{APIKey: "k"}).Configured() {
		t.Fatal("client with key must report configured")
	}
}

func TestCanonicalLink(t *testing.T) {
	if got := CanonicalLink(" abc "); got != "https://books.google.com/books?id=abc" {
		t.Fatalf("unexpected link %q", got)
	}
	if got := CanonicalLink(""); got != "" {
		t.Fatalf("expected empty link, got %q", got)
	}
}
