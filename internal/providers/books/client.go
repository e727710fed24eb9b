package books

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"kidshelf/discovery/internal/domain"
)

const (
	defaultEndpoint  = "https://www.googleapis.com/books/v1/volumes"
	defaultUserAgent = "kidshelf-discovery/1.0"
	canonicalBaseURL = "https://books.google.com/books"

	// Upstream rejects maxResults above 40.
	MaxPageSize = 40
)

type Config struct {
	Endpoint  string
	APIKey    string
	UserAgent string
	Client    *http.Client
	// RateLimit bounds calls per second to the upstream API. Zero disables
	// client-side throttling.
	RateLimit float64
	Burst     int
}

// Client fetches single pages from the book catalog API. Paging is offset
// based (startIndex); looping across pages belongs to the caller.
type Client struct {
	endpoint  string
	apiKey    string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

type volumePayload struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		ID         string `json:"id"`
		VolumeInfo struct {
			Title          string   `json:"title"`
			Authors        []string `json:"authors"`
			Categories     []string `json:"categories"`
			MaturityRating string   `json:"maturityRating"`
			Description    string   `json:"description"`
			ImageLinks     struct {
				Thumbnail      string `json:"thumbnail"`
				SmallThumbnail string `json:"smallThumbnail"`
			} `json:"imageLinks"`
			PreviewLink         string `json:"previewLink"`
			CanonicalVolumeLink string `json:"canonicalVolumeLink"`
			InfoLink            string `json:"infoLink"`
		} `json:"volumeInfo"`
		SearchInfo struct {
			TextSnippet string `json:"textSnippet"`
		} `json:"searchInfo"`
	} `json:"items"`
}

func NewClient(cfg Config) *Client {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Client{
		endpoint:  strings.TrimRight(endpoint, "/"),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		userAgent: userAgent,
		http:      httpClient,
		limiter:   limiter,
	}
}

// Configured reports whether an API key is present. A missing key is not an
// error; unauthenticated calls just run under stricter upstream quotas.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// FetchPage returns one page of results for query starting at startIndex.
// maxResults is capped at the upstream limit of 40.
func (c *Client) FetchPage(ctx context.Context, query, language string, startIndex, maxResults int) (domain.BookPage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.BookPage{}, err
		}
	}
	if maxResults <= 0 || maxResults > MaxPageSize {
		maxResults = MaxPageSize
	}
	if startIndex < 0 {
		startIndex = 0
	}

	params := url.Values{
		"q":          {strings.TrimSpace(query)},
		"maxResults": {strconv.Itoa(maxResults)},
		"startIndex": {strconv.Itoa(startIndex)},
		"printType":  {"books"},
	}
	if lang := strings.TrimSpace(language); lang != "" {
		params.Set("langRestrict", lang)
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return domain.BookPage{}, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.BookPage{}, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return domain.BookPage{}, fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return domain.BookPage{}, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}

	var payload volumePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.BookPage{}, fmt.Errorf("%w: unexpected payload: %v", domain.ErrUpstream, err)
	}

	page := domain.BookPage{TotalItems: payload.TotalItems}
	page.Items = make([]domain.BookRecord, 0, len(payload.Items))
	for _, item := range payload.Items {
		info := item.VolumeInfo
		thumbnail := strings.TrimSpace(info.ImageLinks.Thumbnail)
		if thumbnail == "" {
			thumbnail = strings.TrimSpace(info.ImageLinks.SmallThumbnail)
		}
		page.Items = append(page.Items, domain.BookRecord{
			ID:             strings.TrimSpace(item.ID),
			Title:          strings.TrimSpace(info.Title),
			Authors:        trimAll(info.Authors),
			Categories:     trimAll(info.Categories),
			MaturityRating: strings.TrimSpace(info.MaturityRating),
			Thumbnail:      thumbnail,
			PreviewLink:    strings.TrimSpace(info.PreviewLink),
			CanonicalLink:  strings.TrimSpace(info.CanonicalVolumeLink),
			InfoLink:       strings.TrimSpace(info.InfoLink),
			Description:    strings.TrimSpace(info.Description),
			Snippet:        strings.TrimSpace(item.SearchInfo.TextSnippet),
		})
	}
	return page, nil
}

// CanonicalLink builds a catalog URL from a volume id, used when the record
// itself carries no usable link.
func CanonicalLink(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	return canonicalBaseURL + "?id=" + url.QueryEscape(id)
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
