package videos

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

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"kidshelf/discovery/internal/domain"
)

const (
	defaultEndpoint  = "https://www.googleapis.com/youtube/v3"
	defaultUserAgent = "kidshelf-discovery/1.0"
	watchBaseURL     = "https://www.youtube.com/watch?v="

	// The status endpoint accepts at most 50 ids per call.
	statusBatchSize = 50

	kidsSafeCachePrefix = "discovery:kidssafe:"
)

type Config struct {
	Endpoint  string
	APIKey    string
	UserAgent string
	Client    *http.Client
	RateLimit float64
	Burst     int
	// Redis, when set, caches confirmed made-for-kids ids so repeated
	// confirmations skip the upstream status endpoint.
	Redis    *redis.Client
	CacheTTL time.Duration
}

// Client fetches single pages from the video catalog API. Paging is token
// based; the caller loops with the returned NextPageToken.
type Client struct {
	endpoint  string
	apiKey    string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	redis     *redis.Client
	cacheTTL  time.Duration
}

type searchPayload struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelID    string `json:"channelId"`
			ChannelTitle string `json:"channelTitle"`
			Description  string `json:"description"`
			PublishedAt  string `json:"publishedAt"`
			Thumbnails   struct {
				High    struct{ URL string `json:"url"` } `json:"high"`
				Medium  struct{ URL string `json:"url"` } `json:"medium"`
				Default struct{ URL string `json:"url"` } `json:"default"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

type statusPayload struct {
	Items []struct {
		ID     string `json:"id"`
		Status struct {
			MadeForKids bool `json:"madeForKids"`
		} `json:"status"`
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
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}
	return &Client{
		endpoint:  strings.TrimRight(endpoint, "/"),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		userAgent: userAgent,
		http:      httpClient,
		limiter:   limiter,
		redis:     cfg.Redis,
		cacheTTL:  cacheTTL,
	}
}

func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// SearchPage returns one page of embeddable, safe-search-strict results for
// query within categoryID. An empty pageToken fetches the first page.
func (c *Client) SearchPage(ctx context.Context, query, categoryID, pageToken string, maxResults int) (domain.VideoPage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.VideoPage{}, err
		}
	}
	if maxResults <= 0 || maxResults > 50 {
		maxResults = 50
	}

	params := url.Values{
		"part":            {"snippet"},
		"type":            {"video"},
		"videoEmbeddable": {"true"},
		"safeSearch":      {"strict"},
		"maxResults":      {strconv.Itoa(maxResults)},
		"q":               {strings.TrimSpace(query)},
	}
	if categoryID = strings.TrimSpace(categoryID); categoryID != "" {
		params.Set("videoCategoryId", categoryID)
	}
	if pageToken = strings.TrimSpace(pageToken); pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	body, err := c.get(ctx, c.endpoint+"/search?"+params.Encode())
	if err != nil {
		return domain.VideoPage{}, err
	}

	var payload searchPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.VideoPage{}, fmt.Errorf("%w: unexpected payload: %v", domain.ErrUpstream, err)
	}

	page := domain.VideoPage{NextPageToken: strings.TrimSpace(payload.NextPageToken)}
	page.Items = make([]domain.VideoRecord, 0, len(payload.Items))
	for _, item := range payload.Items {
		id := strings.TrimSpace(item.ID.VideoID)
		if id == "" {
			continue
		}
		snippet := item.Snippet
		thumbnail := strings.TrimSpace(snippet.Thumbnails.High.URL)
		if thumbnail == "" {
			thumbnail = strings.TrimSpace(snippet.Thumbnails.Medium.URL)
		}
		if thumbnail == "" {
			thumbnail = strings.TrimSpace(snippet.Thumbnails.Default.URL)
		}
		page.Items = append(page.Items, domain.VideoRecord{
			ID:          id,
			Title:       strings.TrimSpace(snippet.Title),
			ChannelID:   strings.TrimSpace(snippet.ChannelID),
			Channel:     strings.TrimSpace(snippet.ChannelTitle),
			Description: strings.TrimSpace(snippet.Description),
			Thumbnail:   thumbnail,
			CategoryID:  categoryID,
			PublishedAt: parseTimestamp(snippet.PublishedAt),
		})
	}
	return page, nil
}

// KidsSafeIDs returns the subset of ids that upstream explicitly declares
// made for kids, batching status lookups in groups of 50.
func (c *Client) KidsSafeIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	confirmed := make(map[string]struct{}, len(ids))
	pending := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if c.cachedKidsSafe(ctx, id) {
			confirmed[id] = struct{}{}
			continue
		}
		pending = append(pending, id)
	}

	for start := 0; start < len(pending); start += statusBatchSize {
		end := start + statusBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch, err := c.fetchStatusBatch(ctx, pending[start:end])
		if err != nil {
			return nil, err
		}
		for id := range batch {
			confirmed[id] = struct{}{}
			c.storeKidsSafe(ctx, id)
		}
	}
	return confirmed, nil
}

func (c *Client) fetchStatusBatch(ctx context.Context, ids []string) (map[string]struct{}, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	params := url.Values{
		"part": {"status"},
		"id":   {strings.Join(ids, ",")},
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	body, err := c.get(ctx, c.endpoint+"/videos?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var payload statusPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: unexpected payload: %v", domain.ErrUpstream, err)
	}

	confirmed := make(map[string]struct{}, len(payload.Items))
	for _, item := range payload.Items {
		if item.Status.MadeForKids {
			confirmed[strings.TrimSpace(item.ID)] = struct{}{}
		}
	}
	return confirmed, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
}

func (c *Client) cachedKidsSafe(ctx context.Context, id string) bool {
	if c.redis == nil {
		return false
	}
	value, err := c.redis.Get(ctx, kidsSafeCachePrefix+id).Result()
	return err == nil && value == "1"
}

func (c *Client) storeKidsSafe(ctx context.Context, id string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Set(ctx, kidsSafeCachePrefix+id, "1", c.cacheTTL).Err()
}

// WatchLink builds the canonical playback URL for a video id.
func WatchLink(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	return watchBaseURL + url.QueryEscape(id)
}

func parseTimestamp(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	value := parsed.UTC()
	return &value
}
