package domain

import (
	"errors"
	"strings"
	"time"
)

// Mode selects which upstream catalog a search runs against.
type Mode string

const (
	ModeBook  Mode = "book"
	ModeVideo Mode = "video"
)

// Bucket is a topical label assigned by the classifier. An item may carry
// several buckets at once; rule order only affects slice order, not membership.
type Bucket string

const (
	BucketYoungAdult         Bucket = "young_adult"
	BucketJuvenileFiction    Bucket = "juvenile_fiction"
	BucketJuvenileNonfiction Bucket = "juvenile_nonfiction"
	BucketLiterature         Bucket = "literature"
	BucketBiography          Bucket = "biography"
	BucketPoetryHumor        Bucket = "poetry_humor"
	BucketEarlyReaders       Bucket = "early_readers"
	BucketMiddleGrade        Bucket = "middle_grade"
	BucketEducation          Bucket = "education"
	BucketJuvenileOther      Bucket = "juvenile_other"
)

// ParseBucket maps a raw filter value to a known bucket. Unknown values
// yield the empty bucket, which disables bucket filtering instead of
// failing the request.
func ParseBucket(raw string) Bucket {
	switch b := Bucket(strings.ToLower(strings.TrimSpace(raw))); b {
	case BucketYoungAdult, BucketJuvenileFiction, BucketJuvenileNonfiction,
		BucketLiterature, BucketBiography, BucketPoetryHumor,
		BucketEarlyReaders, BucketMiddleGrade, BucketEducation,
		BucketJuvenileOther:
		return b
	default:
		return ""
	}
}

// ErrUpstream marks a failed call to an external catalog API. The
// aggregation layer treats it as "this source is exhausted", never as a
// request-level failure.
var ErrUpstream = errors.New("upstream catalog error")

// Item is the canonical result shape. Raw upstream records never leave
// their catalog client; everything downstream works on Item or the
// intermediate Book/Video records below.
type Item struct {
	ID          string     `json:"id,omitempty"`
	Title       string     `json:"title"`
	Authors     []string   `json:"authors,omitempty"`
	Channel     string     `json:"channel,omitempty"`
	Categories  []string   `json:"categories,omitempty"`
	Buckets     []Bucket   `json:"buckets,omitempty"`
	Thumbnail   string     `json:"thumbnail,omitempty"`
	Link        string     `json:"link,omitempty"`
	Snippet     string     `json:"snippet,omitempty"`
	Mature      bool       `json:"mature,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// BookRecord is what the book catalog client hands to the pipeline: parsed
// and flattened, but not yet classified or safety-filtered.
type BookRecord struct {
	ID             string
	Title          string
	Authors        []string
	Categories     []string
	MaturityRating string
	Thumbnail      string
	PreviewLink    string
	CanonicalLink  string
	InfoLink       string
	Description    string
	Snippet        string
}

// BookPage is one upstream page of book results.
type BookPage struct {
	Items      []BookRecord
	TotalItems int
}

// VideoRecord is the video catalog client's parsed output.
type VideoRecord struct {
	ID          string
	Title       string
	ChannelID   string
	Channel     string
	Description string
	Thumbnail   string
	CategoryID  string
	PublishedAt *time.Time
}

// VideoPage is one upstream page of video results. NextPageToken is empty
// when the source is exhausted.
type VideoPage struct {
	Items         []VideoRecord
	NextPageToken string
}

// QueryExpression is a single upstream-ready search string. Juvenile marks
// expressions biased toward children's subjects; the flag is metadata for
// post-filtering and is never sent upstream.
type QueryExpression struct {
	Query    string
	Juvenile bool
}

// VideoQuery pairs a natural-language phrase with the upstream category it
// should be searched under. Music flags the category that gets the stricter
// kids-music channel checks.
type VideoQuery struct {
	Query      string
	CategoryID string
	Music      bool
}

// SearchRequest is a normalized discovery request for either mode.
type SearchRequest struct {
	Mode      Mode
	Query     string
	Bucket    Bucket
	Language  string
	Page      int
	PageSize  int
	IncludeYA bool
	Debug     bool
	NoCache   bool
}

const (
	DefaultPageSize = 12
	MaxPageSize     = 40
)

// Normalize clamps page and pageSize into valid ranges. Malformed paging
// input is corrected rather than rejected, so search endpoints keep an
// always-200 contract.
func (r SearchRequest) Normalize() SearchRequest {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize <= 0 {
		r.PageSize = DefaultPageSize
	}
	if r.PageSize > MaxPageSize {
		r.PageSize = MaxPageSize
	}
	return r
}

// DebugCounters is the operator view returned instead of the page payload
// when debug=true.
type DebugCounters struct {
	Queries      []string `json:"queries"`
	RawSeen      int      `json:"rawSeen"`
	WithThumb    int      `json:"withThumb"`
	WithoutThumb int      `json:"withoutThumb"`
	CoverRate    float64  `json:"coverRate"`
	Exhausted    bool     `json:"exhausted"`
}

// SearchResponse is the page payload for both modes. TotalApprox is the
// upstream's own estimate and is only populated for books.
type SearchResponse struct {
	Items       []Item         `json:"items"`
	Page        int            `json:"page"`
	PageSize    int            `json:"pageSize"`
	HasMore     bool           `json:"hasMore"`
	TotalApprox int            `json:"totalApprox,omitempty"`
	ElapsedMS   int64          `json:"elapsedMs"`
	Debug       *DebugCounters `json:"-"`
}

// SourceDiagnostics reports per-upstream health for operators.
type SourceDiagnostics struct {
	Name                string     `json:"name"`
	Configured          bool       `json:"configured"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	LastQuery           string     `json:"lastQuery,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}
