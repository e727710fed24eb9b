package apihttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"kidshelf/discovery/internal/domain"
)

// SearchService is the discovery engine consumed by the HTTP layer.
type SearchService interface {
	Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error)
	SourceDiagnostics() []domain.SourceDiagnostics
}

type Server struct {
	search SearchService
	logger *slog.Logger

	defaultLanguage string
	ingressRPS      float64
	ingressBurst    int
}

const maxQueryLength = 200

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithDefaultLanguage sets the language applied to requests that omit the
// lang parameter.
func WithDefaultLanguage(language string) ServerOption {
	return func(s *Server) {
		s.defaultLanguage = strings.TrimSpace(language)
	}
}

func WithIngressLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 {
			s.ingressRPS = rps
		}
		if burst > 0 {
			s.ingressBurst = burst
		}
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search:       searchService,
		logger:       slog.Default(),
		ingressRPS:   10,
		ingressBurst: 20,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/books", s.handleBooks)
	mux.HandleFunc("/api/videos", s.handleVideos)
	mux.HandleFunc("/api/sources/health", s.handleSourcesHealth)
	mux.HandleFunc("/api/sources/test", s.handleSourceTest)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "discovery",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(s.ingressRPS, s.ingressBurst, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	s.handleSearch(w, r, "/api/books", domain.ModeBook)
}

func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	s.handleSearch(w, r, "/api/videos", domain.ModeVideo)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, route string, mode domain.Mode) {
	if r.URL.Path != route {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	request := parseSearchRequest(r, mode)
	if request.Language == "" {
		request.Language = s.defaultLanguage
	}
	response, err := s.search.Search(r.Context(), request)
	if err != nil {
		s.logger.Warn("search request failed",
			slog.String("mode", string(mode)),
			slog.String("query", truncate(request.Query, 80)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
		return
	}

	s.logger.Info("search completed",
		slog.String("mode", string(mode)),
		slog.String("query", truncate(request.Query, 80)),
		slog.Int("items", len(response.Items)),
		slog.Bool("hasMore", response.HasMore),
		slog.Int64("elapsedMs", response.ElapsedMS),
	)

	if request.Debug && response.Debug != nil {
		writeJSON(w, http.StatusOK, response.Debug)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// parseSearchRequest never rejects: malformed paging and filter values are
// clamped to their defaults so the search endpoints always answer 200.
func parseSearchRequest(r *http.Request, mode domain.Mode) domain.SearchRequest {
	q := r.URL.Query()

	query := strings.TrimSpace(q.Get("q"))
	if len(query) > maxQueryLength {
		// Back up to a rune boundary so the truncated query stays valid UTF-8.
		cut := maxQueryLength
		for cut > 0 && !utf8.RuneStart(query[cut]) {
			cut--
		}
		query = query[:cut]
	}

	return domain.SearchRequest{
		Mode:      mode,
		Query:     query,
		Bucket:    domain.ParseBucket(q.Get("bucket")),
		Language:  strings.TrimSpace(q.Get("lang")),
		Page:      parseClampedInt(q.Get("page"), 1),
		PageSize:  parseClampedInt(q.Get("pageSize"), domain.DefaultPageSize),
		IncludeYA: parseOptionalBool(q.Get("includeYA")),
		Debug:     parseOptionalBool(q.Get("debug")),
		NoCache:   parseOptionalBool(q.Get("nocache")) || parseOptionalBool(q.Get("noCache")),
	}.Normalize()
}

func (s *Server) handleSourcesHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/sources/health" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.search.SourceDiagnostics(),
	})
}

// handleSourceTest runs one small live search against a single source,
// bypassing the cache. Operators use it to verify API keys and quotas.
func (s *Server) handleSourceTest(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/sources/test" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	source := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("source")))
	var mode domain.Mode
	switch source {
	case "books":
		mode = domain.ModeBook
	case "videos":
		mode = domain.ModeVideo
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "source must be books or videos")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		query = "dinosaurs"
	}

	startedAt := time.Now()
	response, err := s.search.Search(r.Context(), domain.SearchRequest{
		Mode:     mode,
		Query:    query,
		Page:     1,
		PageSize: 10,
		NoCache:  true,
	})
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"source":    source,
			"query":     query,
			"ok":        false,
			"elapsedMs": time.Since(startedAt).Milliseconds(),
			"error":     err.Error(),
		})
		return
	}

	sample := make([]string, 0, 3)
	for _, item := range response.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		sample = append(sample, truncate(title, 120))
		if len(sample) >= 3 {
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"source":    source,
		"query":     query,
		"ok":        len(response.Items) > 0,
		"count":     len(response.Items),
		"elapsedMs": response.ElapsedMS,
		"sample":    sample,
	})
}

func parseClampedInt(raw string, fallback int) int {
	value := strings.TrimSpace(raw)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
