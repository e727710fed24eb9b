package search

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"kidshelf/discovery/internal/domain"
	"kidshelf/discovery/internal/metrics"
)

const (
	sourceBooks  = "books"
	sourceVideos = "videos"

	sourceFailureThreshold = 3
	sourceBlockBase        = 2 * time.Minute
	sourceBlockMax         = 15 * time.Minute
)

type sourceHealth struct {
	consecutiveFailures int
	blockedUntil        time.Time
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastTimeout         bool
	lastQuery           string
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
}

func (s *Service) isSourceBlocked(sourceName string, now time.Time) (bool, time.Time, string) {
	if s == nil {
		return false, time.Time{}, ""
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	state := s.health[sourceName]
	if state == nil {
		return false, time.Time{}, ""
	}
	if state.blockedUntil.IsZero() || now.After(state.blockedUntil) {
		return false, time.Time{}, ""
	}
	return true, state.blockedUntil, state.lastError
}

func (s *Service) recordSourceResult(sourceName, query string, err error, latency time.Duration, now time.Time) {
	if s == nil {
		return
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	state := s.health[sourceName]
	if state == nil {
		state = &sourceHealth{}
		s.health[sourceName] = state
	}
	state.totalRequests++
	state.lastQuery = strings.TrimSpace(query)
	if latency > 0 {
		state.lastLatency = latency
		metrics.SourceRequestDuration.WithLabelValues(sourceName).Observe(latency.Seconds())
	}
	state.lastTimeout = isTimeoutLikeError(err)
	if state.lastTimeout {
		state.timeoutCount++
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.blockedUntil = time.Time{}
		state.lastError = ""
		state.lastSuccessAt = now
		metrics.SourceRequestsTotal.WithLabelValues(sourceName, "ok").Inc()
		metrics.SourceAvailable.WithLabelValues(sourceName).Set(1)
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()

	status := "error"
	if state.lastTimeout {
		status = "timeout"
	}
	metrics.SourceRequestsTotal.WithLabelValues(sourceName, status).Inc()

	if state.consecutiveFailures >= sourceFailureThreshold {
		state.blockedUntil = now.Add(exponentialBlockDuration(state.consecutiveFailures))
		metrics.SourceAvailable.WithLabelValues(sourceName).Set(0)
	}
}

// exponentialBlockDuration calculates how long to block a source based on
// consecutive failures: baseDuration × 2^(failures - threshold), capped at 15min.
func exponentialBlockDuration(consecutiveFailures int) time.Duration {
	exponent := consecutiveFailures - sourceFailureThreshold
	if exponent < 0 {
		exponent = 0
	}
	d := sourceBlockBase
	for i := 0; i < exponent; i++ {
		d *= 2
		if d > sourceBlockMax {
			return sourceBlockMax
		}
	}
	return d
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}

// SourceDiagnostics reports health state for both upstream catalogs.
func (s *Service) SourceDiagnostics() []domain.SourceDiagnostics {
	configured := map[string]bool{
		sourceBooks:  s.booksConfigured,
		sourceVideos: s.videosConfigured,
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	items := make([]domain.SourceDiagnostics, 0, len(configured))
	for name, ok := range configured {
		item := domain.SourceDiagnostics{
			Name:       name,
			Configured: ok,
		}
		if state := s.health[name]; state != nil {
			item.ConsecutiveFailures = state.consecutiveFailures
			if !state.blockedUntil.IsZero() {
				blockedUntil := state.blockedUntil
				item.BlockedUntil = &blockedUntil
			}
			item.LastError = state.lastError
			if !state.lastSuccessAt.IsZero() {
				lastSuccessAt := state.lastSuccessAt
				item.LastSuccessAt = &lastSuccessAt
			}
			if !state.lastFailureAt.IsZero() {
				lastFailureAt := state.lastFailureAt
				item.LastFailureAt = &lastFailureAt
			}
			item.LastLatencyMS = state.lastLatency.Milliseconds()
			item.LastTimeout = state.lastTimeout
			item.LastQuery = state.lastQuery
			item.TotalRequests = state.totalRequests
			item.TotalFailures = state.totalFailures
			item.TimeoutCount = state.timeoutCount
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}
