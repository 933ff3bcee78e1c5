package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/printflow/internal/ratelimit"
)

type RateLimiter interface {
	Allow(ctx context.Context, subject string, cost int) (ratelimit.Decision, error)
}

// routeCosts weighs each limited route by the work it triggers. Print
// routes resample to full print resolution; batch captures run ffmpeg once
// per timestamp; mask previews stay at the source resolution.
var routeCosts = map[string]int{
	"/v1/print":                     8,
	"/v1/print/jobs":                8,
	"/v1/screenshots/batch":         4,
	"/v1/screenshots":               2,
	"/v1/screenshots/feather":       1,
	"/v1/screenshots/corner-radius": 1,
}

func routeCost(route string) int {
	if cost, ok := routeCosts[route]; ok {
		return cost
	}
	return 1
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !shouldRateLimit(r) {
			next.ServeHTTP(w, r)
			return
		}

		subject := s.userID(r)
		if subject == "" {
			subject = "anonymous"
		}
		route := routeLabel(r.URL.Path)
		subject = subject + ":" + route

		decision, err := s.rateLimiter.Allow(r.Context(), subject, routeCost(route))
		if err != nil {
			s.logger.Printf("rate limiter check failed for subject=%s err=%v", subject, err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := max(1, int(decision.RetryAfter.Round(time.Second).Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		s.metrics.rateLimitRejected.WithLabelValues(route).Inc()
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error: "rate limit exceeded",
			Code:  "rate_limited",
		})
	})
}

// shouldRateLimit limits the mutating /v1 routes; each one decodes or
// renders an image or pulls a remote video.
func shouldRateLimit(r *http.Request) bool {
	return r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/v1/")
}
