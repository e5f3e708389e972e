package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
	"github.com/cryptoshelf/shelfsync/internal/http/response"
	"github.com/cryptoshelf/shelfsync/internal/ratelimit"
)

const rateLimitMessage = "Too many requests. Please try again later."

// RateLimitMiddleware rate limits requests by client IP. scope separates
// the buckets of different route groups. Rejected requests get a 429
// RATE_LIMITED envelope.
func RateLimitMiddleware(limiter *ratelimit.KeyedRateLimiter, scope string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r.RemoteAddr, r.Header.Get)
			if !limiter.Allow(scope + ":" + ip) {
				logger.Warn("Rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
				)
				response.Error(w, domainerrors.RateLimited(rateLimitMessage), logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeLimit is the huma form of RateLimitMiddleware for write operations.
func (s *Server) writeLimit(ctx huma.Context, next func(huma.Context)) {
	if s.limiter == nil {
		next(ctx)
		return
	}
	ip := getClientIP(ctx.RemoteAddr(), ctx.Header)
	if !s.limiter.Allow("write:" + ip) {
		s.logger.Warn("Rate limit exceeded",
			"ip", ip,
			"path", ctx.URL().Path,
		)
		_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, rateLimitMessage,
			domainerrors.RateLimited(rateLimitMessage))
		return
	}
	next(ctx)
}

// getClientIP returns the first X-Forwarded-For entry, then X-Real-IP, then
// the remote address without its port.
func getClientIP(remoteAddr string, header func(string) string) string {
	if xff := header("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := header("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
