package api

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"

	domainerrors "github.com/listenupapp/transcript-server/internal/errors"
	"github.com/listenupapp/transcript-server/internal/ratelimit"
)

const tooManyRequestsMessage = "Too many requests. Please try again later."

// RateLimitMiddleware throttles requests per client address and answers 429
// with the error envelope once a client's bucket is empty. It expects
// middleware.RealIP to have run, so RemoteAddr already honors proxy headers.
func RateLimitMiddleware(limiter *ratelimit.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientAddr(r)
			if limiter.Allow(client) {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("Request rate exceeded", "client", client, "path", r.URL.Path)

			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(APIErrorEnvelope{
				Version: EnvelopeVersion,
				Error:   tooManyRequestsMessage,
				Code:    string(domainerrors.CodeRateLimited),
				Message: tooManyRequestsMessage,
			})
		})
	}
}

// clientAddr is RemoteAddr without its port.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
