package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/transcript-server/internal/config"
	"github.com/listenupapp/transcript-server/internal/ratelimit"
)

// RateLimiters holds the keyed limiters. A nil limiter is disabled.
type RateLimiters struct {
	Rebuild  *ratelimit.Limiter // keyed by transcript id
	Requests *ratelimit.Limiter // keyed by client IP
}

// Shutdown implements do.Shutdownable.
func (r *RateLimiters) Shutdown() error {
	if r.Rebuild != nil {
		r.Rebuild.Stop()
	}
	if r.Requests != nil {
		r.Requests.Stop()
	}
	return nil
}

// ProvideRateLimiters provides the rebuild and request limiters.
func ProvideRateLimiters(i do.Injector) (*RateLimiters, error) {
	cfg := do.MustInvoke[*config.Config](i)

	limiters := &RateLimiters{}
	if cfg.Rebuild.Rate > 0 {
		limiters.Rebuild = ratelimit.New(cfg.Rebuild.Rate, cfg.Rebuild.Burst)
	}
	if cfg.Server.RequestRate > 0 {
		limiters.Requests = ratelimit.New(cfg.Server.RequestRate, cfg.Server.RequestBurst)
	}
	return limiters, nil
}
