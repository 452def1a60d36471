// Package providers contains dependency injection providers for the transcript server.
package providers

import (
	"slices"

	"github.com/samber/do/v2"

	"github.com/listenupapp/transcript-server/internal/config"
	"github.com/listenupapp/transcript-server/internal/logger"
)

// ProvideConfig provides configuration loaded from flags, environment and .env.
func ProvideConfig(do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the structured logger and records the effective
// configuration once at startup.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting Transcript Server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Data.BasePath,
		"chunk_backend", cfg.Data.ChunkBackend,
		"chunk_window", cfg.Index.ChunkWindow,
		"fallback_window", cfg.Index.FallbackWindow,
		"rebuild_rate", cfg.Rebuild.Rate,
		"request_rate", cfg.Server.RequestRate,
	)

	if cfg.App.Environment == "production" {
		if slices.Contains(cfg.Server.CORSOrigins, "*") {
			log.Warn("CORS allows every origin in production; set CORS_ORIGINS")
		}
		if cfg.Server.RequestRate == 0 {
			log.Warn("Request rate limiting is disabled in production; set SERVER_REQUEST_RATE")
		}
	}

	return log, nil
}
