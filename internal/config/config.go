// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Chunk store backends.
const (
	ChunkBackendBadger = "badger"
	ChunkBackendSQLite = "sqlite"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Data    DataConfig
	Index   IndexConfig
	Server  ServerConfig
	Ingest  IngestConfig
	Rebuild RebuildConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds on-disk storage configuration.
type DataConfig struct {
	BasePath     string // Root for the caption index and chunk store
	ChunkBackend string // badger or sqlite (default: badger)
}

// IndexConfig holds segmentation and retrieval tuning.
type IndexConfig struct {
	ChunkWindow    time.Duration // Accumulated caption duration closing a chunk (default: 5m)
	FallbackWindow time.Duration // Half-width of the caption fallback range (default: 1m)
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 60s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)

	// ShutdownTimeout bounds each component's graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration

	CORSOrigins  []string // Allowed CORS origins (default: *)
	RequestRate  float64  // Requests per second per client IP; 0 disables limiting
	RequestBurst int      // Request burst per client IP (default: 20)
}

// IngestConfig holds caption acquisition configuration.
type IngestConfig struct {
	CaptionsPath   string        // Directory FileSource reads <id>.vtt/.srt from (optional)
	WatchPath      string        // Drop folder indexed automatically (optional)
	AcquireTimeout time.Duration // Bound on a single acquisition (default: 30s)
}

// RebuildConfig throttles rebuilds per transcript.
type RebuildConfig struct {
	Rate  float64 // Rebuilds per second per transcript; 0 disables throttling
	Burst int
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load is LoadConfig with explicit command-line arguments.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("transcript-server", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base path for index storage")
	chunkBackend := fs.String("chunk-backend", "", "Chunk store backend (badger, sqlite)")
	chunkWindow := fs.String("chunk-window", "", "Caption duration per context chunk (default: 5m)")
	fallbackWindow := fs.String("fallback-window", "", "Fallback caption range half-width (default: 1m)")

	// Server flags
	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 60s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	shutdownTimeout := fs.String("shutdown-timeout", "", "Graceful shutdown timeout per component (default: 30s)")
	corsOrigins := fs.String("cors-origins", "", "Comma-separated allowed CORS origins (default: *)")
	requestRate := fs.String("request-rate", "", "Requests per second per client IP (0 disables)")
	requestBurst := fs.String("request-burst", "", "Request burst per client IP (default: 20)")

	// Ingest flags
	captionsPath := fs.String("captions-path", "", "Directory of <id>.vtt/.srt caption files")
	watchPath := fs.String("watch-path", "", "Drop folder to index automatically")
	acquireTimeout := fs.String("acquire-timeout", "", "Caption acquisition timeout (default: 30s)")

	rebuildRate := fs.String("rebuild-rate", "", "Rebuilds per second per transcript (0 disables)")
	rebuildBurst := fs.String("rebuild-burst", "", "Rebuild burst per transcript (default: 3)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath:     getConfigValue(*dataPath, "DATA_PATH", ""),
			ChunkBackend: strings.ToLower(getConfigValue(*chunkBackend, "CHUNK_BACKEND", ChunkBackendBadger)),
		},
		Server: ServerConfig{
			Port:         getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			CORSOrigins:  splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", "*")),
			RequestBurst: getIntConfigValue(*requestBurst, "SERVER_REQUEST_BURST", 20),
		},
		Ingest: IngestConfig{
			CaptionsPath: getConfigValue(*captionsPath, "CAPTIONS_PATH", ""),
			WatchPath:    getConfigValue(*watchPath, "WATCH_PATH", ""),
		},
		Rebuild: RebuildConfig{
			Burst: getIntConfigValue(*rebuildBurst, "REBUILD_BURST", 3),
		},
	}

	rate, err := getFloatConfigValue(*rebuildRate, "REBUILD_RATE", 0.2)
	if err != nil {
		return nil, err
	}
	cfg.Rebuild.Rate = rate

	if cfg.Server.RequestRate, err = getFloatConfigValue(*requestRate, "SERVER_REQUEST_RATE", 0); err != nil {
		return nil, err
	}

	durations := []struct {
		flagValue string
		envKey    string
		def       string
		dst       *time.Duration
	}{
		{*chunkWindow, "CHUNK_WINDOW", "5m", &cfg.Index.ChunkWindow},
		{*fallbackWindow, "FALLBACK_WINDOW", "1m", &cfg.Index.FallbackWindow},
		{*readTimeout, "SERVER_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{*writeTimeout, "SERVER_WRITE_TIMEOUT", "60s", &cfg.Server.WriteTimeout},
		{*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
		{*shutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT", "30s", &cfg.Server.ShutdownTimeout},
		{*acquireTimeout, "ACQUIRE_TIMEOUT", "30s", &cfg.Ingest.AcquireTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = getDurationConfigValue(d.flagValue, d.envKey, d.def); err != nil {
			return nil, err
		}
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	switch c.Data.ChunkBackend {
	case ChunkBackendBadger, ChunkBackendSQLite:
	default:
		return fmt.Errorf("invalid chunk backend: %s (must be badger or sqlite)", c.Data.ChunkBackend)
	}

	if c.Index.ChunkWindow <= 0 {
		return errors.New("chunk window must be positive")
	}
	if c.Index.FallbackWindow < 0 {
		return errors.New("fallback window cannot be negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.RequestRate < 0 {
		return errors.New("request rate cannot be negative")
	}
	if c.Server.RequestRate > 0 && c.Server.RequestBurst < 1 {
		return errors.New("request burst must be at least 1")
	}
	if c.Rebuild.Rate < 0 {
		return errors.New("rebuild rate cannot be negative")
	}
	if c.Rebuild.Rate > 0 && c.Rebuild.Burst < 1 {
		return errors.New("rebuild burst must be at least 1")
	}

	return nil
}

// ChunkStorePath returns where the configured chunk backend keeps its data.
func (c *Config) ChunkStorePath() string {
	if c.Data.ChunkBackend == ChunkBackendSQLite {
		return filepath.Join(c.Data.BasePath, "chunks.db")
	}
	return filepath.Join(c.Data.BasePath, "chunks")
}

// expandPaths makes every configured path absolute, defaulting the data path.
func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	if c.Data.BasePath, err = expandPath(c.Data.BasePath, filepath.Join(homeDir, "TranscriptServer", "data")); err != nil {
		return fmt.Errorf("invalid data path: %w", err)
	}
	if c.Ingest.CaptionsPath, err = expandPath(c.Ingest.CaptionsPath, ""); err != nil {
		return fmt.Errorf("invalid captions path: %w", err)
	}
	if c.Ingest.WatchPath, err = expandPath(c.Ingest.WatchPath, ""); err != nil {
		return fmt.Errorf("invalid watch path: %w", err)
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned as-is.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) (float64, error) {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return result, nil
}

// getDurationConfigValue parses a duration from flag, env var, or default.
func getDurationConfigValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
