// Package config loads and validates application configuration from
// environment variables.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port           string
	Address        string
	Env            string
	LogLevel       string
	LogDir         string
	MaxRequestBody int64 // Maximum request body size in bytes
	MaxHeaderSize  int64 // Maximum header size in bytes

	MinsalAPIBase string        // Base URL of the MINSAL pharmacy web service
	HTTPTimeout   time.Duration // Timeout for upstream MINSAL requests
	UpdateTimes   string        // Daily refresh times, semicolon separated ("06:00;18:00")
	Timezone      string        // IANA zone used for open-now evaluation
	SQLitePath    string        // Snapshot database path

	RedisAddr string // Optional; empty selects the in-memory cache

	CacheTTLCritical time.Duration // nearby / open-now results
	CacheTTLHigh     time.Duration // comuna search results
	CacheTTLMedium   time.Duration // commune listings
	CacheTTLLow      time.Duration // static metadata

	FuzzyThreshold  float64 // Minimum similarity for a fuzzy comuna match
	DefaultRadiusKm float64
	MaxResults      int

	GeminiAPIKey    string        // Optional; empty disables the LLM fallback
	FallbackTimeout time.Duration // Budget for one LLM fallback call
	AliasesFile     string        // Optional YAML file with extra comuna aliases
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnvWithDefault("PORT", "8000"),
		Address:        getEnvWithDefault("ADDRESS", "127.0.0.1"),
		Env:            getEnvWithDefault("ENV", "dev"),
		LogLevel:       getEnvWithDefault("LOG_LEVEL", "info"),
		LogDir:         getEnvWithDefault("LOG_DIR", "logs"),
		MaxRequestBody: getInt64EnvWithDefault("MAX_REQUEST_BODY", 1048576), // 1MB default
		MaxHeaderSize:  getInt64EnvWithDefault("MAX_HEADER_SIZE", 1048576),  // 1MB default

		MinsalAPIBase: getEnvWithDefault("MINSAL_API_BASE", "https://farmanet.minsal.cl/index.php/ws"),
		HTTPTimeout:   getSecondsEnvWithDefault("MINSAL_HTTP_TIMEOUT", 30),
		UpdateTimes:   getEnvWithDefault("UPDATE_TIMES", "06:00;18:00"),
		Timezone:      getEnvWithDefault("TIMEZONE", "America/Santiago"),
		SQLitePath:    getEnvWithDefault("SQLITE_PATH", "farmacias.db"),

		RedisAddr: os.Getenv("REDIS_ADDR"),

		CacheTTLCritical: getSecondsEnvWithDefault("CACHE_TTL_CRITICAL", 300),
		CacheTTLHigh:     getSecondsEnvWithDefault("CACHE_TTL_HIGH", 1800),
		CacheTTLMedium:   getSecondsEnvWithDefault("CACHE_TTL_MEDIUM", 21600),
		CacheTTLLow:      getSecondsEnvWithDefault("CACHE_TTL_LOW", 86400),

		FuzzyThreshold:  getFloatEnvWithDefault("FUZZY_THRESHOLD", 0.75),
		DefaultRadiusKm: getFloatEnvWithDefault("DEFAULT_RADIUS_KM", 10),
		MaxResults:      getIntEnvWithDefault("MAX_RESULTS", 50),

		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		FallbackTimeout: getSecondsEnvWithDefault("FALLBACK_TIMEOUT", 5),
		AliasesFile:     os.Getenv("ALIASES_FILE"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validateConfig validates all configuration values
func validateConfig(cfg *Config) error {
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}
	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}
	if err := validateEnv(cfg.Env); err != nil {
		return fmt.Errorf("invalid ENV: %w", err)
	}
	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}
	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}
	if err := validateBaseURL(cfg.MinsalAPIBase); err != nil {
		return fmt.Errorf("invalid MINSAL_API_BASE: %w", err)
	}
	if err := validateUpdateTimes(cfg.UpdateTimes); err != nil {
		return fmt.Errorf("invalid UPDATE_TIMES: %w", err)
	}
	if err := validateTimezone(cfg.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	if err := validateFuzzyThreshold(cfg.FuzzyThreshold); err != nil {
		return fmt.Errorf("invalid FUZZY_THRESHOLD: %w", err)
	}
	if err := validateRadius(cfg.DefaultRadiusKm); err != nil {
		return fmt.Errorf("invalid DEFAULT_RADIUS_KM: %w", err)
	}
	if err := validateMaxResults(cfg.MaxResults); err != nil {
		return fmt.Errorf("invalid MAX_RESULTS: %w", err)
	}
	for name, ttl := range map[string]time.Duration{
		"CACHE_TTL_CRITICAL": cfg.CacheTTLCritical,
		"CACHE_TTL_HIGH":     cfg.CacheTTLHigh,
		"CACHE_TTL_MEDIUM":   cfg.CacheTTLMedium,
		"CACHE_TTL_LOW":      cfg.CacheTTLLow,
	} {
		if ttl <= 0 {
			return fmt.Errorf("invalid %s: must be positive, got %s", name, ttl)
		}
	}
	if cfg.HTTPTimeout <= 0 {
		return fmt.Errorf("invalid MINSAL_HTTP_TIMEOUT: must be positive, got %s", cfg.HTTPTimeout)
	}
	if cfg.FallbackTimeout <= 0 {
		return fmt.Errorf("invalid FALLBACK_TIMEOUT: must be positive, got %s", cfg.FallbackTimeout)
	}

	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}

	return nil
}

// validateAddress validates the ADDRESS environment variable
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	if address == "127.0.0.1" || address == "::1" || address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	// Binding a public IP directly is almost always a deployment mistake
	// behind the usual reverse proxy setup.
	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, use a private range or 0.0.0.0", address)
	}

	return nil
}

// validateEnv validates the ENV environment variable
func validateEnv(env string) error {
	if env == "" {
		return fmt.Errorf("ENV cannot be empty")
	}

	validEnvs := []string{"dev", "staging", "prod", "test"}
	env = strings.ToLower(env)

	for _, validEnv := range validEnvs {
		if env == validEnv {
			return nil
		}
	}

	return fmt.Errorf("ENV must be one of: %v, got: %s", validEnvs, env)
}

// validateLogLevel validates the LOG_LEVEL environment variable
func validateLogLevel(logLevel string) error {
	if logLevel == "" {
		return fmt.Errorf("LOG_LEVEL cannot be empty")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	logLevel = strings.ToLower(logLevel)

	for _, level := range validLevels {
		if logLevel == level {
			return nil
		}
	}

	return fmt.Errorf("LOG_LEVEL must be one of: %v, got: %s", validLevels, logLevel)
}

// validateSizeLimit validates size limit configuration values
func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}

	if size > 100*1024*1024 { // 100MB
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}

	return nil
}

// validateBaseURL checks the upstream service URL is usable.
func validateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("base URL is not parseable: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL must use http or https, got: %s", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("base URL is missing a host: %s", raw)
	}

	return nil
}

// validateUpdateTimes checks the semicolon-separated refresh schedule.
func validateUpdateTimes(times string) error {
	if times == "" {
		return fmt.Errorf("UPDATE_TIMES cannot be empty")
	}

	for _, entry := range strings.Split(times, ";") {
		entry = strings.TrimSpace(entry)
		if _, err := time.Parse("15:04", entry); err != nil {
			return fmt.Errorf("entry %q is not a valid HH:MM time: %w", entry, err)
		}
	}

	return nil
}

// validateTimezone checks the zone exists in the IANA database.
func validateTimezone(tz string) error {
	if tz == "" {
		return fmt.Errorf("TIMEZONE cannot be empty")
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", tz, err)
	}
	return nil
}

// validateFuzzyThreshold keeps the similarity cutoff in (0, 1].
func validateFuzzyThreshold(threshold float64) error {
	if threshold <= 0 || threshold > 1 {
		return fmt.Errorf("FUZZY_THRESHOLD must be in (0, 1], got: %g", threshold)
	}
	return nil
}

func validateRadius(radius float64) error {
	if radius <= 0 {
		return fmt.Errorf("DEFAULT_RADIUS_KM must be positive, got: %g", radius)
	}
	if radius > 500 {
		return fmt.Errorf("DEFAULT_RADIUS_KM is too large (max 500), got: %g", radius)
	}
	return nil
}

func validateMaxResults(max int) error {
	if max < 1 || max > 100 {
		return fmt.Errorf("MAX_RESULTS must be between 1 and 100, got: %d", max)
	}
	return nil
}

// Location resolves the configured timezone. Validation already proved
// the zone loads, so failures here fall back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// UpdateTimesList returns the refresh schedule as individual HH:MM
// entries.
func (c *Config) UpdateTimesList() []string {
	parts := strings.Split(c.UpdateTimes, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getFloatEnvWithDefault gets an environment variable as float64 with a default value
func getFloatEnvWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getSecondsEnvWithDefault reads an integer number of seconds as a
// time.Duration.
func getSecondsEnvWithDefault(key string, defaultSeconds int) time.Duration {
	return time.Duration(getIntEnvWithDefault(key, defaultSeconds)) * time.Second
}
