// Package main wires the pharmacy API together: configuration, logging,
// the dataset refresh pipeline, the result cache, search and the HTTP
// server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/farmaturno/farmacias-api/cache"
	"github.com/farmaturno/farmacias-api/config"
	"github.com/farmaturno/farmacias-api/data"
	"github.com/farmaturno/farmacias-api/handlers"
	"github.com/farmaturno/farmacias-api/health"
	"github.com/farmaturno/farmacias-api/llm"
	"github.com/farmaturno/farmacias-api/logging"
	"github.com/farmaturno/farmacias-api/minsalparser"
	"github.com/farmaturno/farmacias-api/resolver"
	"github.com/farmaturno/farmacias-api/scheduler"
	"github.com/farmaturno/farmacias-api/search"
	"github.com/farmaturno/farmacias-api/server"
	"github.com/farmaturno/farmacias-api/store"
	"github.com/farmaturno/farmacias-api/validation"
)

func init() {
	// Read the env variables from the working directory, falling back
	// to the executable directory for packaged deployments.
	if err := godotenv.Load(); err != nil {
		ex, err := os.Executable()
		if err != nil {
			logging.Error("Failed to get executable path", "error", err)
			os.Exit(1)
		}

		if err := os.Chdir(filepath.Dir(ex)); err != nil {
			logging.Error("Failed to change directory", "error", err)
			os.Exit(1)
		}

		// Best effort; a deployment may configure everything through
		// real environment variables and ship no .env at all.
		_ = godotenv.Load()
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.InitLogger(cfg.LogDir)

	container := data.NewDataContainer(loadAliases(cfg.AliasesFile), cfg.FuzzyThreshold)
	container.SetServerStartTime(time.Now())

	results := cache.New(buildCacheStore(cfg), cache.TTLPolicy{
		Critical: cfg.CacheTTLCritical,
		High:     cfg.CacheTTLHigh,
		Medium:   cfg.CacheTTLMedium,
		Low:      cfg.CacheTTLLow,
	})
	defer results.Close()

	snapshots, err := store.NewSQLiteStore(cfg.SQLitePath)
	if err != nil {
		logging.Error("Failed to open the snapshot store", "error", err, "path", cfg.SQLitePath)
		os.Exit(1)
	}
	defer snapshots.Close()

	validator := validation.NewDataValidator()
	parser := minsalparser.NewMinsalParser(cfg.MinsalAPIBase, cfg.HTTPTimeout)

	sched := scheduler.NewScheduler(container, parser, snapshots, results, validator, scheduler.Config{
		UpdateTimes: cfg.UpdateTimesList(),
		Location:    cfg.Location(),
	})
	if err := sched.Start(); err != nil {
		logging.Error("Failed to start the refresh scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	searcher := search.NewService(container, results, validator, search.ServiceConfig{
		Provider:        buildFallbackProvider(cfg),
		Location:        cfg.Location(),
		FallbackTimeout: cfg.FallbackTimeout,
		DefaultRadiusKm: cfg.DefaultRadiusKm,
		MaxResults:      cfg.MaxResults,
	})

	checker := health.NewHealthChecker(container, cfg.UpdateTimesList(), cfg.Location())
	handler := handlers.NewHTTPHandler(container, searcher, results, checker, cfg.Location())
	srv := server.NewServer(cfg, handler)

	// Preload the common comuna searches so the first callers after a
	// restart do not all pay the cold-cache cost.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()

		if warmed, err := searcher.Warmup(ctx); err != nil {
			logging.Warn("Cache warmup failed", "error", err)
		} else {
			logging.Info("Cache warmup finished", "entries", warmed)
		}
	}()

	// Channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Block until a signal is received
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("Server shutdown failed", "error", err)
	}

	logging.Info("Server shutdown complete")
}

// loadAliases reads the optional comuna alias file. A missing or broken
// file downgrades to the built-in aliases instead of stopping startup.
func loadAliases(path string) map[string]string {
	if path == "" {
		return nil
	}

	aliases, err := resolver.LoadAliases(path)
	if err != nil {
		logging.Warn("Could not load comuna aliases", "file", path, "error", err)
		return nil
	}

	logging.Info("Loaded comuna aliases", "file", path, "count", len(aliases))
	return aliases
}

// buildCacheStore picks Redis when an address is configured and the
// in-memory store otherwise. An unreachable Redis downgrades to memory
// so the API still starts, just without shared cache state.
func buildCacheStore(cfg *config.Config) cache.Store {
	if cfg.RedisAddr == "" {
		logging.Info("Using the in-memory result cache")
		return cache.NewMemoryStore()
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logging.Warn("Redis unreachable, falling back to the in-memory cache",
			"addr", cfg.RedisAddr, "error", err)
		client.Close()
		return cache.NewMemoryStore()
	}

	logging.Info("Using the Redis result cache", "addr", cfg.RedisAddr)
	return cache.NewRedisStore(client)
}

// buildFallbackProvider wires the Gemini comuna fallback when an API key
// is configured. Without a key, staged matching stops at fuzzy.
func buildFallbackProvider(cfg *config.Config) llm.Provider {
	if cfg.GeminiAPIKey == "" {
		return nil
	}

	provider, err := llm.NewGeminiProvider(context.Background(), cfg.GeminiAPIKey, "")
	if err != nil {
		logging.Warn("Could not initialize the LLM fallback", "error", err)
		return nil
	}

	logging.Info("LLM comuna fallback enabled")
	return provider
}
