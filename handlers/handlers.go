// Package handlers implements the HTTP endpoints of the pharmacy API.
// Each exported method answers one route; routing and middleware live
// in the server package.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/farmaturno/farmacias-api/cache"
	"github.com/farmaturno/farmacias-api/interfaces"
	"github.com/farmaturno/farmacias-api/logging"
	"github.com/farmaturno/farmacias-api/search"
)

// HTTPHandler serves the pharmacy API with injected dependencies.
type HTTPHandler struct {
	dataStore interfaces.DataStore
	searcher  *search.Service
	results   *cache.Cache
	health    interfaces.HealthChecker
	location  *time.Location
}

// NewHTTPHandler creates a new HTTP handler. The location drives the
// clock fields of the stats payload; nil means the server's local zone.
func NewHTTPHandler(dataStore interfaces.DataStore, searcher *search.Service, results *cache.Cache, health interfaces.HealthChecker, location *time.Location) *HTTPHandler {
	if location == nil {
		location = time.Local
	}
	return &HTTPHandler{
		dataStore: dataStore,
		searcher:  searcher,
		results:   results,
		health:    health,
		location:  location,
	}
}

// searchOptions reads the filter parameters shared by every search
// route: turno (on-duty only), abierto (open right now) and limit.
func searchOptions(r *http.Request) (search.Options, error) {
	var opts search.Options

	onDuty, err := queryFlag(r, "turno")
	if err != nil {
		return opts, err
	}
	openNow, err := queryFlag(r, "abierto")
	if err != nil {
		return opts, err
	}
	opts.OnDutyOnly = onDuty
	opts.OpenNowOnly = openNow

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return opts, fmt.Errorf("limit must be a positive integer, got %q", raw)
		}
		opts.Limit = limit
	}
	return opts, nil
}

// queryFlag reads a boolean query parameter. Absent means false.
func queryFlag(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", name, raw)
	}
	return value, nil
}

// coordinateParams reads lat and lng, which must arrive together.
func coordinateParams(r *http.Request) (lat, lng float64, err error) {
	latRaw := r.URL.Query().Get("lat")
	lngRaw := r.URL.Query().Get("lng")
	if latRaw == "" || lngRaw == "" {
		return 0, 0, errors.New("lat and lng are required")
	}

	lat, err = strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("lat must be a number, got %q", latRaw)
	}
	lng, err = strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("lng must be a number, got %q", lngRaw)
	}
	return lat, lng, nil
}

// radiusParam reads the optional radius in kilometers. Absent means 0,
// which selects the configured default downstream.
func radiusParam(r *http.Request) (float64, error) {
	raw := r.URL.Query().Get("radius")
	if raw == "" {
		return 0, nil
	}
	radius, err := strconv.ParseFloat(raw, 64)
	if err != nil || radius <= 0 {
		return 0, fmt.Errorf("radius must be a positive number, got %q", raw)
	}
	return radius, nil
}

// SearchPharmacies answers GET /api/search. With a comuna the free-text
// name is resolved through the matching tiers; without one the dataset
// is listed head-first, filtered the same way.
func (h *HTTPHandler) SearchPharmacies(w http.ResponseWriter, r *http.Request) {
	opts, err := searchOptions(r)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	fallback, err := queryFlag(r, "fallback")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts.AllowFallback = fallback

	comuna := strings.TrimSpace(r.URL.Query().Get("comuna"))
	if comuna == "" {
		RespondWithJSON(w, r, http.StatusOK, h.searcher.Browse(opts))
		return
	}

	env, err := h.searcher.SearchByArea(r.Context(), comuna, opts)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	RespondWithJSON(w, r, http.StatusOK, env)
}

// FindNearby answers GET /api/nearby with pharmacies ordered by
// distance from the given point.
func (h *HTTPHandler) FindNearby(w http.ResponseWriter, r *http.Request) {
	opts, err := searchOptions(r)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	lat, lng, err := coordinateParams(r)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	radius, err := radiusParam(r)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts.RadiusKm = radius

	env, err := h.searcher.SearchByLocation(r.Context(), lat, lng, opts)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	RespondWithJSON(w, r, http.StatusOK, env)
}

// ServeOpenNow answers GET /api/open-now. With coordinates it ranks by
// distance, with a comuna it resolves the name, and with neither it
// lists every pharmacy open at this moment.
func (h *HTTPHandler) ServeOpenNow(w http.ResponseWriter, r *http.Request) {
	opts, err := searchOptions(r)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts.OpenNowOnly = true

	query := r.URL.Query()
	if query.Get("lat") != "" || query.Get("lng") != "" {
		lat, lng, err := coordinateParams(r)
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		radius, err := radiusParam(r)
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.RadiusKm = radius

		env, err := h.searcher.SearchByLocation(r.Context(), lat, lng, opts)
		if err != nil {
			respondWithServiceError(w, err)
			return
		}
		RespondWithJSON(w, r, http.StatusOK, env)
		return
	}

	if comuna := strings.TrimSpace(query.Get("comuna")); comuna != "" {
		env, err := h.searcher.SearchByArea(r.Context(), comuna, opts)
		if err != nil {
			respondWithServiceError(w, err)
			return
		}
		RespondWithJSON(w, r, http.StatusOK, env)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, h.searcher.Browse(opts))
}

// ServeCommunes answers GET /api/communes with every comuna that has at
// least one pharmacy, in canonical spelling.
func (h *HTTPHandler) ServeCommunes(w http.ResponseWriter, r *http.Request) {
	comunas := h.dataStore.GetComunas()
	if comunas == nil {
		comunas = []string{}
	}
	RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"communes": comunas,
		"count":    len(comunas),
	})
}

// ServeStats answers GET /api/stats with dataset-level counts.
func (h *HTTPHandler) ServeStats(w http.ResponseWriter, r *http.Request) {
	pharmacies := h.dataStore.GetPharmacies()
	onDuty := 0
	for i := range pharmacies {
		if pharmacies[i].EsTurno {
			onDuty++
		}
	}

	now := time.Now().In(h.location)
	RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"total":        len(pharmacies),
		"turno":        onDuty,
		"regular":      len(pharmacies) - onDuty,
		"communes":     len(h.dataStore.GetComunas()),
		"last_update":  h.dataStore.GetLastUpdated().Format(time.RFC3339),
		"current_time": now.Format("15:04:05"),
		"current_date": now.Format("2006-01-02"),
	})
}

// CacheStats answers GET /api/cache/stats with hit/miss counters, the
// backend size figures and the TTL tiers in force.
func (h *HTTPHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	policy := h.results.Policy()
	RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"enabled": h.results.Enabled(),
		"stats":   h.results.Stats(r.Context()),
		"ttl_seconds": map[string]float64{
			"critical": policy.Critical.Seconds(),
			"high":     policy.High.Seconds(),
			"medium":   policy.Medium.Seconds(),
			"low":      policy.Low.Seconds(),
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// InvalidateCache answers POST /api/cache/invalidate by dropping every
// memoized envelope.
func (h *HTTPHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	entries := h.results.Stats(r.Context()).EntryCount
	if err := h.results.InvalidateAll(r.Context()); err != nil {
		logging.Error("Manual cache invalidation failed", "error", err)
		RespondWithError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"status":      "success",
		"invalidated": entries,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

// WarmupCache answers POST /api/cache/warmup by precomputing answers
// for the busiest comunas.
func (h *HTTPHandler) WarmupCache(w http.ResponseWriter, r *http.Request) {
	warmed, err := h.searcher.Warmup(r.Context())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"status":    "success",
		"warmed":    warmed,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthResponse fixes the JSON field order of the health payload.
type HealthResponse struct {
	Status        string         `json:"status"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	UptimeHuman   string         `json:"uptime_human"`
	Data          map[string]any `json:"data"`
	System        map[string]any `json:"system"`
}

// HealthCheck answers GET /health. Status, detail payload and HTTP
// status come from the health checker; process figures are added here.
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, details, httpStatus := h.health.HealthCheck()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	uptime := time.Since(h.dataStore.GetServerStartTime())

	response := HealthResponse{
		Status:        status,
		UptimeSeconds: uptime.Seconds(),
		UptimeHuman:   formatUptimeHuman(uptime),
		Data:          details,
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       int(m.Alloc / 1024 / 1024),
				"total_alloc_mb": int(m.TotalAlloc / 1024 / 1024),
				"sys_mb":         int(m.Sys / 1024 / 1024),
				"num_gc":         m.NumGC,
			},
		},
	}

	RespondWithJSON(w, r, httpStatus, response)
}

// formatUptimeHuman formats duration into a human-readable string
func formatUptimeHuman(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string

	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", seconds))

	return strings.Join(parts, " ")
}
