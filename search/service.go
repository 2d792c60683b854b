// Package search orchestrates pharmacy queries. It resolves free-text
// comuna phrases, ranks candidates by distance, and memoizes finished
// envelopes in the result cache so repeated questions never recompute.
package search

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/farmaturno/farmacias-api/cache"
	"github.com/farmaturno/farmacias-api/errs"
	"github.com/farmaturno/farmacias-api/geo"
	"github.com/farmaturno/farmacias-api/interfaces"
	"github.com/farmaturno/farmacias-api/llm"
	"github.com/farmaturno/farmacias-api/logging"
	"github.com/farmaturno/farmacias-api/metrics"
	"github.com/farmaturno/farmacias-api/minsalparser/entities"
	"github.com/farmaturno/farmacias-api/normalizer"
	"github.com/farmaturno/farmacias-api/resolver"
)

// fallbackConfidence is reported for comunas recovered by the language
// model. It stays below the fuzzy cap so lexical matches always rank
// higher than recovered ones.
const fallbackConfidence = 0.80

// Options narrows one search. The zero value applies no filters and
// uses the configured defaults for radius, limit and clock.
type Options struct {
	OnDutyOnly    bool
	OpenNowOnly   bool
	RadiusKm      float64   // location searches only, 0 uses the configured default
	Limit         int       // 0 or above the maximum uses the configured maximum
	AllowFallback bool      // permit one language-model call when no lexical tier matches
	Now           time.Time // zero means the current time in the service timezone
}

// Result is one pharmacy in an answer. DistanceKm is set only by
// location searches, where an origin point exists.
type Result struct {
	entities.Pharmacy
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// Envelope is the complete answer to one search. MatchInfo is present
// only for area searches; location searches resolve no text. Count
// always equals len(Pharmacies).
type Envelope struct {
	Pharmacies []Result              `json:"pharmacies"`
	MatchInfo  *resolver.MatchResult `json:"match_info,omitempty"`
	FromCache  bool                  `json:"from_cache"`
	Count      int                   `json:"count"`
}

// ServiceConfig carries the tunables and optional collaborators for a
// Service. Zero values fall back to sensible defaults in NewService.
type ServiceConfig struct {
	Provider        llm.Provider // nil disables the semantic fallback
	Location        *time.Location
	FallbackTimeout time.Duration
	DefaultRadiusKm float64
	MaxResults      int
}

// Service answers area and location queries against the in-memory
// dataset. All methods are safe for concurrent use; the dataset and
// the comuna index are immutable snapshots swapped by the refresh
// pipeline.
type Service struct {
	data      interfaces.DataStore
	results   *cache.Cache
	validator interfaces.DataValidator

	provider        llm.Provider
	location        *time.Location
	fallbackTimeout time.Duration
	defaultRadiusKm float64
	maxResults      int
}

func NewService(data interfaces.DataStore, results *cache.Cache, validator interfaces.DataValidator, cfg ServiceConfig) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.FallbackTimeout <= 0 {
		cfg.FallbackTimeout = 5 * time.Second
	}
	if cfg.DefaultRadiusKm <= 0 {
		cfg.DefaultRadiusKm = 10
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 50
	}

	return &Service{
		data:            data,
		results:         results,
		validator:       validator,
		provider:        cfg.Provider,
		location:        cfg.Location,
		fallbackTimeout: cfg.FallbackTimeout,
		defaultRadiusKm: cfg.DefaultRadiusKm,
		maxResults:      cfg.MaxResults,
	}
}

// SearchByArea resolves a free-text comuna phrase and returns the
// pharmacies inside the matched comuna. An unresolvable phrase yields
// an envelope carrying suggestions, never an error, so callers can
// offer alternatives to the user.
func (s *Service) SearchByArea(ctx context.Context, query string, opts Options) (*Envelope, error) {
	if err := s.validator.ValidateInput(query); err != nil {
		return nil, errs.Wrap(errs.InvalidInput, "invalid area query", err)
	}
	if len(s.data.GetPharmacies()) == 0 {
		return nil, errs.New(errs.RepositoryUnavailable, "pharmacy dataset is empty")
	}

	now := s.now(opts)
	limit := s.limit(opts)

	qt := cache.QuerySearch
	if opts.OpenNowOnly {
		qt = cache.QueryOpenNow
	}
	params := map[string]string{
		"comuna": normalizer.Normalize(query),
		"limit":  strconv.Itoa(limit),
	}
	if opts.OnDutyOnly {
		params["turno"] = "1"
	}

	key := cache.Key(qt, params, now)
	if env, ok := s.cached(ctx, key); ok {
		return env, nil
	}

	match := s.data.GetIndex().Resolve(query)
	if !match.Found() && opts.AllowFallback && s.provider != nil {
		match = s.resolveWithFallback(ctx, query, match)
	}
	metrics.ResolverMethodTotal.WithLabelValues(string(match.Method)).Inc()

	env := &Envelope{Pharmacies: []Result{}, MatchInfo: &match}
	if !match.Found() {
		return env, nil
	}

	filtered := geo.Filter(s.data.GetByComuna(match.Matched), geo.Filters{
		OnDutyOnly:  opts.OnDutyOnly,
		OpenNowOnly: opts.OpenNowOnly,
		Limit:       limit,
		Now:         now,
	})
	env.Pharmacies = plainResults(filtered)
	env.Count = len(env.Pharmacies)

	s.store(ctx, qt, key, env)
	return env, nil
}

// SearchByLocation returns pharmacies ordered ascending by distance
// from the given point, each annotated with its distance. MatchInfo is
// never set because no text resolution runs.
func (s *Service) SearchByLocation(ctx context.Context, lat, lng float64, opts Options) (*Envelope, error) {
	if err := s.validator.ValidateCoordinates(lat, lng); err != nil {
		return nil, errs.Wrap(errs.InvalidInput, "invalid coordinates", err)
	}
	if len(s.data.GetPharmacies()) == 0 {
		return nil, errs.New(errs.RepositoryUnavailable, "pharmacy dataset is empty")
	}

	now := s.now(opts)
	limit := s.limit(opts)
	radius := opts.RadiusKm
	if radius <= 0 {
		radius = s.defaultRadiusKm
	}

	params := map[string]string{
		"lat":    cache.Coord(lat),
		"lng":    cache.Coord(lng),
		"radius": strconv.FormatFloat(radius, 'f', -1, 64),
		"limit":  strconv.Itoa(limit),
	}
	if opts.OnDutyOnly {
		params["turno"] = "1"
	}
	if opts.OpenNowOnly {
		params["abierto"] = "1"
	}

	key := cache.Key(cache.QueryNearby, params, now)
	if env, ok := s.cached(ctx, key); ok {
		return env, nil
	}

	ranked := geo.Rank(s.data.GetPharmacies(), lat, lng, geo.Filters{
		OnDutyOnly:  opts.OnDutyOnly,
		OpenNowOnly: opts.OpenNowOnly,
		RadiusKm:    radius,
		Limit:       limit,
		Now:         now,
	})

	env := &Envelope{Pharmacies: rankedResults(ranked), Count: len(ranked)}
	s.store(ctx, cache.QueryNearby, key, env)
	return env, nil
}

// Browse lists pharmacies without an area or location restriction,
// filtered and truncated like any other search. It reads the in-memory
// snapshot directly and is never cached. An empty dataset is an empty
// answer here, not an error, because nothing was asked that the next
// refresh could answer differently.
func (s *Service) Browse(opts Options) *Envelope {
	kept := geo.Filter(s.data.GetPharmacies(), geo.Filters{
		OnDutyOnly:  opts.OnDutyOnly,
		OpenNowOnly: opts.OpenNowOnly,
		Limit:       s.limit(opts),
		Now:         s.now(opts),
	})
	return &Envelope{Pharmacies: plainResults(kept), Count: len(kept)}
}

// resolveWithFallback asks the language model to pick a comuna after
// every lexical tier failed. Any failure or timeout keeps the lexical
// no-match result, so the fallback can only improve an answer.
func (s *Service) resolveWithFallback(ctx context.Context, query string, lexical resolver.MatchResult) resolver.MatchResult {
	ctx, cancel := context.WithTimeout(ctx, s.fallbackTimeout)
	defer cancel()

	answer, err := s.provider.ResolveComuna(ctx, query, s.data.GetComunas())
	if err != nil {
		logging.Warn("Semantic fallback failed", "query", query, "error", err)
		return lexical
	}

	// The answer goes back through the index so only a known comuna,
	// in its canonical spelling, can ever reach a caller.
	resolved := s.data.GetIndex().Resolve(answer)
	if !resolved.Found() {
		logging.Warn("Semantic fallback returned an unknown comuna", "query", query, "answer", answer)
		return lexical
	}

	logging.Info("Comuna resolved by semantic fallback", "query", query, "comuna", resolved.Matched)
	return resolver.MatchResult{
		Query:           lexical.Query,
		NormalizedQuery: lexical.NormalizedQuery,
		Matched:         resolved.Matched,
		Confidence:      fallbackConfidence,
		Method:          resolver.MethodFallback,
		Suggestions:     []string{},
	}
}

// cached loads and decodes a memoized envelope. Undecodable entries
// are dropped so one bad write cannot wedge a key until its TTL.
func (s *Service) cached(ctx context.Context, key string) (*Envelope, bool) {
	raw, ok := s.results.Get(ctx, key)
	if !ok {
		return nil, false
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logging.Warn("Discarding undecodable cache entry", "key", key, "error", err)
		if err := s.results.Invalidate(ctx, key); err != nil {
			logging.Warn("Cache invalidation failed", "key", key, "error", err)
		}
		return nil, false
	}

	env.FromCache = true
	return &env, true
}

// store memoizes a finished envelope. The stored copy has FromCache
// unset; cached reads set it on the way out.
func (s *Service) store(ctx context.Context, qt cache.QueryType, key string, env *Envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		logging.Warn("Could not encode envelope for caching", "key", key, "error", err)
		return
	}
	s.results.Put(ctx, qt, key, raw)
}

func (s *Service) now(opts Options) time.Time {
	if !opts.Now.IsZero() {
		return opts.Now.In(s.location)
	}
	return time.Now().In(s.location)
}

func (s *Service) limit(opts Options) int {
	if opts.Limit <= 0 || opts.Limit > s.maxResults {
		return s.maxResults
	}
	return opts.Limit
}

func plainResults(pharmacies []entities.Pharmacy) []Result {
	out := make([]Result, len(pharmacies))
	for i, p := range pharmacies {
		out[i] = Result{Pharmacy: p}
	}
	return out
}

func rankedResults(ranked []geo.Ranked) []Result {
	out := make([]Result, len(ranked))
	for i, r := range ranked {
		d := math.Round(r.DistanceKm*100) / 100
		out[i] = Result{Pharmacy: r.Pharmacy, DistanceKm: &d}
	}
	return out
}
