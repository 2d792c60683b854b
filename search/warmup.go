package search

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/farmaturno/farmacias-api/errs"
	"github.com/farmaturno/farmacias-api/logging"
)

const (
	// warmupComunas bounds how many comunas get preloaded. The busiest
	// comunas cover most traffic; warming every one would churn the
	// cache for entries nobody reads.
	warmupComunas = 20

	// warmupPoolSize bounds concurrent warmup queries so a warmup
	// cannot starve live traffic.
	warmupPoolSize = 8
)

// Warmup preloads the result cache with area searches for the busiest
// comunas, so the first callers after a restart or invalidation land
// on warm entries. It returns how many comunas were preloaded.
func (s *Service) Warmup(ctx context.Context) (int, error) {
	if !s.results.Enabled() {
		logging.Warn("Cache warmup skipped, no cache backend attached")
		return 0, nil
	}

	comunas := s.topComunas(warmupComunas)
	if len(comunas) == 0 {
		return 0, errs.New(errs.RepositoryUnavailable, "pharmacy dataset is empty")
	}

	pool, err := ants.NewPool(warmupPoolSize)
	if err != nil {
		return 0, errs.Wrap(errs.Internal, "could not start warmup pool", err)
	}
	defer pool.Release()

	var (
		wg     sync.WaitGroup
		warmed atomic.Int64
	)
	for _, comuna := range comunas {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if _, err := s.SearchByArea(ctx, comuna, Options{}); err != nil {
				logging.Warn("Cache warmup query failed", "comuna", comuna, "error", err)
				return
			}
			warmed.Add(1)
		})
		if submitErr != nil {
			wg.Done()
			logging.Warn("Cache warmup submission failed", "comuna", comuna, "error", submitErr)
		}
	}
	wg.Wait()

	logging.Info("Cache warmup finished", "warmed", warmed.Load(), "requested", len(comunas))
	return int(warmed.Load()), nil
}

// topComunas returns up to n comuna names ordered by pharmacy count
// descending, ties alphabetically, so warmup effort follows demand.
func (s *Service) topComunas(n int) []string {
	comunas := s.data.GetComunas()

	type weighted struct {
		name  string
		count int
	}
	ranked := make([]weighted, 0, len(comunas))
	for _, comuna := range comunas {
		ranked = append(ranked, weighted{name: comuna, count: len(s.data.GetByComuna(comuna))})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].name < ranked[j].name
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]string, len(ranked))
	for i, w := range ranked {
		out[i] = w.name
	}
	return out
}
