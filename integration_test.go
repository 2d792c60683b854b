package main

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/farmaturno/farmacias-api/cache"
	"github.com/farmaturno/farmacias-api/data"
	"github.com/farmaturno/farmacias-api/minsalparser/entities"
	"github.com/farmaturno/farmacias-api/resolver"
	"github.com/farmaturno/farmacias-api/scheduler"
	"github.com/farmaturno/farmacias-api/search"
	"github.com/farmaturno/farmacias-api/store"
	"github.com/farmaturno/farmacias-api/validation"
)

// feedParser replays a scripted dataset instead of calling MINSAL, so
// the refresh pipeline can run end to end without the network.
type feedParser struct {
	pharmacies []entities.Pharmacy
	err        error
	calls      int
}

func (p *feedParser) FetchAll(ctx context.Context) ([]entities.Pharmacy, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	out := make([]entities.Pharmacy, len(p.pharmacies))
	copy(out, p.pharmacies)
	return out, nil
}

// feedPharmacies generates n distinct pharmacies spread over a handful
// of Santiago comunas, with every tenth one on duty.
func feedPharmacies(n int) []entities.Pharmacy {
	comunas := []string{
		"Santiago", "Providencia", "Las Condes", "Ñuñoa",
		"Maipú", "La Florida", "Puente Alto", "Recoleta",
	}

	pharmacies := make([]entities.Pharmacy, 0, n)
	for i := 0; i < n; i++ {
		p := entities.Pharmacy{
			LocalID:      fmt.Sprintf("feed-%d", i+1),
			Nombre:       fmt.Sprintf("FARMACIA %d", i+1),
			Direccion:    fmt.Sprintf("CALLE %d", i+1),
			Comuna:       comunas[i%len(comunas)],
			Region:       "Metropolitana de Santiago",
			Lat:          -33.45 + float64(i%40)*0.001,
			Lng:          -70.66 - float64(i%40)*0.001,
			HoraApertura: "09:00",
			HoraCierre:   "18:00",
			EsTurno:      i%10 == 0,
		}
		if i%7 == 0 {
			p.HoraApertura = ""
			p.HoraCierre = ""
		}
		pharmacies = append(pharmacies, p)
	}
	return pharmacies
}

// newPipeline wires the refresh pipeline with real components and the
// given parser. The snapshot database lives under dir.
func newPipeline(t *testing.T, parser *feedParser, dir string) (*data.DataContainer, *cache.Cache, *store.SQLiteStore, *scheduler.Scheduler) {
	t.Helper()

	container := data.NewDataContainer(nil, resolver.DefaultFuzzyThreshold)
	results := cache.New(cache.NewMemoryStore(), cache.DefaultTTLPolicy())
	t.Cleanup(func() { results.Close() })

	snapshots, err := store.NewSQLiteStore(filepath.Join(dir, "farmacias.db"))
	if err != nil {
		t.Fatalf("Failed to open the snapshot store: %v", err)
	}
	t.Cleanup(func() { snapshots.Close() })

	sched := scheduler.NewScheduler(container, parser, snapshots, results, validation.NewDataValidator(), scheduler.Config{
		UpdateTimes: []string{"03:00"},
		Location:    time.UTC,
	})
	return container, results, snapshots, sched
}

// TestIntegrationRefreshPipeline runs one full refresh cycle: fetch,
// validate, swap the container and persist the snapshot.
func TestIntegrationRefreshPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	parser := &feedParser{pharmacies: feedPharmacies(120)}
	container, _, snapshots, sched := newPipeline(t, parser, t.TempDir())

	if err := sched.Start(); err != nil {
		t.Fatalf("Scheduler start failed: %v", err)
	}
	defer sched.Stop()

	if got := len(container.GetPharmacies()); got != 120 {
		t.Errorf("Expected 120 pharmacies in the container, got %d", got)
	}
	if parser.calls != 1 {
		t.Errorf("Expected exactly one feed fetch on startup, got %d", parser.calls)
	}
	if age := time.Since(container.GetLastUpdated()); age > time.Minute {
		t.Errorf("Expected a fresh last-updated stamp, got age %v", age)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	saved, savedAt, err := snapshots.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("Expected a persisted snapshot after the refresh: %v", err)
	}
	if len(saved) != 120 {
		t.Errorf("Snapshot holds %d pharmacies, expected 120", len(saved))
	}
	if savedAt.IsZero() {
		t.Error("Snapshot carries no saved-at stamp")
	}
}

// TestIntegrationSnapshotFallback starts the pipeline with dead feeds
// and a good snapshot on disk: the API must come up on yesterday's data.
func TestIntegrationSnapshotFallback(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dir := t.TempDir()
	pharmacies := feedPharmacies(60)

	// Persist a snapshot the way a previous process run would have.
	seed, err := store.NewSQLiteStore(filepath.Join(dir, "farmacias.db"))
	if err != nil {
		t.Fatalf("Failed to open the snapshot store: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := seed.SaveSnapshot(ctx, pharmacies); err != nil {
		t.Fatalf("Failed to seed the snapshot: %v", err)
	}
	if err := seed.Close(); err != nil {
		t.Fatalf("Failed to close the seed store: %v", err)
	}

	parser := &feedParser{err: fmt.Errorf("minsal is down")}
	container, _, _, sched := newPipeline(t, parser, dir)

	if err := sched.Start(); err != nil {
		t.Fatalf("Expected the snapshot fallback to carry the start, got %v", err)
	}
	defer sched.Stop()

	if got := len(container.GetPharmacies()); got != 60 {
		t.Errorf("Expected 60 pharmacies restored from the snapshot, got %d", got)
	}
	if container.GetLastUpdated().IsZero() {
		t.Error("Expected the snapshot saved-at time as the last update")
	}
	if parser.calls == 0 {
		t.Error("Expected the feeds to be tried before the snapshot")
	}
}

// TestIntegrationStartFailsWithoutData covers the double failure: feeds
// down and no snapshot. Starting an empty API is refused.
func TestIntegrationStartFailsWithoutData(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	parser := &feedParser{err: fmt.Errorf("minsal is down")}
	_, _, _, sched := newPipeline(t, parser, t.TempDir())

	if err := sched.Start(); err == nil {
		sched.Stop()
		t.Fatal("Expected the start to fail with dead feeds and no snapshot")
	}
}

// TestIntegrationSearchFlowAfterRefresh exercises the search stack on
// top of a pipeline-loaded dataset: fuzzy resolution, caching, warmup.
func TestIntegrationSearchFlowAfterRefresh(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	parser := &feedParser{pharmacies: apiPharmacies()}
	container, results, _, sched := newPipeline(t, parser, t.TempDir())

	if err := sched.Start(); err != nil {
		t.Fatalf("Scheduler start failed: %v", err)
	}
	defer sched.Stop()

	searcher := search.NewService(container, results, validation.NewDataValidator(), search.ServiceConfig{
		Location: time.UTC,
	})

	ctx := context.Background()

	// A typo still lands on the right comuna through fuzzy matching.
	env, err := searcher.SearchByArea(ctx, "quilpu", search.Options{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if env.MatchInfo == nil || env.MatchInfo.Matched != "Quilpué" {
		t.Fatalf("Expected a fuzzy match on Quilpué, got %+v", env.MatchInfo)
	}
	if env.Count != 2 {
		t.Errorf("Expected 2 pharmacies in Quilpué, got %d", env.Count)
	}

	// The same question again comes from the cache.
	again, err := searcher.SearchByArea(ctx, "quilpu", search.Options{})
	if err != nil {
		t.Fatalf("Repeated search failed: %v", err)
	}
	if !again.FromCache {
		t.Error("Expected the repeated search to be served from the cache")
	}

	// Warmup precomputes one answer per comuna in the dataset.
	warmed, err := searcher.Warmup(ctx)
	if err != nil {
		t.Fatalf("Warmup failed: %v", err)
	}
	if warmed != 4 {
		t.Errorf("Expected 4 warmed comunas, got %d", warmed)
	}
}

// TestIntegrationMemoryUsage loads a large dataset and checks the
// container stays within a sane memory envelope.
func TestIntegrationMemoryUsage(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	container := data.NewDataContainer(nil, resolver.DefaultFuzzyThreshold)
	container.UpdateData(feedPharmacies(5000))

	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	var usedMB uint64
	if after.Alloc > before.Alloc {
		usedMB = (after.Alloc - before.Alloc) / 1024 / 1024
	}
	fmt.Printf("Memory used for 5000 pharmacies: %d MB\n", usedMB)

	if usedMB > 256 {
		t.Errorf("Memory usage too high: %d MB (expected < 256 MB)", usedMB)
	}
	if got := len(container.GetPharmacies()); got != 5000 {
		t.Errorf("Expected 5000 pharmacies, got %d", got)
	}
	if got := len(container.GetComunas()); got != 8 {
		t.Errorf("Expected 8 comunas, got %d", got)
	}
}
