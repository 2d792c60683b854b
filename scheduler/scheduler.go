// Package scheduler drives the automated refresh pipeline for the
// pharmacy dataset. It handles the initial load with snapshot
// fallback, cron-based daily refreshes, and staleness monitoring,
// coordinating the data container, the snapshot store and the result
// cache through their interfaces.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/farmaturno/farmacias-api/interfaces"
	"github.com/farmaturno/farmacias-api/logging"
	"github.com/farmaturno/farmacias-api/metrics"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

// staleAfter is how old the dataset may get before the monitor starts
// warning. The refresh runs at least daily, so anything past a day
// plus one cycle of slack means refreshes are failing.
const staleAfter = 25 * time.Hour

// Config carries the scheduler tunables.
type Config struct {
	UpdateTimes  []string // "HH:MM" entries, local to Location
	Location     *time.Location
	FetchTimeout time.Duration // budget for one full fetch-and-persist cycle
}

// Scheduler runs dataset refreshes against the injected collaborators.
type Scheduler struct {
	dataStore interfaces.DataStore
	parser    interfaces.Parser
	snapshots interfaces.SnapshotStore
	results   interfaces.CacheInvalidator
	validator interfaces.DataValidator
	cron      *gocron.Scheduler

	updateTimes  []string
	fetchTimeout time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler instance with injected dependencies.
func NewScheduler(dataStore interfaces.DataStore, parser interfaces.Parser, snapshots interfaces.SnapshotStore, results interfaces.CacheInvalidator, validator interfaces.DataValidator, cfg Config) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if len(cfg.UpdateTimes) == 0 {
		cfg.UpdateTimes = []string{"06:00", "18:00"}
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 2 * time.Minute
	}

	return &Scheduler{
		dataStore:    dataStore,
		parser:       parser,
		snapshots:    snapshots,
		results:      results,
		validator:    validator,
		cron:         gocron.NewScheduler(cfg.Location),
		updateTimes:  cfg.UpdateTimes,
		fetchTimeout: cfg.FetchTimeout,
		done:         make(chan struct{}),
	}
}

// Start loads the dataset and begins the refresh schedule. It returns
// an error when neither the live feeds nor a persisted snapshot can
// fill the container, since an empty API is not worth starting.
func (s *Scheduler) Start() error {
	if err := s.initialLoad(); err != nil {
		logging.Error("Failed to perform initial data load", "error", err)
		return fmt.Errorf("initial data load failed: %w", err)
	}

	_, err := s.cron.Every(1).Days().At(strings.Join(s.updateTimes, ";")).Do(func() {
		if err := s.refresh(); err != nil {
			logging.Error("Scheduled refresh failed", "error", err)
		}
	})
	if err != nil {
		logging.Error("Failed to schedule updates", "error", err)
		return fmt.Errorf("failed to schedule updates: %w", err)
	}

	s.cron.StartAsync()
	s.startStalenessMonitor()

	return nil
}

// Stop halts the cron jobs and the staleness monitor. Safe to call
// more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cron.Stop()
		close(s.done)
	})
}

// initialLoad fills the container before the server takes traffic:
// first from the live feeds, then from the last persisted snapshot.
func (s *Scheduler) initialLoad() error {
	fetchErr := s.refresh()
	if fetchErr == nil {
		return nil
	}
	logging.Warn("Initial fetch failed, trying the persisted snapshot", "error", fetchErr)

	ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
	defer cancel()

	pharmacies, savedAt, err := s.snapshots.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("feeds unreachable (%w) and no usable snapshot: %w", fetchErr, err)
	}

	s.dataStore.UpdateData(pharmacies)
	if !savedAt.IsZero() {
		s.dataStore.SetLastUpdated(savedAt)
	}

	report := s.validator.ReportDataQuality(pharmacies)
	metrics.ObserveDataset(report.TotalPharmacies, report.OnDutyPharmacies, report.DistinctComunas, time.Since(savedAt).Seconds())

	logging.Info("Dataset restored from snapshot",
		"pharmacies", len(pharmacies),
		"saved_at", savedAt.Format(time.RFC3339),
	)
	return nil
}

// refresh runs one complete update: fetch, validate, swap, persist,
// invalidate. The CAS guard makes overlapping runs a no-op.
func (s *Scheduler) refresh() error {
	if !s.dataStore.BeginUpdate() {
		logging.Info("Update already in progress, skipping...")
		return nil
	}
	defer s.dataStore.EndUpdate()

	logging.Info("Starting dataset refresh")
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
	defer cancel()

	pharmacies, err := s.parser.FetchAll(ctx)
	if err != nil {
		logging.Error("Failed to fetch pharmacy feeds", "error", err)
		return fmt.Errorf("failed to fetch pharmacy feeds: %w", err)
	}

	// A dataset that fails integrity never replaces the served one;
	// keeping yesterday's data beats serving a broken merge.
	if err := s.validator.ValidateDataIntegrity(pharmacies); err != nil {
		logging.Error("Fetched dataset failed integrity validation", "error", err)
		return fmt.Errorf("fetched dataset rejected: %w", err)
	}

	report := s.validator.ReportDataQuality(pharmacies)
	logQualityReport(report)

	s.dataStore.UpdateData(pharmacies)

	if err := s.snapshots.SaveSnapshot(ctx, pharmacies); err != nil {
		logging.Warn("Could not persist dataset snapshot", "error", err)
	}
	if err := s.results.InvalidateAll(ctx); err != nil {
		logging.Warn("Could not invalidate the result cache", "error", err)
	}

	metrics.ObserveDataset(report.TotalPharmacies, report.OnDutyPharmacies, report.DistinctComunas, 0)

	logging.Info("Dataset refresh completed",
		"duration", time.Since(start).String(),
		"pharmacies", report.TotalPharmacies,
		"on_duty", report.OnDutyPharmacies,
		"comunas", report.DistinctComunas,
	)
	return nil
}

// logQualityReport surfaces quality issues that do not abort a
// refresh. Duplicate ids are absent here: integrity validation already
// rejects those datasets outright.
func logQualityReport(report *interfaces.DataQualityReport) {
	if report.WithoutCoordinates > 0 {
		logging.Warn("Pharmacies without coordinates", "count", report.WithoutCoordinates)
	}
	if report.SuspectCoordinates > 0 {
		logging.Warn("Pharmacies with coordinates outside Chile", "count", report.SuspectCoordinates)
	}
	if report.WithoutHours > 0 {
		logging.Warn("Pharmacies without opening hours", "count", report.WithoutHours)
	}
	if report.UnknownComuna > 0 {
		logging.Warn("Pharmacies with an empty comuna", "count", report.UnknownComuna)
	}
}

// startStalenessMonitor watches the dataset age hourly, keeping the
// age gauge current and warning when refreshes stop landing.
func (s *Scheduler) startStalenessMonitor() {
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				age := time.Since(s.dataStore.GetLastUpdated())
				metrics.DatasetAgeSeconds.Set(age.Seconds())
				if age > staleAfter {
					logging.Warn("Dataset has not been refreshed recently", "age", age.String())
				}
			}
		}
	}()
}
