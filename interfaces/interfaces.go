// Package interfaces defines core abstractions for the pharmacy API
// to improve testability, maintainability, and separation of concerns.
package interfaces

import (
	"context"
	"time"

	"github.com/farmaturno/farmacias-api/minsalparser/entities"
	"github.com/farmaturno/farmacias-api/resolver"
)

// DataQualityReport provides a summary of data quality issues
type DataQualityReport struct {
	DuplicateLocalIDs  []string
	WithoutCoordinates int // Pharmacies missing lat/lng
	WithoutHours       int // Pharmacies missing an opening or closing time
	WithoutPhone       int
	UnknownComuna      int // Records whose comuna field is empty
	SuspectCoordinates int // Coordinates outside the Chilean bounding box
	TotalPharmacies    int
	OnDutyPharmacies   int
	DistinctComunas    int
}

// DataStore defines the contract for data storage operations.
// It provides thread-safe access to the pharmacy dataset with atomic
// operations for zero-downtime updates.
type DataStore interface {
	// Data retrieval methods
	GetPharmacies() []entities.Pharmacy
	GetByComuna(comuna string) []entities.Pharmacy
	GetComunas() []string
	GetIndex() *resolver.Index
	GetLastUpdated() time.Time
	IsUpdating() bool
	GetServerStartTime() time.Time

	// Data update methods. UpdateData derives the comuna grouping and
	// the resolver index from the list and swaps everything in as one
	// snapshot. SetLastUpdated back-dates the swap when the data came
	// from a persisted snapshot instead of a live fetch.
	UpdateData(pharmacies []entities.Pharmacy)
	SetLastUpdated(t time.Time)
	BeginUpdate() bool
	EndUpdate()
}

// Parser defines the contract for fetching pharmacy data from the
// upstream MINSAL web service.
type Parser interface {
	// FetchAll downloads both the regular and the on-duty feeds and
	// returns the merged, cleaned pharmacy list.
	FetchAll(ctx context.Context) ([]entities.Pharmacy, error)
}

// SnapshotStore defines the contract for persisting a dataset snapshot
// so the service can start when the upstream feed is down.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, pharmacies []entities.Pharmacy) error
	LoadSnapshot(ctx context.Context) ([]entities.Pharmacy, time.Time, error)
	Close() error
}

// CacheInvalidator is the slice of the result cache the refresh
// pipeline needs: after a dataset swap every memoized answer is stale.
type CacheInvalidator interface {
	InvalidateAll(ctx context.Context) error
}

// Scheduler defines the contract for job scheduling and health monitoring.
// It manages automated data updates and system health checks.
type Scheduler interface {
	// Lifecycle management
	Start() error
	Stop()
}

// HealthChecker defines the contract for health check functionality.
// It provides system health monitoring and reporting.
type HealthChecker interface {
	// HealthCheck returns the current health status, its detail
	// payload and the HTTP status code it maps to
	HealthCheck() (status string, details map[string]any, httpStatus int)

	// CalculateNextUpdate returns the next scheduled update time
	CalculateNextUpdate() time.Time
}

// DataValidator defines the contract for data validation operations.
// It ensures data integrity and consistency.
type DataValidator interface {
	// ValidatePharmacy checks if a pharmacy record is usable
	ValidatePharmacy(p *entities.Pharmacy) error

	// ValidateDataIntegrity performs comprehensive dataset validation
	ValidateDataIntegrity(pharmacies []entities.Pharmacy) error

	// ReportDataQuality generates a data quality report with all issues found
	ReportDataQuality(pharmacies []entities.Pharmacy) *DataQualityReport

	// ValidateInput validates user input strings
	ValidateInput(input string) error

	// ValidateCoordinates checks a latitude/longitude pair
	ValidateCoordinates(lat, lng float64) error
}
