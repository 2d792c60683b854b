package interfaces

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/farmaturno/farmacias-api/minsalparser/entities"
	"github.com/farmaturno/farmacias-api/resolver"
)

// MockDataStore implements DataStore interface for testing
type MockDataStore struct {
	pharmacies  []entities.Pharmacy
	byComuna    map[string][]entities.Pharmacy
	comunas     []string
	index       *resolver.Index
	lastUpdated time.Time
	startTime   time.Time
	updating    bool
}

func (m *MockDataStore) GetPharmacies() []entities.Pharmacy {
	return m.pharmacies
}

func (m *MockDataStore) GetByComuna(comuna string) []entities.Pharmacy {
	return m.byComuna[comuna]
}

func (m *MockDataStore) GetComunas() []string {
	return m.comunas
}

func (m *MockDataStore) GetIndex() *resolver.Index {
	return m.index
}

func (m *MockDataStore) GetLastUpdated() time.Time {
	return m.lastUpdated
}

func (m *MockDataStore) IsUpdating() bool {
	return m.updating
}

func (m *MockDataStore) GetServerStartTime() time.Time {
	return m.startTime
}

func (m *MockDataStore) UpdateData(pharmacies []entities.Pharmacy) {
	m.pharmacies = pharmacies

	m.byComuna = make(map[string][]entities.Pharmacy)
	m.comunas = m.comunas[:0]
	for _, p := range pharmacies {
		if _, seen := m.byComuna[p.Comuna]; !seen {
			m.comunas = append(m.comunas, p.Comuna)
		}
		m.byComuna[p.Comuna] = append(m.byComuna[p.Comuna], p)
	}
	m.lastUpdated = time.Now()
}

func (m *MockDataStore) SetLastUpdated(t time.Time) {
	m.lastUpdated = t
}

func (m *MockDataStore) BeginUpdate() bool {
	if m.updating {
		return false
	}
	m.updating = true
	return true
}

func (m *MockDataStore) EndUpdate() {
	m.updating = false
}

// MockParser implements Parser interface for testing
type MockParser struct {
	shouldFail bool
}

func (m *MockParser) FetchAll(ctx context.Context) ([]entities.Pharmacy, error) {
	if m.shouldFail {
		return nil, &mockError{"fetch failed"}
	}

	return []entities.Pharmacy{
		{LocalID: "1", Nombre: "FARMACIA UNO", Comuna: "Santiago"},
		{LocalID: "2", Nombre: "FARMACIA DOS", Comuna: "Providencia", EsTurno: true},
	}, nil
}

// MockSnapshotStore implements SnapshotStore interface for testing
type MockSnapshotStore struct {
	saved   []entities.Pharmacy
	savedAt time.Time
	closed  bool
}

func (m *MockSnapshotStore) SaveSnapshot(ctx context.Context, pharmacies []entities.Pharmacy) error {
	m.saved = pharmacies
	m.savedAt = time.Now()
	return nil
}

func (m *MockSnapshotStore) LoadSnapshot(ctx context.Context) ([]entities.Pharmacy, time.Time, error) {
	if len(m.saved) == 0 {
		return nil, time.Time{}, &mockError{"no snapshot available"}
	}
	return m.saved, m.savedAt, nil
}

func (m *MockSnapshotStore) Close() error {
	m.closed = true
	return nil
}

// MockCacheInvalidator implements CacheInvalidator interface for testing
type MockCacheInvalidator struct {
	invalidations int
}

func (m *MockCacheInvalidator) InvalidateAll(ctx context.Context) error {
	m.invalidations++
	return nil
}

// MockScheduler implements Scheduler interface for testing
type MockScheduler struct {
	started bool
	stopped bool
}

func (m *MockScheduler) Start() error {
	if m.started {
		return &mockError{"already started"}
	}
	m.started = true
	return nil
}

func (m *MockScheduler) Stop() {
	m.stopped = true
}

// MockHealthChecker implements HealthChecker interface for testing
type MockHealthChecker struct {
	status     string
	details    map[string]any
	httpStatus int
}

func (m *MockHealthChecker) HealthCheck() (string, map[string]any, int) {
	return m.status, m.details, m.httpStatus
}

func (m *MockHealthChecker) CalculateNextUpdate() time.Time {
	return time.Now().Add(1 * time.Hour)
}

// MockDataValidator implements DataValidator interface for testing
type MockDataValidator struct {
	shouldFail bool
}

func (m *MockDataValidator) ValidatePharmacy(p *entities.Pharmacy) error {
	if m.shouldFail {
		return fmt.Errorf("validation failed")
	}
	return nil
}

func (m *MockDataValidator) ValidateDataIntegrity(pharmacies []entities.Pharmacy) error {
	if m.shouldFail {
		return fmt.Errorf("validation failed")
	}
	return nil
}

func (m *MockDataValidator) ReportDataQuality(pharmacies []entities.Pharmacy) *DataQualityReport {
	report := &DataQualityReport{TotalPharmacies: len(pharmacies)}
	for i := range pharmacies {
		if pharmacies[i].EsTurno {
			report.OnDutyPharmacies++
		}
	}
	return report
}

func (m *MockDataValidator) ValidateInput(input string) error {
	if m.shouldFail {
		return fmt.Errorf("input validation failed")
	}
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("empty input")
	}
	return nil
}

func (m *MockDataValidator) ValidateCoordinates(lat, lng float64) error {
	if m.shouldFail {
		return fmt.Errorf("coordinate validation failed")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return fmt.Errorf("out of range")
	}
	return nil
}

// mockError is a simple error type for testing
type mockError struct {
	msg string
}

func (e *mockError) Error() string {
	return e.msg
}

// Test functions demonstrating the benefits of interfaces

func TestDataStoreInterface(t *testing.T) {
	store := &MockDataStore{}
	store.UpdateData([]entities.Pharmacy{
		{LocalID: "1", Nombre: "Test", Comuna: "Santiago"},
		{LocalID: "2", Nombre: "Other", Comuna: "Santiago"},
	})

	if len(store.GetPharmacies()) != 2 {
		t.Errorf("Expected 2 pharmacies, got %d", len(store.GetPharmacies()))
	}
	if len(store.GetByComuna("Santiago")) != 2 {
		t.Errorf("Expected 2 pharmacies in Santiago, got %d", len(store.GetByComuna("Santiago")))
	}
	if len(store.GetComunas()) != 1 {
		t.Errorf("Expected 1 comuna, got %d", len(store.GetComunas()))
	}
}

func TestDataStoreUpdateGuard(t *testing.T) {
	store := &MockDataStore{}

	if !store.BeginUpdate() {
		t.Fatal("First BeginUpdate should succeed")
	}
	if store.BeginUpdate() {
		t.Error("Overlapping BeginUpdate should be refused")
	}
	store.EndUpdate()
	if !store.BeginUpdate() {
		t.Error("BeginUpdate after EndUpdate should succeed")
	}
}

func TestParserInterface(t *testing.T) {
	parser := &MockParser{shouldFail: false}
	pharmacies, err := parser.FetchAll(context.Background())
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if len(pharmacies) != 2 {
		t.Errorf("Expected 2 pharmacies, got %d", len(pharmacies))
	}

	parser = &MockParser{shouldFail: true}
	if _, err := parser.FetchAll(context.Background()); err == nil {
		t.Error("Expected error but got none")
	}
}

func TestSnapshotStoreInterface(t *testing.T) {
	snapshots := &MockSnapshotStore{}

	if _, _, err := snapshots.LoadSnapshot(context.Background()); err == nil {
		t.Error("Expected an error from an empty snapshot store")
	}

	pharmacies := []entities.Pharmacy{{LocalID: "1", Nombre: "Test"}}
	if err := snapshots.SaveSnapshot(context.Background(), pharmacies); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	loaded, savedAt, err := snapshots.LoadSnapshot(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(loaded) != 1 || savedAt.IsZero() {
		t.Errorf("Expected the saved snapshot back, got %d records at %v", len(loaded), savedAt)
	}
}

func TestSchedulerInterface(t *testing.T) {
	scheduler := &MockScheduler{}

	if err := scheduler.Start(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !scheduler.started {
		t.Error("Scheduler should be started")
	}

	scheduler.Stop()
	if !scheduler.stopped {
		t.Error("Scheduler should be stopped")
	}
}

func TestHealthCheckerInterface(t *testing.T) {
	checker := &MockHealthChecker{
		status:     "healthy",
		details:    map[string]any{"pharmacies": 42},
		httpStatus: 200,
	}

	status, details, httpStatus := checker.HealthCheck()
	if status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", status)
	}
	if details["pharmacies"] != 42 {
		t.Errorf("Expected 42 pharmacies, got %v", details["pharmacies"])
	}
	if httpStatus != 200 {
		t.Errorf("Expected HTTP 200, got %d", httpStatus)
	}
}

func TestDataValidatorInterface(t *testing.T) {
	validator := &MockDataValidator{shouldFail: false}

	p := &entities.Pharmacy{LocalID: "1", Nombre: "Test"}
	if err := validator.ValidatePharmacy(p); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	validator = &MockDataValidator{shouldFail: true}
	if err := validator.ValidatePharmacy(p); err == nil {
		t.Error("Expected validation error but got none")
	}
}

// Example of how interfaces enable dependency injection
type refresher struct {
	dataStore DataStore
	parser    Parser
	results   CacheInvalidator
}

func (s *refresher) refresh(ctx context.Context) error {
	pharmacies, err := s.parser.FetchAll(ctx)
	if err != nil {
		return err
	}
	s.dataStore.UpdateData(pharmacies)
	return s.results.InvalidateAll(ctx)
}

func TestRefreshWithDependencyInjection(t *testing.T) {
	store := &MockDataStore{}
	results := &MockCacheInvalidator{}
	r := &refresher{dataStore: store, parser: &MockParser{}, results: results}

	if err := r.refresh(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(store.GetPharmacies()) != 2 {
		t.Errorf("Expected 2 pharmacies after refresh, got %d", len(store.GetPharmacies()))
	}
	if results.invalidations != 1 {
		t.Errorf("Expected 1 cache invalidation, got %d", results.invalidations)
	}
}

// Compile-time checks to ensure the mocks implement the interfaces
func TestCompileTimeChecks(t *testing.T) {
	var _ DataStore = (*MockDataStore)(nil)
	var _ Parser = (*MockParser)(nil)
	var _ SnapshotStore = (*MockSnapshotStore)(nil)
	var _ CacheInvalidator = (*MockCacheInvalidator)(nil)
	var _ Scheduler = (*MockScheduler)(nil)
	var _ HealthChecker = (*MockHealthChecker)(nil)
	var _ DataValidator = (*MockDataValidator)(nil)
}
