// Package data provides thread-safe storage for the pharmacy dataset.
// The DataContainer swaps complete snapshots atomically for
// zero-downtime updates: readers always see one coherent dataset,
// comuna grouping and resolver index together.
package data

import (
	"sync/atomic"
	"time"

	"github.com/farmaturno/farmacias-api/interfaces"
	"github.com/farmaturno/farmacias-api/logging"
	"github.com/farmaturno/farmacias-api/minsalparser/entities"
	"github.com/farmaturno/farmacias-api/resolver"
)

// Compile-time check to ensure DataContainer implements DataStore
var _ interfaces.DataStore = (*DataContainer)(nil)

// snapshot is one immutable view of the dataset. Every derived
// structure is built before the snapshot is published, never after.
type snapshot struct {
	pharmacies []entities.Pharmacy
	byComuna   map[string][]entities.Pharmacy
	comunas    []string
	index      *resolver.Index
}

// DataContainer holds the current snapshot behind an atomic pointer.
type DataContainer struct {
	current         atomic.Value // *snapshot
	lastUpdated     atomic.Value // time.Time
	updating        atomic.Bool
	serverStartTime atomic.Value // time.Time

	aliases        map[string]string
	fuzzyThreshold float64
}

// NewDataContainer creates an empty container. aliases and threshold
// parameterize the resolver index rebuilt on every UpdateData.
func NewDataContainer(aliases map[string]string, fuzzyThreshold float64) *DataContainer {
	dc := &DataContainer{
		aliases:        aliases,
		fuzzyThreshold: fuzzyThreshold,
	}
	dc.current.Store(buildSnapshot(nil, aliases, fuzzyThreshold))
	dc.lastUpdated.Store(time.Time{})
	dc.serverStartTime.Store(time.Time{})
	return dc
}

func buildSnapshot(pharmacies []entities.Pharmacy, aliases map[string]string, threshold float64) *snapshot {
	if pharmacies == nil {
		pharmacies = make([]entities.Pharmacy, 0)
	}

	byComuna := make(map[string][]entities.Pharmacy)
	for _, p := range pharmacies {
		if p.Comuna == "" {
			continue
		}
		byComuna[p.Comuna] = append(byComuna[p.Comuna], p)
	}

	names := make([]string, 0, len(byComuna))
	for name := range byComuna {
		names = append(names, name)
	}

	index := resolver.NewIndex(names, aliases, threshold)
	return &snapshot{
		pharmacies: pharmacies,
		byComuna:   byComuna,
		comunas:    index.Comunas(),
		index:      index,
	}
}

// load returns the current snapshot. A missing or mistyped value
// degrades to an empty snapshot instead of panicking.
func (dc *DataContainer) load() *snapshot {
	if v := dc.current.Load(); v != nil {
		if snap, ok := v.(*snapshot); ok {
			return snap
		}
	}

	logging.Warn("Data snapshot is missing or invalid")
	return buildSnapshot(nil, dc.aliases, dc.fuzzyThreshold)
}

// GetPharmacies returns every pharmacy in the current snapshot.
func (dc *DataContainer) GetPharmacies() []entities.Pharmacy {
	return dc.load().pharmacies
}

// GetByComuna returns the pharmacies of one canonical comuna.
func (dc *DataContainer) GetByComuna(comuna string) []entities.Pharmacy {
	if list, ok := dc.load().byComuna[comuna]; ok {
		return list
	}
	return []entities.Pharmacy{}
}

// GetComunas returns the canonical comuna names of the snapshot.
func (dc *DataContainer) GetComunas() []string {
	return dc.load().comunas
}

// GetIndex returns the resolver index built with the snapshot.
func (dc *DataContainer) GetIndex() *resolver.Index {
	return dc.load().index
}

// GetLastUpdated returns the timestamp of the last data update
func (dc *DataContainer) GetLastUpdated() time.Time {
	if v := dc.lastUpdated.Load(); v != nil {
		if lastUpdated, ok := v.(time.Time); ok {
			return lastUpdated
		}
	}

	logging.Warn("Could not get the last updated value")
	return time.Time{}
}

// IsUpdating returns true if a data update is currently in progress
func (dc *DataContainer) IsUpdating() bool {
	return dc.updating.Load()
}

// SetServerStartTime sets the server start time
func (dc *DataContainer) SetServerStartTime(startTime time.Time) {
	dc.serverStartTime.Store(startTime)
}

// GetServerStartTime returns the server start time
func (dc *DataContainer) GetServerStartTime() time.Time {
	if v := dc.serverStartTime.Load(); v != nil {
		if startTime, ok := v.(time.Time); ok {
			return startTime
		}
	}

	logging.Warn("Could not get the server start time value")
	return time.Time{}
}

// UpdateData builds a complete snapshot from the list and swaps it in
// atomically. In-flight readers keep the previous snapshot.
func (dc *DataContainer) UpdateData(pharmacies []entities.Pharmacy) {
	dc.current.Store(buildSnapshot(pharmacies, dc.aliases, dc.fuzzyThreshold))
	dc.lastUpdated.Store(time.Now())
}

// SetLastUpdated overrides the update timestamp. Restoring a persisted
// snapshot uses it so staleness reflects the data's true age.
func (dc *DataContainer) SetLastUpdated(t time.Time) {
	dc.lastUpdated.Store(t)
}

// BeginUpdate marks the start of a data update operation
// Returns true if update can proceed, false if another update is in progress
func (dc *DataContainer) BeginUpdate() bool {
	return dc.updating.CompareAndSwap(false, true)
}

// EndUpdate marks the end of a data update operation
func (dc *DataContainer) EndUpdate() {
	dc.updating.Store(false)
}
