// Package health reports the serving health of the pharmacy dataset.
package health

import (
	"math"
	"net/http"
	"time"

	"github.com/farmaturno/farmacias-api/geo"
	"github.com/farmaturno/farmacias-api/interfaces"
)

// Staleness thresholds. The dataset refreshes at least daily, so a day
// without an update is degraded service and two days means the data
// can no longer be trusted for on-duty lookups.
const (
	degradedAfter  = 24 * time.Hour
	unhealthyAfter = 48 * time.Hour
	updatingGrace  = 6 * time.Hour
)

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	dataStore   interfaces.DataStore
	updateTimes []string
	location    *time.Location
}

// NewHealthChecker creates a health checker. updateTimes holds the
// "HH:MM" refresh schedule used to compute the next update.
func NewHealthChecker(dataStore interfaces.DataStore, updateTimes []string, location *time.Location) interfaces.HealthChecker {
	if location == nil {
		location = time.Local
	}
	return &HealthCheckerImpl{
		dataStore:   dataStore,
		updateTimes: updateTimes,
		location:    location,
	}
}

// HealthCheck returns the dataset health and the HTTP status it maps
// to. Used by the /health endpoint.
func (h *HealthCheckerImpl) HealthCheck() (status string, data map[string]any, httpStatus int) {
	pharmacies := h.dataStore.GetPharmacies()
	comunas := h.dataStore.GetComunas()
	lastUpdate := h.dataStore.GetLastUpdated()
	isUpdating := h.dataStore.IsUpdating()

	dataAge := time.Since(lastUpdate)

	onDuty := 0
	for i := range pharmacies {
		if pharmacies[i].EsTurno {
			onDuty++
		}
	}

	switch {
	case len(pharmacies) == 0:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case dataAge > unhealthyAfter:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case dataAge > degradedAfter:
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	case isUpdating && dataAge > updatingGrace:
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	default:
		status = "healthy"
		httpStatus = http.StatusOK
	}

	data = map[string]any{
		"last_update":    lastUpdate.Format(time.RFC3339),
		"data_age_hours": math.Round(dataAge.Hours()*10) / 10,
		"pharmacies":     len(pharmacies),
		"on_duty":        onDuty,
		"comunas":        len(comunas),
		"is_updating":    isUpdating,
		"next_update":    h.CalculateNextUpdate().Format(time.RFC3339),
	}

	return status, data, httpStatus
}

// CalculateNextUpdate returns the next scheduled update time.
func (h *HealthCheckerImpl) CalculateNextUpdate() time.Time {
	return h.nextUpdateFrom(time.Now().In(h.location))
}

// nextUpdateFrom picks the earliest schedule entry strictly after now,
// rolling to tomorrow once today's times have all passed.
func (h *HealthCheckerImpl) nextUpdateFrom(now time.Time) time.Time {
	var next time.Time
	for _, at := range h.updateTimes {
		minutes, err := geo.ParseClock(at)
		if err != nil {
			continue
		}
		candidate := time.Date(now.Year(), now.Month(), now.Day(), minutes/60, minutes%60, 0, 0, now.Location())
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}

	if next.IsZero() {
		// Nothing parseable in the schedule; report a day out rather
		// than the zero time.
		return now.AddDate(0, 0, 1)
	}
	return next
}
