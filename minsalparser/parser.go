// Package minsalparser provides functionality for downloading and normalizing
// pharmacy data from the MINSAL web services.
package minsalparser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/farmaturno/farmacias-api/interfaces"
	"github.com/farmaturno/farmacias-api/logging"
	"github.com/farmaturno/farmacias-api/minsalparser/entities"
)

// Compile-time check to ensure MinsalParser implements Parser interface
var _ interfaces.Parser = (*MinsalParser)(nil)

// MinsalParser fetches the regular and on-duty pharmacy feeds and merges
// them into a single dataset.
type MinsalParser struct {
	baseURL string
	client  *http.Client
}

// NewMinsalParser creates a parser against the given web service base URL.
func NewMinsalParser(baseURL string, timeout time.Duration) *MinsalParser {
	return &MinsalParser{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *MinsalParser) endpoint(path string) string {
	return p.baseURL + "/" + path
}

// FetchAll downloads both feeds concurrently and returns the merged
// pharmacy list. Either feed failing fails the whole fetch, so a refresh
// never swaps in a dataset that silently lost its on-duty records.
func (p *MinsalParser) FetchAll(ctx context.Context) ([]entities.Pharmacy, error) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		locales []rawRecord
		turnos  []rawRecord
		errors  []error
	)

	feeds := map[string]*[]rawRecord{
		localesEndpoint: &locales,
		turnosEndpoint:  &turnos,
	}

	for path, dest := range feeds {
		wg.Add(1)

		go func(path string, dest *[]rawRecord) {
			defer wg.Done()
			records, err := fetchFeed(ctx, p.client, p.endpoint(path))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errors = append(errors, err)
				return
			}
			*dest = records
		}(path, dest)
	}
	wg.Wait()

	if len(errors) > 0 {
		logging.Error("Feed download errors occurred", "errors", errors)
		return nil, fmt.Errorf("download errors: %v", errors)
	}

	pharmacies := mergeFeeds(locales, turnos, time.Now().Format("2006-01-02"))

	logging.Info("Pharmacy feeds fetched",
		"regular", len(locales),
		"on_duty", len(turnos),
		"merged", len(pharmacies))

	return pharmacies, nil
}

// mergeFeeds combines the two feeds keyed on local_id. An on-duty record
// replaces the regular one wholesale: its hour window is the duty window,
// which is what matters for a pharmacy currently on turno. On-duty records
// never seen in the regular feed are appended.
func mergeFeeds(locales, turnos []rawRecord, fetchDate string) []entities.Pharmacy {
	merged := make([]entities.Pharmacy, 0, len(locales)+len(turnos))
	index := make(map[string]int, len(locales))

	appendOrReplace := func(raw rawRecord, esTurno bool) {
		pharmacy := normalizeRecord(raw, esTurno, fetchDate)
		if pharmacy.LocalID == "" || pharmacy.Nombre == "" {
			logging.Warn("Skipping incomplete feed record",
				"local_id", pharmacy.LocalID,
				"nombre", pharmacy.Nombre,
				"comuna", pharmacy.Comuna)
			return
		}
		if at, seen := index[pharmacy.LocalID]; seen {
			merged[at] = pharmacy
			return
		}
		index[pharmacy.LocalID] = len(merged)
		merged = append(merged, pharmacy)
	}

	for _, raw := range locales {
		appendOrReplace(raw, false)
	}
	for _, raw := range turnos {
		appendOrReplace(raw, true)
	}

	return merged
}
