// Package minsalparser provides functionality for downloading and normalizing
// pharmacy data from the MINSAL web services.
package minsalparser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/farmaturno/farmacias-api/logging"
	"golang.org/x/text/encoding/charmap"
)

const (
	localesEndpoint = "getLocales.php"
	turnosEndpoint  = "getLocalesTurnos.php"
)

// rawRecord is a single upstream item before normalization. The feed is
// loosely typed: the same field can arrive as a string in one payload and
// a number in the next, so everything stays as any until firstString.
type rawRecord map[string]any

// feedEnvelope matches the wrapped form the upstream occasionally returns
// instead of a bare array.
type feedEnvelope struct {
	Data []rawRecord `json:"data"`
}

func fetchFeed(ctx context.Context, client *http.Client, url string) ([]rawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}

	response, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer func() {
		if err = response.Body.Close(); err != nil {
			logging.Warn("Failed to close response body", "error", err)
		}
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", response.StatusCode, url)
	}

	bodyBytes, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// Some responses are UTF-8, some ISO-8859-1. Sniff before decoding.
	if !utf8.Valid(bodyBytes) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(bodyBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to decode response body of %s: %w", url, err)
		}
		bodyBytes = decoded
	}

	records, err := decodeFeed(bodyBytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}

	logging.Debug(fmt.Sprintf("%s downloaded without errors", url), "records", len(records))
	return records, nil
}

// decodeFeed accepts both response shapes the upstream is known to emit:
// a bare JSON array and an object wrapping the array under "data".
func decodeFeed(body []byte) ([]rawRecord, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	switch trimmed[0] {
	case '[':
		var records []rawRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decoding feed array: %w", err)
		}
		return records, nil
	case '{':
		var envelope feedEnvelope
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("decoding feed envelope: %w", err)
		}
		return envelope.Data, nil
	default:
		return nil, fmt.Errorf("response is not JSON")
	}
}
