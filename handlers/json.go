package handlers

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/farmaturno/farmacias-api/errs"
	"github.com/farmaturno/farmacias-api/logging"
)

// Minimum response size to consider compression (1KB)
const compressionThreshold = 1024

// RespondWithJSON writes payload as JSON, gzip-compressing bodies at or
// above the threshold when the client accepts it.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err, "payload_type", fmt.Sprintf("%T", payload))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))

	if len(data) >= compressionThreshold && acceptsGzip(r) {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(code)
		gz := gzip.NewWriter(w)
		defer gz.Close()
		gz.Write(data)
		logging.Debug("Compressed JSON response", "original_size", len(data))
		return
	}

	w.WriteHeader(code)
	w.Write(data)
}

func acceptsGzip(r *http.Request) bool {
	return r != nil && strings.Contains(strings.ToLower(r.Header.Get("Accept-Encoding")), "gzip")
}

// RespondWithError writes a JSON error body. Errors are small and are
// never compressed.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	body, err := json.Marshal(map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	})
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(code)
	w.Write(body)
}

// respondWithServiceError maps classified pipeline errors onto HTTP
// statuses. Anything unclassified is a 500 and gets logged here, once.
func respondWithServiceError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	message := "internal server error"

	var classified *errs.Error
	if errors.As(err, &classified) {
		message = classified.Message
		if classified.Err != nil {
			message = fmt.Sprintf("%s: %v", classified.Message, classified.Err)
		}
		switch classified.Kind {
		case errs.InvalidInput:
			code = http.StatusBadRequest
		case errs.RepositoryUnavailable:
			code = http.StatusServiceUnavailable
		}
	}

	if code == http.StatusInternalServerError {
		logging.Error("Request failed", "error", err)
	}
	RespondWithError(w, code, message)
}
