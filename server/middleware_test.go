package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetTokenCost(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		expectedCost int64
	}{
		{"Service index", "/", 0},
		{"Favicon", "/favicon.ico", 0},
		{"Health endpoint", "/health", 5},
		{"Metrics endpoint", "/metrics", 5},
		{"Communes listing", "/api/communes", 10},
		{"Dataset stats", "/api/stats", 10},
		{"Comuna search", "/api/search", 20},
		{"Nearby search", "/api/nearby", 20},
		{"Open-now search", "/api/open-now", 20},
		{"Cache stats", "/api/cache/stats", 5},
		{"Cache invalidation", "/api/cache/invalidate", 5},
		{"Cache warmup", "/api/cache/warmup", 5},
		{"Unknown endpoint", "/unknown", 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			cost := getTokenCost(req)

			if cost != tt.expectedCost {
				t.Errorf("Expected cost %d for path %s, got %d", tt.expectedCost, tt.path, cost)
			}
		})
	}
}

func TestRateLimitHandlerSetsHeaders(t *testing.T) {
	handler := RateLimitHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/communes", nil)
	req.RemoteAddr = "10.10.0.1:40001"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %d", rr.Code)
	}
	if rr.Header().Get("X-RateLimit-Limit") != "1000" {
		t.Errorf("Expected X-RateLimit-Limit 1000, got %q", rr.Header().Get("X-RateLimit-Limit"))
	}
	if rr.Header().Get("X-RateLimit-Remaining") == "" {
		t.Error("Expected X-RateLimit-Remaining to be set")
	}
}

func TestRateLimitHandlerExhaustsBucket(t *testing.T) {
	handler := RateLimitHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// A fresh client address gets its own bucket of 1000 tokens, and
	// every search costs 20, so the bucket drains after about 50 calls.
	successes := 0
	limited := false
	for i := 0; i < 120; i++ {
		req := httptest.NewRequest("GET", "/api/search?comuna=quilpue", nil)
		req.RemoteAddr = "10.10.0.2:40002"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		switch rr.Code {
		case http.StatusOK:
			successes++
		case http.StatusTooManyRequests:
			limited = true
			if rr.Header().Get("Retry-After") != "60" {
				t.Errorf("Expected Retry-After 60, got %q", rr.Header().Get("Retry-After"))
			}
		}
		if limited {
			break
		}
	}

	if !limited {
		t.Fatal("Expected the bucket to run out within 120 requests")
	}
	if successes < 45 || successes > 60 {
		t.Errorf("Expected roughly 50 requests before limiting, got %d", successes)
	}
}

func TestRateLimitHandlerFreeEndpoints(t *testing.T) {
	handler := RateLimitHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Zero-cost paths never drain the bucket.
	for i := 0; i < 200; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.10.0.3:40003"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("Request %d: expected status OK, got %d", i, rr.Code)
		}
	}
}
