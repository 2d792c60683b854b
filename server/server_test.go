package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/farmaturno/farmacias-api/cache"
	"github.com/farmaturno/farmacias-api/config"
	"github.com/farmaturno/farmacias-api/data"
	"github.com/farmaturno/farmacias-api/handlers"
	"github.com/farmaturno/farmacias-api/health"
	"github.com/farmaturno/farmacias-api/logging"
	"github.com/farmaturno/farmacias-api/minsalparser/entities"
	"github.com/farmaturno/farmacias-api/resolver"
	"github.com/farmaturno/farmacias-api/search"
	"github.com/farmaturno/farmacias-api/validation"
)

// serverPharmacies returns a small dataset for routing tests. The
// on-duty pharmacy carries no hours, so open-now answers stay
// independent of the wall clock.
func serverPharmacies() []entities.Pharmacy {
	return []entities.Pharmacy{
		{
			LocalID: "1", Nombre: "CRUZ VERDE", Direccion: "CONDELL 1190", Comuna: "Quilpué",
			Lat: -33.0449, Lng: -71.3857,
			HoraApertura: "09:00", HoraCierre: "18:00", EsCadena: true,
		},
		{
			LocalID: "2", Nombre: "FARMACIA EL SAUCE", Direccion: "LOS CARRERA 850", Comuna: "Quilpué",
			Lat: -33.0587, Lng: -71.3860, EsTurno: true,
		},
		{
			LocalID: "3", Nombre: "SALCOBRAND", Direccion: "AV. VALPARAISO 55", Comuna: "Villa Alemana",
			Lat: -33.0422, Lng: -71.3730,
			HoraApertura: "09:00", HoraCierre: "21:00", EsCadena: true,
		},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Port:           "8080",
		Address:        "127.0.0.1",
		Env:            "test",
		LogLevel:       "info",
		MaxRequestBody: 1048576,
		MaxHeaderSize:  1048576,
	}
}

// newTestServer builds a server with real dependencies wired the same
// way main does it. A nil cfg falls back to testConfig.
func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	logging.InitLogger("")

	if cfg == nil {
		cfg = testConfig()
	}

	container := data.NewDataContainer(nil, resolver.DefaultFuzzyThreshold)
	container.SetServerStartTime(time.Now())
	container.UpdateData(serverPharmacies())

	results := cache.New(cache.NewMemoryStore(), cache.DefaultTTLPolicy())
	t.Cleanup(func() { results.Close() })

	searcher := search.NewService(container, results, validation.NewDataValidator(), search.ServiceConfig{})
	checker := health.NewHealthChecker(container, []string{"06:00", "18:00"}, time.UTC)
	handler := handlers.NewHTTPHandler(container, searcher, results, checker, time.UTC)

	return NewServer(cfg, handler)
}

func TestNewServer(t *testing.T) {
	s := newTestServer(t, nil)

	if s == nil {
		t.Fatal("NewServer returned nil")
	}
	if s.server == nil {
		t.Fatal("Expected the http.Server to be configured")
	}
	if s.router == nil {
		t.Fatal("Expected the router to be configured")
	}
	if s.server.Addr != "127.0.0.1:8080" {
		t.Errorf("Expected addr 127.0.0.1:8080, got %s", s.server.Addr)
	}
	if s.server.ReadTimeout != 15*time.Second {
		t.Errorf("Expected read timeout 15s, got %v", s.server.ReadTimeout)
	}
	if s.server.WriteTimeout != 15*time.Second {
		t.Errorf("Expected write timeout 15s, got %v", s.server.WriteTimeout)
	}
	if s.server.IdleTimeout != 60*time.Second {
		t.Errorf("Expected idle timeout 60s, got %v", s.server.IdleTimeout)
	}
}

// TestSetupRoutes drives every route through the full middleware chain.
// Requests come from localhost so the direct-access guard lets them by.
func TestSetupRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"comuna search", "GET", "/api/search?comuna=quilpue", http.StatusOK},
		{"browse without comuna", "GET", "/api/search", http.StatusOK},
		{"nearby search", "GET", "/api/nearby?lat=-33.0485&lng=-71.3700", http.StatusOK},
		{"open now", "GET", "/api/open-now", http.StatusOK},
		{"communes listing", "GET", "/api/communes", http.StatusOK},
		{"dataset stats", "GET", "/api/stats", http.StatusOK},
		{"cache stats", "GET", "/api/cache/stats", http.StatusOK},
		{"cache invalidation", "POST", "/api/cache/invalidate", http.StatusOK},
		{"cache warmup", "POST", "/api/cache/warmup", http.StatusOK},
		{"health check", "GET", "/health", http.StatusOK},
		{"prometheus metrics", "GET", "/metrics", http.StatusOK},
		{"service index", "GET", "/", http.StatusOK},
		{"trailing slash redirect", "GET", "/api/communes/", http.StatusMovedPermanently},
		{"unknown route", "GET", "/api/nope", http.StatusNotFound},
		{"wrong method", "POST", "/api/search", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.RemoteAddr = "127.0.0.1:50000"
			rr := httptest.NewRecorder()
			s.Router().ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("Expected status %d for %s %s, got %d: %s",
					tt.wantStatus, tt.method, tt.path, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestServiceIndex(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "127.0.0.1:50001"
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %d", rr.Code)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "public, max-age=3600" {
		t.Errorf("Expected Cache-Control public, max-age=3600, got %q", cc)
	}

	var index struct {
		Service   string   `json:"service"`
		Endpoints []string `json:"endpoints"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &index); err != nil {
		t.Fatalf("Index response is not valid JSON: %v", err)
	}
	if index.Service != "farmacias-api" {
		t.Errorf("Expected service farmacias-api, got %q", index.Service)
	}
	if len(index.Endpoints) == 0 {
		t.Error("Expected the index to list endpoints")
	}
}

func TestCORSHeaders(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest("GET", "/api/communes", nil)
	req.RemoteAddr = "127.0.0.1:50002"
	req.Header.Set("Origin", "http://example.com")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %d", rr.Code)
	}
	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("Expected Access-Control-Allow-Origin *, got %q", origin)
	}
}

func TestRouterBlocksDirectRemoteAccess(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest("GET", "/api/communes", nil)
	req.RemoteAddr = "203.0.113.9:50003"
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for direct remote access, got %d", rr.Code)
	}
}

func TestServerLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping lifecycle test in short mode")
	}

	cfg := testConfig()
	cfg.Port = "0" // Pick a free port so runs never collide
	s := newTestServer(t, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	// Give the listener a moment to bind before stopping it.
	time.Sleep(300 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("Expected ErrServerClosed after shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not stop after shutdown")
	}
}
