package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/carehub/carehub/internal/config"
	"github.com/carehub/carehub/internal/domain/booking"
	"github.com/carehub/carehub/internal/domain/invoicing"
	"github.com/carehub/carehub/internal/domain/prescription"
	"github.com/carehub/carehub/internal/domain/tariff"
	"github.com/carehub/carehub/internal/platform/db"
	"github.com/carehub/carehub/internal/platform/metrics"
)

// testApp wires the HTTP surface without a database; only routes that fail
// before reaching a repository are exercised.
func testApp() *app {
	reg := prometheus.NewRegistry()
	return &app{
		cfg: &config.Config{
			Env:            "test",
			CORSOrigins:    []string{"http://localhost:3000"},
			RequestTimeout: 5 * time.Second,
		},
		logger:        zerolog.Nop(),
		registry:      reg,
		metrics:       metrics.New(reg),
		pingers:       map[string]db.Pinger{},
		tariffs:       tariff.NewService(nil, nil, nil, nil),
		prescriptions: prescription.NewService(nil, nil),
		bookings:      booking.NewService(booking.Deps{}),
		invoices:      invoicing.NewService(invoicing.Deps{}),
	}
}

func TestNewEcho_RegistersRoutes(t *testing.T) {
	e := newEcho(testApp())
	registered := map[string]bool{}
	for _, r := range e.Routes() {
		registered[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /health/db",
		"GET /metrics",
		"POST /api/v1/bookings",
		"GET /api/v1/bookings",
		"GET /api/v1/bookings/:id",
		"PUT /api/v1/bookings/:id",
		"POST /api/v1/bookings/:id/cancel",
		"POST /api/v1/bookings/:id/complete",
		"POST /api/v1/bookings/:id/no-show",
		"GET /api/v1/pathology-categories",
		"GET /api/v1/tariffs/lookup",
		"POST /api/v1/tariffs/import",
		"POST /api/v1/prescriptions",
		"GET /api/v1/prescriptions/:id",
		"POST /api/v1/invoices/preview",
		"POST /api/v1/invoices",
		"GET /api/v1/invoices/:id",
		"POST /api/v1/invoices/:id/pay",
	} {
		if !registered[want] {
			t.Errorf("route %q not registered", want)
		}
	}
}

func TestNewEcho_Health(t *testing.T) {
	e := newEcho(testApp())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected secure headers")
	}
}

func TestNewEcho_Metrics(t *testing.T) {
	e := newEcho(testApp())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestNewEcho_InvalidIDIsBadRequest(t *testing.T) {
	e := newEcho(testApp())
	for _, path := range []string{"/api/v1/bookings/nope", "/api/v1/invoices/nope"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rec.Code)
		}
	}
}

func TestNewEcho_BodyLimit(t *testing.T) {
	e := newEcho(testApp())
	body := strings.NewReader(strings.Repeat("x", 2<<20))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestHSTSOnlyInProduction(t *testing.T) {
	if hstsMaxAge(false) != 0 || hstsMaxAge(true) == 0 {
		t.Error("expected HSTS only in production")
	}
}

func TestServe_ListenFailureReturnsError(t *testing.T) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	done := make(chan error, 1)
	go func() { done <- serve(e, "127.0.0.1:-1", make(chan os.Signal)) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected listen error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after listen failure")
	}
}

func TestServe_StopsOnSignal(t *testing.T) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	quit := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() { done <- serve(e, "127.0.0.1:0", quit) }()
	quit <- syscall.SIGTERM

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not return after signal")
	}
}
