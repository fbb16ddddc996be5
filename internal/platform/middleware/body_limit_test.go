package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"1M", 1 << 20},
		{"10MB", 10 << 20},
		{"512K", 512 << 10},
		{"1G", 1 << 30},
		{"1024", 1024},
		{"", 1 << 20},
		{"invalid", 1 << 20},
		{"-5", 1 << 20},
	}
	for _, tt := range tests {
		if got := parseLimit(tt.input); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestLimitFor_LongestPrefixWins(t *testing.T) {
	overrides := map[string]int64{
		"/api/v1/tariffs":        100,
		"/api/v1/tariffs/import": 1000,
	}
	if got := limitFor("/api/v1/tariffs/import", 10, overrides); got != 1000 {
		t.Errorf("expected 1000, got %d", got)
	}
	if got := limitFor("/api/v1/tariffs/lookup", 10, overrides); got != 100 {
		t.Errorf("expected 100, got %d", got)
	}
	if got := limitFor("/api/v1/bookings", 10, overrides); got != 10 {
		t.Errorf("expected default 10, got %d", got)
	}
}

func TestBodyLimit_AllowsSmallBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(`{"place":"home"}`))
	c := e.NewContext(req, httptest.NewRecorder())

	err := BodyLimit("1M", nil)(func(c echo.Context) error {
		b, err := io.ReadAll(c.Request().Body)
		if err != nil {
			t.Fatalf("failed to read body: %v", err)
		}
		if string(b) != `{"place":"home"}` {
			t.Errorf("unexpected body %q", b)
		}
		return nil
	})(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBodyLimit_RejectsByContentLength(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(strings.Repeat("a", 2048)))
	c := e.NewContext(req, httptest.NewRecorder())

	err := BodyLimit("1K", nil)(func(c echo.Context) error {
		t.Error("handler must not run")
		return nil
	})(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %v", err)
	}
}

func TestBodyLimit_RejectsWhileStreaming(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(strings.Repeat("a", 2048)))
	req.ContentLength = -1
	c := e.NewContext(req, httptest.NewRecorder())

	var readErr error
	BodyLimit("1K", nil)(func(c echo.Context) error {
		_, readErr = io.ReadAll(c.Request().Body)
		return nil
	})(c)

	httpErr, ok := readErr.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 read error, got %v", readErr)
	}
}

func TestBodyLimit_OverrideAllowsLargerUpload(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tariffs/import", strings.NewReader(strings.Repeat("a", 2048)))
	c := e.NewContext(req, httptest.NewRecorder())

	err := BodyLimit("1K", map[string]string{"/api/v1/tariffs/import": "4K"})(func(c echo.Context) error {
		_, err := io.ReadAll(c.Request().Body)
		return err
	})(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
