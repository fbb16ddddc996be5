package invoicing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carehub/carehub/internal/domain/booking"
)

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestHandler_Preview(t *testing.T) {
	f := newFixture(t)
	b := f.add(booking.StatusCancelled, f.now.Add(2*time.Hour), "37.99")
	h, e := NewHandler(f.svc), echo.New()
	rec := httptest.NewRecorder()

	body := `{"booking_ids":["` + b.ID.String() + `"]}`
	if err := h.Preview(e.NewContext(jsonRequest(http.MethodPost, body), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var p Preview
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Amount != "25.00" || p.Description != "late-cancellation fee" {
		t.Errorf("got %+v", p)
	}
	if len(f.repo.store) != 0 {
		t.Error("preview must not persist an invoice")
	}
}

func TestHandler_CreateGetPay(t *testing.T) {
	f := newFixture(t)
	b := f.add(booking.StatusCompleted, f.now, "37.99")
	h, e := NewHandler(f.svc), echo.New()

	rec := httptest.NewRecorder()
	body := `{"booking_ids":["` + b.ID.String() + `"]}`
	if err := h.Create(e.NewContext(jsonRequest(http.MethodPost, body), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var created Response
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ReferenceNumber != "FAC-2025-0001" || created.Amount != "37.99" || created.PaidDate != nil {
		t.Errorf("unexpected response: %+v", created)
	}

	rec = httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(jsonRequest(http.MethodPost, `{"paid_date":"2025-03-12"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	if err := h.MarkPaid(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var paid Response
	if err := json.Unmarshal(rec.Body.Bytes(), &paid); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if paid.State != StatePaid || paid.PaidDate == nil || *paid.PaidDate != "2025-03-12" {
		t.Errorf("unexpected paid response: %+v", paid)
	}

	// Invoicing the same booking again conflicts.
	err := h.Create(e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder()))
	if code := statusOf(t, err); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}
}

func TestHandler_Errors(t *testing.T) {
	f := newFixture(t)
	h, e := NewHandler(f.svc), echo.New()

	err := h.Create(e.NewContext(jsonRequest(http.MethodPost, `{"booking_ids":[]}`), httptest.NewRecorder()))
	if code := statusOf(t, err); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}

	body := `{"booking_ids":["` + uuid.New().String() + `"]}`
	err = h.Create(e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder()))
	if code := statusOf(t, err); code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown booking, got %d", code)
	}

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	if code := statusOf(t, h.Get(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/?state=void", nil), httptest.NewRecorder())
	if code := statusOf(t, h.List(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown state, got %d", code)
	}
}

func TestHandler_List(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		b := f.add(booking.StatusCompleted, f.now, "37.99")
		if _, err := f.svc.Create(context.Background(), Request{BookingIDs: []uuid.UUID{b.ID}}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	h, e := NewHandler(f.svc), echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?state=pending&patient_id="+f.patient.String(), nil), rec)
	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data  []Response `json:"data"`
		Total int        `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 3 || len(resp.Data) != 3 || resp.Data[0].ReferenceNumber != "FAC-2025-0003" {
		t.Errorf("unexpected list: total=%d data=%+v", resp.Total, resp.Data)
	}
}
