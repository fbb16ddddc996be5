package invoicing

import (
	"testing"
	"time"

	"github.com/carehub/carehub/internal/domain/booking"
	"github.com/carehub/carehub/pkg/money"
)

var policyNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func bookingAt(status booking.Status, start time.Time, fee, code string) *booking.Booking {
	return &booking.Booking{Status: status, Start: start, ProcedureFee: money.MustParse(fee), ProcedureCode: code}
}

func TestSettle_SingleBooking(t *testing.T) {
	soon := policyNow.Add(2 * time.Hour)
	later := policyNow.Add(48 * time.Hour)

	tests := []struct {
		name   string
		b      *booking.Booking
		reason string
		amount string
		desc   string
	}{
		{"completed", bookingAt(booking.StatusCompleted, soon, "37.99", "560011"), "", "37.99", "session 560011"},
		{"completed without code", bookingAt(booking.StatusCompleted, soon, "0", ""), "", "0.00", "session"},
		{"no-show", bookingAt(booking.StatusNoShow, soon, "37.99", "560011"), "", "25.00", "no-show fee"},
		{"late cancel", bookingAt(booking.StatusCancelled, soon, "37.99", "560011"), "", "25.00", "late-cancellation fee"},
		{"late cancel, unknown reason", bookingAt(booking.StatusCancelled, soon, "37.99", ""), "traffic", "25.00", "late-cancellation fee"},
		{"late cancel, death", bookingAt(booking.StatusCancelled, soon, "37.99", ""), "death", "0.00", "cancellation, no charge"},
		{"late cancel, sick note", bookingAt(booking.StatusCancelled, soon, "37.99", ""), "sick_with_note", "0.00", "cancellation, no charge"},
		{"late cancel, first", bookingAt(booking.StatusCancelled, soon, "37.99", ""), "first_cancellation", "0.00", "cancellation, no charge"},
		{"cancel exactly 24h ahead", bookingAt(booking.StatusCancelled, policyNow.Add(24*time.Hour), "37.99", ""), "", "25.00", "late-cancellation fee"},
		{"cancel in the past", bookingAt(booking.StatusCancelled, policyNow.Add(-time.Hour), "37.99", ""), "", "25.00", "late-cancellation fee"},
		{"early cancel", bookingAt(booking.StatusCancelled, later, "37.99", ""), "", "0.00", "cancellation, no charge"},
		{"scheduled", bookingAt(booking.StatusScheduled, soon, "37.99", ""), "", "0.00", "no charge"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, desc := Settle([]*booking.Booking{tt.b}, tt.reason, policyNow)
			if money.Format(amount) != tt.amount || desc != tt.desc {
				t.Errorf("got (%s, %q), want (%s, %q)", money.Format(amount), desc, tt.amount, tt.desc)
			}
		})
	}
}

func TestSettle_Empty(t *testing.T) {
	amount, desc := Settle(nil, "", policyNow)
	if !amount.IsZero() || desc != "no bookings" {
		t.Errorf("got (%s, %q)", amount, desc)
	}
}

// Several bookings are summed on procedure fee regardless of status.
func TestSettle_Multiple(t *testing.T) {
	items := []*booking.Booking{
		bookingAt(booking.StatusCompleted, policyNow, "37.99", "560011"),
		bookingAt(booking.StatusNoShow, policyNow, "26.27", "560114"),
		bookingAt(booking.StatusCancelled, policyNow, "10.00", ""),
	}
	amount, desc := Settle(items, "", policyNow)
	if money.Format(amount) != "74.26" || desc != "sessions (multi)" {
		t.Errorf("got (%s, %q)", money.Format(amount), desc)
	}
}

func TestFormatReference(t *testing.T) {
	if got := FormatReference(2025, 7); got != "FAC-2025-0007" {
		t.Errorf("got %s", got)
	}
	if got := FormatReference(2025, 12345); got != "FAC-2025-12345" {
		t.Errorf("got %s", got)
	}
}
