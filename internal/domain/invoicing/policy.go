package invoicing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carehub/carehub/internal/domain/booking"
	"github.com/carehub/carehub/pkg/money"
)

// CancelFee is charged for no-shows and late cancellations.
var CancelFee = money.MustParse("25.00")

// LateCancelWindow is how close to the start a cancellation becomes billable.
const LateCancelWindow = 24 * time.Hour

// excusedReasons waive the late-cancellation fee.
var excusedReasons = map[string]bool{
	"death":              true,
	"sick_with_note":     true,
	"first_cancellation": true,
}

func IsExcused(reason string) bool {
	return excusedReasons[reason]
}

// withinWindow is true when start is at most LateCancelWindow after now,
// including starts already in the past.
func withinWindow(start, now time.Time) bool {
	return start.Sub(now) <= LateCancelWindow
}

// Settle derives the billable amount and description for a set of bookings.
// A single booking goes through the status table; several bookings are
// billed as the plain sum of their procedure fees.
func Settle(bookings []*booking.Booking, cancelReason string, now time.Time) (decimal.Decimal, string) {
	switch len(bookings) {
	case 0:
		return money.Zero, "no bookings"
	case 1:
		return settleOne(bookings[0], cancelReason, now)
	}
	total := money.Zero
	for _, b := range bookings {
		total = total.Add(b.ProcedureFee)
	}
	return money.Round(total), "sessions (multi)"
}

func settleOne(b *booking.Booking, cancelReason string, now time.Time) (decimal.Decimal, string) {
	switch b.Status {
	case booking.StatusCompleted:
		return money.Round(b.ProcedureFee), strings.TrimSpace("session " + b.ProcedureCode)
	case booking.StatusNoShow:
		return CancelFee, "no-show fee"
	case booking.StatusCancelled:
		if withinWindow(b.Start, now) && !IsExcused(cancelReason) {
			return CancelFee, "late-cancellation fee"
		}
		return money.Zero, "cancellation, no charge"
	default:
		return money.Zero, "no charge"
	}
}
