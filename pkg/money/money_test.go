package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		in   decimal.Decimal
		want string
	}{
		{decimal.NewFromInt(25), "25.00"},
		{decimal.RequireFromString("30.8"), "30.80"},
		{Zero, "0.00"},
		{decimal.RequireFromString("7.195"), "7.20"},
	}
	for _, tt := range tests {
		if got := Format(tt.in); got != tt.want {
			t.Errorf("Format(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	d, err := Parse(" 30,80 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Equal(decimal.RequireFromString("30.80")) {
		t.Errorf("expected 30.80, got %s", d)
	}
	if _, err := Parse("abc"); err == nil {
		t.Error("expected error for non-numeric input")
	}
}
