package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Window horizon over which gain is measured.
type Window string

const (
	WindowDaily  Window = "daily"
	WindowWeekly Window = "weekly"
	WindowTotal  Window = "total"
)

// Windows lists every supported horizon.
var Windows = []Window{WindowDaily, WindowWeekly, WindowTotal}

// ParseWindow converts a string into a Window.
func ParseWindow(s string) (Window, error) {
	switch w := Window(s); w {
	case WindowDaily, WindowWeekly, WindowTotal:
		return w, nil
	default:
		return "", fmt.Errorf("unknown window %q, expected daily|weekly|total", s)
	}
}

// String returns the string representation.
func (w Window) String() string {
	return string(w)
}

// GainMetric absolute and percentage gain over a window. Derived, never persisted.
type GainMetric struct {
	Window     Window          `json:"window"`
	Absolute   decimal.Decimal `json:"absolute"`
	Percentage decimal.Decimal `json:"percentage"`
}

var hundred = decimal.NewFromInt(100)

// Percentage returns (current-base)/base*100 rounded to 2 places, or zero when base is zero.
func Percentage(current, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return current.Sub(base).Div(base).Mul(hundred).Round(2)
}
