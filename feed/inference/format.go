// Package inference caches the latest server-pushed quote arrays per
// subscription key and turns them into coalesced row patches for a renderer.
package inference

import (
	"fmt"
	"math"

	"github.com/deepmm/inference-feed/feed/subs"
)

// FormatError reports a value that could not be formatted for display.
type FormatError struct {
	Kind  string
	Value float64
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("cannot format %v as %q: expected price, spread or ytm", e.Value, e.Kind)
}

// Format renders one inference value for display: ytm as a percentage with
// two decimals, spread with one decimal, price as a currency amount with
// three decimals.
func Format(value float64, kind subs.Label) (string, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "", &FormatError{Kind: string(kind), Value: value}
	}
	switch kind {
	case subs.LabelYTM:
		return fmt.Sprintf("%.2f%%", value), nil
	case subs.LabelSpread:
		return fmt.Sprintf("%.1f", value), nil
	case subs.LabelPrice:
		return fmt.Sprintf("$%.3f", value), nil
	}
	return "", &FormatError{Kind: string(kind), Value: value}
}
