// Package quant converts requested order sizes and reference prices into
// values a venue will accept: sizes floored to the venue step and checked
// against the venue minimum, prices rounded to the venue tick.
package quant

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// epsilon absorbs float64 representation error when dividing by the step
// size. It is far below any venue step granularity, so it can never promote
// a genuinely short quantity to the next step.
const epsilon = 1e-9

// Quantize converts a requested quantity to base-asset units and floors it
// to the venue step size. Quantities denominated in the quote asset are
// converted by dividing by referencePrice first. The result keeps exactly
// as many fractional digits as stepSize has.
//
// Fails with domain.ErrBelowMinimum when the floored quantity is less than
// minQty; the caller must surface that rather than clamp the size up, since
// rounding up could exceed what funds or margin support.
func Quantize(requestedQty float64, unit domain.SizeUnit, referencePrice, stepSize, minQty float64) (float64, error) {
	if stepSize <= 0 {
		return 0, fmt.Errorf("quant: step size must be positive, got %v", stepSize)
	}

	base := requestedQty
	if unit == domain.SizeUnitQuote {
		if referencePrice <= 0 {
			return 0, fmt.Errorf("quant: reference price must be positive for quote-denominated size, got %v", referencePrice)
		}
		base = requestedQty / referencePrice
	}

	steps := math.Floor(base/stepSize + epsilon)
	if steps < 0 {
		steps = 0
	}
	qty := RoundTo(steps*stepSize, Decimals(stepSize))

	if qty < minQty {
		return 0, fmt.Errorf("quant: quantity %v below venue minimum %v: %w", qty, minQty, domain.ErrBelowMinimum)
	}
	return qty, nil
}

// Decimals returns the number of fractional digits in v's shortest decimal
// representation. Decimals(0.001) == 3, Decimals(5) == 0.
func Decimals(v float64) int {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// RoundTo rounds v to the given number of fractional digits. Formatting
// through strconv instead of multiplying by powers of ten keeps results
// exact for the magnitudes venues use.
func RoundTo(v float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	out, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', decimals, 64), 64)
	if err != nil {
		return v
	}
	return out
}

// FormatAmount renders v with exactly the given number of fractional digits,
// the way venue wire formats expect quantities and prices.
func FormatAmount(v float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

// FormatCompact renders v in its shortest exact decimal form, for logs,
// notifications and dedup keys where no fixed width applies.
func FormatCompact(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
