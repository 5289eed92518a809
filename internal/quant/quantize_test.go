package quant

import (
	"errors"
	"math"
	"testing"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

func TestQuantize_FloorsToStepMultiple(t *testing.T) {
	cases := []struct {
		name string
		qty  float64
		step float64
		min  float64
		want float64
	}{
		{"exact multiple", 0.05, 0.001, 0.001, 0.05},
		{"floors down", 0.0539, 0.001, 0.001, 0.053},
		{"coarse step", 1.27, 0.1, 0.1, 1.2},
		{"integer step", 17.9, 1, 1, 17},
		{"tiny step", 0.12345678, 0.0001, 0.0001, 0.1234},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Quantize(tc.qty, domain.SizeUnitBase, 0, tc.step, tc.min)
			if err != nil {
				t.Fatalf("Quantize returned error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Quantize(%v, step=%v) = %v, want %v", tc.qty, tc.step, got, tc.want)
			}
			if got > tc.qty {
				t.Errorf("quantized %v exceeds requested %v", got, tc.qty)
			}
			steps := got / tc.step
			if math.Abs(steps-math.Round(steps)) > 1e-6 {
				t.Errorf("quantized %v is not a multiple of step %v", got, tc.step)
			}
		})
	}
}

func TestQuantize_QuoteUnitConvertsByReferencePrice(t *testing.T) {
	// 300 USD at 3000 USD/ETH is 0.1 ETH.
	got, err := Quantize(300, domain.SizeUnitQuote, 3000, 0.001, 0.001)
	if err != nil {
		t.Fatalf("Quantize returned error: %v", err)
	}
	if got != 0.1 {
		t.Errorf("Quantize quote 300 @ 3000 = %v, want 0.1", got)
	}

	// 100 USD at 3000 USD/ETH is 0.0333... ETH, floored to 0.033.
	got, err = Quantize(100, domain.SizeUnitQuote, 3000, 0.001, 0.001)
	if err != nil {
		t.Fatalf("Quantize returned error: %v", err)
	}
	if got != 0.033 {
		t.Errorf("Quantize quote 100 @ 3000 = %v, want 0.033", got)
	}
}

func TestQuantize_BelowMinimum(t *testing.T) {
	_, err := Quantize(0.0004, domain.SizeUnitBase, 0, 0.001, 0.001)
	if !errors.Is(err, domain.ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}

	// Exactly at the minimum is accepted, strictly below it is not.
	if _, err := Quantize(0.001, domain.SizeUnitBase, 0, 0.001, 0.001); err != nil {
		t.Errorf("quantity equal to minimum rejected: %v", err)
	}
	_, err = Quantize(0.0019, domain.SizeUnitBase, 0, 0.001, 0.002)
	if !errors.Is(err, domain.ErrBelowMinimum) {
		t.Errorf("expected ErrBelowMinimum for floored 0.001 < min 0.002, got %v", err)
	}
}

func TestQuantize_QuoteBelowMinimumAfterConversion(t *testing.T) {
	// 1 USD at 3000 USD/ETH floors to 0 ETH.
	_, err := Quantize(1, domain.SizeUnitQuote, 3000, 0.001, 0.001)
	if !errors.Is(err, domain.ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}
}

func TestQuantize_InvalidInputs(t *testing.T) {
	if _, err := Quantize(1, domain.SizeUnitBase, 0, 0, 0.001); err == nil {
		t.Error("expected error for zero step size")
	}
	if _, err := Quantize(100, domain.SizeUnitQuote, 0, 0.001, 0.001); err == nil {
		t.Error("expected error for quote unit without reference price")
	}
}

func TestDecimals(t *testing.T) {
	cases := []struct {
		v    float64
		want int
	}{
		{0.001, 3},
		{0.1, 1},
		{1, 0},
		{0.00001, 5},
		{2.5, 1},
	}
	for _, tc := range cases {
		if got := Decimals(tc.v); got != tc.want {
			t.Errorf("Decimals(%v) = %d, want %d", tc.v, got, tc.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(0.05, 3); got != "0.050" {
		t.Errorf("FormatAmount(0.05, 3) = %q, want %q", got, "0.050")
	}
	if got := FormatAmount(17, 0); got != "17" {
		t.Errorf("FormatAmount(17, 0) = %q, want %q", got, "17")
	}
}
