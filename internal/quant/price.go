package quant

import (
	"math"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// Mid returns the midpoint of bid and ask rounded to the maximum decimal
// precision observed in either input, so the midpoint never carries more
// precision than the book itself showed.
func Mid(bid, ask float64) float64 {
	decimals := Decimals(bid)
	if d := Decimals(ask); d > decimals {
		decimals = d
	}
	return RoundTo((bid+ask)/2, decimals)
}

// DerivePrice picks the execution price for an order given the current top
// of book.
//
// Market orders price at mid adjusted by slippagePct in the adverse
// direction for the taker: a long pays above mid, a short receives below
// mid. The result is rounded to tickDecimals.
//
// Limit orders maximize fill priority without crossing the spread: when bid
// equals ask, or the spread is wider than one tick, the near-touch price is
// used (bid for long, ask for short); otherwise the order rests at mid.
func DerivePrice(kind domain.OrderKind, side domain.Side, bestBid, bestAsk, slippagePct float64, tickDecimals int) float64 {
	mid := Mid(bestBid, bestAsk)

	if kind == domain.OrderKindMarket {
		factor := 1 + slippagePct/100
		if side == domain.SideShort {
			factor = 1 - slippagePct/100
		}
		return RoundTo(mid*factor, tickDecimals)
	}

	tick := math.Pow(10, -float64(tickDecimals))
	spread := bestAsk - bestBid
	if bestBid == bestAsk || spread > tick+epsilon {
		if side == domain.SideLong {
			return bestBid
		}
		return bestAsk
	}
	return mid
}
