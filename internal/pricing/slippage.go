package pricing

import "github.com/shopspring/decimal"

// Slippage band multipliers. The band trades price certainty for execution
// certainty: a bid is priced 5% above the reference and an ask 5% below, so
// the order is marketable against anything inside the tolerance band. Fixed
// policy, not a tunable.
var (
	bidSlippage = decimal.RequireFromString("1.05")
	askSlippage = decimal.RequireFromString("0.95")
)

// ApplySlippage adjusts a reference price for guaranteed marketability.
// Pure function: applying it twice to the same input yields the same output.
func ApplySlippage(reference decimal.Decimal, isBid bool) decimal.Decimal {
	if isBid {
		return reference.Mul(bidSlippage)
	}
	return reference.Mul(askSlippage)
}
