package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderAdjustment is one signed-size correction produced by the diff engine.
// Size is always strictly positive; direction is carried by IsBid.
type OrderAdjustment struct {
	Product ProductID
	IsBid   bool
	Size    decimal.Decimal
}

// Fractional is the venue's fixed-point number encoding: an integer mantissa
// scaled by 10^-Exponent. The venue rejects instructions whose exponent does
// not match the product's contract, so mantissa/exponent pairs are never
// re-scaled after construction.
type Fractional struct {
	Mantissa int64  `json:"m"`
	Exponent uint32 `json:"exp"`
}

// NewFractional constructs a Fractional from an explicit mantissa and exponent.
func NewFractional(mantissa int64, exponent uint32) Fractional {
	return Fractional{Mantissa: mantissa, Exponent: exponent}
}

// Decimal returns the decimal value represented by the fractional.
func (f Fractional) Decimal() decimal.Decimal {
	return decimal.New(f.Mantissa, -int32(f.Exponent))
}

func (f Fractional) String() string {
	return fmt.Sprintf("%s (m=%d e=%d)", f.Decimal().String(), f.Mantissa, f.Exponent)
}

// OrderRequest is a fully priced, fixed-point-encoded order ready for the
// execution gateway. It is produced only after price discovery succeeded for
// the product.
type OrderRequest struct {
	ProductIndex int
	Product      ProductID
	IsBid        bool
	Price        Fractional
	Size         Fractional
	ClientTag    string // optional client order tag for tracing
}

// Side returns the canonical side string for logging and events.
func (o OrderRequest) Side() string {
	if o.IsBid {
		return "bid"
	}
	return "ask"
}
