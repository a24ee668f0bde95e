package engine

import (
	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/mirror-adapter/pkg/model"
)

// Fixed-point precision contracts with the venue. These are not tunable:
// the venue rejects instructions whose exponents do not match.
const (
	PriceExponent = 3 // prices carry 3 decimal places
	SizeExponent  = 1 // diff-path sizes carry 1 decimal place
)

// PriceFractional encodes a discovered (slippage-adjusted) price as
// floor(price * 1000) with exponent 3.
func PriceFractional(price decimal.Decimal) model.Fractional {
	mantissa := price.Shift(PriceExponent).Floor().IntPart()
	return model.NewFractional(mantissa, PriceExponent)
}

// SizeFractional encodes a diff-path order size as floor(size * 10) with
// exponent 1.
func SizeFractional(size decimal.Decimal) model.Fractional {
	return SizeFractionalExp(size, SizeExponent)
}

// SizeFractionalExp encodes a size with a product-specific exponent, for
// products whose catalog entry dictates its own base decimals.
func SizeFractionalExp(size decimal.Decimal, exponent uint32) model.Fractional {
	mantissa := size.Shift(int32(exponent)).Floor().IntPart()
	return model.NewFractional(mantissa, exponent)
}

// BuildOrder converts an adjustment plus its discovered, slippage-adjusted
// price into a concrete order request for the given product index. Size is
// encoded with the product's base decimals when the catalog dictates them
// (zero means unstated), otherwise the diff-path exponent.
func BuildOrder(adj model.OrderAdjustment, price decimal.Decimal, productIndex int, baseDecimals uint32, clientTag string) model.OrderRequest {
	sizeExp := uint32(SizeExponent)
	if baseDecimals != 0 {
		sizeExp = baseDecimals
	}
	return model.OrderRequest{
		ProductIndex: productIndex,
		Product:      adj.Product,
		IsBid:        adj.IsBid,
		Price:        PriceFractional(price),
		Size:         SizeFractionalExp(adj.Size, sizeExp),
		ClientTag:    clientTag,
	}
}
