package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountID identifies a trading account at the venue (a trader risk group
// address, base58-encoded).
type AccountID string

// ProductID is the venue's product identifier. Raw identifiers coming off
// the venue may carry trailing padding, so every ProductID used as a map key
// must first go through NormalizeProduct.
type ProductID string

// NormalizeProduct trims whitespace padding from a raw venue product
// identifier so that padded and unpadded forms compare equal.
func NormalizeProduct(raw string) ProductID {
	return ProductID(strings.TrimSpace(raw))
}

// PositionSnapshot captures an account's signed positions and portfolio
// value as of a single refresh. Snapshots are immutable once captured; a new
// refresh produces a new snapshot.
type PositionSnapshot struct {
	Account        AccountID
	Positions      map[ProductID]decimal.Decimal // signed size per product
	PortfolioValue decimal.Decimal
	TakenAt        time.Time
}
