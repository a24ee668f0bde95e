package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Taker side values as delivered by the venue's trade notifications.
const (
	TakerSideBid = "bid"
	TakerSideAsk = "ask"
)

// TradeEvent is one executed trade as delivered by the venue's trade
// notification mechanism (webhook or stream).
type TradeEvent struct {
	Maker     string          `json:"maker"`
	Taker     string          `json:"taker"`
	Product   string          `json:"product"`
	BaseSize  decimal.Decimal `json:"base_size"`
	Price     decimal.Decimal `json:"price"`
	TakerSide string          `json:"taker_side"` // "bid" | "ask"
}

// Validate checks structural validity of the event. Whether the event is
// relevant to a subscription is a separate filtering decision.
func (e *TradeEvent) Validate() error {
	if e.Maker == "" || e.Taker == "" {
		return fmt.Errorf("trade event missing maker/taker")
	}
	if strings.TrimSpace(e.Product) == "" {
		return fmt.Errorf("trade event missing product")
	}
	side := strings.ToLower(e.TakerSide)
	if side != TakerSideBid && side != TakerSideAsk {
		return fmt.Errorf("trade event has invalid taker_side %q", e.TakerSide)
	}
	if e.BaseSize.IsNegative() {
		return fmt.Errorf("trade event has negative base_size")
	}
	return nil
}

// Involves reports whether the given account took part in the trade as
// maker or taker.
func (e *TradeEvent) Involves(account AccountID) bool {
	return e.Maker == string(account) || e.Taker == string(account)
}
