package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical event wrapper published to NATS.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Follower      string          `json:"follower_account"`
	Leader        string          `json:"leader_account"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// TradeReplicatedEvent is emitted after an incremental mirror order has been
// submitted for an observed leader trade.
type TradeReplicatedEvent struct {
	Signature string     `json:"signature"`
	Product   string     `json:"product"`
	Side      string     `json:"side"`
	Price     Fractional `json:"price"`
	Size      Fractional `json:"size"`
	Ratio     string     `json:"positioning_ratio"`
}

// ReconciledEvent is emitted after a full reconciliation pass.
type ReconciledEvent struct {
	Signature  string    `json:"signature,omitempty"`
	Orders     int       `json:"orders"`
	Skipped    int       `json:"skipped_products"`
	Ratio      string    `json:"positioning_ratio"`
	FinishedAt time.Time `json:"finished_at"`
}
