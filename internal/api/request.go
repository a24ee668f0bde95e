package api

import (
	"fmt"
	"strings"
)

// SubscribeRequest asks the service to start mirroring a leader account.
type SubscribeRequest struct {
	LeaderAccount string `json:"leader_account"`
}

// Validate checks the subscription request.
func (r *SubscribeRequest) Validate() error {
	if strings.TrimSpace(r.LeaderAccount) == "" {
		return fmt.Errorf("leader_account is required")
	}
	return nil
}

// SubscribeResponse confirms the active leader after a subscription change.
type SubscribeResponse struct {
	OK               bool   `json:"ok"`
	NewLeaderAccount string `json:"new_leader_account,omitempty"`
	ErrorMsg         string `json:"error,omitempty"`
}

// TradeResponse reports the outcome of a trade notification.
type TradeResponse struct {
	OK         bool   `json:"ok"`
	Replicated int    `json:"replicated"`
	Signature  string `json:"signature,omitempty"`
	ErrorMsg   string `json:"error,omitempty"`
}
