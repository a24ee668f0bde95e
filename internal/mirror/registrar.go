package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/mirror-adapter/pkg/model"
)

// WebhookRegistrar re-points the external trade-notification provider's
// webhook at a new leader account, so trade events for that account start
// arriving at our /process-trade endpoint.
type WebhookRegistrar struct {
	logger      *zap.Logger
	http        *http.Client
	providerURL string
	webhookID   string
	apiKey      string
	callbackURL string
}

// NewWebhookRegistrar constructs a registrar for the notification provider.
func NewWebhookRegistrar(logger *zap.Logger, providerURL, webhookID, apiKey, callbackURL string) *WebhookRegistrar {
	return &WebhookRegistrar{
		logger:      logger,
		http:        &http.Client{Timeout: 10 * time.Second},
		providerURL: providerURL,
		webhookID:   webhookID,
		apiKey:      apiKey,
		callbackURL: callbackURL,
	}
}

// webhookUpdateRequest mirrors the provider's webhook update payload.
type webhookUpdateRequest struct {
	WebhookURL       string   `json:"webhookURL"`
	TransactionTypes []string `json:"transactionTypes"`
	AccountAddresses []string `json:"accountAddresses"`
}

// Register updates the provider webhook to watch the leader account.
// PUT {provider}/v0/webhooks/{id}?api-key=...
func (r *WebhookRegistrar) Register(ctx context.Context, leader model.AccountID) error {
	body, err := json.Marshal(webhookUpdateRequest{
		WebhookURL:       r.callbackURL,
		TransactionTypes: []string{"Any"},
		AccountAddresses: []string{string(leader)},
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/v0/webhooks/%s?api-key=%s", r.providerURL, r.webhookID, r.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook update: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook update returned %d: %s", resp.StatusCode, string(raw))
	}

	r.logger.Info("registrar.webhook_updated",
		zap.String("leader", string(leader)),
		zap.String("callback", r.callbackURL))
	return nil
}
