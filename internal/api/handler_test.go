package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/mirror-adapter/internal/mirror"
	"github.com/Checker-Finance/mirror-adapter/pkg/model"
)

// --- Mock Service ---

type mockService struct {
	subscribeFn   func(ctx context.Context, follower, leader model.AccountID) (mirror.Subscription, error)
	unsubscribeFn func(follower model.AccountID) error
	replicateFn   func(ctx context.Context, follower model.AccountID, event *model.TradeEvent) (*mirror.Replication, error)
}

func (m *mockService) Subscribe(ctx context.Context, follower, leader model.AccountID) (mirror.Subscription, error) {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, follower, leader)
	}
	return mirror.Subscription{}, fmt.Errorf("not implemented")
}

func (m *mockService) Unsubscribe(follower model.AccountID) error {
	if m.unsubscribeFn != nil {
		return m.unsubscribeFn(follower)
	}
	return fmt.Errorf("not implemented")
}

func (m *mockService) ReplicateTrade(ctx context.Context, follower model.AccountID, event *model.TradeEvent) (*mirror.Replication, error) {
	if m.replicateFn != nil {
		return m.replicateFn(ctx, follower, event)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) Registry() *mirror.Registry {
	return mirror.NewRegistry()
}

// --- Test Helpers ---

func newTestApp(svc MirrorService) *fiber.App {
	app := fiber.New()
	handler := NewMirrorHandler(zap.NewNop(), svc, "follower-1")
	v1 := app.Group("/api/v1")
	v1.Post("/subscriptions", handler.SubscribeHandler)
	v1.Delete("/subscriptions", handler.UnsubscribeHandler)
	app.Post("/process-trade", handler.ProcessTradeHandler)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

// --- Subscribe ---

func TestSubscribeHandler_Success(t *testing.T) {
	svc := &mockService{
		subscribeFn: func(ctx context.Context, follower, leader model.AccountID) (mirror.Subscription, error) {
			assert.Equal(t, model.AccountID("follower-1"), follower)
			assert.Equal(t, model.AccountID("leader-9"), leader)
			return mirror.Subscription{Follower: follower, Leader: leader}, nil
		},
	}
	app := newTestApp(svc)

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/subscriptions",
		`{"leader_account":"leader-9"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "leader-9", body["new_leader_account"])
}

func TestSubscribeHandler_MissingLeader(t *testing.T) {
	app := newTestApp(&mockService{})

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/subscriptions", `{}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "leader_account")
}

func TestSubscribeHandler_ServiceError(t *testing.T) {
	svc := &mockService{
		subscribeFn: func(ctx context.Context, follower, leader model.AccountID) (mirror.Subscription, error) {
			return mirror.Subscription{}, fmt.Errorf("provider unreachable")
		},
	}
	app := newTestApp(svc)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/subscriptions",
		`{"leader_account":"leader-9"}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// --- Unsubscribe ---

func TestUnsubscribeHandler_Success(t *testing.T) {
	svc := &mockService{
		unsubscribeFn: func(follower model.AccountID) error {
			assert.Equal(t, model.AccountID("follower-1"), follower)
			return nil
		},
	}
	app := newTestApp(svc)

	resp, body := doJSON(t, app, http.MethodDelete, "/api/v1/subscriptions", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
}

func TestUnsubscribeHandler_NotSubscribed(t *testing.T) {
	svc := &mockService{
		unsubscribeFn: func(follower model.AccountID) error {
			return mirror.ErrNoSubscription
		},
	}
	app := newTestApp(svc)

	resp, _ := doJSON(t, app, http.MethodDelete, "/api/v1/subscriptions", "")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// --- Process trade ---

func TestProcessTradeHandler_Replicated(t *testing.T) {
	svc := &mockService{
		replicateFn: func(ctx context.Context, follower model.AccountID, event *model.TradeEvent) (*mirror.Replication, error) {
			assert.Equal(t, "BTC-PERP", event.Product)
			assert.Equal(t, "ask", event.TakerSide)
			return &mirror.Replication{Signature: "sig-42", Product: "BTC-PERP"}, nil
		},
	}
	app := newTestApp(svc)

	resp, body := doJSON(t, app, http.MethodPost, "/process-trade", `{
		"maker": "leader-9",
		"taker": "someone",
		"product": "BTC-PERP",
		"base_size": "4",
		"price": "100",
		"taker_side": "ask"
	}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(1), body["replicated"])
	assert.Equal(t, "sig-42", body["signature"])
}

func TestProcessTradeHandler_FilteredTradeIsAcknowledged(t *testing.T) {
	svc := &mockService{
		replicateFn: func(ctx context.Context, follower model.AccountID, event *model.TradeEvent) (*mirror.Replication, error) {
			return nil, fmt.Errorf("%w: stranger trade", mirror.ErrLeaderNotInTrade)
		},
	}
	app := newTestApp(svc)

	resp, body := doJSON(t, app, http.MethodPost, "/process-trade", `{
		"maker": "a",
		"taker": "b",
		"product": "BTC-PERP",
		"base_size": "4",
		"price": "100",
		"taker_side": "ask"
	}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	_, hasSig := body["signature"]
	assert.False(t, hasSig)
}

func TestProcessTradeHandler_IgnoredTradeIsAcknowledged(t *testing.T) {
	svc := &mockService{
		replicateFn: func(ctx context.Context, follower model.AccountID, event *model.TradeEvent) (*mirror.Replication, error) {
			return nil, nil // zero ratio or truncated size
		},
	}
	app := newTestApp(svc)

	resp, body := doJSON(t, app, http.MethodPost, "/process-trade", `{
		"maker": "leader-9",
		"taker": "someone",
		"product": "BTC-PERP",
		"base_size": "0.01",
		"price": "100",
		"taker_side": "ask"
	}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
}

func TestProcessTradeHandler_ExecutionFailure(t *testing.T) {
	svc := &mockService{
		replicateFn: func(ctx context.Context, follower model.AccountID, event *model.TradeEvent) (*mirror.Replication, error) {
			return nil, fmt.Errorf("venue down")
		},
	}
	app := newTestApp(svc)

	resp, body := doJSON(t, app, http.MethodPost, "/process-trade", `{
		"maker": "leader-9",
		"taker": "someone",
		"product": "BTC-PERP",
		"base_size": "4",
		"price": "100",
		"taker_side": "ask"
	}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "venue down", body["error"])
}
