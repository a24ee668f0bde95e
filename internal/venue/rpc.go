package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/mirror-adapter/internal/httpclient"
	"github.com/Checker-Finance/mirror-adapter/internal/rate"
	"github.com/Checker-Finance/mirror-adapter/pkg/model"
)

// Credentials hold per-follower venue RPC access, resolved from the secrets
// provider at startup.
type Credentials struct {
	RPCURL string
	APIKey string
}

// rateLimitKey isolates the venue rate-limit bucket per RPC endpoint.
func (c Credentials) rateLimitKey() string {
	return "venue_rpc:" + c.RPCURL
}

// RPCClient implements ExecutionClient against the venue's HTTP RPC gateway.
type RPCClient struct {
	logger *zap.Logger
	exec   *httpclient.Executor
	creds  Credentials
}

// NewRPCClient constructs a venue RPC client. The executor runs with zero
// retries: batch submission is not idempotent, and a replay of an ambiguous
// failure could double-fill the follower. The gateway owns the single
// rate-limit retry; everything else surfaces to the caller.
func NewRPCClient(logger *zap.Logger, rateMgr *rate.Manager, creds Credentials, timeout time.Duration) *RPCClient {
	httpClient := &http.Client{Timeout: timeout}
	exec := httpclient.New(logger, rateMgr, httpClient, 0, "venue", func(status int, body []byte) error {
		if status == http.StatusTooManyRequests {
			return fmt.Errorf("venue returned 429: %w", ErrRateLimited)
		}
		var errResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &errResp)
		msg := errResp.Message
		if msg == "" {
			msg = errResp.Error
		}
		if msg == "" {
			msg = string(body)
		}
		return fmt.Errorf("venue returned %d: %s", status, msg)
	})
	return &RPCClient{
		logger: logger,
		exec:   exec,
		creds:  creds,
	}
}

func (c *RPCClient) Connect(ctx context.Context) error {
	return c.postJSON(ctx, "/api/session/connect", struct{}{}, nil)
}

func (c *RPCClient) RefreshLookupTable(ctx context.Context) error {
	return c.postJSON(ctx, "/api/session/lookup_table/refresh", struct{}{}, nil)
}

// venueProduct mirrors the gateway's product listing wire format.
type venueProduct struct {
	Name         string `json:"name"`
	Index        int    `json:"index"`
	BaseDecimals uint32 `json:"base_decimals"`
}

func (c *RPCClient) Products(ctx context.Context) ([]Product, error) {
	var resp struct {
		Products []venueProduct `json:"products"`
	}
	if err := c.getJSON(ctx, "/api/products", &resp); err != nil {
		return nil, err
	}

	out := make([]Product, 0, len(resp.Products))
	for _, p := range resp.Products {
		out = append(out, Product{
			Name:         model.NormalizeProduct(p.Name),
			Index:        p.Index,
			BaseDecimals: p.BaseDecimals,
		})
	}
	return out, nil
}

// venuePosition mirrors the gateway's position listing wire format. Sizes
// and values arrive as strings to preserve exact lot fractions.
type venuePosition struct {
	Product string `json:"product"`
	Size    string `json:"size"`
}

func (c *RPCClient) Positions(ctx context.Context, account model.AccountID) (*model.PositionSnapshot, error) {
	var resp struct {
		Account        string          `json:"account"`
		PortfolioValue string          `json:"portfolio_value"`
		Positions      []venuePosition `json:"positions"`
	}
	path := fmt.Sprintf("/api/accounts/%s/positions", account)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}

	value, err := decimal.NewFromString(resp.PortfolioValue)
	if err != nil {
		return nil, fmt.Errorf("invalid portfolio value %q for %s: %w", resp.PortfolioValue, account, err)
	}

	positions := make(map[model.ProductID]decimal.Decimal, len(resp.Positions))
	for _, p := range resp.Positions {
		size, err := decimal.NewFromString(p.Size)
		if err != nil {
			return nil, fmt.Errorf("invalid position size %q for %q: %w", p.Size, p.Product, err)
		}
		positions[model.NormalizeProduct(p.Product)] = size
	}

	return &model.PositionSnapshot{
		Account:        account,
		Positions:      positions,
		PortfolioValue: value,
		TakenAt:        time.Now().UTC(),
	}, nil
}

func (c *RPCClient) CancelAllOrders(ctx context.Context, products []model.ProductID) error {
	body := struct {
		Products []model.ProductID `json:"products"`
	}{Products: products}
	return c.postJSON(ctx, "/api/orders/cancel_all", body, nil)
}

func (c *RPCClient) NewOrderInstruction(order model.OrderRequest) Instruction {
	o := order
	return Instruction{Kind: InstructionNewOrder, Order: &o}
}

func (c *RPCClient) UpdateMarkPricesInstruction(products []model.ProductID) Instruction {
	return Instruction{Kind: InstructionUpdateMarkPrices, Products: products}
}

func (c *RPCClient) SendBatch(ctx context.Context, instructions []Instruction) (TxSignature, error) {
	body := struct {
		Instructions []Instruction `json:"instructions"`
	}{Instructions: instructions}

	var resp struct {
		Signature string `json:"signature"`
	}
	if err := c.postJSON(ctx, "/api/transactions", body, &resp); err != nil {
		return "", err
	}
	return TxSignature(resp.Signature), nil
}

// getJSON performs an authenticated GET request and decodes the JSON response.
func (c *RPCClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.creds.RPCURL+path, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	return c.exec.DoJSON(ctx, req, c.creds.rateLimitKey(), out)
}

// postJSON performs an authenticated POST request with a JSON body.
func (c *RPCClient) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.creds.RPCURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	return c.exec.DoJSON(ctx, req, c.creds.rateLimitKey(), out)
}

func (c *RPCClient) setHeaders(req *http.Request) {
	if c.creds.APIKey != "" {
		req.Header.Set("x-api-key", c.creds.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}
