package venue

import (
	"context"
	"errors"

	"github.com/Checker-Finance/mirror-adapter/pkg/model"
)

// ErrRateLimited marks a transient venue rejection (HTTP 429 equivalent).
// The execution gateway retries these once after a fixed backoff; every
// other submission failure is surfaced to the caller.
var ErrRateLimited = errors.New("venue rate limited")

// TxSignature identifies a submitted venue transaction. Empty means no
// transaction was submitted.
type TxSignature string

// Product describes one entry of the venue's product universe.
type Product struct {
	Name         model.ProductID
	Index        int
	BaseDecimals uint32 // size exponent this product's orders must carry; 0 when unstated
}

// Instruction kinds within an atomic batch.
const (
	InstructionNewOrder         = "new_order"
	InstructionUpdateMarkPrices = "update_mark_prices"
)

// Instruction is one element of an atomic transaction batch.
type Instruction struct {
	Kind     string             `json:"kind"`
	Order    *model.OrderRequest `json:"order,omitempty"`
	Products []model.ProductID  `json:"products,omitempty"`
}

// ExecutionClient is the venue SDK surface this engine consumes. The
// matching engine, settlement and account encoding all live behind it.
type ExecutionClient interface {
	// Connect refreshes connection state with the venue.
	Connect(ctx context.Context) error

	// RefreshLookupTable refreshes the venue's address lookup table. The
	// venue rejects instructions built against an outdated table, so this
	// is a required staleness guard before building a batch.
	RefreshLookupTable(ctx context.Context) error

	// Products returns the venue's current product universe.
	Products(ctx context.Context) ([]Product, error)

	// Positions returns the account's current position snapshot.
	Positions(ctx context.Context, account model.AccountID) (*model.PositionSnapshot, error)

	// CancelAllOrders cancels the follower's open orders across products.
	CancelAllOrders(ctx context.Context, products []model.ProductID) error

	// NewOrderInstruction builds a new-order instruction for the batch.
	NewOrderInstruction(order model.OrderRequest) Instruction

	// UpdateMarkPricesInstruction builds a mark-price-refresh instruction.
	UpdateMarkPricesInstruction(products []model.ProductID) Instruction

	// SendBatch submits instructions as a single atomic transaction.
	SendBatch(ctx context.Context, instructions []Instruction) (TxSignature, error)
}
