package custody

import (
	"context"

	"github.com/erazemk/oder/internal/model"
)

// Order listing states.
const (
	OrdersAll     = ""
	OrdersActive  = "active"
	OrdersHistory = "history"
)

// OrderFilter narrows ListOrders. Text fields match case-insensitive
// substrings; Pickup matches a prefix of the YYYY-MM-DD pickup date.
type OrderFilter struct {
	State    string
	AssetID  string // orders actively holding this piece
	Crew     string
	Contract string
	Site     string
	Pickup   string
}

// AssetFilter narrows ListAssets. Model is compared after NormalizeModel and
// Query is a substring of the piece id.
type AssetFilter struct {
	Model  string
	Status string
	Query  string
}

// Store is the order and catalog backend. Reads outside RunInTx see a
// committed snapshot; everything that reads and then writes goes through
// RunInTx. Lookups of a missing record return nil without error.
type Store interface {
	ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error)
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	ListAssets(ctx context.Context, filter AssetFilter) ([]model.Asset, error)
	GetAsset(ctx context.Context, id string) (*model.Asset, error)
	CreateAssets(ctx context.Context, assets []model.Asset) error

	// Import writes assets and orders verbatim, without reconciliation.
	Import(ctx context.Context, assets []model.Asset, orders []model.Order) error

	// RunInTx runs fn in one atomic transaction. A backend conflict must be
	// returned as a *Error of KindConflict so the caller can retry.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional view handed to RunInTx callbacks. Writes are
// visible to later reads of the same Tx.
type Tx interface {
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	// OrdersHolding returns every order with any of ids in an active set.
	OrdersHolding(ctx context.Context, ids []string) ([]model.Order, error)
	// GetAssets returns the catalog entries of ids; unknown ids are absent.
	GetAssets(ctx context.Context, ids []string) (map[string]model.Asset, error)
	SetAssetStatus(ctx context.Context, ids []string, status string) error
	InsertOrder(ctx context.Context, o *model.Order) error
	// UpdateOrderItems replaces the active and returned sets of o's line items.
	UpdateOrderItems(ctx context.Context, o *model.Order) error
	UpdateLoanDays(ctx context.Context, orderID string, days int) error
}
