package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/erazemk/oder/internal/custody"
	"github.com/erazemk/oder/internal/model"
)

// Ledger is the SQLite implementation of custody.Store.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// NewLedger returns a Ledger on db.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

var _ custody.Store = (*Ledger)(nil)

// ListOrders implements custody.Store.
func (l *Ledger) ListOrders(ctx context.Context, filter custody.OrderFilter) ([]model.Order, error) {
	return ListOrders(ctx, l.db, filter)
}

// GetOrder implements custody.Store.
func (l *Ledger) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return GetOrder(ctx, l.db, id)
}

// ListAssets implements custody.Store.
func (l *Ledger) ListAssets(ctx context.Context, filter custody.AssetFilter) ([]model.Asset, error) {
	return ListAssets(ctx, l.db, filter)
}

// GetAsset implements custody.Store.
func (l *Ledger) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	return GetAsset(ctx, l.db, id)
}

// CreateAssets inserts the batch atomically. A duplicate id is reported as a
// validation error naming the piece.
func (l *Ledger) CreateAssets(ctx context.Context, assets []model.Asset) error {
	return l.inTx(ctx, func(tx *sql.Tx) error {
		ids := make([]string, len(assets))
		for i, a := range assets {
			ids[i] = a.ID
		}
		existing, err := GetAssets(ctx, tx, ids)
		if err != nil {
			return err
		}
		for _, a := range assets {
			if _, ok := existing[a.ID]; ok {
				e := custody.ValidationError("piece %s already exists", a.ID)
				e.AssetID = a.ID
				return e
			}
		}
		return CreateAssets(ctx, tx, assets)
	})
}

// Import replaces the listed assets and orders with the given versions.
func (l *Ledger) Import(ctx context.Context, assets []model.Asset, orders []model.Order) error {
	return l.inTx(ctx, func(tx *sql.Tx) error {
		for _, a := range assets {
			if err := UpsertAsset(ctx, tx, a); err != nil {
				return err
			}
		}
		for i := range orders {
			if err := DeleteOrder(ctx, tx, orders[i].ID); err != nil {
				return err
			}
			if err := InsertOrder(ctx, tx, &orders[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// RunInTx implements custody.Store.
func (l *Ledger) RunInTx(ctx context.Context, fn func(ctx context.Context, tx custody.Tx) error) error {
	return l.inTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, &ledgerTx{tx: tx, now: l.now})
	})
}

// inTx runs fn in a transaction. Lock contention is reported as a custody
// conflict so the caller may retry.
func (l *Ledger) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return mapConflict(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return mapConflict(err)
	}
	if err := tx.Commit(); err != nil {
		return mapConflict(fmt.Errorf("committing transaction: %w", err))
	}
	return nil
}

// mapConflict turns SQLITE_BUSY and SQLITE_LOCKED into custody conflicts and
// passes everything else through.
func mapConflict(err error) error {
	if custody.KindOf(err) != custody.KindInternal {
		return err
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return custody.ConflictError(err)
		}
	}
	return err
}

// ledgerTx implements custody.Tx on a *sql.Tx.
type ledgerTx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *ledgerTx) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return GetOrder(ctx, t.tx, id)
}

func (t *ledgerTx) OrdersHolding(ctx context.Context, ids []string) ([]model.Order, error) {
	return OrdersHolding(ctx, t.tx, ids)
}

func (t *ledgerTx) GetAssets(ctx context.Context, ids []string) (map[string]model.Asset, error) {
	return GetAssets(ctx, t.tx, ids)
}

func (t *ledgerTx) SetAssetStatus(ctx context.Context, ids []string, status string) error {
	return SetAssetStatus(ctx, t.tx, ids, status, t.now())
}

func (t *ledgerTx) InsertOrder(ctx context.Context, o *model.Order) error {
	return InsertOrder(ctx, t.tx, o)
}

func (t *ledgerTx) UpdateOrderItems(ctx context.Context, o *model.Order) error {
	return UpdateOrderItems(ctx, t.tx, o)
}

func (t *ledgerTx) UpdateLoanDays(ctx context.Context, orderID string, days int) error {
	return UpdateLoanDays(ctx, t.tx, orderID, days)
}
