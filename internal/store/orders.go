package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/erazemk/oder/internal/custody"
	"github.com/erazemk/oder/internal/model"
)

// Piece states in order_item_assets.
const (
	stateActive   = "active"
	stateReturned = "returned"
)

// InsertOrder writes a new order with its line items.
func InsertOrder(ctx context.Context, db DBTX, o *model.Order) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO orders (id, crew, contract, site, pickup_date, loan_days, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Crew, o.Contract, o.Site, o.PickupDate, o.LoanDays, formatTime(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}

	for pos, it := range o.Items {
		_, err := db.ExecContext(ctx,
			`INSERT INTO order_items (order_id, position, model, quantity) VALUES (?, ?, ?, ?)`,
			o.ID, pos, it.Model, it.Quantity,
		)
		if err != nil {
			return fmt.Errorf("inserting order item: %w", err)
		}
	}
	return writeItemAssets(ctx, db, o)
}

// UpdateOrderItems replaces the active and returned sets of an order's line
// items. Models and quantities are left as they are.
func UpdateOrderItems(ctx context.Context, db DBTX, o *model.Order) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM order_item_assets WHERE order_id = ?`, o.ID); err != nil {
		return fmt.Errorf("clearing order pieces: %w", err)
	}
	return writeItemAssets(ctx, db, o)
}

func writeItemAssets(ctx context.Context, db DBTX, o *model.Order) error {
	insert := func(pos int, id, state string, seq int) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO order_item_assets (order_id, position, asset_id, state, seq) VALUES (?, ?, ?, ?, ?)`,
			o.ID, pos, id, state, seq,
		)
		if err != nil {
			return fmt.Errorf("writing order piece %s: %w", id, err)
		}
		return nil
	}
	for pos, it := range o.Items {
		for seq, id := range it.Active {
			if err := insert(pos, id, stateActive, seq); err != nil {
				return err
			}
		}
		for seq, id := range it.Returned {
			if err := insert(pos, id, stateReturned, seq); err != nil {
				return err
			}
		}
	}
	return nil
}

// UpdateLoanDays sets the loan duration of an order.
func UpdateLoanDays(ctx context.Context, db DBTX, orderID string, days int) error {
	_, err := db.ExecContext(ctx, `UPDATE orders SET loan_days = ? WHERE id = ?`, days, orderID)
	if err != nil {
		return fmt.Errorf("updating loan days: %w", err)
	}
	return nil
}

// DeleteOrder removes an order and its line items.
func DeleteOrder(ctx context.Context, db DBTX, id string) error {
	for _, q := range []string{
		`DELETE FROM order_item_assets WHERE order_id = ?`,
		`DELETE FROM order_items WHERE order_id = ?`,
		`DELETE FROM orders WHERE id = ?`,
	} {
		if _, err := db.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("deleting order: %w", err)
		}
	}
	return nil
}

// GetOrder returns an order with its line items.
func GetOrder(ctx context.Context, db DBTX, id string) (*model.Order, error) {
	orders, err := queryOrders(ctx, db, `WHERE o.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

// OrdersHolding returns every order with any of ids in an active set.
func OrdersHolding(ctx context.Context, db DBTX, ids []string) ([]model.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	orders, err := queryOrders(ctx, db,
		`WHERE o.id IN (SELECT order_id FROM order_item_assets
		                WHERE state = 'active' AND asset_id IN (`+placeholders(len(ids))+`))`,
		stringArgs(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("finding holders: %w", err)
	}
	return orders, nil
}

// ListOrders returns the orders matching filter, newest pickup first.
func ListOrders(ctx context.Context, db DBTX, filter custody.OrderFilter) ([]model.Order, error) {
	var where []string
	var args []any

	switch filter.State {
	case custody.OrdersActive:
		where = append(where, `EXISTS (SELECT 1 FROM order_item_assets a WHERE a.order_id = o.id AND a.state = 'active')`)
	case custody.OrdersHistory:
		where = append(where, `EXISTS (SELECT 1 FROM order_item_assets a WHERE a.order_id = o.id AND a.state = 'returned')`)
	}
	if id := strings.TrimSpace(filter.AssetID); id != "" {
		where = append(where, `EXISTS (SELECT 1 FROM order_item_assets a WHERE a.order_id = o.id AND a.state = 'active' AND a.asset_id = ?)`)
		args = append(args, id)
	}
	for col, v := range map[string]string{"o.crew": filter.Crew, "o.contract": filter.Contract, "o.site": filter.Site} {
		if v = strings.TrimSpace(v); v != "" {
			where = append(where, col+` LIKE ? ESCAPE '\'`)
			args = append(args, containsPattern(v))
		}
	}
	if p := strings.TrimSpace(filter.Pickup); p != "" {
		where = append(where, `o.pickup_date LIKE ? ESCAPE '\'`)
		args = append(args, prefixPattern(p))
	}

	clause := ""
	if len(where) > 0 {
		clause = `WHERE ` + strings.Join(where, " AND ")
	}
	orders, err := queryOrders(ctx, db, clause, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return orders, nil
}

// queryOrders loads the orders selected by clause and then their items.
// Rows are closed before the item query so this works on a single
// connection.
func queryOrders(ctx context.Context, db DBTX, clause string, args ...any) ([]model.Order, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT o.id, o.crew, o.contract, o.site, o.pickup_date, o.loan_days, o.created_at
		 FROM orders o `+clause+`
		 ORDER BY o.pickup_date DESC, o.created_at DESC, o.id DESC`,
		args...,
	)
	if err != nil {
		return nil, err
	}

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var created string
		if err := rows.Scan(&o.ID, &o.Crew, &o.Contract, &o.Site, &o.PickupDate, &o.LoanDays, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		if o.CreatedAt, err = parseTime(created); err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := loadItems(ctx, db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func loadItems(ctx context.Context, db DBTX, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*model.Order, len(orders))
	ids := make([]string, len(orders))
	for i := range orders {
		byID[orders[i].ID] = &orders[i]
		ids[i] = orders[i].ID
		orders[i].Items = []model.LineItem{}
	}
	in := placeholders(len(ids))

	rows, err := db.QueryContext(ctx,
		`SELECT order_id, position, model, quantity FROM order_items
		 WHERE order_id IN (`+in+`) ORDER BY order_id, position`,
		stringArgs(ids)...,
	)
	if err != nil {
		return fmt.Errorf("loading order items: %w", err)
	}
	for rows.Next() {
		var orderID string
		var pos int
		it := model.LineItem{Active: []string{}, Returned: []string{}}
		if err := rows.Scan(&orderID, &pos, &it.Model, &it.Quantity); err != nil {
			rows.Close()
			return fmt.Errorf("scanning order item: %w", err)
		}
		o := byID[orderID]
		for len(o.Items) <= pos {
			o.Items = append(o.Items, model.LineItem{Active: []string{}, Returned: []string{}})
		}
		o.Items[pos] = it
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("loading order items: %w", err)
	}
	rows.Close()

	rows, err = db.QueryContext(ctx,
		`SELECT order_id, position, asset_id, state FROM order_item_assets
		 WHERE order_id IN (`+in+`) ORDER BY order_id, position, state, seq`,
		stringArgs(ids)...,
	)
	if err != nil {
		return fmt.Errorf("loading order pieces: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var orderID, assetID, state string
		var pos int
		if err := rows.Scan(&orderID, &pos, &assetID, &state); err != nil {
			return fmt.Errorf("scanning order piece: %w", err)
		}
		o := byID[orderID]
		if pos >= len(o.Items) {
			return fmt.Errorf("order %s: piece %s on missing item %d", orderID, assetID, pos)
		}
		it := &o.Items[pos]
		if state == stateActive {
			it.Active = append(it.Active, assetID)
		} else {
			it.Returned = append(it.Returned, assetID)
		}
	}
	return rows.Err()
}
