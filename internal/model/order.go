package model

import (
	"slices"
	"time"
)

// Order records a crew borrowing pieces for a period.
type Order struct {
	ID         string     `json:"id"`
	Crew       string     `json:"crew"`
	Contract   string     `json:"contract"`
	Site       string     `json:"site"`
	PickupDate Date       `json:"pickup_date"`
	LoanDays   int        `json:"loan_days"`
	CreatedAt  time.Time  `json:"created_at"`
	Items      []LineItem `json:"items"`
}

// LineItem is one model line of an order. Quantity is the intent at creation
// and is not re-checked after returns.
type LineItem struct {
	Model    string   `json:"model"`
	Quantity int      `json:"quantity"`
	Active   []string `json:"active"`
	Returned []string `json:"returned"`
}

// Holds reports whether the order has id in the active set of any line item.
func (o *Order) Holds(id string) bool {
	return o.ItemHolding(id) >= 0
}

// ItemHolding returns the index of the first line item holding id, or -1.
func (o *Order) ItemHolding(id string) int {
	for i := range o.Items {
		if slices.Contains(o.Items[i].Active, id) {
			return i
		}
	}
	return -1
}

// ActiveIDs returns every actively held identifier in item order.
func (o *Order) ActiveIDs() []string {
	var ids []string
	for _, it := range o.Items {
		ids = append(ids, it.Active...)
	}
	return ids
}

// ActiveCount returns the number of pieces still out under the order.
func (o *Order) ActiveCount() int {
	n := 0
	for _, it := range o.Items {
		n += len(it.Active)
	}
	return n
}

// HasActive reports whether any piece is still out.
func (o *Order) HasActive() bool { return o.ActiveCount() > 0 }

// HasReturned reports whether any piece came back under the order.
func (o *Order) HasReturned() bool {
	for _, it := range o.Items {
		if len(it.Returned) > 0 {
			return true
		}
	}
	return false
}

// Release moves id from the active set to the returned set of every line
// item that holds it. It reports whether anything moved; releasing an id the
// order does not hold is a no-op.
func (o *Order) Release(id string) bool {
	moved := false
	for i := range o.Items {
		it := &o.Items[i]
		idx := slices.Index(it.Active, id)
		if idx < 0 {
			continue
		}
		it.Active = slices.Delete(it.Active, idx, idx+1)
		if !slices.Contains(it.Returned, id) {
			it.Returned = append(it.Returned, id)
		}
		moved = true
	}
	return moved
}

// Clone returns a deep copy, so callers can rewrite line items without
// touching the original.
func (o Order) Clone() Order {
	c := o
	c.Items = make([]LineItem, len(o.Items))
	for i, it := range o.Items {
		c.Items[i] = LineItem{
			Model:    it.Model,
			Quantity: it.Quantity,
			Active:   slices.Clone(it.Active),
			Returned: slices.Clone(it.Returned),
		}
	}
	return c
}
