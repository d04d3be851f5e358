package custody

import (
	"slices"

	"github.com/erazemk/oder/internal/model"
)

// newer reports whether a outranks b: the later pickup date wins, then the
// later creation time, then the greater order id so the order is total.
func newer(a, b *model.Order) bool {
	if c := a.PickupDate.Compare(b.PickupDate); c != 0 {
		return c > 0
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c > 0
	}
	return a.ID > b.ID
}

func compareRecency(a, b *model.Order) int {
	switch {
	case newer(a, b):
		return -1
	case newer(b, a):
		return 1
	default:
		return 0
	}
}

// SortByRecency orders most recent first.
func SortByRecency(orders []*model.Order) {
	slices.SortFunc(orders, compareRecency)
}

// MostRecent returns the highest ranked order, or nil for an empty slice.
func MostRecent(orders []model.Order) *model.Order {
	var best *model.Order
	for i := range orders {
		if best == nil || newer(&orders[i], best) {
			best = &orders[i]
		}
	}
	return best
}
