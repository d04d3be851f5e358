package custody

import (
	"slices"
	"strings"
	"time"

	"github.com/erazemk/oder/internal/model"
)

// Draft is a new order as submitted, before it has an id.
type Draft struct {
	Crew       string      `json:"crew"`
	Contract   string      `json:"contract"`
	Site       string      `json:"site"`
	PickupDate model.Date  `json:"pickup_date"`
	LoanDays   int         `json:"loan_days"`
	Items      []DraftItem `json:"items"`
}

// DraftItem claims Quantity pieces of one model.
type DraftItem struct {
	Model    string   `json:"model"`
	Quantity int      `json:"quantity"`
	IDs      []string `json:"ids"`
}

// normalized trims the free-text fields and identifiers.
func (d Draft) normalized() Draft {
	d.Crew = strings.TrimSpace(d.Crew)
	d.Contract = strings.TrimSpace(d.Contract)
	d.Site = strings.TrimSpace(d.Site)
	items := make([]DraftItem, len(d.Items))
	for i, it := range d.Items {
		ids := make([]string, len(it.IDs))
		for j, id := range it.IDs {
			ids[j] = strings.TrimSpace(id)
		}
		items[i] = DraftItem{Model: strings.TrimSpace(it.Model), Quantity: it.Quantity, IDs: ids}
	}
	d.Items = items
	return d
}

// Validate checks the draft on its own, without looking at the catalog.
func (d Draft) Validate(idWidth int) error {
	switch {
	case d.Crew == "":
		return ValidationError("crew is required")
	case d.Contract == "":
		return ValidationError("contract is required")
	case d.Site == "":
		return ValidationError("site is required")
	case d.PickupDate.IsZero():
		return ValidationError("pickup_date is required")
	case d.LoanDays <= 0:
		return ValidationError("loan_days must be positive")
	case len(d.Items) == 0:
		return ValidationError("at least one item is required")
	}

	seen := make(map[string]int)
	for i, it := range d.Items {
		if it.Model == "" {
			return ValidationError("item %d: model is required", i+1)
		}
		if it.Quantity <= 0 {
			return ValidationError("item %d: quantity must be positive", i+1)
		}
		if len(it.IDs) != it.Quantity {
			return ValidationError("item %d: %d pieces given for quantity %d", i+1, len(it.IDs), it.Quantity)
		}
		for _, id := range it.IDs {
			if !model.ValidAssetID(id, idWidth) {
				return ValidationError("item %d: piece id %q must be %d digits", i+1, id, idWidth).withAsset(id)
			}
			if prev, dup := seen[id]; dup {
				return ValidationError("piece %s is listed twice (items %d and %d)", id, prev, i+1).withAsset(id)
			}
			seen[id] = i + 1
		}
	}
	return nil
}

// order turns the draft into the candidate order: every claimed id starts in
// the active set.
func (d Draft) order(id string, createdAt time.Time) model.Order {
	o := model.Order{
		ID:         id,
		Crew:       d.Crew,
		Contract:   d.Contract,
		Site:       d.Site,
		PickupDate: d.PickupDate,
		LoanDays:   d.LoanDays,
		CreatedAt:  createdAt,
		Items:      make([]model.LineItem, len(d.Items)),
	}
	for i, it := range d.Items {
		o.Items[i] = model.LineItem{
			Model:    it.Model,
			Quantity: it.Quantity,
			Active:   slices.Clone(it.IDs),
			Returned: []string{},
		}
	}
	return o
}
