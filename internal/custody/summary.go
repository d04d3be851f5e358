package custody

import (
	"slices"
	"strings"

	"github.com/erazemk/oder/internal/model"
)

// Summary is the dashboard view of the catalog and open orders.
type Summary struct {
	Total         int                  `json:"total"`
	Available     int                  `json:"available"`
	OnLoan        int                  `json:"on_loan"`
	Models        []model.ModelSummary `json:"models"`
	ActiveOrders  int                  `json:"active_orders"`
	OverdueOrders int                  `json:"overdue_orders"`
	OverduePieces []string             `json:"overdue_pieces"`
}

// Summarize counts assets per model and finds the pieces out under overdue
// orders. Models are grouped by their normalized name and reported under the
// first spelling seen.
func Summarize(assets []model.Asset, orders []model.Order, today model.Date) Summary {
	s := Summary{Models: []model.ModelSummary{}, OverduePieces: []string{}}

	idx := make(map[string]int)
	for _, a := range assets {
		key := model.NormalizeModel(a.Model)
		i, ok := idx[key]
		if !ok {
			i = len(s.Models)
			idx[key] = i
			s.Models = append(s.Models, model.ModelSummary{Model: a.Model})
		}
		m := &s.Models[i]
		m.Total++
		s.Total++
		switch a.Status {
		case model.AssetAvailable:
			m.Available++
			s.Available++
		case model.AssetOnLoan:
			m.OnLoan++
			s.OnLoan++
		}
	}
	slices.SortFunc(s.Models, func(a, b model.ModelSummary) int {
		return strings.Compare(model.NormalizeModel(a.Model), model.NormalizeModel(b.Model))
	})

	for i := range orders {
		o := &orders[i]
		if !o.HasActive() {
			continue
		}
		s.ActiveOrders++
		if StatusFor(o, today).State == StateOverdue {
			s.OverdueOrders++
			s.OverduePieces = append(s.OverduePieces, o.ActiveIDs()...)
		}
	}
	slices.Sort(s.OverduePieces)
	s.OverduePieces = slices.Compact(s.OverduePieces)
	return s
}
