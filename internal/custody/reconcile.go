package custody

import (
	"slices"

	"github.com/erazemk/oder/internal/model"
)

// Policy tunes validation of new claims.
type Policy struct {
	// RequireAvailable rejects a claimed piece that is not available in the
	// catalog unless some existing order holds it.
	RequireAvailable bool
	// IDWidth is the number of digits of a piece id.
	IDWidth int
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{RequireAvailable: true, IDWidth: model.DefaultIDWidth}
}

// Claim is the outcome for one claimed piece.
type Claim struct {
	AssetID string   `json:"asset_id"`
	Winner  string   `json:"winner"`
	Losers  []string `json:"losers,omitempty"`
}

// Plan is the outcome of reconciling a candidate order against the orders
// already holding its pieces. It is computed, applied and discarded.
type Plan struct {
	OrderID      string   `json:"order_id"`
	Claims       []Claim  `json:"claims"`
	BornReturned []string `json:"born_returned,omitempty"`
}

// Losses returns, per existing order, the pieces it gives up.
func (p *Plan) Losses() map[string][]string {
	out := make(map[string][]string)
	for _, c := range p.Claims {
		for _, id := range c.Losers {
			if id != p.OrderID {
				out[id] = append(out[id], c.AssetID)
			}
		}
	}
	return out
}

// Won returns the claimed pieces the candidate keeps.
func (p *Plan) Won() []string {
	var ids []string
	for _, c := range p.Claims {
		if c.Winner == p.OrderID {
			ids = append(ids, c.AssetID)
		}
	}
	return ids
}

// Claimed returns every piece of the plan. Each one is active in exactly one
// order once the plan is applied.
func (p *Plan) Claimed() []string {
	ids := make([]string, len(p.Claims))
	for i, c := range p.Claims {
		ids[i] = c.AssetID
	}
	return ids
}

// Reconcile decides, for every piece the candidate claims, which order keeps
// it. existing must contain at least every order holding a claimed piece;
// catalog must contain the claimed pieces that exist. Reconcile does not
// modify its arguments.
func Reconcile(existing []model.Order, candidate *model.Order, catalog map[string]model.Asset, policy Policy) (*Plan, error) {
	plan := &Plan{OrderID: candidate.ID}

	for _, it := range candidate.Items {
		for _, id := range it.Active {
			asset, ok := catalog[id]
			if !ok {
				return nil, ValidationError("piece %s is not in the catalog", id).withAsset(id)
			}
			if !model.SameModel(asset.Model, it.Model) {
				return nil, ValidationError("piece %s is a %q, not a %q", id, asset.Model, it.Model).withAsset(id)
			}

			ranked := holdersOf(existing, id)
			if policy.RequireAvailable && asset.Status != model.AssetAvailable && len(ranked) == 0 {
				return nil, DataIntegrityError("piece %s is %s but no order holds it", id, asset.Status).withAsset(id)
			}

			ranked = append(ranked, candidate)
			SortByRecency(ranked)

			claim := Claim{AssetID: id, Winner: ranked[0].ID}
			for _, o := range ranked[1:] {
				claim.Losers = append(claim.Losers, o.ID)
				if o.ID == candidate.ID {
					plan.BornReturned = append(plan.BornReturned, id)
				}
			}
			plan.Claims = append(plan.Claims, claim)
		}
	}
	return plan, nil
}

func holdersOf(orders []model.Order, id string) []*model.Order {
	var out []*model.Order
	for i := range orders {
		if orders[i].Holds(id) {
			out = append(out, &orders[i])
		}
	}
	return out
}

// Rewrite applies the plan: the candidate releases its born-returned pieces
// in place, and copies of the losing existing orders release theirs. It
// returns the rewritten copies in the order they were first touched.
func (p *Plan) Rewrite(existing []model.Order, candidate *model.Order) []model.Order {
	for _, id := range p.BornReturned {
		candidate.Release(id)
	}

	losses := p.Losses()
	var changed []model.Order
	for i := range existing {
		ids, ok := losses[existing[i].ID]
		if !ok {
			continue
		}
		o := existing[i].Clone()
		for _, id := range ids {
			o.Release(id)
		}
		changed = append(changed, o)
		delete(losses, existing[i].ID)
	}
	return slices.Clip(changed)
}
