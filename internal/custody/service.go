package custody

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/erazemk/oder/internal/model"
)

// Service runs custody operations against a Store.
type Service struct {
	store  Store
	clock  Clock
	ids    IDGen
	policy Policy
	retry  RetryPolicy
	log    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

// WithIDGen replaces the order id generator.
func WithIDGen(g IDGen) Option { return func(s *Service) { s.ids = g } }

// WithPolicy sets the claim validation policy.
func WithPolicy(p Policy) Option { return func(s *Service) { s.policy = p } }

// WithRetry sets the conflict retry policy.
func WithRetry(r RetryPolicy) Option { return func(s *Service) { s.retry = r } }

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

// NewService returns a Service backed by store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		clock:  realClock{},
		ids:    newULIDGen(),
		policy: DefaultPolicy(),
		retry:  DefaultRetryPolicy(),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy.IDWidth <= 0 {
		s.policy.IDWidth = model.DefaultIDWidth
	}
	return s
}

// Policy returns the claim validation policy in effect.
func (s *Service) Policy() Policy { return s.policy }

// Today returns the current calendar date in UTC.
func (s *Service) Today() model.Date { return model.DateOf(s.clock.Now()) }

// CreateResult is the committed order and the plan that produced it.
type CreateResult struct {
	Order *model.Order `json:"order"`
	Plan  *Plan        `json:"plan"`
}

// CreateOrder validates the draft, reconciles its claims against every
// current holder and commits the new order together with the rewritten
// losers in one transaction.
func (s *Service) CreateOrder(ctx context.Context, d Draft) (*CreateResult, error) {
	d = d.normalized()
	if err := d.Validate(s.policy.IDWidth); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	candidate := d.order(s.ids.NewID(now), now)
	claimed := candidate.ActiveIDs()

	var res *CreateResult
	err := s.inTx(ctx, "create order", func(ctx context.Context, tx Tx) error {
		existing, err := tx.OrdersHolding(ctx, claimed)
		if err != nil {
			return err
		}
		catalog, err := tx.GetAssets(ctx, claimed)
		if err != nil {
			return err
		}

		o := candidate.Clone()
		plan, err := Reconcile(existing, &o, catalog, s.policy)
		if err != nil {
			return err
		}
		if err := s.applyPlan(ctx, tx, plan, existing, &o); err != nil {
			return err
		}
		res = &CreateResult{Order: &o, Plan: plan}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// applyPlan writes the losers, inserts the candidate and marks every claimed
// piece on loan.
func (s *Service) applyPlan(ctx context.Context, tx Tx, plan *Plan, existing []model.Order, candidate *model.Order) error {
	for _, c := range plan.Claims {
		s.log.Debug("custody resolved", "asset", c.AssetID, "winner", c.Winner, "losers", c.Losers)
	}

	for _, o := range plan.Rewrite(existing, candidate) {
		if err := tx.UpdateOrderItems(ctx, &o); err != nil {
			return fmt.Errorf("rewriting order %s: %w", o.ID, err)
		}
	}
	if err := tx.InsertOrder(ctx, candidate); err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}
	// Winners may be older orders, e.g. overlapping imports; the piece is out
	// either way.
	if claimed := plan.Claimed(); len(claimed) > 0 {
		if err := tx.SetAssetStatus(ctx, claimed, model.AssetOnLoan); err != nil {
			return fmt.Errorf("marking pieces on loan: %w", err)
		}
	}
	return nil
}

// ReturnResult is the order after a return. Ignored lists requested ids the
// order did not hold.
type ReturnResult struct {
	Order    *model.Order `json:"order"`
	Returned []string     `json:"returned"`
	Ignored  []string     `json:"ignored"`
}

// ReturnByOrder moves ids from the order's active sets to its returned sets
// and marks them available. Ids the order does not hold are reported, not
// rejected, so repeating a return is a no-op.
func (s *Service) ReturnByOrder(ctx context.Context, orderID string, ids []string) (*ReturnResult, error) {
	ids = cleanIDs(ids)
	if len(ids) == 0 {
		return nil, ValidationError("no piece ids given").withOrder(orderID)
	}

	var res *ReturnResult
	err := s.inTx(ctx, "return", func(ctx context.Context, tx Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return NotFoundError("order %s not found", orderID).withOrder(orderID)
		}
		r, err := s.release(ctx, tx, o, ids)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// release returns ids against o inside tx.
func (s *Service) release(ctx context.Context, tx Tx, o *model.Order, ids []string) (*ReturnResult, error) {
	res := &ReturnResult{Order: o, Returned: []string{}, Ignored: []string{}}
	for _, id := range ids {
		if o.Release(id) {
			res.Returned = append(res.Returned, id)
		} else {
			res.Ignored = append(res.Ignored, id)
		}
	}
	if len(res.Returned) == 0 {
		return res, nil
	}
	if err := tx.UpdateOrderItems(ctx, o); err != nil {
		return nil, fmt.Errorf("updating order %s: %w", o.ID, err)
	}

	// A piece another order still holds stays on loan.
	others, err := tx.OrdersHolding(ctx, res.Returned)
	if err != nil {
		return nil, err
	}
	free := slices.DeleteFunc(slices.Clone(res.Returned), func(id string) bool {
		return slices.ContainsFunc(others, func(h model.Order) bool { return h.ID != o.ID && h.Holds(id) })
	})
	if len(free) > 0 {
		if err := tx.SetAssetStatus(ctx, free, model.AssetAvailable); err != nil {
			return nil, fmt.Errorf("marking pieces available: %w", err)
		}
	}
	return res, nil
}

// Holding is an order actively holding a piece.
type Holding struct {
	AssetID   string         `json:"asset_id"`
	Order     *model.Order   `json:"order"`
	ItemIndex int            `json:"item_index"`
	Item      model.LineItem `json:"item"`
}

// FindHolder returns the most recent order holding id, ranked the same way
// as reconciliation. It does not modify anything.
func (s *Service) FindHolder(ctx context.Context, id string) (*Holding, error) {
	id = strings.TrimSpace(id)
	orders, err := s.store.ListOrders(ctx, OrderFilter{State: OrdersActive, AssetID: id})
	if err != nil {
		return nil, fmt.Errorf("listing holders: %w", err)
	}
	return holdingOf(orders, id)
}

// ReturnByIdentifier returns id against its most recent holder.
func (s *Service) ReturnByIdentifier(ctx context.Context, id string) (*Holding, error) {
	id = strings.TrimSpace(id)
	var h *Holding
	err := s.inTx(ctx, "return by id", func(ctx context.Context, tx Tx) error {
		orders, err := tx.OrdersHolding(ctx, []string{id})
		if err != nil {
			return err
		}
		found, err := holdingOf(orders, id)
		if err != nil {
			return err
		}
		if _, err := s.release(ctx, tx, found.Order, []string{id}); err != nil {
			return err
		}
		found.Item = found.Order.Items[found.ItemIndex]
		h = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func holdingOf(orders []model.Order, id string) (*Holding, error) {
	o := MostRecent(orders)
	if o == nil {
		return nil, NotFoundError("no order holds piece %s", id).withAsset(id)
	}
	idx := o.ItemHolding(id)
	if idx < 0 {
		return nil, NotFoundError("no order holds piece %s", id).withAsset(id)
	}
	return &Holding{AssetID: id, Order: o, ItemIndex: idx, Item: o.Items[idx]}, nil
}

// ExtendLoan adds days to the loan duration of an order.
func (s *Service) ExtendLoan(ctx context.Context, orderID string, days int) (*model.Order, error) {
	if days <= 0 {
		return nil, ValidationError("extension must be a positive number of days").withOrder(orderID)
	}
	var out *model.Order
	err := s.inTx(ctx, "extend loan", func(ctx context.Context, tx Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return NotFoundError("order %s not found", orderID).withOrder(orderID)
		}
		o.LoanDays += days
		if err := tx.UpdateLoanDays(ctx, o.ID, o.LoanDays); err != nil {
			return fmt.Errorf("extending order %s: %w", o.ID, err)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Order returns one order or a NotFoundError.
func (s *Service) Order(ctx context.Context, id string) (*model.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	if o == nil {
		return nil, NotFoundError("order %s not found", id).withOrder(id)
	}
	return o, nil
}

// Orders lists orders, most recent first.
func (s *Service) Orders(ctx context.Context, filter OrderFilter) ([]model.Order, error) {
	switch filter.State {
	case OrdersAll, OrdersActive, OrdersHistory:
	default:
		return nil, ValidationError("unknown order state %q", filter.State)
	}
	orders, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	slices.SortFunc(orders, func(a, b model.Order) int { return compareRecency(&a, &b) })
	return orders, nil
}

// Assets lists catalog entries.
func (s *Service) Assets(ctx context.Context, filter AssetFilter) ([]model.Asset, error) {
	if filter.Status != "" && filter.Status != model.AssetAvailable && filter.Status != model.AssetOnLoan {
		return nil, ValidationError("unknown asset status %q", filter.Status)
	}
	assets, err := s.store.ListAssets(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	return assets, nil
}

// Asset returns one catalog entry or a NotFoundError.
func (s *Service) Asset(ctx context.Context, id string) (*model.Asset, error) {
	a, err := s.store.GetAsset(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting asset: %w", err)
	}
	if a == nil {
		return nil, NotFoundError("piece %s not found", id).withAsset(id)
	}
	return a, nil
}

// ProvisionAssets adds new available pieces of one model to the catalog.
func (s *Service) ProvisionAssets(ctx context.Context, modelName string, ids []string) ([]model.Asset, error) {
	modelName = strings.Join(strings.Fields(modelName), " ")
	if modelName == "" {
		return nil, ValidationError("model is required")
	}
	ids = cleanIDs(ids)
	if len(ids) == 0 {
		return nil, ValidationError("no piece ids given")
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !model.ValidAssetID(id, s.policy.IDWidth) {
			return nil, ValidationError("piece id %q must be %d digits", id, s.policy.IDWidth).withAsset(id)
		}
		if seen[id] {
			return nil, ValidationError("piece %s is listed twice", id).withAsset(id)
		}
		seen[id] = true
	}

	now := s.clock.Now().UTC()
	assets := make([]model.Asset, len(ids))
	for i, id := range ids {
		assets[i] = model.Asset{ID: id, Model: modelName, Status: model.AssetAvailable, CreatedAt: now, UpdatedAt: now}
	}
	if err := s.store.CreateAssets(ctx, assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// Import loads assets and orders as they are, skipping reconciliation.
// Orders without an id get one.
func (s *Service) Import(ctx context.Context, assets []model.Asset, orders []model.Order) error {
	now := s.clock.Now().UTC()
	for i := range orders {
		if orders[i].CreatedAt.IsZero() {
			orders[i].CreatedAt = now
		}
		if orders[i].ID == "" {
			orders[i].ID = s.ids.NewID(orders[i].CreatedAt)
		}
	}
	for i := range assets {
		if assets[i].CreatedAt.IsZero() {
			assets[i].CreatedAt = now
			assets[i].UpdatedAt = now
		}
	}
	if err := s.store.Import(ctx, assets, orders); err != nil {
		return fmt.Errorf("importing: %w", err)
	}
	return nil
}

// Summary builds the dashboard view.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	assets, err := s.store.ListAssets(ctx, AssetFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	orders, err := s.store.ListOrders(ctx, OrderFilter{State: OrdersActive})
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	sum := Summarize(assets, orders, s.Today())
	return &sum, nil
}

func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
