package custody

import (
	"slices"
	"testing"
	"time"

	"github.com/erazemk/oder/internal/model"
)

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func order(id string, pickup model.Date, created time.Time, active ...string) model.Order {
	return model.Order{
		ID: id, Crew: "c", Contract: "k", Site: "s",
		PickupDate: pickup, LoanDays: 10, CreatedAt: created,
		Items: []model.LineItem{{Model: "Tubo 3m", Quantity: len(active), Active: active, Returned: []string{}}},
	}
}

func catalog(status string, ids ...string) map[string]model.Asset {
	m := make(map[string]model.Asset)
	for _, id := range ids {
		m[id] = model.Asset{ID: id, Model: "Tubo 3m", Status: status}
	}
	return m
}

func TestReconcileLaterPickupWins(t *testing.T) {
	a := order("A", model.NewDate(2024, 1, 1), t0, "0007")
	cand := order("N", model.NewDate(2024, 1, 10), t0.Add(time.Hour), "0007")
	existing := []model.Order{a}

	plan, err := Reconcile(existing, &cand, catalog(model.AssetOnLoan, "0007"), DefaultPolicy())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(plan.Claims) != 1 || plan.Claims[0].Winner != "N" || !slices.Equal(plan.Claims[0].Losers, []string{"A"}) {
		t.Fatalf("claims = %+v", plan.Claims)
	}
	if len(plan.BornReturned) != 0 {
		t.Errorf("born returned = %v", plan.BornReturned)
	}
	if existing[0].Holds("0007") == false {
		t.Error("Reconcile must not modify existing orders")
	}

	changed := plan.Rewrite(existing, &cand)
	if len(changed) != 1 || changed[0].ID != "A" {
		t.Fatalf("changed = %+v", changed)
	}
	if changed[0].Holds("0007") || !slices.Contains(changed[0].Items[0].Returned, "0007") {
		t.Errorf("A items = %+v", changed[0].Items)
	}
	if !cand.Holds("0007") {
		t.Error("candidate should hold 0007")
	}
	if !existing[0].Holds("0007") {
		t.Error("Rewrite must work on copies")
	}
}

func TestReconcileEarlierPickupIsBornReturned(t *testing.T) {
	a := order("A", model.NewDate(2024, 1, 10), t0, "0007")
	cand := order("N", model.NewDate(2024, 1, 1), t0.Add(time.Hour), "0007")
	existing := []model.Order{a}

	plan, err := Reconcile(existing, &cand, catalog(model.AssetOnLoan, "0007"), DefaultPolicy())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if plan.Claims[0].Winner != "A" {
		t.Errorf("winner = %s, want A", plan.Claims[0].Winner)
	}
	if !slices.Equal(plan.BornReturned, []string{"0007"}) {
		t.Errorf("born returned = %v", plan.BornReturned)
	}
	if len(plan.Won()) != 0 {
		t.Errorf("won = %v", plan.Won())
	}
	if !slices.Equal(plan.Claimed(), []string{"0007"}) {
		t.Errorf("claimed = %v", plan.Claimed())
	}

	changed := plan.Rewrite(existing, &cand)
	if len(changed) != 0 {
		t.Errorf("existing holder should be untouched, got %+v", changed)
	}
	if cand.Holds("0007") || !slices.Equal(cand.Items[0].Returned, []string{"0007"}) {
		t.Errorf("candidate items = %+v", cand.Items)
	}
}

func TestReconcileSamePickupLaterCreationWins(t *testing.T) {
	day := model.NewDate(2024, 1, 5)
	a := order("A", day, t0.Add(2*time.Hour), "0001")
	cand := order("N", day, t0.Add(time.Hour), "0001")

	plan, err := Reconcile([]model.Order{a}, &cand, catalog(model.AssetOnLoan, "0001"), DefaultPolicy())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if plan.Claims[0].Winner != "A" {
		t.Errorf("winner = %s, want A", plan.Claims[0].Winner)
	}
}

func TestReconcileExactTieBrokenByID(t *testing.T) {
	day := model.NewDate(2024, 1, 5)
	a := order("01A", day, t0, "0001")
	cand := order("01B", day, t0, "0001")

	plan, err := Reconcile([]model.Order{a}, &cand, catalog(model.AssetOnLoan, "0001"), DefaultPolicy())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if plan.Claims[0].Winner != "01B" {
		t.Errorf("winner = %s, want 01B", plan.Claims[0].Winner)
	}
}

func TestReconcileSeveralHolders(t *testing.T) {
	a := order("A", model.NewDate(2024, 1, 1), t0, "0001")
	b := order("B", model.NewDate(2024, 1, 3), t0, "0001", "0002")
	cand := order("N", model.NewDate(2024, 1, 2), t0.Add(time.Hour), "0001", "0003")
	existing := []model.Order{a, b}

	plan, err := Reconcile(existing, &cand, catalog(model.AssetOnLoan, "0001", "0003"), Policy{IDWidth: 4})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	c := plan.Claims[0]
	if c.Winner != "B" || !slices.Equal(c.Losers, []string{"N", "A"}) {
		t.Errorf("claim 0001 = %+v", c)
	}
	if plan.Claims[1].Winner != "N" || len(plan.Claims[1].Losers) != 0 {
		t.Errorf("claim 0003 = %+v", plan.Claims[1])
	}

	changed := plan.Rewrite(existing, &cand)
	if len(changed) != 1 || changed[0].ID != "A" || changed[0].HasActive() {
		t.Errorf("changed = %+v", changed)
	}
	if !slices.Equal(cand.ActiveIDs(), []string{"0003"}) {
		t.Errorf("candidate active = %v", cand.ActiveIDs())
	}
}

func TestReconcileErrors(t *testing.T) {
	tests := []struct {
		name    string
		catalog map[string]model.Asset
		holders []model.Order
		policy  Policy
		kind    Kind
	}{
		{
			name:    "not in catalog",
			catalog: catalog(model.AssetAvailable, "0001"),
			policy:  DefaultPolicy(),
			kind:    KindValidation,
		},
		{
			name:    "model mismatch",
			catalog: map[string]model.Asset{"9999": {ID: "9999", Model: "Sapata", Status: model.AssetAvailable}},
			policy:  DefaultPolicy(),
			kind:    KindValidation,
		},
		{
			name:    "on loan without holder",
			catalog: catalog(model.AssetOnLoan, "9999"),
			policy:  DefaultPolicy(),
			kind:    KindDataIntegrity,
		},
		{
			name:    "on loan without holder, lenient",
			catalog: catalog(model.AssetOnLoan, "9999"),
			policy:  Policy{IDWidth: 4},
		},
		{
			name:    "on loan with holder",
			catalog: catalog(model.AssetOnLoan, "9999"),
			holders: []model.Order{order("A", model.NewDate(2024, 1, 1), t0, "9999")},
			policy:  DefaultPolicy(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cand := order("N", model.NewDate(2024, 1, 10), t0, "9999")
			_, err := Reconcile(tt.holders, &cand, tt.catalog, tt.policy)
			if got := KindOf(err); got != tt.kind {
				t.Fatalf("kind = %q, want %q (err %v)", got, tt.kind, err)
			}
			if err != nil {
				if e := err.(*Error); e.AssetID != "9999" {
					t.Errorf("asset id = %q", e.AssetID)
				}
			}
		})
	}
}

func TestReconcileModelMatchIsNormalized(t *testing.T) {
	cand := order("N", model.NewDate(2024, 1, 10), t0, "0001")
	cand.Items[0].Model = "  tubo   3M"
	if _, err := Reconcile(nil, &cand, catalog(model.AssetAvailable, "0001"), DefaultPolicy()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
}

func TestDraftValidate(t *testing.T) {
	valid := Draft{
		Crew: "Equipe", Contract: "CT", Site: "Obra",
		PickupDate: model.NewDate(2024, 1, 1), LoanDays: 5,
		Items: []DraftItem{{Model: "Tubo 3m", Quantity: 2, IDs: []string{"0001", "0002"}}},
	}
	if err := valid.Validate(4); err != nil {
		t.Fatalf("valid draft: %v", err)
	}

	tests := []struct {
		name   string
		modify func(d *Draft)
	}{
		{"missing crew", func(d *Draft) { d.Crew = "" }},
		{"missing site", func(d *Draft) { d.Site = "" }},
		{"missing pickup", func(d *Draft) { d.PickupDate = model.Date{} }},
		{"zero loan days", func(d *Draft) { d.LoanDays = 0 }},
		{"no items", func(d *Draft) { d.Items = nil }},
		{"count mismatch", func(d *Draft) { d.Items[0].Quantity = 3 }},
		{"bad id", func(d *Draft) { d.Items[0].IDs[1] = "12" }},
		{"duplicate across items", func(d *Draft) {
			d.Items = append(d.Items, DraftItem{Model: "Sapata", Quantity: 1, IDs: []string{"0001"}})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			d.Items = []DraftItem{{Model: "Tubo 3m", Quantity: 2, IDs: []string{"0001", "0002"}}}
			tt.modify(&d)
			if KindOf(d.Validate(4)) != KindValidation {
				t.Errorf("expected validation error")
			}
		})
	}
}
