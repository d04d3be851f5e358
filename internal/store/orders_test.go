package store

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/erazemk/oder/internal/custody"
	"github.com/erazemk/oder/internal/db"
	"github.com/erazemk/oder/internal/model"
)

func testOrder(id string, pickup model.Date, active, returned []string) *model.Order {
	return &model.Order{
		ID:         id,
		Crew:       "Equipe Silva",
		Contract:   "CT-12",
		Site:       "Obra Centro",
		PickupDate: pickup,
		LoanDays:   10,
		CreatedAt:  time.Date(2024, 1, 1, 9, 30, 0, 123456789, time.UTC),
		Items: []model.LineItem{
			{Model: "Tubo 3m", Quantity: len(active) + len(returned), Active: active, Returned: returned},
		},
	}
}

func TestInsertAndGetOrder(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	o := testOrder("A", model.NewDate(2024, 1, 1), []string{"0003", "0001"}, []string{"0002"})
	o.Items = append(o.Items, model.LineItem{Model: "Sapata", Quantity: 1, Active: []string{"0200"}, Returned: []string{}})
	if err := InsertOrder(ctx, database, o); err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}

	got, err := GetOrder(ctx, database, "A")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got == nil {
		t.Fatal("expected order, got nil")
	}
	if got.PickupDate.Compare(o.PickupDate) != 0 || !got.CreatedAt.Equal(o.CreatedAt) {
		t.Errorf("dates not preserved: %v %v", got.PickupDate, got.CreatedAt)
	}
	if len(got.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(got.Items))
	}
	if !slices.Equal(got.Items[0].Active, []string{"0003", "0001"}) {
		t.Errorf("active = %v, want insertion order kept", got.Items[0].Active)
	}
	if !slices.Equal(got.Items[0].Returned, []string{"0002"}) {
		t.Errorf("returned = %v", got.Items[0].Returned)
	}
	if got.Items[1].Model != "Sapata" || got.Items[1].Returned == nil {
		t.Errorf("second item = %+v", got.Items[1])
	}

	missing, err := GetOrder(ctx, database, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetOrder(missing) = %v, %v", missing, err)
	}
}

func TestUpdateOrderItems(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	o := testOrder("A", model.NewDate(2024, 1, 1), []string{"0001", "0002"}, []string{})
	if err := InsertOrder(ctx, database, o); err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}
	o.Release("0001")
	if err := UpdateOrderItems(ctx, database, o); err != nil {
		t.Fatalf("UpdateOrderItems: %v", err)
	}
	if err := UpdateLoanDays(ctx, database, "A", 15); err != nil {
		t.Fatalf("UpdateLoanDays: %v", err)
	}

	got, _ := GetOrder(ctx, database, "A")
	if !slices.Equal(got.Items[0].Active, []string{"0002"}) || !slices.Equal(got.Items[0].Returned, []string{"0001"}) {
		t.Errorf("items = %+v", got.Items[0])
	}
	if got.LoanDays != 15 {
		t.Errorf("loan days = %d, want 15", got.LoanDays)
	}
}

func TestOrdersHoldingAllowsOverlap(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	InsertOrder(ctx, database, testOrder("A", model.NewDate(2024, 1, 1), []string{"0007"}, nil))
	InsertOrder(ctx, database, testOrder("B", model.NewDate(2024, 1, 5), []string{"0007", "0008"}, nil))
	InsertOrder(ctx, database, testOrder("C", model.NewDate(2024, 1, 6), nil, []string{"0007"}))

	got, err := OrdersHolding(ctx, database, []string{"0007"})
	if err != nil {
		t.Fatalf("OrdersHolding: %v", err)
	}
	var ids []string
	for _, o := range got {
		ids = append(ids, o.ID)
	}
	slices.Sort(ids)
	if !slices.Equal(ids, []string{"A", "B"}) {
		t.Errorf("holders = %v, want [A B]", ids)
	}
}

func TestListOrdersFilters(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	a := testOrder("A", model.NewDate(2024, 1, 1), []string{"0001"}, nil)
	b := testOrder("B", model.NewDate(2024, 2, 1), nil, []string{"0002"})
	b.Site = "Ponte Norte"
	b.Crew = "Equipe 100%"
	InsertOrder(ctx, database, a)
	InsertOrder(ctx, database, b)

	tests := []struct {
		name   string
		filter custody.OrderFilter
		want   []string
	}{
		{"all newest first", custody.OrderFilter{}, []string{"B", "A"}},
		{"active", custody.OrderFilter{State: custody.OrdersActive}, []string{"A"}},
		{"history", custody.OrderFilter{State: custody.OrdersHistory}, []string{"B"}},
		{"asset", custody.OrderFilter{AssetID: "0001"}, []string{"A"}},
		{"returned asset is not held", custody.OrderFilter{AssetID: "0002"}, nil},
		{"site substring", custody.OrderFilter{Site: "norte"}, []string{"B"}},
		{"crew literal percent", custody.OrderFilter{Crew: "100%"}, []string{"B"}},
		{"pickup month", custody.OrderFilter{Pickup: "2024-01"}, []string{"A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ListOrders(ctx, database, tt.filter)
			if err != nil {
				t.Fatalf("ListOrders: %v", err)
			}
			var ids []string
			for _, o := range got {
				ids = append(ids, o.ID)
			}
			if !slices.Equal(ids, tt.want) {
				t.Errorf("got %v, want %v", ids, tt.want)
			}
		})
	}
}
