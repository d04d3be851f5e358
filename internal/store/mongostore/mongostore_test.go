package mongostore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/erazemk/oder/internal/custody"
	"github.com/erazemk/oder/internal/model"
)

// newTestStore connects to ODER_TEST_MONGO_URI, which must point at a replica
// set, and uses a throwaway database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("ODER_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("ODER_TEST_MONGO_URI not set")
	}

	ctx := context.Background()
	name := fmt.Sprintf("oder_test_%d", time.Now().UnixNano())
	s, err := Open(ctx, uri, name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		_ = s.client.Database(name).Drop(context.Background())
		_ = s.Close(context.Background())
	})
	return s
}

func TestMapConflict(t *testing.T) {
	transient := mongo.CommandError{Code: 112, Name: "WriteConflict", Labels: []string{driverTransientLabel}}
	if !custody.IsConflict(mapConflict(fmt.Errorf("wrapped: %w", transient))) {
		t.Error("transient transaction error should be a conflict")
	}

	unknown := mongo.CommandError{Code: 91, Name: "ShutdownInProgress", Labels: []string{driverUnknownCommitLabel}}
	if custody.IsConflict(mapConflict(fmt.Errorf("committing transaction: %w", unknown))) {
		t.Error("unknown commit result must not re-run the transaction")
	}

	plain := mongo.CommandError{Code: 2, Name: "BadValue"}
	if custody.IsConflict(mapConflict(plain)) {
		t.Error("plain command error should not be a conflict")
	}

	nf := custody.NotFoundError("order x not found")
	if custody.KindOf(mapConflict(nf)) != custody.KindNotFound {
		t.Error("custody errors must pass through")
	}
	if mapConflict(nil) != nil {
		t.Error("nil must stay nil")
	}
}

func TestCommitRetriesUnknownResult(t *testing.T) {
	unknown := mongo.CommandError{Code: 91, Name: "ShutdownInProgress", Labels: []string{driverUnknownCommitLabel}}

	calls := 0
	err := commit(context.Background(), func(context.Context) error {
		calls++
		if calls < commitAttempts {
			return unknown
		}
		return nil
	})
	if err != nil || calls != commitAttempts {
		t.Errorf("commit = %v after %d calls, want success after %d", err, calls, commitAttempts)
	}

	calls = 0
	err = commit(context.Background(), func(context.Context) error {
		calls++
		return unknown
	})
	if err == nil || calls != commitAttempts {
		t.Errorf("commit = %v after %d calls, want failure after %d", err, calls, commitAttempts)
	}

	calls = 0
	transient := mongo.CommandError{Code: 112, Name: "WriteConflict", Labels: []string{driverTransientLabel}}
	err = commit(context.Background(), func(context.Context) error {
		calls++
		return transient
	})
	if calls != 1 || !custody.IsConflict(mapConflict(err)) {
		t.Errorf("transient commit failure: %d calls, err %v", calls, err)
	}
}

func TestOrderDocRoundTrip(t *testing.T) {
	o := &model.Order{
		ID: "A", Crew: "c", Contract: "k", Site: "s",
		PickupDate: model.NewDate(2024, 1, 1), LoanDays: 3,
		CreatedAt: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		Items:     []model.LineItem{{Model: "Tubo 3m", Quantity: 1, Active: []string{"0001"}}},
	}
	got, err := toOrderDoc(o).order()
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if got.PickupDate.String() != "2024-01-01" || got.Items[0].Returned == nil || !got.Holds("0001") {
		t.Errorf("got %+v", got)
	}

	legacy, err := orderDoc{ID: "B"}.order()
	if err != nil || !legacy.PickupDate.IsZero() {
		t.Errorf("empty pickup: %v, %v", legacy.PickupDate, err)
	}
}

func TestStoreReconciles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	svc := custody.NewService(s)

	if _, err := svc.ProvisionAssets(ctx, "Tubo 3m", []string{"0001", "0002"}); err != nil {
		t.Fatalf("ProvisionAssets: %v", err)
	}
	if _, err := svc.ProvisionAssets(ctx, "Tubo 3m", []string{"0002"}); custody.KindOf(err) != custody.KindValidation {
		t.Errorf("duplicate provisioning: got %v", err)
	}

	d := func(day int, ids ...string) custody.Draft {
		return custody.Draft{
			Crew: "Equipe", Contract: "CT", Site: "Obra",
			PickupDate: model.NewDate(2024, 1, day), LoanDays: 5,
			Items: []custody.DraftItem{{Model: "Tubo 3m", Quantity: len(ids), IDs: ids}},
		}
	}

	first, err := svc.CreateOrder(ctx, d(1, "0001", "0002"))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	second, err := svc.CreateOrder(ctx, d(5, "0001"))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	old, _ := svc.Order(ctx, first.Order.ID)
	if old.Holds("0001") || !old.Holds("0002") {
		t.Errorf("first order items = %+v", old.Items)
	}

	h, err := svc.FindHolder(ctx, "0001")
	if err != nil || h.Order.ID != second.Order.ID {
		t.Fatalf("FindHolder = %+v, %v", h, err)
	}

	if _, err := svc.ReturnByOrder(ctx, second.Order.ID, []string{"0001"}); err != nil {
		t.Fatalf("ReturnByOrder: %v", err)
	}
	a, _ := svc.Asset(ctx, "0001")
	if a.Status != model.AssetAvailable {
		t.Errorf("status = %s", a.Status)
	}

	_, err = svc.ReturnByIdentifier(ctx, "0001")
	var ce *custody.Error
	if !errors.As(err, &ce) || ce.Kind != custody.KindNotFound {
		t.Errorf("ReturnByIdentifier = %v, want not found", err)
	}

	active, err := svc.Orders(ctx, custody.OrderFilter{State: custody.OrdersActive, Site: "OBRA"})
	if err != nil || len(active) != 1 {
		t.Errorf("active orders = %d, %v", len(active), err)
	}
}
