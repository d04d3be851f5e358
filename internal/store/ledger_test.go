package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/erazemk/oder/internal/custody"
	"github.com/erazemk/oder/internal/db"
	"github.com/erazemk/oder/internal/model"
)

func TestLedgerRunInTxRollsBack(t *testing.T) {
	database := db.NewTestDB(t)
	ledger := NewLedger(database)
	ctx := context.Background()

	boom := errors.New("boom")
	err := ledger.RunInTx(ctx, func(ctx context.Context, tx custody.Tx) error {
		if err := tx.InsertOrder(ctx, testOrder("A", model.NewDate(2024, 1, 1), []string{"0001"}, nil)); err != nil {
			return err
		}
		got, err := tx.GetOrder(ctx, "A")
		if err != nil || got == nil {
			t.Errorf("read-your-writes failed: %v, %v", got, err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx = %v, want boom", err)
	}

	got, err := ledger.GetOrder(ctx, "A")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got != nil {
		t.Error("expected rollback to discard the order")
	}
}

func TestLedgerCreateAssetsRejectsDuplicates(t *testing.T) {
	database := db.NewTestDB(t)
	ledger := NewLedger(database)
	ctx := context.Background()

	seedAssets(t, database, "Tubo 3m", "0001")

	err := ledger.CreateAssets(ctx, []model.Asset{
		{ID: "0002", Model: "Tubo 3m", Status: model.AssetAvailable},
		{ID: "0001", Model: "Tubo 3m", Status: model.AssetAvailable},
	})
	if custody.KindOf(err) != custody.KindValidation {
		t.Fatalf("CreateAssets = %v, want validation error", err)
	}
	if a, _ := ledger.GetAsset(ctx, "0002"); a != nil {
		t.Error("batch should be all or nothing")
	}
}

func TestLedgerImportReplaces(t *testing.T) {
	database := db.NewTestDB(t)
	ledger := NewLedger(database)
	ctx := context.Background()

	o := testOrder("legacy-1", model.NewDate(2023, 5, 2), []string{"0001"}, nil)
	assets := []model.Asset{{ID: "0001", Model: "Tubo 3m", Status: model.AssetOnLoan}}
	if err := ledger.Import(ctx, assets, []model.Order{*o}); err != nil {
		t.Fatalf("Import: %v", err)
	}

	o.Release("0001")
	assets[0].Status = model.AssetAvailable
	if err := ledger.Import(ctx, assets, []model.Order{*o}); err != nil {
		t.Fatalf("second Import: %v", err)
	}

	got, _ := ledger.GetOrder(ctx, "legacy-1")
	if got.HasActive() || !got.HasReturned() {
		t.Errorf("order not replaced: %+v", got.Items)
	}
	a, _ := ledger.GetAsset(ctx, "0001")
	if a.Status != model.AssetAvailable {
		t.Errorf("asset status = %s", a.Status)
	}
}

func TestMapConflictKeepsCustodyErrors(t *testing.T) {
	nf := custody.NotFoundError("order x not found")
	if got := mapConflict(fmt.Errorf("wrapped: %w", nf)); custody.KindOf(got) != custody.KindNotFound {
		t.Errorf("kind = %s, want not_found", custody.KindOf(got))
	}
	plain := errors.New("disk full")
	if got := mapConflict(plain); got != plain {
		t.Errorf("mapConflict changed a foreign error: %v", got)
	}
}
