package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/oder/internal/custody"
	"github.com/erazemk/oder/internal/db"
	"github.com/erazemk/oder/internal/model"
)

func seedAssets(t *testing.T, database DBTX, modelName string, ids ...string) {
	t.Helper()
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	assets := make([]model.Asset, len(ids))
	for i, id := range ids {
		assets[i] = model.Asset{ID: id, Model: modelName, Status: model.AssetAvailable, CreatedAt: now, UpdatedAt: now}
	}
	if err := CreateAssets(context.Background(), database, assets); err != nil {
		t.Fatalf("CreateAssets: %v", err)
	}
}

func TestCreateAndGetAsset(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	seedAssets(t, database, "Tubo 3m", "0007")

	a, err := GetAsset(ctx, database, "0007")
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if a == nil || a.Model != "Tubo 3m" || a.Status != model.AssetAvailable {
		t.Fatalf("unexpected asset %+v", a)
	}
	if !a.CreatedAt.Equal(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("created_at = %v", a.CreatedAt)
	}

	missing, err := GetAsset(ctx, database, "0008")
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing asset")
	}
}

func TestListAssetsFilters(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	seedAssets(t, database, "Tubo 3m", "0001", "0002", "0103")
	seedAssets(t, database, "Sapata", "0200")
	if err := SetAssetStatus(ctx, database, []string{"0002"}, model.AssetOnLoan, time.Now()); err != nil {
		t.Fatalf("SetAssetStatus: %v", err)
	}

	tests := []struct {
		name   string
		filter custody.AssetFilter
		want   int
	}{
		{"all", custody.AssetFilter{}, 4},
		{"model normalized", custody.AssetFilter{Model: "  TUBO   3M "}, 3},
		{"status", custody.AssetFilter{Status: model.AssetOnLoan}, 1},
		{"query", custody.AssetFilter{Query: "10"}, 1},
		{"wildcard is literal", custody.AssetFilter{Query: "%"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ListAssets(ctx, database, tt.filter)
			if err != nil {
				t.Fatalf("ListAssets: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d assets, want %d", len(got), tt.want)
			}
		})
	}
}

func TestGetAssetsSkipsUnknown(t *testing.T) {
	database := db.NewTestDB(t)
	seedAssets(t, database, "Tubo 3m", "0001", "0002")

	got, err := GetAssets(context.Background(), database, []string{"0001", "9999"})
	if err != nil {
		t.Fatalf("GetAssets: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d assets, want 1", len(got))
	}
	if _, ok := got["0001"]; !ok {
		t.Error("expected 0001 in result")
	}
}

func TestModelImage(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	data, _, err := GetModelImage(ctx, database, "Tubo 3m")
	if err != nil || data != nil {
		t.Fatalf("expected no image, got %v, %v", data, err)
	}

	if err := SetModelImage(ctx, database, "Tubo 3m", []byte{1, 2, 3}, "image/jpeg"); err != nil {
		t.Fatalf("SetModelImage: %v", err)
	}
	if err := SetModelImage(ctx, database, "tubo  3M", []byte{4, 5}, "image/png"); err != nil {
		t.Fatalf("SetModelImage: %v", err)
	}

	data, mime, err := GetModelImage(ctx, database, "TUBO 3M")
	if err != nil {
		t.Fatalf("GetModelImage: %v", err)
	}
	if len(data) != 2 || mime != "image/png" {
		t.Errorf("got %v %q, want the replaced png", data, mime)
	}
}
