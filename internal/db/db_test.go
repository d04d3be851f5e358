package db

import (
	"strings"
	"testing"
)

func TestDSN(t *testing.T) {
	dsn := DSN("/var/lib/oder/oder.db")
	if !strings.HasPrefix(dsn, "/var/lib/oder/oder.db?") {
		t.Fatalf("DSN = %q, want path prefix", dsn)
	}
	for _, want := range []string{"_txlock=immediate", "_pragma=foreign_keys%281%29", "_pragma=busy_timeout%285000%29"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DSN = %q, missing %q", dsn, want)
		}
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := NewTestDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("reading pragma: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}

	for _, table := range []string{"users", "revoked_tokens", "settings", "assets", "model_images", "orders", "order_items", "order_item_assets"} {
		var n int
		err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
		if err != nil {
			t.Fatalf("checking table %s: %v", table, err)
		}
		if n != 1 {
			t.Errorf("table %s missing", table)
		}
	}
}
