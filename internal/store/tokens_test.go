package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/oder/internal/db"
)

func TestRevokeToken(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	exp := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)

	if revoked, err := IsTokenRevoked(ctx, database, "jti-1"); err != nil || revoked {
		t.Fatalf("before revoke: %v, %v", revoked, err)
	}

	for i := 0; i < 2; i++ {
		if err := RevokeToken(ctx, database, "jti-1", exp); err != nil {
			t.Fatalf("RevokeToken #%d: %v", i+1, err)
		}
	}

	if revoked, err := IsTokenRevoked(ctx, database, "jti-1"); err != nil || !revoked {
		t.Errorf("after revoke: %v, %v", revoked, err)
	}
	if revoked, _ := IsTokenRevoked(ctx, database, "jti-2"); revoked {
		t.Error("unrelated token reported revoked")
	}
}

func TestPurgeRevokedTokens(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)

	RevokeToken(ctx, database, "old", now.Add(-time.Minute))
	RevokeToken(ctx, database, "live", now.Add(time.Hour))

	n, err := PurgeRevokedTokens(ctx, database, now)
	if err != nil {
		t.Fatalf("PurgeRevokedTokens: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
	if revoked, _ := IsTokenRevoked(ctx, database, "live"); !revoked {
		t.Error("unexpired revocation was purged")
	}
	if revoked, _ := IsTokenRevoked(ctx, database, "old"); revoked {
		t.Error("expired revocation kept")
	}
}
