package store

import (
	"context"
	"fmt"
	"time"
)

// RevokeToken puts a token id on the revocation list until it expires.
// Revoking twice is not an error.
func RevokeToken(ctx context.Context, db DBTX, jti string, expiresAt time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO revoked_tokens (jti, expires_at) VALUES (?, ?)
		 ON CONFLICT (jti) DO NOTHING`,
		jti, formatTime(expiresAt),
	)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// IsTokenRevoked reports whether jti is on the revocation list.
func IsTokenRevoked(ctx context.Context, db DBTX, jti string) (bool, error) {
	var revoked bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = ?)`, jti,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return revoked, nil
}

// PurgeRevokedTokens drops revocations of tokens that expired before now;
// such tokens fail validation anyway. It returns the number removed.
func PurgeRevokedTokens(ctx context.Context, db DBTX, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at < ?`, formatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("purging revoked tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purging revoked tokens: %w", err)
	}
	return n, nil
}
