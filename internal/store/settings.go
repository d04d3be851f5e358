package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// EnsureSetting stores candidate under key unless a value is already there,
// and returns whichever value won. INSERT OR IGNORE followed by a read keeps
// concurrent first starts consistent.
func EnsureSetting(ctx context.Context, db DBTX, key, candidate string) (string, error) {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`,
		key, candidate,
	)
	if err != nil {
		return "", fmt.Errorf("storing %s: %w", key, err)
	}

	var value string
	err = db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("querying %s: %w", key, err)
	}
	return value, nil
}

// GetJWTSecret returns the signing secret kept in the database, generating
// it on first use. It is used when no secret is configured.
func GetJWTSecret(ctx context.Context, db DBTX) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}
	return EnsureSetting(ctx, db, "jwt_secret", hex.EncodeToString(buf))
}
