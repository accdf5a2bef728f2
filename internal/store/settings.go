package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/erazemk/lostfound/internal/dbx"
)

// Setting keys.
const (
	SettingJWTSecret = "jwt_secret"
)

// GetSetting returns the value stored under key and whether it exists.
func GetSetting(ctx context.Context, db dbx.DBTX, key string) (string, bool, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting setting %s: %w", key, err)
	}
	return value, true, nil
}

// EnsureSecret returns the random secret stored under key, generating and
// storing a 32-byte hex value on first use. INSERT OR IGNORE followed by a
// read keeps concurrent first starts consistent.
func EnsureSecret(ctx context.Context, db dbx.DBTX, key string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating %s: %w", key, err)
	}

	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`,
		key, hex.EncodeToString(buf),
	)
	if err != nil {
		return "", fmt.Errorf("storing %s: %w", key, err)
	}

	secret, ok, err := GetSetting(ctx, db, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s missing after insert", key)
	}
	return secret, nil
}
