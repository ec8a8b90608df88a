package repository

import (
	"context"
	"time"
)

// RefreshTokenStore is the whitelist of currently valid refresh token ids (jti)
// per user. Every operation is atomic with respect to the others for the same
// (userID, jti) pair, whatever the backend.
type RefreshTokenStore interface {
	// Save inserts or overwrites one entry.
	Save(ctx context.Context, userID, jti string, expiresAt time.Time) error

	// Exists reports whether the entry is present and now < expiresAt.
	Exists(ctx context.Context, userID, jti string) (bool, error)

	// Rotate removes oldJTI and inserts newJTI in one step. It returns
	// ErrNotFound, and inserts nothing, when oldJTI is absent or expired, so
	// of two concurrent rotations of the same oldJTI at most one succeeds.
	Rotate(ctx context.Context, userID, oldJTI, newJTI string, newExpiresAt time.Time) error

	// Revoke removes one entry and reports whether a live entry was removed.
	Revoke(ctx context.Context, userID, jti string) (bool, error)

	// RevokeAll removes every entry of the user and returns how many were removed.
	RevokeAll(ctx context.Context, userID string) (int, error)
}
