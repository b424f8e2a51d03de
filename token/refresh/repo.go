package refresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Record is the server-side state behind one refresh token. Records are
// keyed by the SHA-256 of the token, never the plaintext, so bearer
// material never sits at rest.
type Record struct {
	TokenHash  string    `json:"tokenHash"`
	SessionID  string    `json:"sessionId"`
	UserID     string    `json:"userId"`
	CompanyID  string    `json:"companyId,omitempty"`
	Role       string    `json:"role"`
	DeviceID   string    `json:"deviceId,omitempty"`
	DeviceInfo string    `json:"deviceInfo,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Expired reports whether the record's lifetime has elapsed at t.
func (r *Record) Expired(t time.Time) bool {
	return t.After(r.ExpiresAt)
}

// Repo defines the interface for refresh token record storage.
// Implementations must be safe for concurrent use.
type Repo interface {
	// Upsert creates or updates a record
	Upsert(ctx context.Context, record *Record) error

	// Get retrieves a record by token hash; a miss returns ErrRefreshNotFound
	Get(ctx context.Context, tokenHash string) (*Record, error)

	// Touch updates a record's last-used time in place. It never
	// creates or resurrects a record; a miss returns ErrRefreshNotFound
	Touch(ctx context.Context, tokenHash string, at time.Time) error

	// Delete removes a record by token hash, reporting whether this
	// call removed it. Under concurrent deletes of the same hash,
	// exactly one caller observes true
	Delete(ctx context.Context, tokenHash string) (bool, error)

	// DeleteByUser removes all records for a user, returning how many
	DeleteByUser(ctx context.Context, userID string) (int, error)

	// DeleteBySession removes all records for a session, returning how many
	DeleteBySession(ctx context.Context, sessionID string) (int, error)

	// DeleteExpired removes records whose lifetime elapsed before now
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// ListByUser returns the live records for a user
	ListByUser(ctx context.Context, userID string) ([]*Record, error)
}

// HashToken derives the storage key for a refresh token string.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
