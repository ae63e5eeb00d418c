// Package domain holds the URL-shortening business logic and the mapping
// model shared with the redirect and cache layers.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// URLMapping is the authoritative row for a short code.
type URLMapping struct {
	ID             int64      `db:"id" json:"-"`
	ShortCode      string     `db:"short_code" json:"short_code"`
	LongURL        string     `db:"long_url" json:"long_url"`
	LongURLHash    string     `db:"long_url_hash" json:"-"`
	UserID         *string    `db:"user_id" json:"user_id,omitempty"`
	IsCustomAlias  bool       `db:"is_custom_alias" json:"is_custom_alias"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	LastAccessedAt *time.Time `db:"last_accessed_at" json:"last_accessed_at,omitempty"`
	ExpiresAt      *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	DeletedAt      *time.Time `db:"deleted_at" json:"-"`
	AccessCount    int64      `db:"access_count" json:"access_count"`
	IsDeleted      bool       `db:"is_deleted" json:"-"`
}

// IsExpired compares against wall clock with second precision.
func (m *URLMapping) IsExpired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now.Truncate(time.Second))
}

// HashLongURL returns the hex SHA-256 of the canonicalized long URL, used for
// duplicate detection.
func HashLongURL(longURL string) string {
	sum := sha256.Sum256([]byte(longURL))
	return hex.EncodeToString(sum[:])
}

// DuplicateStrategy is the per-user policy for identical long URLs.
type DuplicateStrategy string

const (
	DuplicateGenerateNew   DuplicateStrategy = "generate_new"
	DuplicateReuseExisting DuplicateStrategy = "reuse_existing"
)

// UserPrefs are the user-record fields the shortener consults.
type UserPrefs struct {
	UserID            string            `db:"id"`
	DuplicateStrategy DuplicateStrategy `db:"duplicate_strategy"`
	DefaultExpiryDays *int              `db:"default_expiry_days"`
	Tier              string            `db:"tier"`
}

// CreateURLRequest is the input to CreateShortURL. ExpiryDays is fractional
// so callers can express sub-day lifetimes.
type CreateURLRequest struct {
	LongURL     string   `json:"url" binding:"required"`
	CustomAlias string   `json:"customAlias,omitempty"`
	UserID      *string  `json:"-"`
	ExpiryDays  *float64 `json:"expiryDays,omitempty"`
}

// CreateURLResponse mirrors the public shorten contract.
type CreateURLResponse struct {
	ShortCode     string     `json:"shortCode"`
	LongURL       string     `json:"longUrl"`
	ShortURL      string     `json:"shortUrl"`
	IsCustomAlias bool       `json:"isCustomAlias"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	WasReused     bool       `json:"wasReused"`
	UserID        *string    `json:"userId,omitempty"`
}

// BulkCreateItem is one element of a bulk shorten result. Failed items carry
// the error code instead of failing the whole batch.
type BulkCreateItem struct {
	Input    CreateURLRequest   `json:"input"`
	Result   *CreateURLResponse `json:"result,omitempty"`
	ErrCode  string             `json:"errorCode,omitempty"`
	ErrCause string             `json:"error,omitempty"`
}
