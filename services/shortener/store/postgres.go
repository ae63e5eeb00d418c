// Package store is the Postgres adapter for URL mappings, the id counter,
// and the user-preference reads the shortener needs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/shortly-systems/shortly/services/shortener/domain"
	"github.com/shortly-systems/shortly/utils/apperror"
	"github.com/shortly-systems/shortly/utils/database"
)

const uniqueViolation = "23505"

// URLStore is the transactional CRUD surface over url_mappings with the
// shared retry/backoff policy applied to reads.
type URLStore struct {
	db     *sqlx.DB
	policy database.RetryPolicy
	log    *logrus.Entry
}

func NewURLStore(db *sqlx.DB, log *logrus.Logger) *URLStore {
	return &URLStore{
		db:     db,
		policy: database.DefaultRetryPolicy(),
		log:    log.WithField("component", "url-store"),
	}
}

// CreateMapping inserts a new mapping. A unique-index violation on the short
// code surfaces as DUPLICATE_CODE so the caller can retry with a fresh id.
func (s *URLStore) CreateMapping(ctx context.Context, m *domain.URLMapping) error {
	const query = `
		INSERT INTO url_mappings
			(short_code, long_url, long_url_hash, user_id, is_custom_alias, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := s.db.QueryRowxContext(ctx, query,
		m.ShortCode, m.LongURL, m.LongURLHash, m.UserID, m.IsCustomAlias, m.ExpiresAt,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperror.ErrDuplicateCode.WithCause(err)
		}
		return apperror.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

// GetByShortCode returns the non-deleted mapping for a code.
func (s *URLStore) GetByShortCode(ctx context.Context, shortCode string) (*domain.URLMapping, error) {
	const query = `
		SELECT id, short_code, long_url, long_url_hash, user_id, is_custom_alias,
		       created_at, last_accessed_at, expires_at, deleted_at, access_count, is_deleted
		FROM url_mappings
		WHERE short_code = $1 AND is_deleted = false`

	var m domain.URLMapping
	err := database.WithRetry(ctx, s.policy, func(ctx context.Context) error {
		return s.db.GetContext(ctx, &m, query, shortCode)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrURLNotFound
		}
		return nil, apperror.ErrStoreUnavailable.WithCause(err)
	}
	return &m, nil
}

// ShortCodeExists probes for a live (non-deleted) occupant of a code.
func (s *URLStore) ShortCodeExists(ctx context.Context, shortCode string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM url_mappings WHERE short_code = $1 AND is_deleted = false)`

	var exists bool
	err := database.WithRetry(ctx, s.policy, func(ctx context.Context) error {
		return s.db.GetContext(ctx, &exists, query, shortCode)
	})
	if err != nil {
		return false, apperror.ErrStoreUnavailable.WithCause(err)
	}
	return exists, nil
}

// GetByHashAndUser finds a reusable mapping for the duplicate strategy:
// same canonical URL, same owner, neither deleted nor expired.
func (s *URLStore) GetByHashAndUser(ctx context.Context, longURLHash, userID string) (*domain.URLMapping, error) {
	const query = `
		SELECT id, short_code, long_url, long_url_hash, user_id, is_custom_alias,
		       created_at, last_accessed_at, expires_at, deleted_at, access_count, is_deleted
		FROM url_mappings
		WHERE long_url_hash = $1 AND user_id = $2 AND is_deleted = false
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY created_at DESC
		LIMIT 1`

	var m domain.URLMapping
	err := database.WithRetry(ctx, s.policy, func(ctx context.Context) error {
		return s.db.GetContext(ctx, &m, query, longURLHash, userID)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrURLNotFound
		}
		return nil, apperror.ErrStoreUnavailable.WithCause(err)
	}
	return &m, nil
}

// SoftDelete marks a mapping deleted. It does not check ownership; the
// service layer resolves the row first and enforces that.
func (s *URLStore) SoftDelete(ctx context.Context, shortCode string) error {
	const query = `
		UPDATE url_mappings
		SET is_deleted = true, deleted_at = NOW()
		WHERE short_code = $1 AND is_deleted = false`

	res, err := s.db.ExecContext(ctx, query, shortCode)
	if err != nil {
		return apperror.ErrStoreUnavailable.WithCause(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.ErrURLNotFound
	}
	return nil
}

// IncrementAccess bumps access_count and refreshes last_accessed_at. Runs
// off the response path; failures are the caller's to log, not to propagate.
func (s *URLStore) IncrementAccess(ctx context.Context, shortCode string) error {
	const query = `
		UPDATE url_mappings
		SET access_count = access_count + 1, last_accessed_at = NOW()
		WHERE short_code = $1 AND is_deleted = false`

	_, err := s.db.ExecContext(ctx, query, shortCode)
	return err
}

// MarkExpiredBatch retires up to limit expired rows in one transaction and
// returns their codes for cache invalidation. SKIP LOCKED keeps overlapping
// sweeps from contending.
func (s *URLStore) MarkExpiredBatch(ctx context.Context, limit int) ([]string, error) {
	const query = `
		UPDATE url_mappings
		SET is_deleted = true, deleted_at = NOW()
		WHERE id IN (
			SELECT id FROM url_mappings
			WHERE expires_at <= NOW() AND is_deleted = false
			ORDER BY expires_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING short_code`

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable.WithCause(err)
	}
	defer tx.Rollback()

	var codes []string
	if err := tx.SelectContext(ctx, &codes, query, limit); err != nil {
		return nil, apperror.ErrStoreUnavailable.WithCause(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperror.ErrStoreUnavailable.WithCause(err)
	}
	return codes, nil
}

// GetPopular returns the most-accessed live mappings for cache warm-up.
func (s *URLStore) GetPopular(ctx context.Context, limit int) ([]*domain.URLMapping, error) {
	const query = `
		SELECT id, short_code, long_url, long_url_hash, user_id, is_custom_alias,
		       created_at, last_accessed_at, expires_at, deleted_at, access_count, is_deleted
		FROM url_mappings
		WHERE is_deleted = false AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY access_count DESC
		LIMIT $1`

	var rows []*domain.URLMapping
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, apperror.ErrStoreUnavailable.WithCause(err)
	}
	return rows, nil
}

// GetByShortCodes batch-fetches live mappings (cache warm-up by code list).
func (s *URLStore) GetByShortCodes(ctx context.Context, shortCodes []string) ([]*domain.URLMapping, error) {
	const query = `
		SELECT id, short_code, long_url, long_url_hash, user_id, is_custom_alias,
		       created_at, last_accessed_at, expires_at, deleted_at, access_count, is_deleted
		FROM url_mappings
		WHERE short_code = ANY($1) AND is_deleted = false`

	var rows []*domain.URLMapping
	if err := s.db.SelectContext(ctx, &rows, query, pq.Array(shortCodes)); err != nil {
		return nil, apperror.ErrStoreUnavailable.WithCause(err)
	}
	return rows, nil
}

// GetUserPrefs loads the shortener-relevant user fields.
func (s *URLStore) GetUserPrefs(ctx context.Context, userID string) (*domain.UserPrefs, error) {
	const query = `SELECT id, duplicate_strategy, default_expiry_days, tier FROM users WHERE id = $1`

	var prefs domain.UserPrefs
	err := database.WithRetry(ctx, s.policy, func(ctx context.Context) error {
		return s.db.GetContext(ctx, &prefs, query, userID)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrURLNotFound.WithCause(fmt.Errorf("user %s", userID))
		}
		return nil, apperror.ErrStoreUnavailable.WithCause(err)
	}
	return &prefs, nil
}

// ReserveRange atomically reserves [start, start+size) from the named
// counter. The single UPDATE..RETURNING runs in its own transaction.
func (s *URLStore) ReserveRange(ctx context.Context, name string, size uint64) (uint64, error) {
	const query = `
		UPDATE id_counter
		SET next_id = next_id + $2
		WHERE name = $1
		RETURNING next_id - $2`

	ctx, cancel := context.WithTimeout(ctx, database.DefaultQueryTimeout)
	defer cancel()

	var start int64
	if err := s.db.GetContext(ctx, &start, query, name, int64(size)); err != nil {
		return 0, err
	}
	return uint64(start), nil
}

// Touch verifies connectivity; the readiness probe uses it.
func (s *URLStore) Touch(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}
