package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortly-systems/shortly/services/shortener/domain"
	"github.com/shortly-systems/shortly/utils/apperror"
)

func newMockStore(t *testing.T) (*URLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewURLStore(sqlx.NewDb(db, "pgx"), log), mock
}

func mappingColumns() []string {
	return []string{
		"id", "short_code", "long_url", "long_url_hash", "user_id", "is_custom_alias",
		"created_at", "last_accessed_at", "expires_at", "deleted_at", "access_count", "is_deleted",
	}
}

func TestCreateMapping(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO url_mappings`).
		WithArgs("abc1234", "https://example.com", sqlmock.AnyArg(), nil, false, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))

	m := &domain.URLMapping{
		ShortCode:   "abc1234",
		LongURL:     "https://example.com",
		LongURLHash: domain.HashLongURL("https://example.com"),
	}
	require.NoError(t, s.CreateMapping(context.Background(), m))
	assert.Equal(t, int64(7), m.ID)
	assert.False(t, m.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMappingDuplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO url_mappings`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_url_mappings_short_code"})

	err := s.CreateMapping(context.Background(), &domain.URLMapping{ShortCode: "abc1234", LongURL: "https://example.com"})
	assert.ErrorIs(t, err, apperror.ErrDuplicateCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByShortCode(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM url_mappings`).
		WithArgs("abc1234").
		WillReturnRows(sqlmock.NewRows(mappingColumns()).
			AddRow(int64(7), "abc1234", "https://example.com", "hash", nil, false,
				time.Now(), nil, nil, nil, int64(3), false))

	m, err := s.GetByShortCode(context.Background(), "abc1234")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", m.LongURL)
	assert.Equal(t, int64(3), m.AccessCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByShortCodeNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM url_mappings`).
		WithArgs("nothere").
		WillReturnRows(sqlmock.NewRows(mappingColumns()))

	_, err := s.GetByShortCode(context.Background(), "nothere")
	assert.ErrorIs(t, err, apperror.ErrURLNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestShortCodeExists(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("abc1234").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := s.ShortCodeExists(context.Background(), "abc1234")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDelete(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE url_mappings`).
		WithArgs("abc1234").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.SoftDelete(context.Background(), "abc1234"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE url_mappings`).
		WithArgs("nothere").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.SoftDelete(context.Background(), "nothere")
	assert.ErrorIs(t, err, apperror.ErrURLNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkExpiredBatch(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE url_mappings`).
		WithArgs(500).
		WillReturnRows(sqlmock.NewRows([]string{"short_code"}).AddRow("old1234").AddRow("old5678"))
	mock.ExpectCommit()

	codes, err := s.MarkExpiredBatch(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, []string{"old1234", "old5678"}, codes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveRange(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE id_counter`).
		WithArgs("url_codes", int64(10000)).
		WillReturnRows(sqlmock.NewRows([]string{"next_id"}).AddRow(int64(50000)))

	start, err := s.ReserveRange(context.Background(), "url_codes", 10000)
	require.NoError(t, err)
	assert.Equal(t, uint64(50000), start)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserPrefs(t *testing.T) {
	s, mock := newMockStore(t)

	days := 30
	mock.ExpectQuery(`SELECT id, duplicate_strategy, default_expiry_days, tier FROM users`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "duplicate_strategy", "default_expiry_days", "tier"}).
			AddRow("u1", "reuse_existing", days, "premium"))

	prefs, err := s.GetUserPrefs(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.DuplicateReuseExisting, prefs.DuplicateStrategy)
	require.NotNil(t, prefs.DefaultExpiryDays)
	assert.Equal(t, 30, *prefs.DefaultExpiryDays)
	assert.Equal(t, "premium", prefs.Tier)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPopular(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`ORDER BY access_count DESC`).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows(mappingColumns()).
			AddRow(int64(1), "hot1234", "https://example.com/hot", "h1", nil, false,
				time.Now(), nil, nil, nil, int64(900), false).
			AddRow(int64(2), "warm123", "https://example.com/warm", "h2", nil, false,
				time.Now(), nil, nil, nil, int64(40), false))

	rows, err := s.GetPopular(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "hot1234", rows[0].ShortCode)
	assert.Equal(t, int64(900), rows[0].AccessCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByShortCodes(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`short_code = ANY`).
		WithArgs(pq.Array([]string{"abc1234", "zzz9999"})).
		WillReturnRows(sqlmock.NewRows(mappingColumns()).
			AddRow(int64(1), "abc1234", "https://example.com", "h1", nil, false,
				time.Now(), nil, nil, nil, int64(0), false))

	rows, err := s.GetByShortCodes(context.Background(), []string{"abc1234", "zzz9999"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "abc1234", rows[0].ShortCode)
	require.NoError(t, mock.ExpectationsWereMet())
}
