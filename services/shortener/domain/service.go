package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/shortly-systems/shortly/services/idgen"
	"github.com/shortly-systems/shortly/utils/apperror"
	"github.com/shortly-systems/shortly/utils/metrics"
)

// Store is the persistence capability the service needs.
type Store interface {
	CreateMapping(ctx context.Context, m *URLMapping) error
	GetByShortCode(ctx context.Context, shortCode string) (*URLMapping, error)
	ShortCodeExists(ctx context.Context, shortCode string) (bool, error)
	GetByHashAndUser(ctx context.Context, longURLHash, userID string) (*URLMapping, error)
	GetByShortCodes(ctx context.Context, shortCodes []string) ([]*URLMapping, error)
	SoftDelete(ctx context.Context, shortCode string) error
	GetUserPrefs(ctx context.Context, userID string) (*UserPrefs, error)
}

// IDGenerator is the façade over counter and hash generation.
type IDGenerator interface {
	GenerateID(ctx context.Context) (string, idgen.Method, int, error)
}

// CacheWriter is the narrow cache capability: write-through after store
// writes, eviction after deletes.
type CacheWriter interface {
	WriteThrough(ctx context.Context, m *URLMapping)
	Invalidate(ctx context.Context, shortCode string) error
	MarkDeleted(ctx context.Context, shortCode string)
	Warmup(ctx context.Context, mappings []*URLMapping) error
}

const (
	bulkBatchSize    = 10
	defaultMaxCreate = 3
)

// Service orchestrates validation, duplicate policy, id generation and
// write-through caching for short URL creation and management.
type Service struct {
	store      Store
	ids        IDGenerator
	cache      CacheWriter
	baseURL    string
	maxRetries int
	log        *logrus.Entry
	tracer     trace.Tracer
}

func NewService(store Store, ids IDGenerator, cache CacheWriter, baseURL string, maxRetries int, log *logrus.Logger) *Service {
	if maxRetries == 0 {
		maxRetries = defaultMaxCreate
	}
	return &Service{
		store:      store,
		ids:        ids,
		cache:      cache,
		baseURL:    baseURL,
		maxRetries: maxRetries,
		log:        log.WithField("component", "shortener"),
		tracer:     otel.Tracer("shortener"),
	}
}

// CreateShortURL implements the full creation flow: canonicalize, apply the
// user's duplicate strategy, honor custom aliases with suggestions on
// conflict, otherwise mint a fresh id with bounded collision retries.
func (s *Service) CreateShortURL(ctx context.Context, req *CreateURLRequest) (*CreateURLResponse, error) {
	ctx, span := s.tracer.Start(ctx, "shortener.create")
	defer span.End()

	validation := ValidateURL(req.LongURL)
	if !validation.IsValid {
		return nil, validation.Err
	}
	longURL := validation.SanitizedURL
	urlHash := HashLongURL(longURL)

	var prefs *UserPrefs
	if req.UserID != nil {
		p, err := s.store.GetUserPrefs(ctx, *req.UserID)
		if err != nil && !errors.Is(err, apperror.ErrURLNotFound) {
			return nil, err
		}
		prefs = p
	}

	expiresAt := s.resolveExpiry(req, prefs)

	if req.CustomAlias != "" {
		return s.createWithAlias(ctx, req, longURL, urlHash, expiresAt)
	}

	if prefs != nil && prefs.DuplicateStrategy == DuplicateReuseExisting {
		existing, err := s.store.GetByHashAndUser(ctx, urlHash, *req.UserID)
		if err == nil {
			metrics.URLsCreated.WithLabelValues("reused").Inc()
			resp := s.toResponse(existing)
			resp.WasReused = true
			return resp, nil
		}
		if !errors.Is(err, apperror.ErrURLNotFound) {
			return nil, err
		}
	}

	return s.createGenerated(ctx, req, longURL, urlHash, expiresAt, span)
}

func (s *Service) createWithAlias(ctx context.Context, req *CreateURLRequest, longURL, urlHash string, expiresAt *time.Time) (*CreateURLResponse, error) {
	alias, err := ValidateAlias(req.CustomAlias)
	if err != nil {
		return nil, err
	}

	taken, err := s.store.ShortCodeExists(ctx, alias)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, s.aliasTaken(ctx, alias)
	}

	mapping := &URLMapping{
		ShortCode:     alias,
		LongURL:       longURL,
		LongURLHash:   urlHash,
		UserID:        req.UserID,
		IsCustomAlias: true,
		ExpiresAt:     expiresAt,
	}
	if err := s.store.CreateMapping(ctx, mapping); err != nil {
		// Lost the race for the alias between probe and insert.
		if errors.Is(err, apperror.ErrDuplicateCode) {
			return nil, s.aliasTaken(ctx, alias)
		}
		return nil, err
	}

	s.cache.WriteThrough(ctx, mapping)
	metrics.URLsCreated.WithLabelValues("custom").Inc()
	return s.toResponse(mapping), nil
}

func (s *Service) aliasTaken(ctx context.Context, alias string) error {
	suggestions := SuggestAliases(ctx, alias, s.store)
	return apperror.ErrAliasTaken.WithDetails(map[string]any{"suggestions": suggestions})
}

func (s *Service) createGenerated(ctx context.Context, req *CreateURLRequest, longURL, urlHash string, expiresAt *time.Time, span trace.Span) (*CreateURLResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		code, method, attempts, err := s.ids.GenerateID(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		span.SetAttributes(
			attribute.String("idgen.method", string(method)),
			attribute.Int("idgen.attempts", attempts),
		)

		mapping := &URLMapping{
			ShortCode:   code,
			LongURL:     longURL,
			LongURLHash: urlHash,
			UserID:      req.UserID,
			ExpiresAt:   expiresAt,
		}
		if err := s.store.CreateMapping(ctx, mapping); err != nil {
			if errors.Is(err, apperror.ErrDuplicateCode) {
				s.log.WithField("short_code", code).Warn("generated code collided, retrying")
				lastErr = err
				continue
			}
			return nil, err
		}

		s.cache.WriteThrough(ctx, mapping)
		metrics.URLsCreated.WithLabelValues(string(method)).Inc()
		return s.toResponse(mapping), nil
	}
	return nil, apperror.ErrGenerationFailed.WithCause(lastErr)
}

// Resolve returns mapping metadata, enforcing deletion and expiry the same
// way the redirect path does.
func (s *Service) Resolve(ctx context.Context, shortCode string) (*URLMapping, error) {
	if !IsValidShortCode(shortCode) {
		return nil, apperror.ErrInvalidShortCode
	}
	mapping, err := s.store.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, err
	}
	if mapping.IsExpired(time.Now()) {
		return nil, apperror.ErrURLExpired
	}
	return mapping, nil
}

// Delete soft-deletes a mapping after an ownership check and evicts it from
// the caches.
func (s *Service) Delete(ctx context.Context, shortCode string, userID string) error {
	if !IsValidShortCode(shortCode) {
		return apperror.ErrInvalidShortCode
	}
	mapping, err := s.store.GetByShortCode(ctx, shortCode)
	if err != nil {
		return err
	}
	if mapping.UserID == nil || *mapping.UserID != userID {
		return apperror.ErrForbidden
	}

	if err := s.store.SoftDelete(ctx, shortCode); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, shortCode); err != nil {
		s.log.WithError(err).WithField("short_code", shortCode).Warn("cache invalidation after delete failed")
	}
	s.cache.MarkDeleted(ctx, shortCode)
	return nil
}

// BulkCreate processes inputs in batches of ten with bounded concurrency.
// Individual failures never fail the batch; each item carries its own result
// or error code.
func (s *Service) BulkCreate(ctx context.Context, reqs []CreateURLRequest) []BulkCreateItem {
	items := make([]BulkCreateItem, len(reqs))

	for offset := 0; offset < len(reqs); offset += bulkBatchSize {
		end := offset + bulkBatchSize
		if end > len(reqs) {
			end = len(reqs)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(bulkBatchSize)
		for i := offset; i < end; i++ {
			i := i
			g.Go(func() error {
				req := reqs[i]
				items[i].Input = req
				resp, err := s.CreateShortURL(gctx, &req)
				if err != nil {
					appErr := apperror.FromError(err)
					items[i].ErrCode = appErr.Code
					items[i].ErrCause = appErr.Message
					return nil
				}
				items[i].Result = resp
				return nil
			})
		}
		g.Wait()
	}
	return items
}

// WarmCache loads mappings into L1/L2 ahead of traffic.
func (s *Service) WarmCache(ctx context.Context, mappings []*URLMapping) error {
	return s.cache.Warmup(ctx, mappings)
}

// WarmCacheByCodes fetches the named live codes from the store and primes the
// caches with them. Returns how many mappings were actually loaded; codes that
// do not resolve to a live row are skipped, not errors.
func (s *Service) WarmCacheByCodes(ctx context.Context, shortCodes []string) (int, error) {
	mappings, err := s.store.GetByShortCodes(ctx, shortCodes)
	if err != nil {
		return 0, err
	}
	if err := s.cache.Warmup(ctx, mappings); err != nil {
		return 0, err
	}
	return len(mappings), nil
}

func (s *Service) resolveExpiry(req *CreateURLRequest, prefs *UserPrefs) *time.Time {
	var days float64
	switch {
	case req.ExpiryDays != nil:
		days = *req.ExpiryDays
	case prefs != nil && prefs.DefaultExpiryDays != nil:
		days = float64(*prefs.DefaultExpiryDays)
	default:
		return nil
	}
	if days <= 0 {
		return nil
	}
	t := time.Now().Add(time.Duration(days * 24 * float64(time.Hour)))
	return &t
}

func (s *Service) toResponse(m *URLMapping) *CreateURLResponse {
	return &CreateURLResponse{
		ShortCode:     m.ShortCode,
		LongURL:       m.LongURL,
		ShortURL:      fmt.Sprintf("%s/%s", s.baseURL, m.ShortCode),
		IsCustomAlias: m.IsCustomAlias,
		ExpiresAt:     m.ExpiresAt,
		WasReused:     false,
		UserID:        m.UserID,
	}
}
