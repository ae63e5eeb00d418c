package idgen

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"net/http"

	"github.com/shortly-systems/shortly/utils/apperror"
)

var (
	// ErrHashExhausted means every candidate collided within the retry budget.
	ErrHashExhausted = &apperror.Error{
		Code:       "HASH_EXHAUSTED",
		Message:    "no unique hash-derived code found",
		HTTPStatus: http.StatusInternalServerError,
	}
	// ErrHashUnavailable means the collision check could not reach the store.
	ErrHashUnavailable = &apperror.Error{
		Code:       "HASH_UNAVAILABLE",
		Message:    "store unreachable during hash generation",
		HTTPStatus: http.StatusInternalServerError,
		Retryable:  true,
	}
)

// ExistsChecker probes the store for short-code collisions.
type ExistsChecker interface {
	ShortCodeExists(ctx context.Context, shortCode string) (bool, error)
}

// HashGenerator derives short codes from SHA-256 digests. Deterministic mode
// hashes the URL itself (nonce starts empty); random mode seeds the nonce
// with entropy. Collisions bump the nonce and retry.
type HashGenerator struct {
	exists     ExistsChecker
	maxRetries int
}

func NewHashGenerator(exists ExistsChecker, maxRetries int) *HashGenerator {
	if maxRetries == 0 {
		maxRetries = 5
	}
	return &HashGenerator{exists: exists, maxRetries: maxRetries}
}

// FromURL derives a code of the given length from the long URL.
func (g *HashGenerator) FromURL(ctx context.Context, longURL string, length int) (string, int, error) {
	return g.generate(ctx, longURL, 0, length)
}

// Random derives a code of the given length from entropy alone.
func (g *HashGenerator) Random(ctx context.Context, length int) (string, int, error) {
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return "", 0, fmt.Errorf("entropy: %w", err)
	}
	return g.generate(ctx, "", binary.BigEndian.Uint64(seed[:]), length)
}

func (g *HashGenerator) generate(ctx context.Context, material string, nonce uint64, length int) (string, int, error) {
	if length < 7 {
		length = 7
	}

	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		code := deriveCode(material, nonce, length)

		taken, err := g.exists.ShortCodeExists(ctx, code)
		if err != nil {
			return "", attempt, ErrHashUnavailable.WithCause(err)
		}
		if !taken {
			return code, attempt, nil
		}
		nonce++
	}
	return "", g.maxRetries, ErrHashExhausted
}

// deriveCode hashes material‖nonce, base62-encodes the leading 8 digest
// bytes, and pads or truncates to the requested length. A nonce of zero with
// empty material is the deterministic case.
func deriveCode(material string, nonce uint64, length int) string {
	h := sha256.New()
	h.Write([]byte(material))
	if nonce != 0 {
		var nb [8]byte
		binary.BigEndian.PutUint64(nb[:], nonce)
		h.Write(nb[:])
	}
	digest := h.Sum(nil)

	code := EncodeMinLen(binary.BigEndian.Uint64(digest[:8]), length)
	if len(code) > length {
		code = code[:length]
	}
	return code
}
