// Package idgen issues globally unique short codes: a counter-range allocator
// encoded in base62 as the primary path, and a hash-derived generator as the
// fallback when the allocator cannot reach the store.
package idgen

import (
	"net/http"
	"strings"

	"github.com/shortly-systems/shortly/utils/apperror"
)

// Alphabet index 0 is 'a', so zero encodes as "a" and min-length padding with
// 'a' preserves the numeric value.
const base62Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var base62Index = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(base62Alphabet); i++ {
		idx[base62Alphabet[i]] = int8(i)
	}
	return idx
}()

// ErrInvalidBase62 is returned by Decode for out-of-alphabet input.
var ErrInvalidBase62 = apperror.New(apperror.CodeValidation, "input is not a base62 string", http.StatusBadRequest)

// Encode converts a non-negative integer to its base62 representation.
func Encode(n uint64) string {
	if n == 0 {
		return string(base62Alphabet[0])
	}
	var buf [11]byte // 62^11 > 2^64
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = base62Alphabet[n%62]
		n /= 62
	}
	return string(buf[i:])
}

// EncodeMinLen left-pads the encoding with 'a' (digit zero) to reach at least
// minLen characters.
func EncodeMinLen(n uint64, minLen int) string {
	s := Encode(n)
	if len(s) >= minLen {
		return s
	}
	return strings.Repeat(string(base62Alphabet[0]), minLen-len(s)) + s
}

// Decode is the inverse of Encode. Leading 'a' padding decodes to the same
// value as the unpadded string.
func Decode(s string) (uint64, error) {
	if s == "" {
		return 0, ErrInvalidBase62
	}
	var n uint64
	for i := 0; i < len(s); i++ {
		d := base62Index[s[i]]
		if d < 0 {
			return 0, ErrInvalidBase62
		}
		n = n*62 + uint64(d)
	}
	return n, nil
}

// IsValid reports whether every character of s is in the base62 alphabet.
func IsValid(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if base62Index[s[i]] < 0 {
			return false
		}
	}
	return true
}
