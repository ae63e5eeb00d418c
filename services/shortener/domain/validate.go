package domain

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/shortly-systems/shortly/utils/apperror"
)

const maxLongURLBytes = 2048

// shortCodeRe is the canonical grammar for short codes and custom aliases.
var shortCodeRe = regexp.MustCompile(`^[A-Za-z0-9_-]{3,30}$`)

// URLValidation is the outcome of ValidateURL.
type URLValidation struct {
	IsValid      bool
	SanitizedURL string
	Err          error
}

// ValidateURL checks shape and returns the canonicalized form: scheme and
// host lower-cased, default ports stripped. The canonical form is what gets
// hashed for duplicate detection.
func ValidateURL(raw string) URLValidation {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxLongURLBytes {
		return URLValidation{Err: apperror.ErrInvalidURL}
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return URLValidation{Err: apperror.ErrInvalidURL.WithCause(err)}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return URLValidation{Err: apperror.ErrInvalidURL}
	}
	if parsed.Host == "" {
		return URLValidation{Err: apperror.ErrInvalidURL}
	}

	parsed.Scheme = scheme
	parsed.Host = strings.ToLower(parsed.Host)
	if scheme == "http" {
		parsed.Host = strings.TrimSuffix(parsed.Host, ":80")
	} else {
		parsed.Host = strings.TrimSuffix(parsed.Host, ":443")
	}

	sanitized := parsed.String()
	if len(sanitized) > maxLongURLBytes {
		return URLValidation{Err: apperror.ErrInvalidURL}
	}
	return URLValidation{IsValid: true, SanitizedURL: sanitized}
}

// ValidateAlias enforces the custom-alias grammar, preserving case.
func ValidateAlias(alias string) (string, error) {
	alias = strings.TrimSpace(alias)
	if !shortCodeRe.MatchString(alias) {
		return "", apperror.ErrInvalidAlias
	}
	return alias, nil
}

// IsValidShortCode is the shape check shared with the redirect path.
func IsValidShortCode(code string) bool {
	return shortCodeRe.MatchString(code)
}
