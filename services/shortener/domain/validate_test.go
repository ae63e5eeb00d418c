package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortly-systems/shortly/utils/apperror"
)

func TestValidateURLAccepts(t *testing.T) {
	cases := map[string]string{
		"https://example.com/page":      "https://example.com/page",
		"HTTP://EXAMPLE.COM/Path":       "http://example.com/Path",
		"https://example.com:443/x":     "https://example.com/x",
		"http://example.com:80/x":       "http://example.com/x",
		"https://example.com:8443/x":    "https://example.com:8443/x",
		"  https://example.com/padded ": "https://example.com/padded",
		"https://example.com/?q=a&b=c":  "https://example.com/?q=a&b=c",
	}
	for raw, want := range cases {
		v := ValidateURL(raw)
		require.True(t, v.IsValid, "ValidateURL(%q): %v", raw, v.Err)
		assert.Equal(t, want, v.SanitizedURL)
	}
}

func TestValidateURLRejects(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"ftp://example.com/file",
		"javascript:alert(1)",
		"example.com/no-scheme",
		"https://",
		"https://example.com/" + strings.Repeat("a", 2100),
	}
	for _, raw := range cases {
		v := ValidateURL(raw)
		assert.False(t, v.IsValid, "ValidateURL(%q) should fail", raw)
		assert.ErrorIs(t, v.Err, apperror.ErrInvalidURL)
	}
}

func TestValidateURLCanonicalFormDrivesHash(t *testing.T) {
	a := ValidateURL("HTTPS://Example.COM:443/page")
	b := ValidateURL("https://example.com/page")
	require.True(t, a.IsValid)
	require.True(t, b.IsValid)
	assert.Equal(t, HashLongURL(a.SanitizedURL), HashLongURL(b.SanitizedURL))
}

func TestValidateAlias(t *testing.T) {
	alias, err := ValidateAlias("  my-Alias_1 ")
	require.NoError(t, err)
	assert.Equal(t, "my-Alias_1", alias)

	for _, bad := range []string{"", "ab", strings.Repeat("x", 31), "has space", "emoji💥", "semi;colon"} {
		_, err := ValidateAlias(bad)
		assert.ErrorIs(t, err, apperror.ErrInvalidAlias, "alias %q", bad)
	}
}

func TestIsValidShortCode(t *testing.T) {
	assert.True(t, IsValidShortCode("abc"))
	assert.True(t, IsValidShortCode("aaaaaab"))
	assert.True(t, IsValidShortCode("A_b-9"))
	assert.False(t, IsValidShortCode("ab"))
	assert.False(t, IsValidShortCode(strings.Repeat("a", 31)))
	assert.False(t, IsValidShortCode("with/slash"))
}
