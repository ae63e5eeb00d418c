package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeZero(t *testing.T) {
	assert.Equal(t, "a", Encode(0))
}

func TestEncodeKnownValues(t *testing.T) {
	cases := map[uint64]string{
		0:  "a",
		1:  "b",
		25: "z",
		26: "A",
		51: "Z",
		52: "0",
		61: "9",
		62: "ba",
		63: "bb",
	}
	for n, want := range cases {
		assert.Equal(t, want, Encode(n), "Encode(%d)", n)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 61, 62, 3843, 3844, 1_000_000, 1e15, 1e18, ^uint64(0)}
	for _, n := range values {
		got, err := Decode(Encode(n))
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
}

func TestEncodeMinLenPadding(t *testing.T) {
	code := EncodeMinLen(1, 7)
	assert.Equal(t, "aaaaaab", code)
	assert.Len(t, code, 7)

	// Padding is value-preserving.
	n, err := Decode(code)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	// Long enough values are not padded.
	assert.Equal(t, Encode(1e18), EncodeMinLen(1e18, 7))
}

func TestDecodeRejectsInvalidInput(t *testing.T) {
	for _, s := range []string{"", "abc!", "short code", "äöü", "abc-def"} {
		_, err := Decode(s)
		assert.ErrorIs(t, err, ErrInvalidBase62, "Decode(%q)", s)
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("aaaaaab"))
	assert.True(t, IsValid("Zz9"))
	assert.False(t, IsValid(""))
	assert.False(t, IsValid("has_underscore"))
	assert.False(t, IsValid("has-dash"))
}

func TestEncodeUniqueness(t *testing.T) {
	seen := make(map[string]uint64, 10000)
	for n := uint64(0); n < 10000; n++ {
		code := EncodeMinLen(n, 7)
		prev, dup := seen[code]
		require.False(t, dup, "codes for %d and %d collide", prev, n)
		seen[code] = n
	}
}
