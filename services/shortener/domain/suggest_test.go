package domain

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapChecker map[string]bool

func (m mapChecker) ShortCodeExists(ctx context.Context, code string) (bool, error) {
	return m[code], nil
}

func TestSuggestAliasesOrder(t *testing.T) {
	got := SuggestAliases(context.Background(), "brand", mapChecker{})
	assert.Equal(t, []string{"brand1", "brand2", "brand3", "brand123", fmt.Sprintf("brand%d", time.Now().Year())}, got)
}

func TestSuggestAliasesSkipsTaken(t *testing.T) {
	checker := mapChecker{"brand1": true, "brand2": true}
	got := SuggestAliases(context.Background(), "brand", checker)
	require.Len(t, got, 5)
	assert.NotContains(t, got, "brand1")
	assert.NotContains(t, got, "brand2")
	assert.Equal(t, "brand3", got[0])
}

func TestSuggestAliasesRespectsGrammar(t *testing.T) {
	// A 29-character base makes most suffixed candidates exceed the limit.
	base := "abcdefghijklmnopqrstuvwxyzabc"
	got := SuggestAliases(context.Background(), base, mapChecker{})
	for _, s := range got {
		assert.True(t, IsValidShortCode(s), "suggestion %q breaks the grammar", s)
	}
}

func TestSuggestAliasesAllTaken(t *testing.T) {
	checker := mapChecker{}
	year := time.Now().Year()
	for _, c := range []string{
		"brand1", "brand2", "brand3", "brand123",
		fmt.Sprintf("brand%d", year), fmt.Sprintf("brand%02d", year%100),
		"mybrand", "getbrand", "gobrand",
		"brandurl", "brandlink", "brandnow",
		"brand_1", "brand-1", "brand_url", "brand-link",
	} {
		checker[c] = true
	}
	assert.Empty(t, SuggestAliases(context.Background(), "brand", checker))
}
