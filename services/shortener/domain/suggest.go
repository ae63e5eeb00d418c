package domain

import (
	"context"
	"fmt"
	"time"
)

// maxSuggestions is how many viable alternatives an ALIAS_TAKEN response
// carries.
const maxSuggestions = 5

// AvailabilityChecker probes whether a candidate code is free among
// non-deleted mappings.
type AvailabilityChecker interface {
	ShortCodeExists(ctx context.Context, shortCode string) (bool, error)
}

// SuggestAliases produces up to five available variants of a taken alias.
// Strategies are applied in a fixed order; each candidate is validated
// against the grammar and re-checked against the store.
func SuggestAliases(ctx context.Context, base string, checker AvailabilityChecker) []string {
	year := time.Now().Year()
	candidates := make([]string, 0, 16)

	for _, suffix := range []string{"1", "2", "3", "123"} {
		candidates = append(candidates, base+suffix)
	}
	candidates = append(candidates,
		fmt.Sprintf("%s%d", base, year),
		fmt.Sprintf("%s%02d", base, year%100),
	)
	for _, prefix := range []string{"my", "get", "go"} {
		candidates = append(candidates, prefix+base)
	}
	for _, suffix := range []string{"url", "link", "now"} {
		candidates = append(candidates, base+suffix)
	}
	for _, suffix := range []string{"_1", "-1", "_url", "-link"} {
		candidates = append(candidates, base+suffix)
	}

	suggestions := make([]string, 0, maxSuggestions)
	for _, candidate := range candidates {
		if len(suggestions) == maxSuggestions {
			break
		}
		if !IsValidShortCode(candidate) {
			continue
		}
		taken, err := checker.ShortCodeExists(ctx, candidate)
		if err != nil || taken {
			continue
		}
		suggestions = append(suggestions, candidate)
	}
	return suggestions
}
