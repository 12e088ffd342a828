package searcher

import (
	"slices"
	"time"
)

// DelayFunc maps a query length in runes to its debounce delay
type DelayFunc func(queryLength int) time.Duration

// Tier applies Delay to queries of at most MaxLength runes
type Tier struct {
	MaxLength int
	Delay     time.Duration
}

// TieredDelay builds a DelayFunc from length tiers. Queries longer than
// every tier use fallback.
func TieredDelay(tiers []Tier, fallback time.Duration) DelayFunc {
	sorted := slices.Clone(tiers)
	slices.SortFunc(sorted, func(a, b Tier) int { return a.MaxLength - b.MaxLength })

	return func(n int) time.Duration {
		for _, t := range sorted {
			if n <= t.MaxLength {
				return t.Delay
			}
		}
		return fallback
	}
}

// DefaultDelay waits longer on short queries, which are still being typed
// and match broadly
func DefaultDelay() DelayFunc {
	return TieredDelay([]Tier{
		{MaxLength: 2, Delay: 350 * time.Millisecond},
		{MaxLength: 4, Delay: 250 * time.Millisecond},
	}, 150*time.Millisecond)
}

// NoDelay fires immediately
func NoDelay(int) time.Duration { return 0 }
