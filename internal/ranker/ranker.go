// Package ranker orders scored candidates for presentation.
package ranker

import (
	"sort"
	"strings"

	"github.com/dshills/catalogsearch/pkg/types"
)

// DefaultMinScore drops weak fuzzy matches
const DefaultMinScore = 20.0

// Options control thresholding and truncation
type Options struct {
	MinScore float64
	Limit    int // 0 means no limit
}

// Rank drops results below the threshold, sorts the rest and truncates to
// the limit. total is the number of results that passed the threshold.
// The input slice is not modified.
func Rank(results []types.ScoredResult, opts Options) (ranked []types.ScoredResult, total int) {
	ranked = make([]types.ScoredResult, 0, len(results))
	for _, r := range results {
		if r.Score < opts.MinScore {
			continue
		}
		ranked = append(ranked, r)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return Less(&ranked[i], &ranked[j])
	})

	total = len(ranked)
	if opts.Limit > 0 && len(ranked) > opts.Limit {
		ranked = ranked[:opts.Limit]
	}
	return ranked, total
}

// Less orders by score descending, then match-type priority, then name
// case-insensitively, then id
func Less(a, b *types.ScoredResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if pa, pb := a.MatchType.Priority(), b.MatchType.Priority(); pa != pb {
		return pa < pb
	}
	na, nb := strings.ToLower(a.Candidate.Name), strings.ToLower(b.Candidate.Name)
	if na != nb {
		return na < nb
	}
	return a.Candidate.ID < b.Candidate.ID
}

// Page returns a window of an already ranked result set
func Page(results []types.ScoredResult, offset, size int) []types.ScoredResult {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) || size <= 0 {
		return []types.ScoredResult{}
	}
	end := offset + size
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}
