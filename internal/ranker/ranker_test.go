package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/catalogsearch/pkg/types"
)

func result(id, name string, score float64, mt types.MatchType) types.ScoredResult {
	return types.ScoredResult{
		Candidate: types.CandidateItem{ID: id, Name: name},
		Score:     score,
		MatchType: mt,
	}
}

func ids(results []types.ScoredResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Candidate.ID
	}
	return out
}

func TestRank_SortsByScore(t *testing.T) {
	in := []types.ScoredResult{
		result("1", "Organic Whole Milk", 65, types.MatchName),
		result("2", "Milk", 105, types.MatchName),
		result("3", "Milky Way", 81, types.MatchName),
	}

	ranked, total := Rank(in, Options{MinScore: DefaultMinScore})
	assert.Equal(t, []string{"2", "3", "1"}, ids(ranked))
	assert.Equal(t, 3, total)
}

func TestRank_TieBreaks(t *testing.T) {
	in := []types.ScoredResult{
		result("n", "Beta", 70, types.MatchName),
		result("c", "Alpha", 70, types.MatchCategory),
		result("b", "Zeta", 70, types.MatchBarcode),
		result("s", "Gamma", 70, types.MatchSKU),
		result("a", "alpha", 70, types.MatchName),
		result("x", "Alpha", 70, types.MatchName),
		result("u", "Omega", 70, types.MatchUPC),
	}

	ranked, _ := Rank(in, Options{})
	// barcode/upc by name, then sku, then names case-insensitively with id last
	assert.Equal(t, []string{"u", "b", "s", "a", "x", "n", "c"}, ids(ranked))
}

func TestRank_ThresholdBeforeTruncation(t *testing.T) {
	in := []types.ScoredResult{
		result("1", "A", 10, types.MatchName),
		result("2", "B", 19.99, types.MatchName),
		result("3", "C", 20, types.MatchName),
		result("4", "D", 50, types.MatchName),
		result("5", "E", 90, types.MatchName),
	}

	ranked, total := Rank(in, Options{MinScore: 20, Limit: 2})
	assert.Equal(t, []string{"5", "4"}, ids(ranked))
	assert.Equal(t, 3, total)

	for _, r := range ranked {
		assert.GreaterOrEqual(t, r.Score, 20.0)
	}
}

func TestRank_Deterministic(t *testing.T) {
	in := []types.ScoredResult{
		result("2", "Milk", 65, types.MatchName),
		result("1", "Milk", 65, types.MatchName),
		result("3", "Oat Milk", 65, types.MatchSKU),
	}

	first, _ := Rank(in, Options{})
	second, _ := Rank(in, Options{})
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"3", "1", "2"}, ids(first))

	// Input order is untouched
	assert.Equal(t, []string{"2", "1", "3"}, ids(in))
}

func TestRank_Empty(t *testing.T) {
	ranked, total := Rank(nil, Options{MinScore: 20, Limit: 10})
	assert.Empty(t, ranked)
	assert.Zero(t, total)
}

func TestPage(t *testing.T) {
	in := []types.ScoredResult{
		result("1", "A", 90, types.MatchName),
		result("2", "B", 80, types.MatchName),
		result("3", "C", 70, types.MatchName),
	}

	require.Equal(t, []string{"1", "2"}, ids(Page(in, 0, 2)))
	assert.Equal(t, []string{"3"}, ids(Page(in, 2, 2)))
	assert.Empty(t, Page(in, 3, 2))
	assert.Empty(t, Page(in, 0, 0))
	assert.Equal(t, []string{"1"}, ids(Page(in, -5, 1)))
}
