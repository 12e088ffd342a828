package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/catalogsearch/internal/tokenizer"
	"github.com/dshills/catalogsearch/pkg/types"
)

var allFields = types.Filters{Name: true, SKU: true, Barcode: true, Category: true}.FieldSet()

func score(s *Scorer, c types.CandidateItem, raw string, fields types.FieldSet) types.ScoredResult {
	return s.Score(&c, tokenizer.Normalize(raw), tokenizer.Tokenize(raw), fields)
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"milk", "mlik", 2},
		{"café", "cafe", 1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, Distance(tt.a, tt.b))
		})
	}
}

func TestScoreField_Strategies(t *testing.T) {
	s := New(DefaultConfig())

	tests := []struct {
		name  string
		value string
		query string
		want  float64
		exact bool
	}{
		{"Exact", "Milk", "milk", 100, true},
		{"ScaledPrefix", "Milky", "milk", 65 + 20*0.8, false},
		{"Substring", "Organic Whole Milk", "milk", 65, false},
		{"Fuzzy", "mlik", "milk", 50 * (1 - 2.0/4.0), false},
		{"FuzzyOneEdit", "milks", "milkz", 50 * (1 - 1.0/5.0), false},
		{"TooFar", "bread", "milk", 0, false},
		{"EmptyField", "", "milk", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := s.ScoreField(tt.value, tt.query, tokenizer.Tokenize(tt.query))
			assert.InDelta(t, tt.want, m.Score, 1e-9)
			assert.Equal(t, tt.exact, m.Exact)
		})
	}
}

func TestScoreField_UnscaledPrefix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScalePrefix = false
	s := New(cfg)

	m := s.ScoreField("Milky Way Bar", "milk", []string{"milk"})
	assert.Equal(t, 85.0, m.Score)
}

func TestScoreField_Precedence(t *testing.T) {
	s := New(DefaultConfig())
	q := "abcd"

	exact := s.ScoreField("abcd", q, []string{q}).Score
	prefix := s.ScoreField("abcde", q, []string{q}).Score
	substring := s.ScoreField("xabcd", q, []string{q}).Score
	fuzzy := s.ScoreField("abce", q, []string{q}).Score

	assert.Greater(t, exact, prefix)
	assert.GreaterOrEqual(t, prefix, substring)
	assert.Greater(t, substring, fuzzy)
	assert.Greater(t, fuzzy, 0.0)
}

func TestScoreField_TokenOverlap(t *testing.T) {
	s := New(DefaultConfig())

	// Out-of-order tokens miss every strategy but overlap fully by word
	m := s.ScoreField("Organic Whole Milk", "milk organic", []string{"milk", "organic"})
	assert.InDelta(t, 60.0, m.Score, 1e-9)

	// Word prefix earns partial credit
	m = s.ScoreField("Organic Whole Milk", "milk org", []string{"milk", "org"})
	assert.InDelta(t, 60*(1.0+0.8)/2, m.Score, 1e-9)

	// A strategy hit beats the token score
	m = s.ScoreField("Organic Whole Milk", "whole milk", []string{"whole", "milk"})
	assert.InDelta(t, 65.0, m.Score, 1e-9)

	// Single-token queries never use token overlap
	m = s.ScoreField("Whole Milk", "hole", []string{"hole"})
	assert.InDelta(t, 65.0, m.Score, 1e-9)
}

func TestScoreField_PunctuatedQuery(t *testing.T) {
	s := New(DefaultConfig())

	tests := []struct {
		name  string
		value string
		raw   string
		want  float64
		exact bool
	}{
		{"TrailingPeriod", "Organic Whole Milk", "milk.", 65, false},
		{"LeadingHash", "Organic Whole Milk", "#milk", 65, false},
		{"TrailingComma", "Organic Whole Milk", "milk,", 65, false},
		{"ExactAfterStrip", "Milk", "milk!", 100, true},
		{"HyphenJoinedWords", "Whole Milk", "whole-milk", 100, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := s.ScoreField(tt.value, tokenizer.Normalize(tt.raw), tokenizer.Tokenize(tt.raw))
			assert.InDelta(t, tt.want, m.Score, 1e-9)
			assert.Equal(t, tt.exact, m.Exact)
		})
	}

	// Punctuation that is part of the stored value still matches as typed
	m := s.ScoreField("MLK-001", "mlk-001", tokenizer.Tokenize("mlk-001"))
	assert.True(t, m.Exact)
}

func TestScore_SubstringNameMatch(t *testing.T) {
	s := New(DefaultConfig())
	item := types.CandidateItem{ID: "1", Name: "Organic Whole Milk", SKU: "MLK-001", Barcode: "012345678905"}

	r := score(s, item, "milk", types.FieldSet(0).With(types.FieldName))
	assert.Equal(t, types.MatchName, r.MatchType)
	assert.InDelta(t, 65.0, r.Score, 1e-9)
	assert.Equal(t, "1", r.Candidate.ID)
}

func TestScore_ExactBarcodeIsCapped(t *testing.T) {
	s := New(DefaultConfig())
	item := types.CandidateItem{ID: "1", Name: "Organic Whole Milk", SKU: "MLK-001", Barcode: "012345678905"}

	r := score(s, item, "012345678905", allFields)
	assert.Equal(t, types.MatchBarcode, r.MatchType)
	assert.Equal(t, 150.0, r.Score)
}

func TestScore_ExactBonus(t *testing.T) {
	s := New(DefaultConfig())
	name := types.FieldSet(0).With(types.FieldName)

	exact := score(s, types.CandidateItem{ID: "1", Name: "Milk"}, "milk", name)
	assert.Equal(t, 105.0, exact.Score)

	substring := score(s, types.CandidateItem{ID: "2", Name: "Organic Whole Milk"}, "milk", name)
	assert.Greater(t, exact.Score, substring.Score)
}

func TestScore_MaxNotSum(t *testing.T) {
	s := New(DefaultConfig())
	fields := types.FieldSet(0).With(types.FieldName).With(types.FieldCategory)

	weak := types.CandidateItem{ID: "1", Name: "Chocolate Milk Drink", CategoryName: "Milk Drinks"}
	strong := types.CandidateItem{ID: "2", Name: "Milk"}

	w := score(s, weak, "milk", fields)
	st := score(s, strong, "milk", fields)

	// The weak candidate keeps only its best single field
	assert.InDelta(t, 65.0, w.Score, 1e-9)
	assert.Equal(t, types.MatchName, w.MatchType)
	assert.Greater(t, st.Score, w.Score)
}

func TestScore_OnlyEnabledFields(t *testing.T) {
	s := New(DefaultConfig())
	item := types.CandidateItem{ID: "1", Name: "Organic Whole Milk", SKU: "MLK-001"}

	r := score(s, item, "mlk-001", types.FieldSet(0).With(types.FieldName))
	assert.Equal(t, 0.0, r.Score)
	assert.Equal(t, types.MatchName, r.MatchType)

	r = score(s, item, "mlk-001", types.FieldSet(0).With(types.FieldName).With(types.FieldSKU))
	assert.Equal(t, types.MatchSKU, r.MatchType)
	assert.Equal(t, 145.0, r.Score)
}

func TestScore_TieUsesFieldPriority(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{Name: 1, SKU: 1, Barcode: 1, Category: 1}
	s := New(cfg)

	item := types.CandidateItem{ID: "1", Name: "abc", SKU: "abc", CategoryName: "abc"}
	r := score(s, item, "abc", allFields)
	assert.Equal(t, types.MatchSKU, r.MatchType)
}

func TestScore_NeverNegative(t *testing.T) {
	s := New(DefaultConfig())
	items := []types.CandidateItem{
		{ID: "1", Name: "Milk"},
		{ID: "2", Name: "Bread"},
		{ID: "3"},
	}
	for _, r := range s.ScoreAll(items, "milk", []string{"milk"}, allFields) {
		assert.GreaterOrEqual(t, r.Score, 0.0)
	}
}

func TestNew_ZeroConfigUsesDefaults(t *testing.T) {
	s := New(Config{})
	assert.Equal(t, DefaultConfig(), s.Config())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.SubstringScore = 90
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxScore = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Weights.Barcode = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxEditDistance = -1
	assert.Error(t, cfg.Validate())
}
