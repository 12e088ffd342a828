package scorer

import (
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"

	"github.com/dshills/catalogsearch/internal/tokenizer"
	"github.com/dshills/catalogsearch/pkg/types"
)

// Partial credit per query token in the token-overlap strategy
const (
	tokenWordExact  = 1.0
	tokenWordPrefix = 0.8
	tokenContained  = 0.6
)

// fieldPriority is the order used to break equal field scores
var fieldPriority = []types.Field{
	types.FieldBarcode,
	types.FieldSKU,
	types.FieldName,
	types.FieldCategory,
}

// Scorer scores candidates against a query
type Scorer struct {
	cfg Config
}

// New creates a scorer. Zero-valued configs fall back to DefaultConfig.
func New(cfg Config) *Scorer {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Scorer{cfg: cfg}
}

// Config returns the scorer's constants
func (s *Scorer) Config() Config {
	return s.cfg
}

// FieldMatch is the unweighted score of one field
type FieldMatch struct {
	Score float64
	Exact bool
}

// Score rates a candidate over the enabled fields. query must already be
// normalized; tokens are the query's search tokens.
func (s *Scorer) Score(c *types.CandidateItem, query string, tokens []string, fields types.FieldSet) types.ScoredResult {
	best := 0.0
	bestField := types.Field("")
	anyExact := false

	for _, f := range fieldPriority {
		if !fields.Has(f) {
			continue
		}
		m := s.ScoreField(c.FieldValue(f), query, tokens)
		if m.Exact {
			anyExact = true
		}
		weighted := m.Score * s.cfg.Weights.For(f)
		if weighted > best {
			best = weighted
			bestField = f
		}
	}

	if bestField == "" {
		bestField = fallbackField(c, fields)
	}
	if anyExact {
		best += s.cfg.ExactBonus
	}
	if best > s.cfg.MaxScore {
		best = s.cfg.MaxScore
	}

	return types.ScoredResult{
		Candidate: *c,
		Score:     best,
		MatchType: bestField.MatchType(),
	}
}

// ScoreAll scores every candidate
func (s *Scorer) ScoreAll(candidates []types.CandidateItem, query string, tokens []string, fields types.FieldSet) []types.ScoredResult {
	out := make([]types.ScoredResult, 0, len(candidates))
	for i := range candidates {
		out = append(out, s.Score(&candidates[i], query, tokens, fields))
	}
	return out
}

// ScoreField scores a single field value. The first applicable strategy
// wins. When punctuation separates the query from its tokens the joined
// tokens are scored too; multi-token queries also try token overlap. The
// larger score is kept.
func (s *Scorer) ScoreField(value, query string, tokens []string) FieldMatch {
	value = tokenizer.Normalize(value)
	if value == "" || query == "" {
		return FieldMatch{}
	}

	m := s.strategyScore(value, query)
	if m.Exact {
		return m
	}
	if joined := strings.Join(tokens, " "); joined != "" && joined != query {
		if alt := s.strategyScore(value, joined); alt.Exact || alt.Score > m.Score {
			m = alt
		}
		if m.Exact {
			return m
		}
	}
	if len(tokens) > 1 {
		if t := s.tokenScore(value, tokens); t > m.Score {
			m.Score = t
		}
	}
	return m
}

func (s *Scorer) strategyScore(value, query string) FieldMatch {
	switch {
	case value == query:
		return FieldMatch{Score: s.cfg.ExactScore, Exact: true}

	case strings.HasPrefix(value, query):
		if !s.cfg.ScalePrefix {
			return FieldMatch{Score: s.cfg.PrefixScore}
		}
		ratio := float64(utf8.RuneCountInString(query)) / float64(utf8.RuneCountInString(value))
		return FieldMatch{Score: s.cfg.SubstringScore + (s.cfg.PrefixScore-s.cfg.SubstringScore)*ratio}

	case strings.Contains(value, query):
		return FieldMatch{Score: s.cfg.SubstringScore}
	}

	vl, ql := utf8.RuneCountInString(value), utf8.RuneCountInString(query)
	if abs(vl-ql) > s.cfg.MaxEditDistance {
		return FieldMatch{}
	}
	d := Distance(value, query)
	if d > s.cfg.MaxEditDistance {
		return FieldMatch{}
	}
	return FieldMatch{Score: s.cfg.FuzzyScore * (1 - float64(d)/float64(max(vl, ql)))}
}

// tokenScore credits each token by its best match against the field's words
func (s *Scorer) tokenScore(value string, tokens []string) float64 {
	words := tokenizer.TokenizeWith(value, tokenizer.Options{MinLength: 1})
	sum := 0.0
	for _, tok := range tokens {
		credit := 0.0
		for _, w := range words {
			switch {
			case w == tok:
				credit = tokenWordExact
			case strings.HasPrefix(w, tok):
				credit = max(credit, tokenWordPrefix)
			}
			if credit == tokenWordExact {
				break
			}
		}
		if credit == 0 && strings.Contains(value, tok) {
			credit = tokenContained
		}
		sum += credit
	}
	return s.cfg.TokenScore * sum / float64(len(tokens))
}

// Distance is the Levenshtein edit distance over code points
func Distance(a, b string) int {
	return edlib.LevenshteinDistance(a, b)
}

// fallbackField picks the match type for a candidate no field scored on,
// preferring the field retrieval found it through
func fallbackField(c *types.CandidateItem, fields types.FieldSet) types.Field {
	for _, f := range fieldPriority {
		if c.Matched.Has(f) && fields.Has(f) {
			return f
		}
	}
	for _, f := range fieldPriority {
		if fields.Has(f) {
			return f
		}
	}
	return types.FieldName
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
