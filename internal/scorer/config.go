package scorer

import (
	"errors"
	"fmt"

	"github.com/dshills/catalogsearch/pkg/types"
)

// Weights multiply each field's raw score
type Weights struct {
	Name     float64 `yaml:"name"`
	SKU      float64 `yaml:"sku"`
	Barcode  float64 `yaml:"barcode"`
	Category float64 `yaml:"category"`
}

// For returns the weight of a field
func (w Weights) For(f types.Field) float64 {
	switch f {
	case types.FieldName:
		return w.Name
	case types.FieldSKU:
		return w.SKU
	case types.FieldBarcode:
		return w.Barcode
	case types.FieldCategory:
		return w.Category
	}
	return 0
}

// Config holds the scoring constants
type Config struct {
	Weights Weights `yaml:"weights"`

	ExactScore     float64 `yaml:"exact"`
	PrefixScore    float64 `yaml:"prefix"`
	SubstringScore float64 `yaml:"substring"`
	FuzzyScore     float64 `yaml:"fuzzy"`
	TokenScore     float64 `yaml:"token"`

	MaxEditDistance int     `yaml:"max_edit_distance"`
	ExactBonus      float64 `yaml:"exact_bonus"`
	MaxScore        float64 `yaml:"max_score"`

	// ScalePrefix moves prefix scores toward PrefixScore as the query covers
	// more of the field
	ScalePrefix bool `yaml:"scale_prefix"`
}

// DefaultConfig returns the tuned production constants
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Name:     1.0,
			SKU:      1.4,
			Barcode:  1.75,
			Category: 0.75,
		},
		ExactScore:      100,
		PrefixScore:     85,
		SubstringScore:  65,
		FuzzyScore:      50,
		TokenScore:      60,
		MaxEditDistance: 2,
		ExactBonus:      5,
		MaxScore:        150,
		ScalePrefix:     true,
	}
}

// Validate checks that the strategy scores keep their precedence
func (c Config) Validate() error {
	if c.ExactScore < c.PrefixScore || c.PrefixScore < c.SubstringScore || c.SubstringScore < c.FuzzyScore {
		return fmt.Errorf("scoring: base scores must satisfy exact >= prefix >= substring >= fuzzy (got %g, %g, %g, %g)",
			c.ExactScore, c.PrefixScore, c.SubstringScore, c.FuzzyScore)
	}
	if c.FuzzyScore < 0 || c.TokenScore < 0 || c.ExactBonus < 0 {
		return errors.New("scoring: scores and bonus must be non-negative")
	}
	if c.MaxEditDistance < 0 {
		return errors.New("scoring: max_edit_distance must be non-negative")
	}
	if c.MaxScore <= 0 {
		return errors.New("scoring: max_score must be positive")
	}
	for _, f := range types.AllFields {
		if c.Weights.For(f) < 0 {
			return fmt.Errorf("scoring: weight for %s must be non-negative", f)
		}
	}
	return nil
}
