package tokenizer

import (
	"math"
	"strings"
)

// TokensPerWord is the fixed word-to-token multiplier of WordEstimator.
// English prose averages about 0.75 words per BPE token, i.e. 4/3 tokens
// per word.
const TokensPerWord = 4.0 / 3.0

// WordEstimator approximates token counts from whitespace-delimited words.
type WordEstimator struct {
	multiplier float64
}

// NewWordEstimator creates an estimator using TokensPerWord.
func NewWordEstimator() *WordEstimator {
	return &WordEstimator{multiplier: TokensPerWord}
}

// WithMultiplier overrides the tokens-per-word ratio.
func (e *WordEstimator) WithMultiplier(m float64) *WordEstimator {
	if m > 0 {
		e.multiplier = m
	}
	return e
}

// CountTokens returns ceil(words * multiplier); empty text counts 0.
func (e *WordEstimator) CountTokens(text string) (int, error) {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0, nil
	}
	// epsilon absorbs float error so exact multiples do not round up
	return int(math.Ceil(float64(words)*e.multiplier - 1e-9)), nil
}

func (e *WordEstimator) Name() string {
	return NameWords
}
