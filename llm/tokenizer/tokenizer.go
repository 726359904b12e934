package tokenizer

import "fmt"

// Tokenizer是统一的代号计数界面.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Name 返回分词器的名称.
	Name() string
}

// Names accepted by New.
const (
	NameWords    = "words"
	NameTiktoken = "tiktoken"
)

// New returns the tokenizer registered under name. An empty name selects
// the word estimator.
func New(name string) (Tokenizer, error) {
	switch name {
	case "", NameWords:
		return NewWordEstimator(), nil
	case NameTiktoken:
		return NewTiktokenTokenizer("cl100k_base"), nil
	default:
		return nil, fmt.Errorf("unknown usage estimator %q", name)
	}
}

// CountOrZero swallows errors from t, returning 0. Usage figures are
// advisory and must never fail a response.
func CountOrZero(t Tokenizer, text string) int {
	n, err := t.CountTokens(text)
	if err != nil {
		return 0
	}
	return n
}
