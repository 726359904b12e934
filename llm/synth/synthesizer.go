// Package synth turns a finished CLI run into a vendor-shaped response.
package synth

import (
	"strings"

	"github.com/google/uuid"

	"github.com/BaSui01/localroute/llm"
	"github.com/BaSui01/localroute/llm/cli"
	"github.com/BaSui01/localroute/llm/tokenizer"
	"github.com/BaSui01/localroute/llm/transcript"
)

// Synthesizer builds envelopes for the local route. Safe for concurrent use.
type Synthesizer struct {
	tokenizer tokenizer.Tokenizer
	newID     func() string
}

// New creates a Synthesizer. A nil tokenizer selects the word estimator.
func New(tok tokenizer.Tokenizer) *Synthesizer {
	if tok == nil {
		tok = tokenizer.NewWordEstimator()
	}
	return &Synthesizer{tokenizer: tok, newID: NewMessageID}
}

// NewMessageID returns "msg_" followed by 24 random hex characters.
func NewMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// NewCompletionID returns a legacy completion id, "compl_" plus 24 hex
// characters.
func NewCompletionID() string {
	return "compl_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// Synthesize wraps the trimmed stdout of res as a single text block.
// The envelope's model echoes requestedModel; CLIModel records the alias the
// CLI was asked for. Usage is estimated and flagged as such.
func (s *Synthesizer) Synthesize(res *cli.Result, t transcript.Transcript, requestedModel string, target llm.Target) *llm.Envelope {
	text := strings.TrimRight(res.Stdout, " \t\r\n")

	return &llm.Envelope{
		ID:    s.newID(),
		Type:  llm.EnvelopeTypeMessage,
		Role:  llm.RoleAssistant,
		Model: requestedModel,
		Content: []llm.ContentBlock{
			{Type: llm.ContentTypeText, Text: text},
		},
		StopReason: llm.StopReasonEndTurn,
		Usage: llm.Usage{
			InputTokens:  tokenizer.CountOrZero(s.tokenizer, t.String()),
			OutputTokens: tokenizer.CountOrZero(s.tokenizer, text),
			Estimated:    true,
		},
		CLIModel: cli.ResolveModel(target.Family, requestedModel),
	}
}
