// Package llm synthesizes answers from assembled prompts.
package llm

import (
	"context"
	"errors"
)

// ErrSynthesisFailed reports a language model that could not produce an
// answer. Callers surface it to the client rather than degrading silently.
var ErrSynthesisFailed = errors.New("answer synthesis failed")

// Synthesizer produces an answer for a fully assembled prompt.
type Synthesizer interface {
	Synthesize(ctx context.Context, prompt string) (string, error)
}
