package budget

import (
	"fmt"
	"math"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator approximates how many tokens a piece of text consumes.
type Estimator interface {
	Estimate(text string) int
}

// DefaultCharsPerToken is the heuristic ratio of characters per token. It is
// an estimate, not a bound; texts heavy in punctuation or code run denser.
const DefaultCharsPerToken = 3.0

// Heuristic estimates tokens by dividing text length by a chars-per-token
// ratio.
type Heuristic struct {
	CharsPerToken float64
}

// NewHeuristic creates a heuristic estimator. A non-positive ratio falls
// back to DefaultCharsPerToken.
func NewHeuristic(charsPerToken float64) Heuristic {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return Heuristic{CharsPerToken: charsPerToken}
}

func (h Heuristic) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / h.CharsPerToken))
}

// Tiktoken estimates tokens with the exact encoder for a model.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken creates an exact estimator for the named model.
func NewTiktoken(model string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("loading encoding for model %s: %w", model, err)
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Estimate(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}
