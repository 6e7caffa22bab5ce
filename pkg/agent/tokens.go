package agent

import (
	"encoding/json"

	"github.com/duitwise/duitwise-engine/pkg/models"
)

// Token budget for assembled retrieval context. The buffer is reserved for
// prompt framing so the estimate must stay under MaxContextTokens - TokenBuffer.
const (
	MaxContextTokens = 8000
	TokenBuffer      = 500

	// minStubTokens is the smallest remaining budget worth spending on a
	// stubbed source; below it the source is dropped instead.
	minStubTokens = 500
)

// ContextBudget is the usable token budget for retrieval data.
const ContextBudget = MaxContextTokens - TokenBuffer

// EstimateTokens approximates the token count of a text as one token per
// four characters, rounded up. The same heuristic is applied during
// trimming and to the final estimate, so trimming is deterministic.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// EstimateDataTokens estimates the token cost of one retrieved source by
// serializing it the way it will appear in the prompt. encoding/json sorts
// map keys, so the estimate is stable for a fixed input.
func EstimateDataTokens(data *models.RetrievedData) int {
	raw, err := json.Marshal(data)
	if err != nil {
		return 0
	}
	return EstimateTokens(string(raw))
}
