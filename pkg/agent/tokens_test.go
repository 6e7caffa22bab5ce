package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/duitwise/duitwise-engine/pkg/models"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("a"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 25, EstimateTokens(string(make([]byte, 100))))
}

func TestEstimateDataTokens_Deterministic(t *testing.T) {
	data := &models.RetrievedData{
		Source:      "transactions",
		RecordCount: 3,
		Aggregations: map[string]float64{
			"total_spent":       450.10,
			"transaction_count": 3,
			"avg_transaction":   150.03,
		},
	}

	first := EstimateDataTokens(data)
	assert.Positive(t, first)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, EstimateDataTokens(data))
	}
}

func TestContextBudget(t *testing.T) {
	assert.Equal(t, 7500, ContextBudget)
}
