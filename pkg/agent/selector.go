package agent

import (
	"sort"

	"github.com/duitwise/duitwise-engine/pkg/models"
	"github.com/duitwise/duitwise-engine/pkg/retrievers"
)

// maxRetrieversPerTurn caps how many retrievers one turn may invoke.
const maxRetrieversPerTurn = 5

// intentPriority maps each intent to retriever weights. Selection appends
// retrievers in descending weight after the analyzer's suggestions, and the
// assembler sorts settled results by the same table.
var intentPriority = map[models.Intent]map[string]int{
	models.IntentSpendingAnalysis: {
		retrievers.KeyTransactions:  10,
		retrievers.KeyBudgets:       8,
		retrievers.KeyForecasts:     6,
		retrievers.KeySubscriptions: 5,
		retrievers.KeyCreditCards:   4,
	},
	models.IntentTaxOptimization: {
		retrievers.KeyTax:          10,
		retrievers.KeyTransactions: 8,
		retrievers.KeyIncome:       7,
		retrievers.KeyBudgets:      3,
		retrievers.KeyGoals:        2,
	},
	models.IntentBudgetReview: {
		retrievers.KeyBudgets:       10,
		retrievers.KeyTransactions:  8,
		retrievers.KeyForecasts:     5,
		retrievers.KeyGoals:         3,
		retrievers.KeySubscriptions: 2,
	},
	models.IntentGoalProgress: {
		retrievers.KeyGoals:        10,
		retrievers.KeyBudgets:      6,
		retrievers.KeyIncome:       5,
		retrievers.KeyForecasts:    4,
		retrievers.KeyTransactions: 3,
	},
	models.IntentSubscriptionReview: {
		retrievers.KeySubscriptions: 10,
		retrievers.KeyTransactions:  7,
		retrievers.KeyBudgets:       4,
		retrievers.KeyForecasts:     3,
		retrievers.KeyCreditCards:   2,
	},
	models.IntentCreditCardAdvice: {
		retrievers.KeyCreditCards:   10,
		retrievers.KeyTransactions:  7,
		retrievers.KeyBudgets:       4,
		retrievers.KeySubscriptions: 3,
		retrievers.KeyIncome:        2,
	},
	models.IntentIncomeAnalysis: {
		retrievers.KeyIncome:       10,
		retrievers.KeyTransactions: 6,
		retrievers.KeyTax:          5,
		retrievers.KeyForecasts:    4,
		retrievers.KeyGoals:        2,
	},
	models.IntentForecastReview: {
		retrievers.KeyForecasts:    10,
		retrievers.KeyTransactions: 6,
		retrievers.KeyIncome:       5,
		retrievers.KeyBudgets:      4,
		retrievers.KeyGoals:        3,
	},
	models.IntentComparison: {
		retrievers.KeyTransactions:  10,
		retrievers.KeyBudgets:       7,
		retrievers.KeyIncome:        6,
		retrievers.KeyForecasts:     4,
		retrievers.KeySubscriptions: 3,
	},
	models.IntentAnomalyDetection: {
		retrievers.KeyTransactions:  10,
		retrievers.KeySubscriptions: 6,
		retrievers.KeyCreditCards:   5,
		retrievers.KeyBudgets:       4,
		retrievers.KeyIncome:        3,
	},
	models.IntentGeneralAdvice: {
		retrievers.KeyTransactions: 8,
		retrievers.KeyBudgets:      7,
		retrievers.KeyGoals:        6,
		retrievers.KeyIncome:       5,
		retrievers.KeyForecasts:    4,
	},
}

// PriorityFor returns the weight of a retriever for an intent; unknown
// pairs weigh zero.
func PriorityFor(intent models.Intent, key string) int {
	table, ok := intentPriority[intent]
	if !ok {
		table = intentPriority[models.IntentGeneralAdvice]
	}
	return table[key]
}

// Permissions maps retriever keys to access flags. Only an explicit false
// blocks a retriever.
type Permissions map[string]bool

func (p Permissions) allows(key string) bool {
	if p == nil {
		return true
	}
	allowed, ok := p[key]
	if !ok {
		return true
	}
	return allowed
}

// SelectRetrievers produces the ordered, capped retriever list for a turn:
// the analyzer's suggestions first, then the intent table in descending
// priority (key order breaks ties so selection is deterministic), filtered
// by permissions and capped at maxRetrieversPerTurn.
func SelectRetrievers(analysis *models.QueryAnalysis, perms Permissions) []string {
	table, ok := intentPriority[analysis.Intent]
	if !ok {
		table = intentPriority[models.IntentGeneralAdvice]
	}

	seen := make(map[string]bool)
	var ordered []string

	for _, key := range analysis.SuggestedRetrievers {
		if seen[key] || !isKnownRetriever(key) {
			continue
		}
		seen[key] = true
		ordered = append(ordered, key)
	}

	remaining := make([]string, 0, len(table))
	for key := range table {
		if !seen[key] {
			remaining = append(remaining, key)
		}
	}
	sort.Slice(remaining, func(i, j int) bool {
		if table[remaining[i]] != table[remaining[j]] {
			return table[remaining[i]] > table[remaining[j]]
		}
		return remaining[i] < remaining[j]
	})
	ordered = append(ordered, remaining...)

	var selected []string
	for _, key := range ordered {
		if !perms.allows(key) {
			continue
		}
		selected = append(selected, key)
		if len(selected) == maxRetrieversPerTurn {
			break
		}
	}

	return selected
}

// CalculateLimit returns how many records each retriever may fetch when n
// retrievers run: floor(100 / max(1, n/2)). Fewer retrievers get deeper
// slices of their domain.
func CalculateLimit(retrieverCount int) int {
	divisor := retrieverCount / 2
	if divisor < 1 {
		divisor = 1
	}
	return 100 / divisor
}

func isKnownRetriever(key string) bool {
	for _, k := range retrievers.KnownKeys {
		if k == key {
			return true
		}
	}
	return false
}
