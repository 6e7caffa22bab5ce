// Package retrievers provides uniform adapters that each return a bounded,
// summarized slice of one financial data domain.
package retrievers

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/duitwise/duitwise-engine/pkg/database"
	"github.com/duitwise/duitwise-engine/pkg/models"
)

// Retriever keys. Every selector table and permission map uses these.
const (
	KeyTransactions  = "transactions"
	KeyBudgets       = "budgets"
	KeyGoals         = "goals"
	KeySubscriptions = "subscriptions"
	KeyCreditCards   = "credit_cards"
	KeyTax           = "tax"
	KeyIncome        = "income"
	KeyForecasts     = "forecasts"
)

// KnownKeys lists all retriever keys in registration order.
var KnownKeys = []string{
	KeyTransactions,
	KeyBudgets,
	KeyGoals,
	KeySubscriptions,
	KeyCreditCards,
	KeyTax,
	KeyIncome,
	KeyForecasts,
}

// Options are passed identically to every retriever invoked for a turn.
type Options struct {
	DateRange   models.DateRange
	Limit       int
	CategoryIDs []string
	AmountMin   *float64
	AmountMax   *float64

	// Privacy flags from the user's AI settings.
	AnonymizeVendors           bool
	ExcludeSensitiveCategories bool
}

// Retriever is the uniform adapter contract. An error return is caught by
// the assembler and treated as exclusion of the source, never as a fatal
// turn failure.
type Retriever interface {
	// Key identifies the data domain this retriever serves.
	Key() string

	// Retrieve returns a bounded, summarized slice of the domain.
	Retrieve(ctx context.Context, userID, query string, opts Options) (*models.RetrievedData, error)
}

// Registry maps retriever keys to their implementations.
type Registry struct {
	retrievers map[string]Retriever
}

// NewRegistry builds the full retriever set over the given database.
func NewRegistry(db *database.DB, logger *zap.Logger) *Registry {
	logger = logger.Named("retrievers")

	r := &Registry{retrievers: make(map[string]Retriever, len(KnownKeys))}
	r.register(NewTransactionsRetriever(db, logger))
	r.register(NewBudgetsRetriever(db, logger))
	r.register(NewGoalsRetriever(db, logger))
	r.register(NewSubscriptionsRetriever(db, logger))
	r.register(NewCreditCardsRetriever(db, logger))
	r.register(NewTaxRetriever(db, logger))
	r.register(NewIncomeRetriever(db, logger))
	r.register(NewForecastsRetriever(db, logger))
	return r
}

func (r *Registry) register(ret Retriever) {
	r.retrievers[ret.Key()] = ret
}

// Get returns the retriever for a key.
func (r *Registry) Get(key string) (Retriever, bool) {
	ret, ok := r.retrievers[key]
	return ret, ok
}

// Keys returns the registered retriever keys.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.retrievers))
	for _, k := range KnownKeys {
		if _, ok := r.retrievers[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// sensitiveCategories are excluded from retrieval when the user's privacy
// settings ask for it.
var sensitiveCategories = map[string]bool{
	"healthcare": true,
	"medical":    true,
	"charity":    true,
	"religious":  true,
	"insurance":  true,
}

// isSensitiveCategory reports whether a category name is in the sensitive set.
func isSensitiveCategory(name string) bool {
	return sensitiveCategories[strings.ToLower(name)]
}

// anonymizeVendor replaces a vendor name with a stable per-position label.
func anonymizeVendor(index int) string {
	return fmt.Sprintf("Merchant %d", index+1)
}

// clampLimit bounds a query limit to a sane positive value.
func clampLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 500 {
		return 500
	}
	return limit
}
