package retrievers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/duitwise/duitwise-engine/pkg/database"
	"github.com/duitwise/duitwise-engine/pkg/models"
)

// BudgetsRetriever summarizes the user's budget envelopes and how far each
// has been consumed in the current period.
type BudgetsRetriever struct {
	db     *database.DB
	logger *zap.Logger
}

// NewBudgetsRetriever creates the budgets retriever.
func NewBudgetsRetriever(db *database.DB, logger *zap.Logger) *BudgetsRetriever {
	return &BudgetsRetriever{db: db, logger: logger.Named(KeyBudgets)}
}

// Key identifies the data domain this retriever serves.
func (r *BudgetsRetriever) Key() string { return KeyBudgets }

// Retrieve returns budget utilization with over-budget warnings.
func (r *BudgetsRetriever) Retrieve(ctx context.Context, userID, _ string, opts Options) (*models.RetrievedData, error) {
	query := `
		SELECT id, name, category_name, limit_amount, spent_amount, period
		FROM budgets
		WHERE user_id = $1 AND active = true
		ORDER BY spent_amount / NULLIF(limit_amount, 0) DESC NULLS LAST
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, clampLimit(opts.Limit))
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var (
		records    []map[string]any
		totalLimit float64
		totalSpent float64
		overCount  int
		nearCount  int
		insights   []models.Insight
	)

	for rows.Next() {
		var (
			id, name, categoryName, period string
			limitAmount, spentAmount       float64
		)
		if err := rows.Scan(&id, &name, &categoryName, &limitAmount, &spentAmount, &period); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}

		if opts.ExcludeSensitiveCategories && isSensitiveCategory(categoryName) {
			continue
		}

		utilization := 0.0
		if limitAmount > 0 {
			utilization = spentAmount / limitAmount * 100
		}

		records = append(records, map[string]any{
			"id":          id,
			"name":        name,
			"category":    categoryName,
			"limit":       limitAmount,
			"spent":       spentAmount,
			"period":      period,
			"utilization": utilization,
		})

		totalLimit += limitAmount
		totalSpent += spentAmount

		switch {
		case utilization >= 100:
			overCount++
			insights = append(insights, models.Insight{
				Level: models.InsightCritical,
				Text:  fmt.Sprintf("Budget %q is over its limit (%.0f%% used)", name, utilization),
			})
		case utilization >= 90:
			nearCount++
			insights = append(insights, models.Insight{
				Level: models.InsightWarning,
				Text:  fmt.Sprintf("Budget %q is nearly exhausted at %.0f%%", name, utilization),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}

	aggs := map[string]float64{
		"budget_count":      float64(len(records)),
		"total_budget":      totalLimit,
		"total_spent":       totalSpent,
		"over_budget_count": float64(overCount),
	}
	if totalLimit > 0 {
		aggs["overall_utilization_pct"] = totalSpent / totalLimit * 100
	}

	if overCount == 0 && nearCount == 0 && len(records) > 0 {
		insights = append(insights, models.Insight{
			Level: models.InsightInfo,
			Text:  "All budgets are within their limits",
		})
	}

	return &models.RetrievedData{
		Source:       KeyBudgets,
		Description:  "Budget limits and current utilization",
		RecordCount:  len(records),
		RawRecords:   records,
		Aggregations: aggs,
		Insights:     insights,
	}, nil
}

var _ Retriever = (*BudgetsRetriever)(nil)
