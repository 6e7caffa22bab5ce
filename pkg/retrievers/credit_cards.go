package retrievers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/duitwise/duitwise-engine/pkg/database"
	"github.com/duitwise/duitwise-engine/pkg/models"
)

// CreditCardsRetriever summarizes card balances and utilization.
type CreditCardsRetriever struct {
	db     *database.DB
	logger *zap.Logger
}

// NewCreditCardsRetriever creates the credit cards retriever.
func NewCreditCardsRetriever(db *database.DB, logger *zap.Logger) *CreditCardsRetriever {
	return &CreditCardsRetriever{db: db, logger: logger.Named(KeyCreditCards)}
}

// Key identifies the data domain this retriever serves.
func (r *CreditCardsRetriever) Key() string { return KeyCreditCards }

// Retrieve returns card balances with utilization warnings.
func (r *CreditCardsRetriever) Retrieve(ctx context.Context, userID, _ string, opts Options) (*models.RetrievedData, error) {
	query := `
		SELECT id, name, credit_limit, current_balance, statement_due_date
		FROM credit_cards
		WHERE user_id = $1 AND active = true
		ORDER BY current_balance DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, clampLimit(opts.Limit))
	if err != nil {
		return nil, fmt.Errorf("query credit cards: %w", err)
	}
	defer rows.Close()

	var (
		records      []map[string]any
		totalLimit   float64
		totalBalance float64
		insights     []models.Insight
	)
	now := time.Now()

	for rows.Next() {
		var (
			id, name             string
			creditLimit, balance float64
			dueDate              *time.Time
		)
		if err := rows.Scan(&id, &name, &creditLimit, &balance, &dueDate); err != nil {
			return nil, fmt.Errorf("scan credit card: %w", err)
		}

		utilization := 0.0
		if creditLimit > 0 {
			utilization = balance / creditLimit * 100
		}

		record := map[string]any{
			"id":          id,
			"name":        name,
			"limit":       creditLimit,
			"balance":     balance,
			"utilization": utilization,
		}
		if dueDate != nil {
			record["statement_due"] = dueDate.Format("2006-01-02")
		}
		records = append(records, record)

		totalLimit += creditLimit
		totalBalance += balance

		switch {
		case utilization >= 80:
			insights = append(insights, models.Insight{
				Level: models.InsightCritical,
				Text:  fmt.Sprintf("Card %q is at %.0f%% utilization - this hurts your credit standing", name, utilization),
			})
		case utilization >= 30:
			insights = append(insights, models.Insight{
				Level: models.InsightWarning,
				Text:  fmt.Sprintf("Card %q is above the recommended 30%% utilization (%.0f%%)", name, utilization),
			})
		}

		if dueDate != nil && dueDate.After(now) && dueDate.Sub(now) < 7*24*time.Hour && balance > 0 {
			insights = append(insights, models.Insight{
				Level: models.InsightTip,
				Text:  fmt.Sprintf("Statement for %q is due on %s", name, dueDate.Format("Jan 2")),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credit cards: %w", err)
	}

	aggs := map[string]float64{
		"card_count":    float64(len(records)),
		"total_limit":   totalLimit,
		"total_balance": totalBalance,
	}
	if totalLimit > 0 {
		aggs["overall_utilization_pct"] = totalBalance / totalLimit * 100
	}

	return &models.RetrievedData{
		Source:       KeyCreditCards,
		Description:  "Credit card balances and utilization",
		RecordCount:  len(records),
		RawRecords:   records,
		Aggregations: aggs,
		Insights:     insights,
	}, nil
}

var _ Retriever = (*CreditCardsRetriever)(nil)
