package retrievers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/duitwise/duitwise-engine/pkg/database"
	"github.com/duitwise/duitwise-engine/pkg/models"
)

// SubscriptionsRetriever summarizes recurring subscriptions and flags ones
// that look unused.
type SubscriptionsRetriever struct {
	db     *database.DB
	logger *zap.Logger
}

// NewSubscriptionsRetriever creates the subscriptions retriever.
func NewSubscriptionsRetriever(db *database.DB, logger *zap.Logger) *SubscriptionsRetriever {
	return &SubscriptionsRetriever{db: db, logger: logger.Named(KeySubscriptions)}
}

// Key identifies the data domain this retriever serves.
func (r *SubscriptionsRetriever) Key() string { return KeySubscriptions }

// Retrieve returns active subscriptions with monthly/annual cost totals.
func (r *SubscriptionsRetriever) Retrieve(ctx context.Context, userID, _ string, opts Options) (*models.RetrievedData, error) {
	query := `
		SELECT id, name, amount, billing_cycle, last_used_at
		FROM subscriptions
		WHERE user_id = $1 AND active = true
		ORDER BY amount DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, clampLimit(opts.Limit))
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var (
		records      []map[string]any
		monthlyTotal float64
		insights     []models.Insight
	)
	now := time.Now()

	for rows.Next() {
		var (
			id, name, billingCycle string
			amount                 float64
			lastUsedAt             *time.Time
		)
		if err := rows.Scan(&id, &name, &amount, &billingCycle, &lastUsedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}

		displayName := name
		if opts.AnonymizeVendors {
			displayName = anonymizeVendor(len(records))
		}

		monthly := amount
		if billingCycle == "annual" {
			monthly = amount / 12
		}
		monthlyTotal += monthly

		record := map[string]any{
			"id":            id,
			"name":          displayName,
			"amount":        amount,
			"billing_cycle": billingCycle,
			"monthly_cost":  monthly,
		}
		if lastUsedAt != nil {
			record["last_used_at"] = lastUsedAt.Format("2006-01-02")
		}
		records = append(records, record)

		if lastUsedAt != nil && now.Sub(*lastUsedAt) > 60*24*time.Hour {
			insights = append(insights, models.Insight{
				Level: models.InsightTip,
				Text:  fmt.Sprintf("Subscription %q has not been used in over two months - consider cancelling", displayName),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}

	aggs := map[string]float64{
		"subscription_count": float64(len(records)),
		"monthly_total":      monthlyTotal,
		"annual_total":       monthlyTotal * 12,
	}

	if monthlyTotal > 0 && len(records) >= 5 {
		insights = append(insights, models.Insight{
			Level: models.InsightWarning,
			Text:  fmt.Sprintf("You carry %d active subscriptions costing %.2f per month", len(records), monthlyTotal),
		})
	}

	return &models.RetrievedData{
		Source:       KeySubscriptions,
		Description:  "Active recurring subscriptions",
		RecordCount:  len(records),
		RawRecords:   records,
		Aggregations: aggs,
		Insights:     insights,
	}, nil
}

var _ Retriever = (*SubscriptionsRetriever)(nil)
