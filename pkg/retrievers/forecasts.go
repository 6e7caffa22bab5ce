package retrievers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/duitwise/duitwise-engine/pkg/database"
	"github.com/duitwise/duitwise-engine/pkg/models"
)

// ForecastsRetriever summarizes projected spending, income and savings for
// upcoming months. Projections are produced by the batch forecasting job;
// this retriever only reads them.
type ForecastsRetriever struct {
	db     *database.DB
	logger *zap.Logger
}

// NewForecastsRetriever creates the forecasts retriever.
func NewForecastsRetriever(db *database.DB, logger *zap.Logger) *ForecastsRetriever {
	return &ForecastsRetriever{db: db, logger: logger.Named(KeyForecasts)}
}

// Key identifies the data domain this retriever serves.
func (r *ForecastsRetriever) Key() string { return KeyForecasts }

// Retrieve returns upcoming month projections.
func (r *ForecastsRetriever) Retrieve(ctx context.Context, userID, _ string, opts Options) (*models.RetrievedData, error) {
	query := `
		SELECT month, projected_spending, projected_income, projected_savings
		FROM forecasts
		WHERE user_id = $1 AND month >= $2
		ORDER BY month ASC
		LIMIT $3`

	currentMonth := time.Now().Format("2006-01")
	rows, err := r.db.Query(ctx, query, userID, currentMonth, clampLimit(opts.Limit))
	if err != nil {
		return nil, fmt.Errorf("query forecasts: %w", err)
	}
	defer rows.Close()

	var (
		records       []map[string]any
		totalSpending float64
		totalIncome   float64
		totalSavings  float64
		insights      []models.Insight
	)

	for rows.Next() {
		var (
			month                     string
			spending, income, savings float64
		)
		if err := rows.Scan(&month, &spending, &income, &savings); err != nil {
			return nil, fmt.Errorf("scan forecast: %w", err)
		}

		records = append(records, map[string]any{
			"month":              month,
			"projected_spending": spending,
			"projected_income":   income,
			"projected_savings":  savings,
		})

		totalSpending += spending
		totalIncome += income
		totalSavings += savings

		if savings < 0 {
			insights = append(insights, models.Insight{
				Level: models.InsightWarning,
				Text:  fmt.Sprintf("Projection for %s shows spending exceeding income by %.2f", month, -savings),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forecasts: %w", err)
	}

	aggs := map[string]float64{
		"forecast_months": float64(len(records)),
	}
	if len(records) > 0 {
		n := float64(len(records))
		aggs["avg_projected_spending"] = totalSpending / n
		aggs["avg_projected_income"] = totalIncome / n
		aggs["avg_projected_savings"] = totalSavings / n
	}

	if len(records) > 0 && totalSavings > 0 {
		insights = append(insights, models.Insight{
			Level: models.InsightInfo,
			Text:  fmt.Sprintf("Projected savings over the next %d months total %.2f", len(records), totalSavings),
		})
	}

	return &models.RetrievedData{
		Source:       KeyForecasts,
		Description:  "Projected spending, income and savings",
		RecordCount:  len(records),
		RawRecords:   records,
		Aggregations: aggs,
		Insights:     insights,
	}, nil
}

var _ Retriever = (*ForecastsRetriever)(nil)
