package retrievers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/duitwise/duitwise-engine/pkg/database"
	"github.com/duitwise/duitwise-engine/pkg/models"
)

// IncomeRetriever summarizes income entries by source.
type IncomeRetriever struct {
	db     *database.DB
	logger *zap.Logger
}

// NewIncomeRetriever creates the income retriever.
func NewIncomeRetriever(db *database.DB, logger *zap.Logger) *IncomeRetriever {
	return &IncomeRetriever{db: db, logger: logger.Named(KeyIncome)}
}

// Key identifies the data domain this retriever serves.
func (r *IncomeRetriever) Key() string { return KeyIncome }

// Retrieve returns income entries with per-source totals.
func (r *IncomeRetriever) Retrieve(ctx context.Context, userID, _ string, opts Options) (*models.RetrievedData, error) {
	query := `
		SELECT id, source, amount, received_at
		FROM incomes
		WHERE user_id = $1`
	args := []any{userID}

	if !opts.DateRange.IsZero() {
		query += fmt.Sprintf(" AND received_at >= $%d AND received_at <= $%d", len(args)+1, len(args)+2)
		args = append(args, opts.DateRange.Start, opts.DateRange.End)
	}

	query += fmt.Sprintf(" ORDER BY received_at DESC LIMIT $%d", len(args)+1)
	args = append(args, clampLimit(opts.Limit))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query incomes: %w", err)
	}
	defer rows.Close()

	var (
		records  []map[string]any
		total    float64
		bySource = map[string]float64{}
		months   = map[string]bool{}
		minDate  time.Time
		maxDate  time.Time
	)

	for rows.Next() {
		var (
			id, source string
			amount     float64
			receivedAt time.Time
		)
		if err := rows.Scan(&id, &source, &amount, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}

		records = append(records, map[string]any{
			"id":          id,
			"source":      source,
			"amount":      amount,
			"received_at": receivedAt.Format("2006-01-02"),
		})

		total += amount
		bySource[source] += amount
		months[receivedAt.Format("2006-01")] = true
		if minDate.IsZero() || receivedAt.Before(minDate) {
			minDate = receivedAt
		}
		if receivedAt.After(maxDate) {
			maxDate = receivedAt
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incomes: %w", err)
	}

	aggs := map[string]float64{
		"total_income": total,
		"entry_count":  float64(len(records)),
		"source_count": float64(len(bySource)),
	}
	if len(months) > 0 {
		aggs["avg_monthly_income"] = total / float64(len(months))
	}

	var topSource string
	var topAmount float64
	for source, amount := range bySource {
		aggs["source:"+source] = amount
		if amount > topAmount {
			topAmount = amount
			topSource = source
		}
	}

	var insights []models.Insight
	if topSource != "" && total > 0 {
		share := topAmount / total * 100
		insights = append(insights, models.Insight{
			Level: models.InsightInfo,
			Text:  fmt.Sprintf("%s provides %.0f%% of your income", topSource, share),
		})
		if share > 90 && len(bySource) == 1 {
			insights = append(insights, models.Insight{
				Level: models.InsightTip,
				Text:  "All income comes from a single source - a secondary stream would reduce risk",
			})
		}
	}

	return &models.RetrievedData{
		Source:       KeyIncome,
		Description:  "Income entries by source",
		RecordCount:  len(records),
		DateRange:    models.DateRange{Start: minDate, End: maxDate},
		RawRecords:   records,
		Aggregations: aggs,
		Insights:     insights,
	}, nil
}

var _ Retriever = (*IncomeRetriever)(nil)
