package retrievers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/duitwise/duitwise-engine/pkg/database"
	"github.com/duitwise/duitwise-engine/pkg/models"
)

// TransactionsRetriever summarizes the user's spending records.
type TransactionsRetriever struct {
	db     *database.DB
	logger *zap.Logger
}

// NewTransactionsRetriever creates the transactions retriever.
func NewTransactionsRetriever(db *database.DB, logger *zap.Logger) *TransactionsRetriever {
	return &TransactionsRetriever{db: db, logger: logger.Named(KeyTransactions)}
}

// Key identifies the data domain this retriever serves.
func (r *TransactionsRetriever) Key() string { return KeyTransactions }

// Retrieve returns recent transactions with spending aggregations.
func (r *TransactionsRetriever) Retrieve(ctx context.Context, userID, _ string, opts Options) (*models.RetrievedData, error) {
	query := `
		SELECT id, occurred_at, vendor, category_id, category_name, amount
		FROM transactions
		WHERE user_id = $1`
	args := []any{userID}

	if !opts.DateRange.IsZero() {
		query += fmt.Sprintf(" AND occurred_at >= $%d AND occurred_at <= $%d", len(args)+1, len(args)+2)
		args = append(args, opts.DateRange.Start, opts.DateRange.End)
	}
	if len(opts.CategoryIDs) > 0 {
		query += fmt.Sprintf(" AND category_id = ANY($%d)", len(args)+1)
		args = append(args, opts.CategoryIDs)
	}
	if opts.AmountMin != nil {
		query += fmt.Sprintf(" AND amount >= $%d", len(args)+1)
		args = append(args, *opts.AmountMin)
	}
	if opts.AmountMax != nil {
		query += fmt.Sprintf(" AND amount <= $%d", len(args)+1)
		args = append(args, *opts.AmountMax)
	}

	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d", len(args)+1)
	args = append(args, clampLimit(opts.Limit))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var (
		records       []map[string]any
		total         float64
		largest       float64
		largestVendor string
		byCategory    = map[string]float64{}
		minDate       time.Time
		maxDate       time.Time
	)

	for rows.Next() {
		var (
			id           string
			occurredAt   time.Time
			vendor       string
			categoryID   *string
			categoryName string
			amount       float64
		)
		if err := rows.Scan(&id, &occurredAt, &vendor, &categoryID, &categoryName, &amount); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}

		if opts.ExcludeSensitiveCategories && isSensitiveCategory(categoryName) {
			continue
		}
		if opts.AnonymizeVendors {
			vendor = anonymizeVendor(len(records))
		}

		records = append(records, map[string]any{
			"id":          id,
			"occurred_at": occurredAt.Format("2006-01-02"),
			"vendor":      vendor,
			"category":    categoryName,
			"amount":      amount,
		})

		total += amount
		byCategory[categoryName] += amount
		if amount > largest {
			largest = amount
			largestVendor = vendor
		}
		if minDate.IsZero() || occurredAt.Before(minDate) {
			minDate = occurredAt
		}
		if occurredAt.After(maxDate) {
			maxDate = occurredAt
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	aggs := map[string]float64{
		"total_spent":       total,
		"transaction_count": float64(len(records)),
	}
	if len(records) > 0 {
		aggs["avg_transaction"] = total / float64(len(records))
		aggs["largest_transaction"] = largest
	}

	var topCategory string
	var topAmount float64
	for name, amount := range byCategory {
		aggs["category:"+name] = amount
		if amount > topAmount {
			topAmount = amount
			topCategory = name
		}
	}

	var insights []models.Insight
	if topCategory != "" && total > 0 {
		share := topAmount / total * 100
		insights = append(insights, models.Insight{
			Level: models.InsightInfo,
			Text:  fmt.Sprintf("%s is your largest spending category at %.1f%% of the total", topCategory, share),
		})
		if share > 40 {
			insights = append(insights, models.Insight{
				Level: models.InsightWarning,
				Text:  fmt.Sprintf("Spending is concentrated: over 40%% of it goes to %s", topCategory),
			})
		}
	}
	if largest > 0 && len(records) > 1 && largest > total/float64(len(records))*5 {
		insights = append(insights, models.Insight{
			Level: models.InsightTip,
			Text:  fmt.Sprintf("One transaction at %s (%.2f) is far above your average - check it is expected", largestVendor, largest),
		})
	}

	return &models.RetrievedData{
		Source:       KeyTransactions,
		Description:  "Recent transactions with category breakdown",
		RecordCount:  len(records),
		DateRange:    models.DateRange{Start: minDate, End: maxDate},
		RawRecords:   records,
		Aggregations: aggs,
		Insights:     insights,
	}, nil
}

var _ Retriever = (*TransactionsRetriever)(nil)
