package retrievers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/duitwise/duitwise-engine/pkg/database"
	"github.com/duitwise/duitwise-engine/pkg/models"
)

// TaxRetriever summarizes the user's tax profile for the current fiscal
// year: declared income, claimed reliefs, and the externally computed
// estimate. The bracket arithmetic itself lives outside this system.
type TaxRetriever struct {
	db     *database.DB
	logger *zap.Logger
}

// NewTaxRetriever creates the tax retriever.
func NewTaxRetriever(db *database.DB, logger *zap.Logger) *TaxRetriever {
	return &TaxRetriever{db: db, logger: logger.Named(KeyTax)}
}

// Key identifies the data domain this retriever serves.
func (r *TaxRetriever) Key() string { return KeyTax }

// reliefCeiling is the typical combined relief ceiling used only to phrase
// the unclaimed-relief tip; the authoritative numbers live in the tax
// service.
const reliefCeiling = 9000

// Retrieve returns the fiscal-year tax profile with relief claims.
func (r *TaxRetriever) Retrieve(ctx context.Context, userID, _ string, _ Options) (*models.RetrievedData, error) {
	fiscalYear := time.Now().Year()

	var (
		grossIncome    float64
		reliefsClaimed float64
		estimatedTax   float64
	)
	err := r.db.QueryRow(ctx, `
		SELECT gross_income, total_reliefs_claimed, estimated_tax
		FROM tax_profiles
		WHERE user_id = $1 AND fiscal_year = $2`,
		userID, fiscalYear,
	).Scan(&grossIncome, &reliefsClaimed, &estimatedTax)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.RetrievedData{
			Source:      KeyTax,
			Description: fmt.Sprintf("No tax profile for fiscal year %d", fiscalYear),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query tax profile: %w", err)
	}

	reliefRows, err := r.db.Query(ctx, `
		SELECT relief_type, amount
		FROM tax_reliefs
		WHERE user_id = $1 AND fiscal_year = $2
		ORDER BY amount DESC`,
		userID, fiscalYear)
	if err != nil {
		return nil, fmt.Errorf("query tax reliefs: %w", err)
	}
	defer reliefRows.Close()

	var records []map[string]any
	for reliefRows.Next() {
		var reliefType string
		var amount float64
		if err := reliefRows.Scan(&reliefType, &amount); err != nil {
			return nil, fmt.Errorf("scan tax relief: %w", err)
		}
		records = append(records, map[string]any{
			"relief_type": reliefType,
			"amount":      amount,
		})
	}
	if err := reliefRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tax reliefs: %w", err)
	}

	aggs := map[string]float64{
		"fiscal_year":     float64(fiscalYear),
		"gross_income":    grossIncome,
		"reliefs_claimed": reliefsClaimed,
		"estimated_tax":   estimatedTax,
	}
	if grossIncome > 0 {
		aggs["effective_rate_pct"] = estimatedTax / grossIncome * 100
	}

	var insights []models.Insight
	if reliefsClaimed < reliefCeiling {
		insights = append(insights, models.Insight{
			Level: models.InsightTip,
			Text:  fmt.Sprintf("You have claimed %.0f in reliefs; common reliefs allow up to %.0f - review what you qualify for", reliefsClaimed, float64(reliefCeiling)),
		})
	}
	if estimatedTax > 0 {
		insights = append(insights, models.Insight{
			Level: models.InsightInfo,
			Text:  fmt.Sprintf("Estimated tax for %d is %.2f at an effective rate of %.1f%%", fiscalYear, estimatedTax, aggs["effective_rate_pct"]),
		})
	}

	return &models.RetrievedData{
		Source:       KeyTax,
		Description:  fmt.Sprintf("Tax profile for fiscal year %d", fiscalYear),
		RecordCount:  len(records),
		RawRecords:   records,
		Aggregations: aggs,
		Insights:     insights,
	}, nil
}

var _ Retriever = (*TaxRetriever)(nil)
