package retrievers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/duitwise/duitwise-engine/pkg/database"
	"github.com/duitwise/duitwise-engine/pkg/models"
)

// GoalsRetriever summarizes savings goals and their progress.
type GoalsRetriever struct {
	db     *database.DB
	logger *zap.Logger
}

// NewGoalsRetriever creates the goals retriever.
func NewGoalsRetriever(db *database.DB, logger *zap.Logger) *GoalsRetriever {
	return &GoalsRetriever{db: db, logger: logger.Named(KeyGoals)}
}

// Key identifies the data domain this retriever serves.
func (r *GoalsRetriever) Key() string { return KeyGoals }

// Retrieve returns goal progress with behind-schedule warnings.
func (r *GoalsRetriever) Retrieve(ctx context.Context, userID, _ string, opts Options) (*models.RetrievedData, error) {
	query := `
		SELECT id, name, target_amount, saved_amount, target_date, created_at
		FROM goals
		WHERE user_id = $1 AND achieved_at IS NULL
		ORDER BY target_date ASC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, clampLimit(opts.Limit))
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	defer rows.Close()

	var (
		records     []map[string]any
		totalTarget float64
		totalSaved  float64
		insights    []models.Insight
	)
	now := time.Now()

	for rows.Next() {
		var (
			id, name                  string
			targetAmount, savedAmount float64
			targetDate, createdAt     time.Time
		)
		if err := rows.Scan(&id, &name, &targetAmount, &savedAmount, &targetDate, &createdAt); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}

		progress := 0.0
		if targetAmount > 0 {
			progress = savedAmount / targetAmount * 100
		}

		records = append(records, map[string]any{
			"id":           id,
			"name":         name,
			"target":       targetAmount,
			"saved":        savedAmount,
			"target_date":  targetDate.Format("2006-01-02"),
			"progress_pct": progress,
		})

		totalTarget += targetAmount
		totalSaved += savedAmount

		// Compare achieved progress against elapsed share of the goal window.
		if targetDate.After(createdAt) && targetDate.After(now) {
			elapsed := now.Sub(createdAt).Hours() / targetDate.Sub(createdAt).Hours() * 100
			if elapsed-progress > 20 {
				insights = append(insights, models.Insight{
					Level: models.InsightWarning,
					Text:  fmt.Sprintf("Goal %q is behind schedule: %.0f%% saved with %.0f%% of the time gone", name, progress, elapsed),
				})
			}
		}
		if progress >= 90 {
			insights = append(insights, models.Insight{
				Level: models.InsightTip,
				Text:  fmt.Sprintf("Goal %q is nearly complete at %.0f%% - a final push would finish it", name, progress),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goals: %w", err)
	}

	aggs := map[string]float64{
		"goal_count":   float64(len(records)),
		"total_target": totalTarget,
		"total_saved":  totalSaved,
	}
	if totalTarget > 0 {
		aggs["overall_progress_pct"] = totalSaved / totalTarget * 100
	}

	return &models.RetrievedData{
		Source:       KeyGoals,
		Description:  "Savings goals and progress",
		RecordCount:  len(records),
		RawRecords:   records,
		Aggregations: aggs,
		Insights:     insights,
	}, nil
}

var _ Retriever = (*GoalsRetriever)(nil)
