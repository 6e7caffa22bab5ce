package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/duitwise/duitwise-engine/pkg/models"
	"github.com/duitwise/duitwise-engine/pkg/retrievers"
)

// Caps applied to generated summaries.
const (
	maxContextInsights  = 10
	maxRecommendations  = 5
	maxMergedInsights   = 15
	maxFanOutConcurrent = 8
)

// Assembler fans out to the selected retrievers, merges and prioritizes
// their results, and trims them into a token-bounded context.
type Assembler struct {
	registry *retrievers.Registry
	logger   *zap.Logger
}

// NewAssembler creates a context assembler over the retriever registry.
func NewAssembler(registry *retrievers.Registry, logger *zap.Logger) *Assembler {
	return &Assembler{
		registry: registry,
		logger:   logger.Named("assembler"),
	}
}

// retrievalResult pairs one retriever invocation with its outcome.
type retrievalResult struct {
	key  string
	data *models.RetrievedData
	err  error
}

// Assemble invokes every selected retriever concurrently with identical
// options, waits for all to settle, then sorts by intent priority, builds
// summaries, and trims to the token budget. A failing retriever is logged
// and excluded; it never aborts the turn.
func (a *Assembler) Assemble(
	ctx context.Context,
	userID string,
	analysis *models.QueryAnalysis,
	selected []string,
	opts retrievers.Options,
	user models.UserContext,
) *models.AssembledContext {
	start := time.Now()

	results := a.fanOut(ctx, userID, analysis.NormalizedQuery, selected, opts)

	var data []*models.RetrievedData
	var used []string
	for _, res := range results {
		if res.err != nil {
			a.logger.Warn("retriever failed, excluding source",
				zap.String("source", res.key),
				zap.Error(res.err))
			continue
		}
		data = append(data, res.data)
		used = append(used, res.key)
	}

	// Trim order depends on the static priority table, not completion order.
	sort.SliceStable(data, func(i, j int) bool {
		return PriorityFor(analysis.Intent, data[i].Source) > PriorityFor(analysis.Intent, data[j].Source)
	})
	sort.Slice(used, func(i, j int) bool {
		return PriorityFor(analysis.Intent, used[i]) > PriorityFor(analysis.Intent, used[j])
	})

	totalRecords := 0
	for _, d := range data {
		totalRecords += d.RecordCount
	}

	assembled := &models.AssembledContext{
		Query:        analysis.OriginalQuery,
		Intent:       analysis.Intent,
		RelevantData: data,
		TotalRecords: totalRecords,
		DateRange:    analysis.Entities.DateRange,
		Summaries:    a.buildSummaries(analysis.Intent, data),
		UserContext:  user,
		Metadata: models.ContextMetadata{
			RetrieversUsed: used,
		},
	}

	a.trimToBudget(assembled)

	assembled.Metadata.ProcessingTimeMs = time.Since(start).Milliseconds()

	return assembled
}

// fanOut runs the selected retrievers concurrently under a semaphore and
// joins all results before returning.
func (a *Assembler) fanOut(ctx context.Context, userID, query string, selected []string, opts retrievers.Options) []retrievalResult {
	if len(selected) == 0 {
		return nil
	}

	resultsChan := make(chan retrievalResult, len(selected))
	sem := make(chan struct{}, maxFanOutConcurrent)

	var wg sync.WaitGroup
	for _, key := range selected {
		ret, ok := a.registry.Get(key)
		if !ok {
			resultsChan <- retrievalResult{key: key, err: fmt.Errorf("unknown retriever %q", key)}
			continue
		}

		wg.Add(1)
		go func(key string, ret retrievers.Retriever) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			data, err := ret.Retrieve(ctx, userID, query, opts)
			resultsChan <- retrievalResult{key: key, data: data, err: err}
		}(key, ret)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	var results []retrievalResult
	for res := range resultsChan {
		results = append(results, res)
	}
	return results
}

// buildSummaries renders the financial summary from the dominant source and
// turns warning/critical insights into recommendations.
func (a *Assembler) buildSummaries(intent models.Intent, data []*models.RetrievedData) models.ContextSummaries {
	summaries := models.ContextSummaries{}

	if len(data) > 0 {
		// data is priority-sorted, so the dominant source comes first.
		summaries.Financial = financialSummary(intent, data[0])
	}

	for _, d := range data {
		for _, insight := range d.Insights {
			if len(summaries.Insights) < maxContextInsights {
				summaries.Insights = append(summaries.Insights, insight.Text)
			}
			if insight.Level == models.InsightWarning || insight.Level == models.InsightCritical {
				if len(summaries.Recommendations) < maxRecommendations {
					summaries.Recommendations = append(summaries.Recommendations,
						"Consider acting on this: "+insight.Text)
				}
			}
		}
	}

	return summaries
}

// financialSummary renders a fixed-shape sentence from the dominant
// source's aggregations.
func financialSummary(intent models.Intent, d *models.RetrievedData) string {
	aggs := d.Aggregations
	switch intent {
	case models.IntentTaxOptimization:
		return fmt.Sprintf("Fiscal year %.0f: gross income %.2f, reliefs claimed %.2f, estimated tax %.2f.",
			aggs["fiscal_year"], aggs["gross_income"], aggs["reliefs_claimed"], aggs["estimated_tax"])
	case models.IntentSpendingAnalysis, models.IntentComparison, models.IntentAnomalyDetection:
		return fmt.Sprintf("You made %.0f transactions totalling %.2f (average %.2f).",
			aggs["transaction_count"], aggs["total_spent"], aggs["avg_transaction"])
	case models.IntentBudgetReview:
		return fmt.Sprintf("Across %.0f budgets you have used %.2f of %.2f (%.0f%%); %.0f are over their limit.",
			aggs["budget_count"], aggs["total_spent"], aggs["total_budget"],
			aggs["overall_utilization_pct"], aggs["over_budget_count"])
	case models.IntentGoalProgress:
		return fmt.Sprintf("Across %.0f goals you have saved %.2f of %.2f (%.0f%%).",
			aggs["goal_count"], aggs["total_saved"], aggs["total_target"], aggs["overall_progress_pct"])
	case models.IntentSubscriptionReview:
		return fmt.Sprintf("You have %.0f active subscriptions costing %.2f monthly (%.2f per year).",
			aggs["subscription_count"], aggs["monthly_total"], aggs["annual_total"])
	case models.IntentCreditCardAdvice:
		return fmt.Sprintf("Across %.0f cards your balance is %.2f of a %.2f limit (%.0f%% utilization).",
			aggs["card_count"], aggs["total_balance"], aggs["total_limit"], aggs["overall_utilization_pct"])
	case models.IntentIncomeAnalysis:
		return fmt.Sprintf("Income totals %.2f across %.0f entries from %.0f sources (about %.2f per month).",
			aggs["total_income"], aggs["entry_count"], aggs["source_count"], aggs["avg_monthly_income"])
	case models.IntentForecastReview:
		return fmt.Sprintf("Over the next %.0f months projections average %.2f spending, %.2f income and %.2f savings per month.",
			aggs["forecast_months"], aggs["avg_projected_spending"], aggs["avg_projected_income"], aggs["avg_projected_savings"])
	default:
		return fmt.Sprintf("Summarized %d records from %s.", d.RecordCount, d.Source)
	}
}

// trimToBudget greedily accumulates sources in priority order while the
// running estimate stays under the budget. The first source that would
// overflow is stubbed when at least minStubTokens remain, or dropped, and
// trimming stops there: lower-priority sources are not reconsidered even if
// they would individually fit.
func (a *Assembler) trimToBudget(assembled *models.AssembledContext) {
	var kept []*models.RetrievedData
	var used []string
	running := 0

	for _, d := range assembled.RelevantData {
		cost := EstimateDataTokens(d)
		if running+cost <= ContextBudget {
			running += cost
			kept = append(kept, d)
			used = append(used, d.Source)
			continue
		}

		remaining := ContextBudget - running
		if remaining >= minStubTokens {
			stub := d.Stub()
			stubCost := EstimateDataTokens(stub)
			if running+stubCost <= ContextBudget {
				running += stubCost
				kept = append(kept, stub)
				used = append(used, stub.Source)
				a.logger.Debug("stubbed source for budget",
					zap.String("source", d.Source),
					zap.Int("saved_tokens", cost-stubCost))
			}
		} else {
			a.logger.Debug("dropped source for budget", zap.String("source", d.Source))
		}

		// Greedy cut-off: everything below this priority is discarded.
		break
	}

	assembled.RelevantData = kept
	assembled.Metadata.RetrieversUsed = used
	assembled.Metadata.TokenEstimate = running
}

// Merge combines a previous turn's context with the next one: union of
// sources keyed by source with next winning conflicts, insights deduplicated
// and capped, total records additive, and every other field taken from next.
// Merge(nil, next) returns next unchanged.
func Merge(previous, next *models.AssembledContext) *models.AssembledContext {
	if previous == nil {
		return next
	}

	bySource := make(map[string]*models.RetrievedData, len(previous.RelevantData)+len(next.RelevantData))
	var order []string
	for _, d := range previous.RelevantData {
		if _, ok := bySource[d.Source]; !ok {
			order = append(order, d.Source)
		}
		bySource[d.Source] = d
	}
	for _, d := range next.RelevantData {
		if _, ok := bySource[d.Source]; !ok {
			order = append(order, d.Source)
		}
		bySource[d.Source] = d // next wins
	}

	merged := *next
	merged.RelevantData = make([]*models.RetrievedData, 0, len(order))
	for _, key := range order {
		merged.RelevantData = append(merged.RelevantData, bySource[key])
	}

	merged.TotalRecords = previous.TotalRecords + next.TotalRecords

	seen := make(map[string]bool)
	var insights []string
	for _, text := range append(append([]string{}, previous.Summaries.Insights...), next.Summaries.Insights...) {
		if seen[text] {
			continue
		}
		seen[text] = true
		insights = append(insights, text)
		if len(insights) == maxMergedInsights {
			break
		}
	}
	merged.Summaries.Insights = insights

	return &merged
}
