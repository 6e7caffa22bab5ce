package models

import (
	"time"
)

// ============================================================================
// Intents
// ============================================================================

// Intent is the closed category of a user's question. It drives both
// retriever selection and prompt specialization.
type Intent string

const (
	IntentTaxOptimization    Intent = "tax_optimization"
	IntentSpendingAnalysis   Intent = "spending_analysis"
	IntentBudgetReview       Intent = "budget_review"
	IntentGoalProgress       Intent = "goal_progress"
	IntentSubscriptionReview Intent = "subscription_review"
	IntentCreditCardAdvice   Intent = "credit_card_advice"
	IntentIncomeAnalysis     Intent = "income_analysis"
	IntentForecastReview     Intent = "forecast_review"
	IntentComparison         Intent = "comparison"
	IntentAnomalyDetection   Intent = "anomaly_detection"
	IntentGeneralAdvice      Intent = "general_advice"
)

// ValidIntents contains all intent values.
var ValidIntents = []Intent{
	IntentTaxOptimization,
	IntentSpendingAnalysis,
	IntentBudgetReview,
	IntentGoalProgress,
	IntentSubscriptionReview,
	IntentCreditCardAdvice,
	IntentIncomeAnalysis,
	IntentForecastReview,
	IntentComparison,
	IntentAnomalyDetection,
	IntentGeneralAdvice,
}

// ============================================================================
// Query Analysis
// ============================================================================

// DateRange is a concrete, inclusive time window resolved from a query.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsZero reports whether the range is unset.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// QueryEntities holds the entities extracted from a query. Fields that could
// not be resolved are left at their zero values.
type QueryEntities struct {
	DateRange   DateRange `json:"date_range,omitempty"`
	CategoryIDs []string  `json:"category_ids,omitempty"`
	AmountMin   *float64  `json:"amount_min,omitempty"`
	AmountMax   *float64  `json:"amount_max,omitempty"`
}

// QueryAnalysis is the classified form of a free-text question.
// It is created once per turn and never mutated afterwards.
type QueryAnalysis struct {
	OriginalQuery       string        `json:"original_query"`
	NormalizedQuery     string        `json:"normalized_query"`
	Intent              Intent        `json:"intent"`
	Entities            QueryEntities `json:"entities"`
	SuggestedRetrievers []string      `json:"suggested_retrievers,omitempty"`
}

// ============================================================================
// Retrieved Data
// ============================================================================

// InsightLevel tags an insight line by severity.
type InsightLevel string

const (
	InsightInfo     InsightLevel = "info"
	InsightTip      InsightLevel = "tip"
	InsightWarning  InsightLevel = "warning"
	InsightCritical InsightLevel = "critical"
)

// Insight is a tagged observation produced by a retriever.
type Insight struct {
	Level InsightLevel `json:"level"`
	Text  string       `json:"text"`
}

// RetrievedData is one retriever's bounded, summarized slice of a data
// domain. RawRecords are dropped when the source is stubbed for budget.
type RetrievedData struct {
	Source       string             `json:"source"`
	Description  string             `json:"description"`
	RecordCount  int                `json:"record_count"`
	DateRange    DateRange          `json:"date_range,omitempty"`
	RawRecords   []map[string]any   `json:"raw_records,omitempty"`
	Aggregations map[string]float64 `json:"aggregations,omitempty"`
	Insights     []Insight          `json:"insights,omitempty"`
	Stubbed      bool               `json:"stubbed,omitempty"`
}

// stubInsightLimit is how many insights survive stubbing.
const stubInsightLimit = 3

// Stub returns a reduced copy of the data: raw records cleared, aggregations
// kept, insights capped. Used when a source must shrink to fit the budget.
func (d *RetrievedData) Stub() *RetrievedData {
	stub := &RetrievedData{
		Source:       d.Source,
		Description:  d.Description,
		RecordCount:  d.RecordCount,
		DateRange:    d.DateRange,
		Aggregations: d.Aggregations,
		Insights:     d.Insights,
		Stubbed:      true,
	}
	if len(stub.Insights) > stubInsightLimit {
		stub.Insights = stub.Insights[:stubInsightLimit]
	}
	return stub
}

// ============================================================================
// Assembled Context
// ============================================================================

// ContextSummaries holds the generated textual summaries for a turn.
type ContextSummaries struct {
	Financial       string   `json:"financial,omitempty"`
	Insights        []string `json:"insights,omitempty"`        // capped at 10
	Recommendations []string `json:"recommendations,omitempty"` // capped at 5
}

// UserContext carries locale information into the prompt.
type UserContext struct {
	Currency   string `json:"currency"`
	Locale     string `json:"locale"`
	FiscalYear int    `json:"fiscal_year"`
}

// ContextMetadata records how a context was assembled.
type ContextMetadata struct {
	RetrieversUsed   []string `json:"retrievers_used"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
	TokenEstimate    int      `json:"token_estimate"`
}

// AssembledContext is the token-bounded retrieval context for one turn.
type AssembledContext struct {
	Query        string           `json:"query"`
	Intent       Intent           `json:"intent"`
	RelevantData []*RetrievedData `json:"relevant_data"`
	TotalRecords int              `json:"total_records"`
	DateRange    DateRange        `json:"date_range,omitempty"`
	Summaries    ContextSummaries `json:"summaries"`
	UserContext  UserContext      `json:"user_context"`
	Metadata     ContextMetadata  `json:"metadata"`
}

// ============================================================================
// Agent Result
// ============================================================================

// ResultMetadata describes how an answer was produced.
type ResultMetadata struct {
	Intent           Intent   `json:"intent"`
	DataSources      []string `json:"data_sources"`
	Confidence       float64  `json:"confidence"`
	RecordsAnalyzed  int      `json:"records_analyzed"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
}

// AgentResult is the completed answer for one turn. It is persisted as an
// assistant message with its metadata.
type AgentResult struct {
	Content      string         `json:"content"`
	Metadata     ResultMetadata `json:"metadata"`
	FallbackUsed bool           `json:"fallback_used"`
}
