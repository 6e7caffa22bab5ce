package agent

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/duitwise/duitwise-engine/pkg/models"
	"github.com/duitwise/duitwise-engine/pkg/retrievers"
)

// Analyzer classifies a free-text question into an intent and extracts
// entities. It never fails: unmatched input falls back to general_advice
// and unresolvable entities are simply omitted.
type Analyzer struct {
	logger *zap.Logger

	// now is overridable in tests so date-phrase resolution is stable.
	now func() time.Time
}

// NewAnalyzer creates a query analyzer.
func NewAnalyzer(logger *zap.Logger) *Analyzer {
	return &Analyzer{
		logger: logger.Named("analyzer"),
		now:    time.Now,
	}
}

// intentKeywords maps keyword groups to intents. Order matters: the first
// matching group wins, so the more specific intents come first.
var intentKeywords = []struct {
	intent   models.Intent
	keywords []string
}{
	{models.IntentTaxOptimization, []string{"tax", "relief", "deduction", "lhdn", "fiscal"}},
	{models.IntentSubscriptionReview, []string{"subscription", "recurring", "streaming", "membership"}},
	{models.IntentCreditCardAdvice, []string{"credit card", "card balance", "utilization", "statement"}},
	{models.IntentGoalProgress, []string{"goal", "saving for", "target", "save up"}},
	{models.IntentBudgetReview, []string{"budget", "limit", "allocat", "envelope"}},
	{models.IntentIncomeAnalysis, []string{"income", "salary", "earn", "wage", "paycheck"}},
	{models.IntentForecastReview, []string{"forecast", "project", "predict", "next month", "upcoming"}},
	{models.IntentAnomalyDetection, []string{"unusual", "anomal", "strange", "suspicious", "fraud", "weird"}},
	{models.IntentComparison, []string{"compare", "versus", " vs ", "difference between", "more than last"}},
	{models.IntentSpendingAnalysis, []string{"spend", "spent", "expense", "bought", "purchase", "transaction", "cost"}},
}

// retrieverHints maps keyword groups to retriever suggestions that ride
// along with the intent.
var retrieverHints = []struct {
	key      string
	keywords []string
}{
	{retrievers.KeyTransactions, []string{"spend", "spent", "transaction", "purchase", "bought"}},
	{retrievers.KeyBudgets, []string{"budget", "limit"}},
	{retrievers.KeyGoals, []string{"goal", "target"}},
	{retrievers.KeySubscriptions, []string{"subscription", "recurring"}},
	{retrievers.KeyCreditCards, []string{"credit card", "card"}},
	{retrievers.KeyTax, []string{"tax", "relief"}},
	{retrievers.KeyIncome, []string{"income", "salary", "earn"}},
	{retrievers.KeyForecasts, []string{"forecast", "project", "predict"}},
}

var (
	amountPattern  = regexp.MustCompile(`(over|above|more than|under|below|less than)\s*(?:rm\s*)?([\d,]+(?:\.\d+)?)`)
	betweenPattern = regexp.MustCompile(`between\s*(?:rm\s*)?([\d,]+(?:\.\d+)?)\s*and\s*(?:rm\s*)?([\d,]+(?:\.\d+)?)`)
	pastNPattern   = regexp.MustCompile(`(?:past|last)\s+(\d+)\s+(day|week|month|year)s?`)
)

// followUpMarkers mark short referential follow-ups that inherit the prior
// turn's subject.
var followUpMarkers = []string{"what about", "how about", "and ", "them", "those", "that one", "it?"}

// Analyze classifies the message and extracts entities. History is used only
// to disambiguate short follow-up questions; categories are the user's own
// category vocabulary.
func (a *Analyzer) Analyze(message string, history []models.Message, categories []models.Category) *models.QueryAnalysis {
	normalized := strings.ToLower(strings.TrimSpace(message))

	intent := a.classify(normalized)

	// Short referential follow-ups inherit the subject of the previous
	// user turn when classification found nothing specific.
	if intent == models.IntentGeneralAdvice && a.looksLikeFollowUp(normalized) {
		if prev := lastUserMessage(history); prev != "" {
			intent = a.classify(strings.ToLower(prev))
		}
	}

	analysis := &models.QueryAnalysis{
		OriginalQuery:       message,
		NormalizedQuery:     normalized,
		Intent:              intent,
		Entities:            a.extractEntities(normalized, categories),
		SuggestedRetrievers: a.suggestRetrievers(normalized),
	}

	a.logger.Debug("query analyzed",
		zap.String("intent", string(intent)),
		zap.Strings("suggested", analysis.SuggestedRetrievers))

	return analysis
}

func (a *Analyzer) classify(normalized string) models.Intent {
	for _, group := range intentKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(normalized, kw) {
				return group.intent
			}
		}
	}
	return models.IntentGeneralAdvice
}

func (a *Analyzer) looksLikeFollowUp(normalized string) bool {
	if len(strings.Fields(normalized)) > 6 {
		return false
	}
	for _, marker := range followUpMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

func (a *Analyzer) suggestRetrievers(normalized string) []string {
	var suggested []string
	seen := make(map[string]bool)
	for _, hint := range retrieverHints {
		for _, kw := range hint.keywords {
			if strings.Contains(normalized, kw) && !seen[hint.key] {
				seen[hint.key] = true
				suggested = append(suggested, hint.key)
				break
			}
		}
	}
	return suggested
}

func (a *Analyzer) extractEntities(normalized string, categories []models.Category) models.QueryEntities {
	entities := models.QueryEntities{
		DateRange: a.resolveDateRange(normalized),
	}

	for _, cat := range categories {
		if cat.Name != "" && strings.Contains(normalized, strings.ToLower(cat.Name)) {
			entities.CategoryIDs = append(entities.CategoryIDs, cat.ID)
		}
	}

	if m := betweenPattern.FindStringSubmatch(normalized); m != nil {
		if low, ok := parseAmount(m[1]); ok {
			if high, ok := parseAmount(m[2]); ok {
				entities.AmountMin = &low
				entities.AmountMax = &high
			}
		}
	} else if m := amountPattern.FindStringSubmatch(normalized); m != nil {
		if amount, ok := parseAmount(m[2]); ok {
			switch m[1] {
			case "over", "above", "more than":
				entities.AmountMin = &amount
			default:
				entities.AmountMax = &amount
			}
		}
	}

	return entities
}

// resolveDateRange turns relative date phrases into concrete ranges. An
// unrecognized phrase leaves the range unset.
func (a *Analyzer) resolveDateRange(normalized string) models.DateRange {
	now := a.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch {
	case strings.Contains(normalized, "today"):
		return models.DateRange{Start: today, End: now}
	case strings.Contains(normalized, "yesterday"):
		return models.DateRange{Start: today.AddDate(0, 0, -1), End: today}
	case strings.Contains(normalized, "this week"):
		weekday := int(today.Weekday())
		return models.DateRange{Start: today.AddDate(0, 0, -weekday), End: now}
	case strings.Contains(normalized, "last month"):
		firstOfThis := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return models.DateRange{Start: firstOfThis.AddDate(0, -1, 0), End: firstOfThis.Add(-time.Second)}
	case strings.Contains(normalized, "this month"):
		return models.DateRange{
			Start: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()),
			End:   now,
		}
	case strings.Contains(normalized, "last year"):
		return models.DateRange{
			Start: time.Date(now.Year()-1, 1, 1, 0, 0, 0, 0, now.Location()),
			End:   time.Date(now.Year()-1, 12, 31, 23, 59, 59, 0, now.Location()),
		}
	case strings.Contains(normalized, "this year"):
		return models.DateRange{
			Start: time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()),
			End:   now,
		}
	}

	if m := pastNPattern.FindStringSubmatch(normalized); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			var start time.Time
			switch m[2] {
			case "day":
				start = today.AddDate(0, 0, -n)
			case "week":
				start = today.AddDate(0, 0, -n*7)
			case "month":
				start = today.AddDate(0, -n, 0)
			case "year":
				start = today.AddDate(-n, 0, 0)
			}
			return models.DateRange{Start: start, End: now}
		}
	}

	return models.DateRange{}
}

func parseAmount(raw string) (float64, bool) {
	cleaned := strings.ReplaceAll(raw, ",", "")
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || amount < 0 {
		return 0, false
	}
	return amount, true
}

func lastUserMessage(history []models.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.ChatRoleUser {
			return history[i].Content
		}
	}
	return ""
}
