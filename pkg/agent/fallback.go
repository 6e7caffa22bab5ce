package agent

import (
	"fmt"
	"strings"

	"github.com/duitwise/duitwise-engine/pkg/models"
)

// FallbackConfidence is the fixed confidence of a deterministic non-model
// answer. It sits below the floor of any successful model answer.
const FallbackConfidence = 0.3

// GenerateFallback builds a deterministic answer purely from the assembled
// summaries and aggregations. No model is involved, so every figure in the
// output exists in the context.
func GenerateFallback(assembled *models.AssembledContext) string {
	var b strings.Builder

	b.WriteString("The assistant is temporarily unable to generate a full answer, so here is a summary of your data instead.\n\n")

	if assembled.Summaries.Financial != "" {
		b.WriteString(assembled.Summaries.Financial)
		b.WriteString("\n")
	}

	if len(assembled.Summaries.Insights) > 0 {
		b.WriteString("\nWhat the data shows:\n")
		for _, insight := range assembled.Summaries.Insights {
			fmt.Fprintf(&b, "- %s\n", insight)
		}
	}

	if len(assembled.Summaries.Recommendations) > 0 {
		b.WriteString("\nSuggestions:\n")
		for _, rec := range assembled.Summaries.Recommendations {
			fmt.Fprintf(&b, "- %s\n", rec)
		}
	}

	if assembled.Summaries.Financial == "" &&
		len(assembled.Summaries.Insights) == 0 &&
		len(assembled.Summaries.Recommendations) == 0 {
		b.WriteString("No financial data was available for this question. Please try again, or rephrase the question.\n")
	} else {
		fmt.Fprintf(&b, "\nBased on %d records from: %s.\n",
			assembled.TotalRecords,
			strings.Join(assembled.Metadata.RetrieversUsed, ", "))
	}

	return b.String()
}
