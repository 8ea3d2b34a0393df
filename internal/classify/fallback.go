package classify

import (
	"strings"

	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

// fallbackConfidence is fixed by spec §4.2: the keyword fallback never claims
// more certainty than this, and always needs human review.
const fallbackConfidence = 0.55

// fallbackKeywords is the closed, domain-tuned keyword list consulted only
// when both LLM calls fail.
var fallbackKeywords = []string{
	"impresora",
	"pos",
	"error",
	"no funciona",
	"urgente",
}

// FallbackClassify is the last-resort verdict when both classifiers errored
// (consensus both_error). It never talks to a model.
func FallbackClassify(text string) model.Classification {
	lower := strings.ToLower(text)
	matched := false
	for _, kw := range fallbackKeywords {
		if strings.Contains(lower, kw) {
			matched = true
			break
		}
	}

	return model.Classification{
		IsIncident:       matched,
		Confidence:       fallbackConfidence,
		Consensus:        model.ConsensusBothError,
		NeedsHumanReview: true,
	}
}
