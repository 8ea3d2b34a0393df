package classify

import (
	"testing"

	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

func TestFallbackClassify_KeywordMatch(t *testing.T) {
	got := FallbackClassify("La impresora del local 12 no funciona desde ayer")
	if !got.IsIncident {
		t.Fatal("message matching a fallback keyword should be flagged as an incident")
	}
	if got.Confidence != fallbackConfidence {
		t.Errorf("Confidence = %v, want %v", got.Confidence, fallbackConfidence)
	}
	if !got.NeedsHumanReview {
		t.Error("fallback verdicts always need human review")
	}
	if got.Consensus != model.ConsensusBothError {
		t.Errorf("Consensus = %v, want %v", got.Consensus, model.ConsensusBothError)
	}
}

func TestFallbackClassify_NoMatch(t *testing.T) {
	got := FallbackClassify("buenos dias equipo, todo tranquilo por aca")
	if got.IsIncident {
		t.Fatal("message with no fallback keyword match should not be flagged as an incident")
	}
	if !got.NeedsHumanReview {
		t.Error("fallback verdicts always need human review even when no keyword matched")
	}
}
