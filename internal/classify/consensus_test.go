package classify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

func TestCombine_BothYes(t *testing.T) {
	a := model.ModelVerdict{IsIncident: true, Confidence: 0.98, Category: "POS", Urgency: model.UrgencyHigh}
	b := model.ModelVerdict{IsIncident: true, Confidence: 0.96, Category: "POS", Urgency: model.UrgencyHigh}

	got := Combine(a, b)

	require.Equal(t, model.ConsensusBothYes, got.Consensus)
	assert.True(t, got.IsIncident)
	assert.False(t, got.NeedsHumanReview)
	assert.InDelta(t, 1.0, got.Confidence, 0.001) // mean(0.98,0.96)*1.1 clamps to 1.0
}

func TestCombine_BothNo(t *testing.T) {
	a := model.ModelVerdict{IsIncident: false, Confidence: 0.80}
	b := model.ModelVerdict{IsIncident: false, Confidence: 0.99}

	got := Combine(a, b)

	require.Equal(t, model.ConsensusBothNo, got.Consensus)
	assert.False(t, got.IsIncident)
	assert.False(t, got.NeedsHumanReview)
	assert.Equal(t, 0.99, got.Confidence)
}

func TestCombine_Disagree(t *testing.T) {
	a := model.ModelVerdict{IsIncident: true, Confidence: 0.70, Category: "POS", Urgency: model.UrgencyHigh}
	b := model.ModelVerdict{IsIncident: false, Confidence: 0.40}

	got := Combine(a, b)

	require.Equal(t, model.ConsensusDisagree, got.Consensus)
	assert.True(t, got.IsIncident) // follows higher-confidence verdict (a)
	assert.True(t, got.NeedsHumanReview)
	assert.InDelta(t, 0.595, got.Confidence, 0.001) // 0.70 * 0.85
}

func TestCombine_PartialError(t *testing.T) {
	a := model.ModelVerdict{IsIncident: true, Confidence: 0.80, Category: "POS", Urgency: model.UrgencyMedium}
	b := model.ModelVerdict{Err: errors.New("timeout")}

	got := Combine(a, b)

	require.Equal(t, model.ConsensusPartialError, got.Consensus)
	assert.True(t, got.IsIncident)
	assert.True(t, got.NeedsHumanReview)
	assert.InDelta(t, 0.60, got.Confidence, 0.001) // 0.80 * 0.75
}

func TestCombine_BothError(t *testing.T) {
	a := model.ModelVerdict{Err: errors.New("timeout")}
	b := model.ModelVerdict{Err: errors.New("5xx")}

	got := Combine(a, b)

	require.Equal(t, model.ConsensusBothError, got.Consensus)
	assert.False(t, got.IsIncident)
	assert.True(t, got.NeedsHumanReview)
	assert.Equal(t, 0.0, got.Confidence)
}

func TestActionFor_Thresholds(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		isIncident bool
		want       model.Action
	}{
		{"high confidence auto-creates", 0.95, true, model.ActionAutoCreate},
		{"mid confidence asks to confirm", 0.75, true, model.ActionAskConfirm},
		{"low confidence logs only", 0.40, true, model.ActionLogOnly},
		{"not an incident always logs only", 0.99, false, model.ActionLogOnly},
		{"boundary at 0.90 asks to confirm, not auto-create", 0.90, true, model.ActionAskConfirm},
		{"boundary at 0.60 asks to confirm", 0.60, true, model.ActionAskConfirm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := model.Classification{IsIncident: tt.isIncident, Confidence: tt.confidence}
			assert.Equal(t, tt.want, model.ActionFor(c))
		})
	}
}
