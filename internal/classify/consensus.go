package classify

import "github.com/nextlevelbuilder/chatdesk/internal/model"

// Combine applies the weighted-voting table of spec §4.2 to two independent
// model verdicts, producing the final Classification.
func Combine(primary, secondary model.ModelVerdict) model.Classification {
	switch {
	case primary.Failed() && secondary.Failed():
		return combineBothError()
	case primary.Failed() != secondary.Failed():
		return combineOneErrored(primary, secondary)
	case primary.IsIncident && secondary.IsIncident:
		return combineBothYes(primary, secondary)
	case !primary.IsIncident && !secondary.IsIncident:
		return combineBothNo(primary, secondary)
	default:
		return combineDisagree(primary, secondary)
	}
}

func combineBothYes(a, b model.ModelVerdict) model.Classification {
	mean := (a.Confidence + b.Confidence) / 2
	conf := mean * 1.1
	if conf > 1.0 {
		conf = 1.0
	}
	return finalize(model.Classification{
		IsIncident:         true,
		Category:           pickCategory(a, b),
		Urgency:            pickUrgency(a, b),
		Confidence:         conf,
		Consensus:          model.ConsensusBothYes,
		RationalePrimary:   a.Rationale,
		RationaleSecondary: b.Rationale,
	})
}

func combineBothNo(a, b model.ModelVerdict) model.Classification {
	conf := a.Confidence
	if b.Confidence > conf {
		conf = b.Confidence
	}
	return finalize(model.Classification{
		IsIncident:         false,
		Confidence:         conf,
		Consensus:          model.ConsensusBothNo,
		RationalePrimary:   a.Rationale,
		RationaleSecondary: b.Rationale,
	})
}

func combineDisagree(a, b model.ModelVerdict) model.Classification {
	winner := a
	if b.Confidence > a.Confidence {
		winner = b
	}
	return finalize(model.Classification{
		IsIncident:         winner.IsIncident,
		Category:           winner.Category,
		Urgency:            winner.Urgency,
		Confidence:         winner.Confidence * 0.85,
		Consensus:          model.ConsensusDisagree,
		RationalePrimary:   a.Rationale,
		RationaleSecondary: b.Rationale,
	})
}

func combineOneErrored(a, b model.ModelVerdict) model.Classification {
	valid := a
	if a.Failed() {
		valid = b
	}
	return finalize(model.Classification{
		IsIncident:         valid.IsIncident,
		Category:           valid.Category,
		Urgency:            valid.Urgency,
		Confidence:         valid.Confidence * 0.75,
		Consensus:          model.ConsensusPartialError,
		RationalePrimary:   a.Rationale,
		RationaleSecondary: b.Rationale,
	})
}

func combineBothError() model.Classification {
	return finalize(model.Classification{
		IsIncident: false,
		Confidence: 0.0,
		Consensus:  model.ConsensusBothError,
	})
}

func finalize(c model.Classification) model.Classification {
	c.NeedsHumanReview = model.NeedsReviewFor(c.Consensus)
	return c
}

func pickCategory(a, b model.ModelVerdict) string {
	if a.Confidence >= b.Confidence {
		return a.Category
	}
	return b.Category
}

func pickUrgency(a, b model.ModelVerdict) model.Urgency {
	if a.Confidence >= b.Confidence {
		return a.Urgency
	}
	return b.Urgency
}
