package classify

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

func TestParseVerdict_ExtractsJSONFromProse(t *testing.T) {
	raw := "Sure, here is my assessment:\n" +
		`{"is_incident": true, "confidence": 0.92, "category": "POS", "urgency": "high", "rationale": "store reports register down"}` +
		"\nLet me know if you need more."

	v, err := parseVerdict(raw)
	if err != nil {
		t.Fatalf("parseVerdict() error = %v", err)
	}
	if !v.IsIncident || v.Confidence != 0.92 || v.Category != "POS" || v.Urgency != model.UrgencyHigh {
		t.Fatalf("parseVerdict() = %+v, unexpected fields", v)
	}
}

func TestParseVerdict_NoJSONReturnsError(t *testing.T) {
	if _, err := parseVerdict("I'm not sure what to make of this."); err == nil {
		t.Fatal("expected an error when no JSON object is present")
	}
}

// fakeClassifier lets tests exercise DualClassifier without a network call.
type fakeClassifier struct {
	verdict model.ModelVerdict
	delay   time.Duration
}

func (f fakeClassifier) Classify(ctx context.Context, _, _ string) model.ModelVerdict {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return model.ModelVerdict{Err: ctx.Err()}
		}
	}
	return f.verdict
}

func TestDualClassifier_RunsBothConcurrently(t *testing.T) {
	primary := fakeClassifier{verdict: model.ModelVerdict{IsIncident: true, Confidence: 0.9}, delay: 20 * time.Millisecond}
	secondary := fakeClassifier{verdict: model.ModelVerdict{IsIncident: true, Confidence: 0.8}, delay: 20 * time.Millisecond}

	dual := NewDualClassifier(primary, secondary, time.Second)

	start := time.Now()
	p, s := dual.Run(context.Background(), "sys", "user")
	elapsed := time.Since(start)

	if elapsed > 60*time.Millisecond {
		t.Errorf("Run() took %v, expected the two calls to overlap (well under their sum)", elapsed)
	}
	if p.Confidence != 0.9 || s.Confidence != 0.8 {
		t.Fatalf("Run() = (%+v, %+v), verdicts not attributed to the correct side", p, s)
	}
}

func TestDualClassifier_RespectsCallTimeout(t *testing.T) {
	primary := fakeClassifier{verdict: model.ModelVerdict{IsIncident: true, Confidence: 0.9}, delay: 200 * time.Millisecond}
	secondary := fakeClassifier{verdict: model.ModelVerdict{IsIncident: false, Confidence: 0.5}}

	dual := NewDualClassifier(primary, secondary, 20*time.Millisecond)
	p, _ := dual.Run(context.Background(), "sys", "user")

	if !p.Failed() {
		t.Fatal("primary call exceeding the configured timeout should report an error")
	}
}
