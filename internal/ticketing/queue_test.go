package ticketing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

func TestFallbackQueue_DrainEntryRetriesWithinOneSweep(t *testing.T) {
	attempts := 0
	create := func(_ context.Context, _ model.TicketSpec) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("helpdesk unreachable")
		}
		return "tk-1", nil
	}

	var done []model.TicketCreated
	q := NewFallbackQueue(nil, "tickets:pending", time.Minute, 3, 5*time.Millisecond, create, func(tc model.TicketCreated) {
		done = append(done, tc)
	})

	start := time.Now()
	spec, keep := q.drainEntry(context.Background(), model.TicketSpec{ID: "spec-1"})
	elapsed := time.Since(start)

	if keep {
		t.Fatal("drainEntry should not keep an entry that eventually succeeds")
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3 within a single sweep", attempts)
	}
	if elapsed < 10*time.Millisecond {
		t.Fatalf("elapsed = %v, want at least two retryDelay waits between the three attempts", elapsed)
	}
	if len(done) != 1 || !done[0].Success {
		t.Fatalf("onDone = %+v, want exactly one success callback", done)
	}
	if spec.AttemptCount != 2 {
		t.Fatalf("AttemptCount = %d, want 2 failed attempts recorded before the success", spec.AttemptCount)
	}
}

func TestFallbackQueue_DrainEntryExhaustsAndStaysQueued(t *testing.T) {
	create := func(_ context.Context, _ model.TicketSpec) (string, error) {
		return "", errors.New("helpdesk unreachable")
	}

	var done []model.TicketCreated
	q := NewFallbackQueue(nil, "tickets:pending", time.Minute, 3, time.Millisecond, create, func(tc model.TicketCreated) {
		done = append(done, tc)
	})

	spec, keep := q.drainEntry(context.Background(), model.TicketSpec{ID: "spec-2"})

	if !keep {
		t.Fatal("drainEntry should keep an entry that exhausts every attempt")
	}
	if spec.AttemptCount != 3 {
		t.Fatalf("AttemptCount = %d, want 3", spec.AttemptCount)
	}
	if spec.LastError == "" {
		t.Fatal("LastError should be recorded after exhausting retries")
	}
	if len(done) != 1 || done[0].Success {
		t.Fatalf("onDone = %+v, want exactly one failure callback", done)
	}
}

func TestFallbackQueue_DrainEntrySucceedsFirstTry(t *testing.T) {
	attempts := 0
	create := func(_ context.Context, _ model.TicketSpec) (string, error) {
		attempts++
		return "tk-2", nil
	}

	q := NewFallbackQueue(nil, "tickets:pending", time.Minute, 3, time.Millisecond, create, func(model.TicketCreated) {})

	_, keep := q.drainEntry(context.Background(), model.TicketSpec{ID: "spec-3"})
	if keep {
		t.Fatal("drainEntry should not keep an entry that succeeds on the first attempt")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want exactly 1", attempts)
	}
}
