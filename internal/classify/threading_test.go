package classify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

// fakeStore is a minimal in-memory stand-in for *kv.Store, enough to exercise
// both threading tiers without a live Redis connection.
type fakeStore struct {
	values map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{values: make(map[string][]byte)} }

func (f *fakeStore) put(key string, v interface{}) {
	data, _ := json.Marshal(v)
	f.values[key] = data
}

func (f *fakeStore) Get(_ context.Context, key string, dst interface{}) (bool, error) {
	data, ok := f.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dst)
}

func (f *fakeStore) GetAllPrefix(_ context.Context, prefix string, newT func() interface{}) ([]interface{}, error) {
	var out []interface{}
	for k, data := range f.values {
		if len(k) < len(prefix) || k[:len(prefix)] != prefix {
			continue
		}
		v := newT()
		if err := json.Unmarshal(data, v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

const botID = "bot@s.whatsapp.net"

func TestThreader_StructuralMatch(t *testing.T) {
	store := newFakeStore()
	store.put(model.IncidentKey("G1@g.us", "42"), model.IncidentRecord{
		TicketID: "42", ConversationID: "G1@g.us", CreatedAt: time.Now(),
	})
	threader := NewThreader(store, botID)

	msg := model.InboundMessage{
		ConversationID: "G1@g.us",
		Quoted:         &model.QuotedMessage{ID: "mb1", Text: "Ticket #42 creado", Author: botID},
	}

	id, ok := threader.Resolve(context.Background(), msg)
	if !ok || id != "42" {
		t.Fatalf("Resolve() = (%q, %v), want (42, true)", id, ok)
	}
}

func TestThreader_StructuralMatch_WrongAuthorIgnored(t *testing.T) {
	store := newFakeStore()
	store.put(model.IncidentKey("G1@g.us", "42"), model.IncidentRecord{TicketID: "42", CreatedAt: time.Now()})
	threader := NewThreader(store, botID)

	msg := model.InboundMessage{
		ConversationID: "G1@g.us",
		Quoted:         &model.QuotedMessage{ID: "mb1", Text: "Ticket #42 creado", Author: "someone-else"},
	}

	if _, ok := threader.resolveStructural(context.Background(), msg); ok {
		t.Fatal("quoted message not authored by the bot must not resolve structurally")
	}
}

func TestThreader_TemporalFallback(t *testing.T) {
	store := newFakeStore()
	store.put(model.IncidentKey("G1@g.us", "10"), model.IncidentRecord{
		TicketID: "10", ConversationID: "G1@g.us", CreatedAt: time.Now().Add(-1 * time.Hour),
	})
	store.put(model.IncidentKey("G1@g.us", "11"), model.IncidentRecord{
		TicketID: "11", ConversationID: "G1@g.us", CreatedAt: time.Now().Add(-10 * time.Minute),
	})
	threader := NewThreader(store, botID)

	msg := model.InboundMessage{ConversationID: "G1@g.us", Text: "Sigue sin funcionar"}

	id, ok := threader.Resolve(context.Background(), msg)
	if !ok || id != "11" {
		t.Fatalf("Resolve() = (%q, %v), want (11, true) — most recent record should win", id, ok)
	}
}

func TestThreader_TemporalFallback_ExpiredWindowReturnsNoMatch(t *testing.T) {
	store := newFakeStore()
	store.put(model.IncidentKey("G1@g.us", "9"), model.IncidentRecord{
		TicketID: "9", ConversationID: "G1@g.us", CreatedAt: time.Now().Add(-3 * time.Hour),
	})
	threader := NewThreader(store, botID)

	msg := model.InboundMessage{ConversationID: "G1@g.us", Text: "hello again"}

	if _, ok := threader.Resolve(context.Background(), msg); ok {
		t.Fatal("incident older than the 7200s window must not resolve")
	}
}

func TestThreader_NoMatch_NewIncident(t *testing.T) {
	threader := NewThreader(newFakeStore(), botID)
	msg := model.InboundMessage{ConversationID: "G1@g.us", Text: "Tienda 907 no deja cobrar"}

	if _, ok := threader.Resolve(context.Background(), msg); ok {
		t.Fatal("message with no quoted reply and no active incident should not resolve")
	}
}
