// Package classify implements the Classifier service (spec §4.2): two-tier
// threading resolution, dual-LLM consensus, and the keyword fallback.
package classify

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

// quotedTicketPatterns is the ordered regex list for Tier 1 structural
// threading (spec §4.2): first match wins.
var quotedTicketPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Ticket #(\d+)`),
	regexp.MustCompile(`Ticket (\d+)`),
	regexp.MustCompile(`#(\d+)`),
}

// incidentLookup is the subset of *kv.Store the threader needs, narrowed to
// an interface so tests can fake the store without a live Redis connection.
type incidentLookup interface {
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	GetAllPrefix(ctx context.Context, prefix string, newT func() interface{}) ([]interface{}, error)
}

// Threader resolves an inbound message to an existing active ticket, if any.
type Threader struct {
	store       incidentLookup
	botIdentity string
}

func NewThreader(store incidentLookup, botIdentity string) *Threader {
	return &Threader{store: store, botIdentity: botIdentity}
}

// Resolve implements both threading tiers. It returns the resolved ticket id
// and true, or ("", false) if the message is a candidate new incident.
func (t *Threader) Resolve(ctx context.Context, msg model.InboundMessage) (string, bool) {
	if id, ok := t.resolveStructural(ctx, msg); ok {
		return id, true
	}
	return t.resolveTemporal(ctx, msg)
}

// resolveStructural is Tier 1: quoted-message regex extraction verified
// against bot identity and an active-incident lookup.
func (t *Threader) resolveStructural(ctx context.Context, msg model.InboundMessage) (string, bool) {
	if msg.Quoted == nil || msg.Quoted.Author != t.botIdentity {
		return "", false
	}

	var candidate string
	for _, re := range quotedTicketPatterns {
		if m := re.FindStringSubmatch(msg.Quoted.Text); len(m) == 2 {
			candidate = m[1]
			break
		}
	}
	if candidate == "" {
		return "", false
	}

	key := model.IncidentKey(msg.ConversationID, candidate)
	var rec model.IncidentRecord
	found, err := t.store.Get(ctx, key, &rec)
	if err != nil || !found {
		return "", false
	}
	return candidate, true
}

// resolveTemporal is Tier 2: prefix-scan for the most recent active incident
// in the conversation, accepted only if within the incident window.
func (t *Threader) resolveTemporal(ctx context.Context, msg model.InboundMessage) (string, bool) {
	prefix := model.IncidentPrefix(msg.ConversationID)
	raw, err := t.store.GetAllPrefix(ctx, prefix, func() interface{} { return &model.IncidentRecord{} })
	if err != nil || len(raw) == 0 {
		return "", false
	}

	records := make([]*model.IncidentRecord, 0, len(raw))
	for _, r := range raw {
		if rec, ok := r.(*model.IncidentRecord); ok {
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		return "", false
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	mostRecent := records[0]
	if time.Since(mostRecent.CreatedAt) > model.IncidentTTL {
		return "", false
	}
	return mostRecent.TicketID, true
}
