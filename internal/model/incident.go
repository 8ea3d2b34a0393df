package model

import (
	"fmt"
	"time"
)

const IncidentTTL = 7200 * time.Second

// IncidentRecord is the in-store representation of an active ticket thread.
type IncidentRecord struct {
	TicketID          string    `json:"ticket_id"`
	OriginalMessageID string    `json:"original_message_id"`
	ConversationID    string    `json:"conversation_id"`
	Reporter          string    `json:"reporter"`
	CreatedAt         time.Time `json:"created_at"`
	Category          string    `json:"category"`
	Urgency           Urgency   `json:"urgency"`
	FirstMessageText  string    `json:"first_message_text"`
	MessageIDs        []string  `json:"message_ids"`
	LastUpdate        time.Time `json:"last_update"`
}

// IncidentKey builds the store key `incident:active:{conversation_id}:{ticket_id}`.
func IncidentKey(conversationID, ticketID string) string {
	return fmt.Sprintf("incident:active:%s:%s", conversationID, ticketID)
}

// IncidentPrefix builds the scan prefix `incident:active:{conversation_id}:`.
func IncidentPrefix(conversationID string) string {
	return fmt.Sprintf("incident:active:%s:", conversationID)
}

// AppendMessage grows the record by one message id, bumping last_update.
// Callers are responsible for re-setting the TTL in the store (last-writer-wins
// append, no locking required — spec §5).
func (r *IncidentRecord) AppendMessage(messageID string, at time.Time) {
	r.MessageIDs = append(r.MessageIDs, messageID)
	r.LastUpdate = at
}

// Expired reports whether the record's age exceeds the incident window.
func (r IncidentRecord) Expired(now time.Time) bool {
	return now.Sub(r.CreatedAt) > IncidentTTL
}
