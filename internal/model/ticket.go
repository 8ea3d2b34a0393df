package model

// TicketSpec is a pending ticket-creation job; serializable so it survives a
// process restart in the fallback queue (`tickets:pending`).
type TicketSpec struct {
	ID                string `json:"id"`
	Subject           string `json:"subject"`
	Description       string `json:"description"`
	Urgency           Urgency `json:"urgency"`
	Category          string `json:"category"`
	ReporterName      string `json:"reporter_name"`
	ReporterEmail     string `json:"reporter_email,omitempty"`
	ReporterPhone     string `json:"reporter_phone,omitempty"`
	SourceMessageID   string `json:"source_message_id"`
	SourceConversationID string `json:"source_conversation_id"`
	AttemptCount      int    `json:"attempt_count"`
	LastError         string `json:"last_error,omitempty"`
}

// TicketUpdate is a thread-append note request (`ticket.update.request`).
type TicketUpdate struct {
	TicketID       string `json:"ticket_id"`
	AddNote        string `json:"add_note"`
	Author         string `json:"author"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// TicketCreated is the result event published on `ticket.created`.
type TicketCreated struct {
	TicketID             string `json:"ticket_id"`
	Success              bool   `json:"success"`
	Error                string `json:"error,omitempty"`
	SourceConversationID string `json:"source_conversation_id"`
	SourceMessageID      string `json:"source_message_id"`
	Category             string `json:"category"`
	Urgency              Urgency `json:"urgency"`
}

// TicketUpdated mirrors TicketCreated for the update path.
type TicketUpdated struct {
	TicketID       string `json:"ticket_id"`
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// AgentResponse is a direct reply published on `agent.response`, bypassing
// the outbound send API (spec §4.2 thread-append acknowledgement and
// auto-create/ask-confirm replies).
type AgentResponse struct {
	ConversationID  string `json:"conversation_id"`
	QuotedMessageID string `json:"quoted_message_id"`
	Text            string `json:"text"`
}
