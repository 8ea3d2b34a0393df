// Package busx is the client-side surface of the shared message bus (external
// collaborator per spec §1/§6), implemented over Redis pub/sub.
//
// Physical topic naming resolves REDESIGN FLAG 4 from spec §9: the source
// varies colon- vs dot-separated names across subsystems; this rewrite picks
// the dot-separated names already used in spec §6 and keeps them consistent
// across all three services.
package busx

// Topic names, verbatim from spec §6.
const (
	TopicInbound            = "messages.inbound"
	TopicOutbound            = "messages.outbound"
	TopicTicketCreateRequest = "ticket.create.request"
	TopicTicketUpdateRequest = "ticket.update.request"
	TopicTicketCreated       = "ticket.created"
	TopicTicketUpdated       = "ticket.updated"
	TopicAgentResponse       = "agent.response"
	TopicNotifications       = "service.notifications"
)

// Notification event-name constants carried in service.notifications payloads.
const (
	EventConnectionEstablished = "connection_established"
	EventConnectionLost        = "connection_lost"
	EventServiceStarted        = "service_started"
	EventServiceShutdown       = "service_shutdown"
	EventPublishSuccess        = "publish_success"
	EventPublishFailed         = "publish_failed"
	EventMessageSendResult     = "message_send_result"
	EventSpamSuspected         = "spam_suspected"
)

// Notification is the envelope published on TopicNotifications.
type Notification struct {
	Event   string                 `json:"event"`
	Service string                 `json:"service"`
	Detail  map[string]interface{} `json:"detail,omitempty"`
}
