package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/chatdesk/internal/busx"
	"github.com/nextlevelbuilder/chatdesk/internal/config"
	"github.com/nextlevelbuilder/chatdesk/internal/httpapi"
	"github.com/nextlevelbuilder/chatdesk/internal/kv"
	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

// Service wires the connection state machine, bridge, inbound pipeline,
// outbound queue, and message log into the Transport Gateway process
// (spec §4.1).
type Service struct {
	cfg  *config.TransportConfig
	bus  *busx.Bus
	pub  *busx.Publisher
	store *kv.Store

	conn     *Connection
	bridge   *Bridge
	inbound  *InboundPipeline
	outbound *OutboundQueue
	msgLog   *MessageLog
	session  *SessionStore
}

func NewService(cfg *config.TransportConfig, bus *busx.Bus, store *kv.Store) *Service {
	s := &Service{cfg: cfg, bus: bus, store: store}
	s.pub = busx.NewPublisher(bus)
	s.msgLog = NewMessageLog(cfg.MessageLogDir)
	s.session = NewSessionStore(cfg.SessionDir, cfg.SessionName)

	s.conn = NewConnection(func(state ConnState) {
		event := busx.EventConnectionLost
		if state == StateConnected {
			event = busx.EventConnectionEstablished
		}
		_ = s.pub.Enqueue(busx.TopicNotifications, busx.Notification{
			Event:   event,
			Service: "transport",
			Detail:  map[string]interface{}{"state": string(state)},
		}, busx.PriorityNormal)
	})

	s.inbound = NewInboundPipeline("whatsapp", cfg.GroupSuffix, cfg.BotIdentity, s.msgLog, s.pub)
	s.outbound = NewOutboundQueue(NewConnSender(s.conn), s.handleSendResult)
	s.bridge = NewBridge(cfg.BridgeURL, s.conn, s.inbound.Handle, s.handleQR)

	return s
}

func (s *Service) handleQR(code string) {
	if s.cfg.PrintQR {
		slog.Info("transport: scan this QR code to pair", "qr", code)
	}
}

func (s *Service) handleSendResult(res model.SendResult) {
	status := "sent"
	errMsg := ""
	if !res.Success {
		status = "failed"
		errMsg = res.Error
	}
	if s.msgLog != nil {
		_ = s.msgLog.Append(LogEntry{
			Direction: LogOutbound,
			At:        time.Now(),
			MessageID: res.CommandID,
			Kind:      string(model.KindText),
			Status:    status,
			Error:     errMsg,
		})
	}
	_ = s.pub.Enqueue(busx.TopicNotifications, busx.Notification{
		Event:   busx.EventMessageSendResult,
		Service: "transport",
		Detail:  map[string]interface{}{"command_id": res.CommandID, "success": res.Success},
	}, busx.PriorityNormal)
}

// Run starts the bridge connection loop and the outbound command subscriber,
// blocking until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if prior, err := s.session.Load(); err != nil {
		slog.Warn("transport: failed to load prior session state", "error", err)
	} else if prior != nil {
		slog.Info("transport: resuming prior session", "bot_identity", prior.BotIdentity)
	}

	go s.bridge.Run(ctx)

	go func() {
		err := s.bus.Subscribe(ctx, busx.TopicOutbound, func(_ context.Context, payload []byte) error {
			return s.handleOutboundPayload(payload)
		})
		if err != nil && ctx.Err() == nil {
			slog.Error("transport: outbound subscription ended", "error", err)
		}
	}()

	go func() {
		err := s.bus.Subscribe(ctx, busx.TopicAgentResponse, func(_ context.Context, payload []byte) error {
			return s.handleAgentResponse(payload)
		})
		if err != nil && ctx.Err() == nil {
			slog.Error("transport: agent-response subscription ended", "error", err)
		}
	}()

	go func() {
		err := s.bus.Subscribe(ctx, busx.TopicTicketCreated, func(_ context.Context, payload []byte) error {
			return s.handleTicketCreated(payload)
		})
		if err != nil && ctx.Err() == nil {
			slog.Error("transport: ticket-created subscription ended", "error", err)
		}
	}()

	go func() {
		err := s.bus.Subscribe(ctx, busx.TopicTicketUpdated, func(_ context.Context, payload []byte) error {
			return s.handleTicketUpdated(payload)
		})
		if err != nil && ctx.Err() == nil {
			slog.Error("transport: ticket-updated subscription ended", "error", err)
		}
	}()

	_ = s.pub.Enqueue(busx.TopicNotifications, busx.Notification{
		Event: busx.EventServiceStarted, Service: "transport",
	}, busx.PriorityNormal)

	<-ctx.Done()
	return s.shutdown()
}

// handleAgentResponse delivers a classifier-issued direct reply, bypassing
// the outbound send topic (spec §2 data flow: agent.response is consumed
// directly by the transport gateway).
func (s *Service) handleAgentResponse(payload []byte) error {
	var reply model.AgentResponse
	if err := json.Unmarshal(payload, &reply); err != nil {
		slog.Warn("transport: invalid agent response payload", "error", err)
		return nil
	}
	s.outbound.Enqueue(model.OutboundCommand{
		ID:          reply.ConversationID + ":" + reply.QuotedMessageID,
		Destination: reply.ConversationID,
		Text:        reply.Text,
		QuotedID:    reply.QuotedMessageID,
		Priority:    model.PriorityNormal,
	})
	return nil
}

// handleTicketCreated turns a ticket manager result into a user-facing reply
// only when creation ultimately failed (spec §7: "a message whose ticket
// creation ultimately fails...produces a ticket.created event with
// success=false so the transport can reply with a diagnostic"). A successful
// creation is already acknowledged by the classifier's optimistic
// agent.response, so it is not replied to again here.
func (s *Service) handleTicketCreated(payload []byte) error {
	var created model.TicketCreated
	if err := json.Unmarshal(payload, &created); err != nil {
		slog.Warn("transport: invalid ticket created payload", "error", err)
		return nil
	}
	if created.Success || created.SourceConversationID == "" {
		return nil
	}
	s.outbound.Enqueue(model.OutboundCommand{
		ID:          created.SourceConversationID + ":" + created.SourceMessageID,
		Destination: created.SourceConversationID,
		Text:        fmt.Sprintf("No pudimos crear tu ticket: %s", created.Error),
		QuotedID:    created.SourceMessageID,
		Priority:    model.PriorityHigh,
	})
	return nil
}

// handleTicketUpdated mirrors handleTicketCreated for the thread-append
// path: the classifier already acknowledges the update optimistically, so
// only a failure is worth surfacing back to the conversation.
func (s *Service) handleTicketUpdated(payload []byte) error {
	var updated model.TicketUpdated
	if err := json.Unmarshal(payload, &updated); err != nil {
		slog.Warn("transport: invalid ticket updated payload", "error", err)
		return nil
	}
	if updated.Success || updated.ConversationID == "" {
		return nil
	}
	s.outbound.Enqueue(model.OutboundCommand{
		ID:          updated.ConversationID + ":" + updated.TicketID,
		Destination: updated.ConversationID,
		Text:        fmt.Sprintf("No pudimos actualizar el Ticket #%s: %s", updated.TicketID, updated.Error),
		Priority:    model.PriorityHigh,
	})
	return nil
}

func (s *Service) handleOutboundPayload(payload []byte) error {
	cmd, err := decodeOutboundCommand(payload)
	if err != nil {
		slog.Warn("transport: invalid outbound command payload", "error", err)
		return nil
	}
	if err := cmd.Valid(); err != nil {
		slog.Warn("transport: rejected invalid outbound command", "id", cmd.ID, "error", err)
		return nil
	}
	s.outbound.Enqueue(cmd)
	return nil
}

// shutdown stops background workers in this order: a final pass over due
// outbound items (OutboundQueue.Close), flush buffered logs (after the
// outbound pass, which can still append log entries), save the session
// state, drain the bus publisher, then close the transport session last.
func (s *Service) shutdown() error {
	slog.Info("transport: shutting down")
	s.outbound.Close()
	_ = s.msgLog.Close()

	_ = s.session.Save(SessionState{
		SessionName: s.cfg.SessionName,
		BotIdentity: s.cfg.BotIdentity,
		LastSeenAt:  time.Now(),
	})

	s.pub.Close()
	s.conn.Terminate()
	return nil
}

// HealthChecks exposes dependency liveness probes for the admin HTTP surface.
func (s *Service) HealthChecks() []httpapi.DepCheck {
	return []httpapi.DepCheck{
		{Name: "bus", Check: func() error { return s.bus.Ping(context.Background()) }},
		{Name: "store", Check: func() error { return s.store.Ping(context.Background()) }},
	}
}

func decodeOutboundCommand(payload []byte) (model.OutboundCommand, error) {
	var cmd model.OutboundCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return cmd, fmt.Errorf("transport: decode outbound command: %w", err)
	}
	return cmd, nil
}

// StatusDetail returns the current connection state for GET /status.
func (s *Service) StatusDetail() interface{} {
	return map[string]interface{}{
		"connection_state":  string(s.conn.State()),
		"has_ever_connected": s.conn.HasEverConnected(),
	}
}

// Enqueue accepts a manually-submitted outbound command (POST /send).
func (s *Service) Enqueue(cmd model.OutboundCommand) error {
	if err := cmd.Valid(); err != nil {
		return err
	}
	s.outbound.Enqueue(cmd)
	return nil
}
