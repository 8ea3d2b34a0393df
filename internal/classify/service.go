package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/chatdesk/internal/busx"
	"github.com/nextlevelbuilder/chatdesk/internal/config"
	"github.com/nextlevelbuilder/chatdesk/internal/httpapi"
	"github.com/nextlevelbuilder/chatdesk/internal/kv"
	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

// systemPrompt is shared by both classifier calls so the two models judge
// the same question (spec §4.2).
const systemPrompt = `You triage support messages for a retail point-of-sale chain. ` +
	`Decide whether the message describes a new support incident (a store reporting ` +
	`a problem) as opposed to small talk, confirmations, or unrelated chatter. ` +
	`If it is an incident, classify its category (e.g. POS, network, printer, payments) ` +
	`and urgency.`

// workerQueueDepth bounds the per-conversation backlog; a conversation that
// floods past this is almost certainly not a real support thread.
const workerQueueDepth = 64

// Service wires threading resolution, dual-LLM consensus, and the keyword
// fallback into the Classifier process (spec §4.2).
type Service struct {
	cfg   *config.ClassifierConfig
	bus   *busx.Bus
	pub   *busx.Publisher
	store *kv.Store

	threader *Threader
	dual     *DualClassifier

	mu      sync.Mutex
	workers map[string]chan model.InboundMessage
	wg      sync.WaitGroup
}

func NewService(cfg *config.ClassifierConfig, bus *busx.Bus, store *kv.Store) *Service {
	primary := NewAnthropicClassifier(cfg.AnthropicAPIKey, cfg.PrimaryModel, cfg.MaxTokens, cfg.Temperature)
	secondary := NewOpenAIClassifier(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.FallbackModel, cfg.MaxTokens, cfg.Temperature)

	return &Service{
		cfg:      cfg,
		bus:      bus,
		store:    store,
		pub:      busx.NewPublisher(bus),
		threader: NewThreader(store, cfg.BotPhoneIdentity),
		dual:     NewDualClassifier(primary, secondary, cfg.CallTimeout),
		workers:  make(map[string]chan model.InboundMessage),
	}
}

// Run subscribes to the inbound topic and fans messages out to
// per-conversation worker goroutines, blocking until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	_ = s.pub.Enqueue(busx.TopicNotifications, busx.Notification{
		Event: busx.EventServiceStarted, Service: "classifier",
	}, busx.PriorityNormal)

	err := s.bus.Subscribe(ctx, busx.TopicInbound, func(_ context.Context, payload []byte) error {
		return s.handleInboundPayload(ctx, payload)
	})
	if err != nil && ctx.Err() == nil {
		slog.Error("classifier: inbound subscription ended", "error", err)
	}

	s.shutdown()
	return nil
}

func (s *Service) handleInboundPayload(ctx context.Context, payload []byte) error {
	var msg model.InboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		slog.Warn("classifier: invalid inbound message payload", "error", err)
		return nil
	}
	s.dispatch(ctx, msg)
	return nil
}

// dispatch routes msg to the worker owning its conversation, starting one if
// this is the first message seen for that conversation. Messages within a
// conversation are processed strictly in arrival order; different
// conversations run fully concurrently (spec §5 ordering guarantee).
func (s *Service) dispatch(ctx context.Context, msg model.InboundMessage) {
	s.mu.Lock()
	ch, ok := s.workers[msg.ConversationID]
	if !ok {
		ch = make(chan model.InboundMessage, workerQueueDepth)
		s.workers[msg.ConversationID] = ch
		s.wg.Add(1)
		go s.runWorker(ctx, msg.ConversationID, ch)
	}
	s.mu.Unlock()

	select {
	case ch <- msg:
	default:
		slog.Warn("classifier: conversation worker queue full, dropping message",
			"conversation_id", msg.ConversationID, "message_id", msg.ID)
	}
}

func (s *Service) runWorker(ctx context.Context, conversationID string, ch chan model.InboundMessage) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.process(ctx, msg)
		}
	}
}

// process implements the per-message decision tree of spec §4.2: thread
// append when threading resolves, otherwise classify and act on the
// resulting confidence.
func (s *Service) process(ctx context.Context, msg model.InboundMessage) {
	if ticketID, ok := s.threader.Resolve(ctx, msg); ok {
		s.appendToThread(ctx, msg, ticketID)
		return
	}

	primary, secondary := s.dual.Run(ctx, systemPrompt, msg.Text)
	var classification model.Classification
	if primary.Failed() && secondary.Failed() {
		classification = FallbackClassify(msg.Text)
	} else {
		classification = Combine(primary, secondary)
	}

	switch model.ActionFor(classification) {
	case model.ActionAutoCreate:
		s.autoCreate(ctx, msg, classification)
	case model.ActionAskConfirm:
		s.askConfirm(msg)
	case model.ActionLogOnly:
		slog.Info("classifier: logged without action",
			"conversation_id", msg.ConversationID, "message_id", msg.ID,
			"is_incident", classification.IsIncident, "confidence", classification.Confidence)
	}
}

func (s *Service) appendToThread(ctx context.Context, msg model.InboundMessage, ticketID string) {
	key := model.IncidentKey(msg.ConversationID, ticketID)
	var rec model.IncidentRecord
	found, err := s.store.Get(ctx, key, &rec)
	if err != nil || !found {
		slog.Warn("classifier: resolved ticket id has no incident record", "ticket_id", ticketID, "error", err)
		return
	}

	rec.AppendMessage(msg.ID, msg.Timestamp)
	if err := s.store.Set(ctx, key, rec, model.IncidentTTL); err != nil {
		slog.Error("classifier: failed to persist thread append", "ticket_id", ticketID, "error", err)
	}

	_ = s.pub.Enqueue(busx.TopicTicketUpdateRequest, model.TicketUpdate{
		TicketID:       ticketID,
		AddNote:        msg.Text,
		Author:         msg.SenderID,
		ConversationID: msg.ConversationID,
	}, busx.PriorityNormal)

	_ = s.pub.Enqueue(busx.TopicAgentResponse, model.AgentResponse{
		ConversationID:  msg.ConversationID,
		QuotedMessageID: msg.ID,
		Text:            fmt.Sprintf("Recibido, se agregó a Ticket #%s.", ticketID),
	}, busx.PriorityNormal)
}

func (s *Service) autoCreate(ctx context.Context, msg model.InboundMessage, c model.Classification) {
	ticketID := uuid.NewString()
	now := time.Now().UTC()

	rec := model.IncidentRecord{
		TicketID:          ticketID,
		OriginalMessageID: msg.ID,
		ConversationID:    msg.ConversationID,
		Reporter:          msg.SenderID,
		CreatedAt:         now,
		Category:          c.Category,
		Urgency:           c.Urgency,
		FirstMessageText:  msg.Text,
		MessageIDs:        []string{msg.ID},
		LastUpdate:        now,
	}
	key := model.IncidentKey(msg.ConversationID, ticketID)
	if err := s.store.Set(ctx, key, rec, model.IncidentTTL); err != nil {
		slog.Error("classifier: failed to register new incident", "error", err)
		return
	}

	_ = s.pub.Enqueue(busx.TopicTicketCreateRequest, model.TicketSpec{
		ID:                   ticketID,
		Subject:              fmt.Sprintf("%s incident reported via chat", c.Category),
		Description:          msg.Text,
		Urgency:              c.Urgency,
		Category:             c.Category,
		ReporterPhone:        msg.SenderID,
		SourceMessageID:      msg.ID,
		SourceConversationID: msg.ConversationID,
	}, busx.PriorityNormal)

	_ = s.pub.Enqueue(busx.TopicAgentResponse, model.AgentResponse{
		ConversationID:  msg.ConversationID,
		QuotedMessageID: msg.ID,
		Text:            fmt.Sprintf("Ticket #%s creado — %s (%s)", ticketID, c.Category, c.Urgency),
	}, busx.PriorityNormal)
}

func (s *Service) askConfirm(msg model.InboundMessage) {
	_ = s.pub.Enqueue(busx.TopicAgentResponse, model.AgentResponse{
		ConversationID:  msg.ConversationID,
		QuotedMessageID: msg.ID,
		Text:            "¿Confirmas que esto es un incidente y debo crear un ticket? Responde con más detalle para continuar.",
	}, busx.PriorityNormal)
}

func (s *Service) shutdown() {
	slog.Info("classifier: shutting down")
	s.mu.Lock()
	for _, ch := range s.workers {
		close(ch)
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.pub.Close()
}

// HealthChecks exposes dependency liveness probes for the admin HTTP surface.
func (s *Service) HealthChecks() []httpapi.DepCheck {
	return []httpapi.DepCheck{
		{Name: "bus", Check: func() error { return s.bus.Ping(context.Background()) }},
		{Name: "store", Check: func() error { return s.store.Ping(context.Background()) }},
	}
}

// Classify runs the dual-LLM consensus synchronously for arbitrary text,
// without touching the bus or the incident store — used by the manual
// POST /classify admin endpoint.
func (s *Service) Classify(ctx context.Context, text string) model.Classification {
	primary, secondary := s.dual.Run(ctx, systemPrompt, text)
	if primary.Failed() && secondary.Failed() {
		return FallbackClassify(text)
	}
	return Combine(primary, secondary)
}
