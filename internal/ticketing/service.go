package ticketing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/nextlevelbuilder/chatdesk/internal/busx"
	"github.com/nextlevelbuilder/chatdesk/internal/config"
	"github.com/nextlevelbuilder/chatdesk/internal/httpapi"
	"github.com/nextlevelbuilder/chatdesk/internal/kv"
	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

var errBreakerOpen = errors.New("ticketing: circuit breaker open")

// Service wires the OAuth2 token manager, circuit breaker, helpdesk REST
// client, and persistent fallback queue into the Ticket Manager process
// (spec §4.3).
type Service struct {
	cfg   *config.TicketManagerConfig
	bus   *busx.Bus
	pub   *busx.Publisher
	store *kv.Store

	tokens   *TokenManager
	breaker  *Breaker
	helpdesk *HelpdeskClient
	fallback *FallbackQueue
}

func NewService(cfg *config.TicketManagerConfig, bus *busx.Bus, store *kv.Store) (*Service, error) {
	tokens, err := NewTokenManager(cfg.HelpdeskClientID, cfg.HelpdeskSecret, cfg.HelpdeskBaseURL+"/oauth/token", cfg.RedirectURI, NewStateStore(cfg.OAuthStatePath))
	if err != nil {
		return nil, err
	}

	helpdesk := NewHelpdeskClient(cfg.HelpdeskBaseURL, cfg.DepartmentID, cfg.OrgID, tokens, cfg.BreakerProbeTimeout)
	breaker := NewBreaker(cfg.BreakerMaxFailures, cfg.BreakerCooldown)

	s := &Service{
		cfg:      cfg,
		bus:      bus,
		store:    store,
		pub:      busx.NewPublisher(bus),
		tokens:   tokens,
		breaker:  breaker,
		helpdesk: helpdesk,
	}

	s.fallback = NewFallbackQueue(
		store, cfg.QueueName, cfg.QueueSweepInterval, cfg.QueueMaxRetries, cfg.QueueRetryDelay,
		s.createWithBreaker, s.publishTicketCreated,
	)

	return s, nil
}

// Run subscribes to the create/update request topics and starts the fallback
// queue's background sweep, blocking until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	_ = s.pub.Enqueue(busx.TopicNotifications, busx.Notification{
		Event: busx.EventServiceStarted, Service: "ticketmanager",
	}, busx.PriorityNormal)

	go s.fallback.Run(ctx)

	go func() {
		err := s.bus.Subscribe(ctx, busx.TopicTicketCreateRequest, s.handleCreateRequest)
		if err != nil && ctx.Err() == nil {
			slog.Error("ticketing: create-request subscription ended", "error", err)
		}
	}()
	go func() {
		err := s.bus.Subscribe(ctx, busx.TopicTicketUpdateRequest, s.handleUpdateRequest)
		if err != nil && ctx.Err() == nil {
			slog.Error("ticketing: update-request subscription ended", "error", err)
		}
	}()

	<-ctx.Done()
	s.pub.Close()
	return nil
}

func (s *Service) handleCreateRequest(ctx context.Context, payload []byte) error {
	var spec model.TicketSpec
	if err := json.Unmarshal(payload, &spec); err != nil {
		slog.Warn("ticketing: invalid ticket create request payload", "error", err)
		return nil
	}

	ticketID, err := s.createWithBreaker(ctx, spec)
	if err == nil {
		s.publishTicketCreated(model.TicketCreated{
			TicketID: ticketID, Success: true,
			SourceConversationID: spec.SourceConversationID, SourceMessageID: spec.SourceMessageID,
			Category: spec.Category, Urgency: spec.Urgency,
		})
		return nil
	}

	slog.Warn("ticketing: create failed, enqueuing to fallback queue", "ticket_spec_id", spec.ID, "error", err)
	if enqueueErr := s.fallback.Enqueue(ctx, spec); enqueueErr != nil {
		slog.Error("ticketing: failed to enqueue fallback entry", "error", enqueueErr)
	}
	return nil
}

func (s *Service) handleUpdateRequest(ctx context.Context, payload []byte) error {
	var update model.TicketUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		slog.Warn("ticketing: invalid ticket update request payload", "error", err)
		return nil
	}

	if !s.breaker.Allow() {
		slog.Warn("ticketing: breaker open, dropping ticket update", "ticket_id", update.TicketID)
		_ = s.pub.Enqueue(busx.TopicTicketUpdated, model.TicketUpdated{
			TicketID: update.TicketID, Success: false, Error: "helpdesk unavailable (breaker open)",
			ConversationID: update.ConversationID,
		}, busx.PriorityNormal)
		return nil
	}

	err := s.helpdesk.UpdateTicket(ctx, update)
	if err != nil {
		s.breaker.RecordFailure()
		slog.Error("ticketing: ticket update failed", "ticket_id", update.TicketID, "error", err)
		_ = s.pub.Enqueue(busx.TopicTicketUpdated, model.TicketUpdated{
			TicketID: update.TicketID, Success: false, Error: err.Error(),
			ConversationID: update.ConversationID,
		}, busx.PriorityNormal)
		return nil
	}

	s.breaker.RecordSuccess()
	_ = s.pub.Enqueue(busx.TopicTicketUpdated, model.TicketUpdated{
		TicketID: update.TicketID, Success: true, ConversationID: update.ConversationID,
	}, busx.PriorityNormal)
	return nil
}

// createWithBreaker is shared by the live create path and the fallback
// queue's retry loop: it respects the breaker before ever reaching the
// network (spec §4.3's state machine — "received -> (breaker open OR
// creation error) -> enqueued_fallback").
func (s *Service) createWithBreaker(ctx context.Context, spec model.TicketSpec) (string, error) {
	if !s.breaker.Allow() {
		return "", model.NewClassifiedError(model.KindTransient, errBreakerOpen)
	}

	ticketID, err := s.helpdesk.CreateTicket(ctx, spec)
	if err != nil {
		s.breaker.RecordFailure()
		return "", err
	}
	s.breaker.RecordSuccess()
	return ticketID, nil
}

func (s *Service) publishTicketCreated(created model.TicketCreated) {
	_ = s.pub.Enqueue(busx.TopicTicketCreated, created, busx.PriorityNormal)
}

// HealthChecks exposes dependency liveness probes for the admin HTTP surface.
func (s *Service) HealthChecks() []httpapi.DepCheck {
	return []httpapi.DepCheck{
		{Name: "bus", Check: func() error { return s.bus.Ping(context.Background()) }},
		{Name: "store", Check: func() error { return s.store.Ping(context.Background()) }},
		{Name: "breaker", Check: func() error {
			if s.breaker.State() == BreakerOpen {
				return errBreakerOpen
			}
			return nil
		}},
	}
}

// CreateTicketManually lets the admin HTTP surface create a ticket
// synchronously, bypassing the bus (used for operator troubleshooting).
func (s *Service) CreateTicketManually(ctx context.Context, spec model.TicketSpec) (string, error) {
	return s.createWithBreaker(ctx, spec)
}
