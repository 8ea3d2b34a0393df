package model

import "time"

const MaxBodyCodeUnits = 4096

// RetryAttempt records one failed delivery attempt.
type RetryAttempt struct {
	Attempt   int       `json:"attempt"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// OutboundCommand is a send request placed on the `messages.outbound` topic
// by any service and consumed by the transport gateway.
type OutboundCommand struct {
	ID            string            `json:"id"`
	Destination   string            `json:"destination"`
	Text          string            `json:"text,omitempty"`
	Media         *MediaDescriptor  `json:"media,omitempty"`
	Mentions      []string          `json:"mentions,omitempty"`
	QuotedID      string            `json:"quoted_id,omitempty"`
	Priority      Priority          `json:"priority"`
	ScheduledAt   *time.Time        `json:"scheduled_at,omitempty"`
	TemplateRef   string            `json:"template_ref,omitempty"`
	TemplateVars  map[string]string `json:"template_vars,omitempty"`
	TemplateApplied bool            `json:"template_applied,omitempty"`
	RetryCount    int               `json:"retry_count"`
	RetryHistory  []RetryAttempt    `json:"retry_history,omitempty"`
	EnqueuedAt    time.Time         `json:"enqueued_at"`
}

// HasText reports whether the command carries text content.
func (c OutboundCommand) HasText() bool { return c.Text != "" }

// HasMedia reports whether the command carries media content.
func (c OutboundCommand) HasMedia() bool { return c.Media != nil }

// Valid enforces the "exactly one of text/media present, body within max size"
// invariant from spec §3.
func (c OutboundCommand) Valid() error {
	if c.HasText() == c.HasMedia() {
		return ErrValidationf("outbound command must have exactly one of text or media")
	}
	if len(c.Text) > MaxBodyCodeUnits {
		return ErrValidationf("outbound body exceeds %d code units", MaxBodyCodeUnits)
	}
	return nil
}

// SendResult is the outcome of one delivery attempt, published on
// `service.notifications` as a `message_send_result` event.
type SendResult struct {
	CommandID string    `json:"command_id"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
	SentAt    time.Time `json:"sent_at"`
}
