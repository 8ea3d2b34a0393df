// Package model holds the domain types shared by all three chatdesk services.
package model

import "time"

// MessageKind is the closed set of inbound message content types.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindVideo    MessageKind = "video"
	KindAudio    MessageKind = "audio"
	KindDocument MessageKind = "document"
	KindSticker  MessageKind = "sticker"
	KindLocation MessageKind = "location"
	KindContact  MessageKind = "contact"
	KindUnknown  MessageKind = "unknown"
)

// Priority is carried end-to-end from inbound tagging through outbound delivery.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// MediaDescriptor carries the per-kind media fields for non-text messages.
type MediaDescriptor struct {
	Kind      MessageKind `json:"kind"`
	MimeType  string      `json:"mime_type,omitempty"`
	SizeBytes int64       `json:"size_bytes,omitempty"`
	LocalPath string      `json:"local_path,omitempty"` // set after best-effort download
	Caption   string      `json:"caption,omitempty"`
	Latitude  float64     `json:"latitude,omitempty"`  // KindLocation
	Longitude float64     `json:"longitude,omitempty"` // KindLocation
	Live      bool        `json:"live,omitempty"`       // KindLocation: live-location share
}

// QuotedMessage is the structural threading signal: a reply that quotes an
// earlier message (possibly the bot's own ticket-confirmation reply).
type QuotedMessage struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Author string `json:"author"`
}

// InboundMessage is the normalized form of a message received from the chat
// transport, published exactly once on the `messages.inbound` topic.
type InboundMessage struct {
	ID             string            `json:"id"`
	SenderID       string            `json:"sender_id"`
	ConversationID string            `json:"conversation_id"`
	Transport      string            `json:"transport"`
	Timestamp      time.Time         `json:"timestamp"`
	Text           string            `json:"text"`
	Kind           MessageKind       `json:"kind"`
	Media          *MediaDescriptor  `json:"media,omitempty"`
	Quoted         *QuotedMessage    `json:"quoted,omitempty"`
	Mentions       []string          `json:"mentions,omitempty"`
	Forwarded      bool              `json:"forwarded,omitempty"`
	Priority       Priority          `json:"priority,omitempty"`
	IsGroup        bool              `json:"is_group,omitempty"`
}

// Fingerprint identifies candidate duplicates: same sender, text, and kind.
func (m InboundMessage) Fingerprint() string {
	return m.SenderID + "\x00" + string(m.Kind) + "\x00" + m.Text
}
