package transport

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/chatdesk/internal/busx"
	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

// urgentKeyword drives the text-based leg of the inbound priority rule
// (spec §4.1 step 4).
const urgentKeyword = "urgent"

// InboundPipeline turns bridge envelopes into normalized InboundMessages,
// applies the duplicate/rate-limit/spam filters (spec §8.7), writes the
// message log entry, and publishes the survivor on messages.inbound.
type InboundPipeline struct {
	transportName string
	groupSuffix   string
	botIdentity   string

	dup   *DuplicateFilter
	rate  *SenderRateLimiter
	log   *MessageLog
	pub   *busx.Publisher
}

func NewInboundPipeline(transportName, groupSuffix, botIdentity string, log *MessageLog, pub *busx.Publisher) *InboundPipeline {
	return &InboundPipeline{
		transportName: transportName,
		groupSuffix:   groupSuffix,
		botIdentity:   botIdentity,
		dup:           NewDuplicateFilter(),
		rate:          NewSenderRateLimiter(),
		log:           log,
		pub:           pub,
	}
}

// Handle processes one decoded bridge envelope of type "message".
func (p *InboundPipeline) Handle(env bridgeEnvelope) {
	msg := p.normalize(env)
	now := time.Now()

	if !p.dup.Allow(msg.Fingerprint(), now) {
		slog.Debug("transport: dropped duplicate inbound message", "sender_id", msg.SenderID, "message_id", msg.ID)
		return
	}
	if !p.rate.Allow(msg.SenderID, now) {
		slog.Warn("transport: dropped rate-limited inbound message", "sender_id", msg.SenderID, "message_id", msg.ID)
		return
	}
	// Spam heuristic is observational only: it never gates delivery, it only
	// annotates for downstream triage (spec §8.7).
	isSpam := LooksLikeSpam(msg.Text)

	if p.log != nil {
		entry := LogEntry{
			Direction: LogInbound,
			At:        msg.Timestamp,
			PeerID:    msg.SenderID,
			MessageID: msg.ID,
			Kind:      string(msg.Kind),
			Content:   msg.Text,
		}
		if msg.Media != nil {
			entry.MediaType = msg.Media.MimeType
			entry.MediaCaption = msg.Media.Caption
		}
		_ = p.log.Append(entry)
	}

	if isSpam {
		_ = p.pub.Enqueue(busx.TopicNotifications, busx.Notification{
			Event:   busx.EventSpamSuspected,
			Service: "transport",
			Detail:  map[string]interface{}{"message_id": msg.ID},
		}, busx.PriorityNormal)
	}
	_ = p.pub.Enqueue(busx.TopicInbound, msg, priorityOf(msg.Priority))
}

func priorityOf(p model.Priority) busx.Priority {
	if p == model.PriorityHigh {
		return busx.PriorityHigh
	}
	return busx.PriorityNormal
}

func (p *InboundPipeline) normalize(env bridgeEnvelope) model.InboundMessage {
	id := env.ID
	if id == "" {
		id = uuid.NewString()
	}

	kind, media := classifyMedia(env)
	isGroup := len(p.groupSuffix) > 0 && hasSuffix(env.Chat, p.groupSuffix)

	var quoted *model.QuotedMessage
	if env.Quoted != nil {
		author := env.From
		if env.Quoted.FromBot {
			author = p.botIdentity
		}
		quoted = &model.QuotedMessage{ID: env.Quoted.MessageID, Text: env.Quoted.Text, Author: author}
	}

	ts := time.Now().UTC()
	if env.Timestamp > 0 {
		ts = time.Unix(env.Timestamp, 0).UTC()
	}

	msg := model.InboundMessage{
		ID:             id,
		SenderID:       env.From,
		ConversationID: env.Chat,
		Transport:      p.transportName,
		Timestamp:      ts,
		Text:           env.Content,
		Kind:           kind,
		Media:          media,
		Quoted:         quotedOrNil(quoted),
		Mentions:       env.Mentions,
		IsGroup:        isGroup,
	}
	msg.Priority = priorityFor(msg, media)
	return msg
}

// priorityFor implements the spec §4.1 step 4 tagging rule: high if the
// message is a live-location share, its text mentions "urgent", or it is a
// group message naming other participants; normal otherwise.
func priorityFor(msg model.InboundMessage, media *model.MediaDescriptor) model.Priority {
	if media != nil && media.Kind == model.KindLocation && media.Live {
		return model.PriorityHigh
	}
	if strings.Contains(strings.ToLower(msg.Text), urgentKeyword) {
		return model.PriorityHigh
	}
	if msg.IsGroup && len(msg.Mentions) > 0 {
		return model.PriorityHigh
	}
	return model.PriorityNormal
}

func quotedOrNil(q *model.QuotedMessage) *model.QuotedMessage {
	if q == nil || q.ID == "" {
		return nil
	}
	return q
}

func classifyMedia(env bridgeEnvelope) (model.MessageKind, *model.MediaDescriptor) {
	if len(env.Media) == 0 {
		return model.KindText, nil
	}
	m := env.Media[0]
	kind := model.MessageKind(m.Kind)
	switch kind {
	case model.KindImage, model.KindVideo, model.KindAudio, model.KindDocument, model.KindSticker, model.KindLocation, model.KindContact:
	default:
		kind = model.KindUnknown
	}
	return kind, &model.MediaDescriptor{
		Kind:      kind,
		MimeType:  m.MimeType,
		Caption:   m.Caption,
		Latitude:  m.Latitude,
		Longitude: m.Longitude,
		Live:      m.Live,
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
