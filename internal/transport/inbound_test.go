package transport

import (
	"testing"

	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

func TestPriorityFor_UrgentKeyword(t *testing.T) {
	msg := model.InboundMessage{Text: "this is Urgent please help"}
	if got := priorityFor(msg, nil); got != model.PriorityHigh {
		t.Errorf("priorityFor() = %q, want high", got)
	}
}

func TestPriorityFor_LiveLocation(t *testing.T) {
	msg := model.InboundMessage{Text: "sharing my location"}
	media := &model.MediaDescriptor{Kind: model.KindLocation, Live: true}
	if got := priorityFor(msg, media); got != model.PriorityHigh {
		t.Errorf("priorityFor() = %q, want high for live location", got)
	}
}

func TestPriorityFor_StaticLocationIsNormal(t *testing.T) {
	msg := model.InboundMessage{Text: "here's a place"}
	media := &model.MediaDescriptor{Kind: model.KindLocation, Live: false}
	if got := priorityFor(msg, media); got != model.PriorityNormal {
		t.Errorf("priorityFor() = %q, want normal for non-live location", got)
	}
}

func TestPriorityFor_GroupWithMentions(t *testing.T) {
	msg := model.InboundMessage{Text: "can someone look at this", IsGroup: true, Mentions: []string{"user-1"}}
	if got := priorityFor(msg, nil); got != model.PriorityHigh {
		t.Errorf("priorityFor() = %q, want high for group message with mentions", got)
	}
}

func TestPriorityFor_GroupWithoutMentionsIsNormal(t *testing.T) {
	msg := model.InboundMessage{Text: "just chatting", IsGroup: true}
	if got := priorityFor(msg, nil); got != model.PriorityNormal {
		t.Errorf("priorityFor() = %q, want normal", got)
	}
}

func TestPriorityFor_DirectMessageWithMentionsIsNormal(t *testing.T) {
	msg := model.InboundMessage{Text: "hi there", IsGroup: false, Mentions: []string{"user-1"}}
	if got := priorityFor(msg, nil); got != model.PriorityNormal {
		t.Errorf("priorityFor() = %q, want normal: mentions only matter in group messages", got)
	}
}

func TestInboundPipeline_NormalizePopulatesMentionsAndPriority(t *testing.T) {
	p := NewInboundPipeline("whatsapp", "@g.us", "bot-1", nil, nil)
	env := bridgeEnvelope{
		From: "sender-1", Chat: "room-1@g.us", Content: "urgent: server is down",
		Mentions: []string{"user-a", "user-b"},
	}

	msg := p.normalize(env)
	if len(msg.Mentions) != 2 {
		t.Fatalf("expected 2 mentions, got %d", len(msg.Mentions))
	}
	if msg.Priority != model.PriorityHigh {
		t.Errorf("expected high priority for urgent text, got %q", msg.Priority)
	}
	if !msg.IsGroup {
		t.Error("expected message addressed to a group-suffixed chat to be marked as group")
	}
}
