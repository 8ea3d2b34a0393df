package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// bridgeEnvelope is the wire shape exchanged with the chat bridge process
// (grounded on goclaw's whatsapp.Channel JSON envelope: {"type":...}).
type bridgeEnvelope struct {
	Type string `json:"type"`

	// outbound (gateway -> bridge)
	To      string `json:"to,omitempty"`
	Content string `json:"content,omitempty"`

	// inbound (bridge -> gateway)
	From      string            `json:"from,omitempty"`
	Chat      string            `json:"chat,omitempty"`
	ID        string            `json:"id,omitempty"`
	FromName  string            `json:"from_name,omitempty"`
	Media     []bridgeMedia     `json:"media,omitempty"`
	Quoted    *bridgeQuoted     `json:"quoted,omitempty"`
	Mentions  []string          `json:"mentions,omitempty"`
	Timestamp int64             `json:"timestamp,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`

	// lifecycle (bridge -> gateway)
	QR     string `json:"qr,omitempty"`
	Reason int    `json:"reason,omitempty"`
}

type bridgeMedia struct {
	Kind      string  `json:"kind"`
	URL       string  `json:"url"`
	MimeType  string  `json:"mime_type"`
	Caption   string  `json:"caption,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Live      bool    `json:"live,omitempty"`
}

type bridgeQuoted struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
	FromBot   bool   `json:"from_bot"`
}

const (
	envOpen    = "open"
	envQR      = "qr"
	envClose   = "close"
	envMessage = "message"
)

// wsHandle adapts a *websocket.Conn to the Handle interface.
type wsHandle struct {
	conn *websocket.Conn
}

func (h *wsHandle) Send(_ context.Context, destination string, body []byte) error {
	env := bridgeEnvelope{Type: envMessage, To: destination, Content: string(body)}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: marshal outbound envelope: %w", err)
	}
	return h.conn.WriteMessage(websocket.TextMessage, data)
}

func (h *wsHandle) Close() error {
	return h.conn.Close()
}

// Bridge drives the websocket session against the chat bridge process,
// feeding state transitions into a Connection and delivering decoded
// inbound envelopes to onMessage.
type Bridge struct {
	url       string
	conn      *Connection
	onMessage func(bridgeEnvelope)
	onQR      func(code string)
}

func NewBridge(url string, conn *Connection, onMessage func(bridgeEnvelope), onQR func(string)) *Bridge {
	return &Bridge{url: url, conn: conn, onMessage: onMessage, onQR: onQR}
}

// Run dials and listens until ctx is cancelled or the connection terminates,
// reconnecting per the Connection state machine's policy between attempts.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.conn.Terminate()
			return
		default:
		}

		if b.conn.State() == StateTerminated {
			return
		}

		b.conn.OnConnecting()
		ws, err := b.dial(ctx)
		if err != nil {
			slog.Warn("transport: bridge dial failed", "error", err)
			delay, retry := b.conn.OnClose(ReasonOther)
			if !retry {
				return
			}
			b.sleep(ctx, delay)
			continue
		}

		reason := b.listen(ctx, ws)
		_ = ws.Close()
		if reason == ReasonForbidden403 || (reason == ReasonLoggedOut401 && b.conn.HasEverConnected()) {
			b.conn.OnClose(reason)
			return
		}
		delay, retry := b.conn.OnClose(reason)
		if !retry {
			return
		}
		b.sleep(ctx, delay)
	}
}

func (b *Bridge) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	ws, _, err := dialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial bridge %s: %w", b.url, err)
	}
	return ws, nil
}

// listen reads frames until error or close envelope, returning the
// close reason the bridge reported (ReasonOther if the socket just dropped).
func (b *Bridge) listen(ctx context.Context, ws *websocket.Conn) CloseReason {
	for {
		select {
		case <-ctx.Done():
			return ReasonOther
		default:
		}

		_, data, err := ws.ReadMessage()
		if err != nil {
			slog.Warn("transport: bridge read error", "error", err)
			return ReasonOther
		}

		var env bridgeEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("transport: invalid bridge envelope", "error", err)
			continue
		}

		switch env.Type {
		case envQR:
			b.conn.OnQR()
			if b.onQR != nil {
				b.onQR(env.QR)
			}
		case envOpen:
			b.conn.OnOpen(&wsHandle{conn: ws})
		case envClose:
			return CloseReason(env.Reason)
		case envMessage:
			if b.onMessage != nil {
				b.onMessage(env)
			}
		default:
			slog.Debug("transport: unknown bridge envelope type", "type", env.Type)
		}
	}
}

func (b *Bridge) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
