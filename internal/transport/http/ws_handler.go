package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	apperrors "live-quiz-service/internal/errors"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

// Frame types sent to room subscribers.
const (
	frameInitialState    = "initialState"
	frameGameStateUpdate = "gameStateUpdate"
	frameAck             = "ack"
	frameError           = "error"
)

type WSHandler struct {
	gateway  *app.Gateway
	upgrader websocket.Upgrader
}

func NewWSHandler(gateway *app.Gateway) *WSHandler {
	return &WSHandler{
		gateway: gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	PlayerName string `json:"playerName"`
}

type answerPayload struct {
	PlayerID    string `json:"playerId"`
	AnswerIndex *int   `json:"answerIndex"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type ackPayload struct {
	Command string         `json:"command"`
	Version uint64         `json:"version"`
	Player  *domain.Player `json:"player,omitempty"`
}

type errorPayload struct {
	Command string         `json:"command,omitempty"`
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Player  *domain.Player `json:"player,omitempty"`
}

// ServeWS subscribes the connection to the room of the session in the path. The first
// frame is initialState; every accepted mutation afterwards produces gameStateUpdate.
// Clients may send commands on the same socket; each gets an ack or an error frame.
func (h *WSHandler) ServeWS(c *gin.Context) {
	sessionID := normalizeID(c.Param("id"))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "ws: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	sub, err := h.gateway.Subscribe(ctx, sessionID)
	if err != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(errorFrame("subscribe", err))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown session"))
		return
	}
	defer h.gateway.Unsubscribe(sub)

	send := make(chan outboundMessage[any], 16)
	done := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, conn, sub, send, done)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.DebugContext(ctx, "ws: read failed", "session", sessionID, "error", err)
			}
			break
		}
		reply := h.handleCommand(ctx, sessionID, inbound)
		select {
		case send <- reply:
		case <-writerDone:
		}
	}

	close(done)
	<-writerDone
}

// writeLoop owns every write to conn: snapshots from the room, command replies and pings.
func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *app.Subscription, send <-chan outboundMessage[any], done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(msg any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			slog.DebugContext(ctx, "ws: write failed", "session", sub.SessionID(), "error", err)
			_ = conn.Close()
			return false
		}
		return true
	}

	first := true
	for {
		select {
		case <-done:
			return
		case snap, ok := <-sub.C():
			if !ok {
				// The room was closed under us: the session is gone.
				write(errorFrame("", domain.ErrSessionNotFound))
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"), time.Now().Add(writeWait))
				_ = conn.Close()
				return
			}
			frame := frameGameStateUpdate
			if first {
				frame, first = frameInitialState, false
			}
			if !write(outboundMessage[any]{Type: frame, Payload: snap}) {
				return
			}
		case msg := <-send:
			if !write(msg) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func (h *WSHandler) handleCommand(ctx context.Context, sessionID string, in inboundMessage) outboundMessage[any] {
	var (
		snap   domain.Snapshot
		player *domain.Player
		err    error
	)
	switch in.Type {
	case "join":
		var payload joinPayload
		if err := decodePayload(in.Payload, &payload); err != nil {
			return invalidPayload(in.Type)
		}
		var p domain.Player
		p, snap, err = h.gateway.JoinSession(ctx, sessionID, payload.PlayerName)
		if p.ID != "" {
			player = &p
		}
	case "answer":
		var payload answerPayload
		if err := decodePayload(in.Payload, &payload); err != nil || payload.AnswerIndex == nil {
			return invalidPayload(in.Type)
		}
		snap, err = h.gateway.SubmitAnswer(ctx, sessionID, payload.PlayerID, *payload.AnswerIndex)
	case "start":
		snap, err = h.gateway.StartSession(ctx, sessionID)
	case "results":
		snap, err = h.gateway.RevealResults(ctx, sessionID)
	case "next":
		snap, err = h.gateway.Advance(ctx, sessionID)
	case "restart":
		snap, err = h.gateway.RestartSession(ctx, sessionID)
	default:
		return outboundMessage[any]{Type: frameError, Payload: errorPayload{
			Command: in.Type,
			Code:    http.StatusBadRequest,
			Message: "unsupported message type",
		}}
	}
	if err != nil {
		frame := errorFrame(in.Type, err)
		if payload, ok := frame.Payload.(errorPayload); ok && player != nil {
			// The player was added even though write-through failed.
			payload.Player = player
			frame.Payload = payload
		}
		return frame
	}
	return outboundMessage[any]{Type: frameAck, Payload: ackPayload{Command: in.Type, Version: snap.Version, Player: player}}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(raw, v)
}

func invalidPayload(command string) outboundMessage[any] {
	return outboundMessage[any]{Type: frameError, Payload: errorPayload{
		Command: command,
		Code:    http.StatusBadRequest,
		Message: "invalid " + command + " payload",
	}}
}

func errorFrame(command string, err error) outboundMessage[any] {
	e := apperrors.Convert(err)
	return outboundMessage[any]{Type: frameError, Payload: errorPayload{
		Command: command,
		Code:    e.HTTPStatusCode(),
		Message: e.Message,
	}}
}

func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
