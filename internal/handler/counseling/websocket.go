package counseling

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/voicecounsel/internal/api"
	"github.com/zhouzirui/voicecounsel/internal/auth"
	"github.com/zhouzirui/voicecounsel/internal/model/counseling"
	counselingsvc "github.com/zhouzirui/voicecounsel/internal/service/counseling"
	"github.com/zhouzirui/voicecounsel/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

// Actions the browser asks for.
const (
	actionRequestPermission = "request_permission"
	actionStart             = "start"
	actionStop              = "stop"
	actionUpload            = "upload"
	actionLeave             = "leave"
)

type inboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func newCommand(kind string, data interface{}) outgoingMessage {
	return outgoingMessage{Type: kind, Data: data, Timestamp: time.Now().Unix()}
}

// handleWebSocket runs one counseling flow for the lifetime of the connection.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, api.UserMessage(api.ErrUnauthenticated))
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}

	connID := uuid.NewString()
	conn := newWSConn(raw)
	h.registry.add(connID, conn)
	log.Printf("[websocket] counseling connection %s opened for %s", connID, session.User().Email)

	ctx, cancel := context.WithCancel(r.Context())
	gateway := newRemoteGateway(conn.send)
	ctrl := counselingsvc.NewController(gateway, h.backend, session, h.opts)
	events := ctrl.Subscribe()

	var wg sync.WaitGroup
	defer func() {
		cancel()
		if err := ctrl.Close(); err != nil {
			log.Printf("[websocket] close controller: %v", err)
		}
		wg.Wait()
		h.registry.remove(connID)
		log.Printf("[websocket] counseling connection %s closed", connID)
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		h.forwardEvents(conn, events)
	}()
	go func() {
		defer wg.Done()
		h.pingLoop(ctx, conn)
	}()

	raw.SetReadDeadline(time.Now().Add(readTimeout))
	raw.SetPongHandler(func(string) error {
		raw.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	h.sendInfo(conn, "", map[string]any{
		"type":         "connected",
		"state":        ctrl.State(),
		"fileFallback": h.opts.OfferFileFallback,
		"autoStopMs":   h.opts.AutoStop.Milliseconds(),
	})

	for {
		var msg inboundMessage
		if err := raw.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		raw.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.Type == actionLeave {
			log.Printf("[websocket] connection %s left the flow", connID)
			return
		}
		h.handleMessage(ctx, conn, ctrl, gateway, &wg, &msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *wsConn, ctrl *counselingsvc.Controller, gateway *remoteGateway, wg *sync.WaitGroup, msg *inboundMessage) {
	switch msg.Type {
	case replyPermission, replyRecordingStarted, replyRecordingError, replyAudio, replyAudioError, replyPlaybackEnded, replyPlaybackError:
		if !gateway.deliver(*msg) {
			log.Printf("[websocket] dropping unsolicited %s", msg.Type)
		}
	case actionRequestPermission:
		h.run(wg, func() {
			if err := ctrl.RequestPermission(ctx); err != nil {
				h.sendError(conn, counselingsvc.UserMessage(err))
			}
		})
	case actionStart:
		h.run(wg, func() {
			if err := ctrl.Start(ctx); err != nil {
				h.sendError(conn, counselingsvc.UserMessage(err))
			}
		})
	case actionStop:
		h.run(wg, func() {
			result, err := ctrl.Stop(ctx)
			if err == nil && result == (counseling.ExchangeResult{}) {
				// 未在录音，Stop 为空操作
				return
			}
			h.reportExchange(conn, ctrl, result.SessionID, err)
		})
	case actionUpload:
		rec, err := decodeAudioReply(msg.Data)
		if err != nil {
			h.sendError(conn, counselingsvc.UserMessage(err))
			return
		}
		h.run(wg, func() {
			result, err := ctrl.Submit(ctx, rec)
			h.reportExchange(conn, ctrl, result.SessionID, err)
		})
	default:
		h.sendError(conn, "unsupported message type: "+msg.Type)
	}
}

func (h *Handler) run(wg *sync.WaitGroup, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn()
	}()
}

func (h *Handler) reportExchange(conn *wsConn, ctrl *counselingsvc.Controller, sessionID string, err error) {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		h.sendError(conn, counselingsvc.UserMessage(err))
		return
	}
	if sessionID == "" {
		sessionID = ctrl.Session().ID
	}
	h.sendInfo(conn, sessionID, map[string]any{
		"type":          "exchange",
		"exchangeCount": ctrl.Session().ExchangeCount,
	})
}

// forwardEvents relays controller events until the controller closes the channel.
func (h *Handler) forwardEvents(conn *wsConn, events <-chan counselingsvc.Event) {
	for ev := range events {
		msg := newCommand("state", ev)
		msg.SessionID = ev.Session.ID
		if err := conn.send(msg); err != nil {
			log.Printf("[websocket] write state failed: %v", err)
			continue
		}
		if ev.Complete {
			if err := conn.send(newCommand("complete", ev.Session)); err != nil {
				log.Printf("[websocket] write complete failed: %v", err)
			}
		}
	}
}

func (h *Handler) sendInfo(conn *wsConn, sessionID string, data map[string]any) {
	msg := newCommand("result", data)
	msg.SessionID = sessionID
	if err := conn.send(msg); err != nil {
		log.Printf("[websocket] write info failed: %v", err)
	}
}

func (h *Handler) sendError(conn *wsConn, message string) {
	if err := conn.send(newCommand("error", map[string]string{"message": message})); err != nil {
		log.Printf("[websocket] write error failed: %v", err)
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
