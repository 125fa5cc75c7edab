package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voxbridge/callcore/internal/audio"
	"github.com/voxbridge/callcore/internal/auth"
	"github.com/voxbridge/callcore/internal/callerr"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler exposes the call session WebSocket endpoint.
type Handler struct {
	manager *Manager
	jwt     *auth.JWTManager
	logger  zerolog.Logger
}

// NewHandler builds a Handler bound to a Manager and the JWT manager
// used to validate admission tokens.
func NewHandler(manager *Manager, jwtManager *auth.JWTManager, logger zerolog.Logger) *Handler {
	return &Handler{
		manager: manager,
		jwt:     jwtManager,
		logger:  logger.With().Str("component", "orchestrator_handler").Logger(),
	}
}

// ServeWS upgrades a connection to WebSocket and admits its bearer
// token's user into the call session named by the sessionID URL
// parameter.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	claims, err := h.jwt.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	cs, p, err := h.manager.Admit(r.Context(), sessionID, claims.UserID)
	if err != nil {
		h.logger.Warn().Err(err).Str("session_id", sessionID).Str("user_id", claims.UserID).Msg("admission rejected")
		_ = conn.WriteJSON(outboundMessage{Type: outboundError, Reason: admissionReason(err)})
		_ = conn.Close()
		return
	}

	h.logger.Info().Str("session_id", sessionID).Str("user_id", claims.UserID).Msg("participant admitted")

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.writePump(conn, p)
	h.readPump(conn, cs, p)
}

func admissionReason(err error) string {
	switch err {
	case ErrUnknownUser, ErrInvalidUserID, ErrSessionFull:
		return string(callerr.KindUnauthorized)
	case ErrSessionEnded:
		return string(callerr.KindSessionEnded)
	default:
		return string(callerr.KindProtocol)
	}
}

func bearerToken(r *http.Request) string {
	if v := r.URL.Query().Get("token"); v != "" {
		return v
	}
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(h, prefix) {
		return strings.TrimPrefix(h, prefix)
	}
	return ""
}

// readPump consumes binary PCM frames and JSON control messages until
// the connection closes, then tears the participant down as a leave.
func (h *Handler) readPump(conn *websocket.Conn, cs *CallSession, p *participant) {
	defer func() {
		_ = conn.Close()
		// A superseded connection leaves nothing behind: the participant
		// registered under its user id now belongs to the newer connection.
		cs.mu.RLock()
		current := cs.participants[p.userID] == p
		cs.mu.RUnlock()
		if current {
			cs.Leave(context.Background(), p.userID)
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if len(data) > audio.MaxFrameBytes {
				h.sendError(conn, callerr.KindProtocol)
				continue
			}
			cs.HandleFrame(p.userID, data)

		case websocket.TextMessage:
			h.handleControl(conn, cs, p, data)
		}
	}
}

func (h *Handler) handleControl(conn *websocket.Conn, cs *CallSession, p *participant, data []byte) {
	var ctrl inboundControl
	if err := json.Unmarshal(data, &ctrl); err != nil {
		h.sendError(conn, callerr.KindProtocol)
		return
	}

	switch ctrl.Type {
	case "ping":
		_ = p.enqueueFinal(outboundEnvelope{msg: outboundMessage{Type: outboundPong}})
	case "mute":
		cs.Mute(p.userID)
	case "unmute":
		cs.Unmute(p.userID)
	case "leave":
		cs.Leave(context.Background(), p.userID)
	default:
		h.sendError(conn, callerr.KindProtocol)
	}
}

func (h *Handler) sendError(conn *websocket.Conn, kind callerr.Kind) {
	_ = conn.WriteJSON(outboundMessage{Type: outboundError, Reason: string(kind)})
}

// writePump drains a participant's coalesced interims and ordered
// final queue, plus a keepalive ping, until the participant is closed.
func (h *Handler) writePump(conn *websocket.Conn, p *participant) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-p.closed:
			return

		case env, ok := <-p.finalCh:
			if !ok {
				return
			}
			if err := h.writeEnvelope(conn, env); err != nil {
				return
			}

		case <-p.interimSignal:
			for _, msg := range p.drainInterims() {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) writeEnvelope(conn *websocket.Conn, env outboundEnvelope) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(env.msg); err != nil {
		return err
	}
	if len(env.audio) > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.BinaryMessage, env.audio); err != nil {
			return err
		}
	}
	return nil
}
