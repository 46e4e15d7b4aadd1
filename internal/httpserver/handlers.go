package httpserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"calassist/internal/dispatch"
)

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
	})
}

// handleStatus handles GET /status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.status
	st.Version = s.version
	respondJSON(w, http.StatusOK, st)
}

// handleWebSocket handles GET /ws. Each connection owns one Conversation and
// frames are handled strictly in the order they arrive.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.handler == nil {
		respondError(w, http.StatusServiceUnavailable, "dispatcher not configured")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.Connections.Inc()
		defer s.metrics.Connections.Dec()
	}

	conv := dispatch.NewConversation()
	log := s.logger.With(zap.String("conversation", conv.ID))
	log.Info("websocket connected")

	if err := writeFrame(conn, wsOutgoing{Type: msgReady, ConversationID: conv.ID}); err != nil {
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read error", zap.Error(err))
			}
			log.Info("websocket disconnected")
			return
		}

		out := s.handleFrame(r.Context(), conv, raw)
		if err := writeFrame(conn, out); err != nil {
			log.Warn("websocket write error", zap.Error(err))
			return
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, conv *dispatch.Conversation, raw []byte) wsOutgoing {
	var msg wsIncoming
	if err := json.Unmarshal(raw, &msg); err != nil {
		return wsOutgoing{Type: msgError, Message: "invalid JSON: " + err.Error()}
	}

	switch msg.Type {
	case msgUserMessage:
		ctx, cancel := context.WithTimeout(ctx, s.turnTimeout)
		defer cancel()
		reply := s.handler.Handle(ctx, conv, msg.Content)
		out := wsOutgoing{Type: msgReply, ConversationID: conv.ID, Reply: &reply}
		if p := conv.Pending(); p != nil {
			out.Pending = p.Summary
		}
		return out

	case msgReset:
		conv.Reset()
		return wsOutgoing{Type: msgReady, ConversationID: conv.ID}

	default:
		return wsOutgoing{Type: msgError, Message: "unknown message type: " + msg.Type}
	}
}

func writeFrame(conn *websocket.Conn, out wsOutgoing) error {
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
