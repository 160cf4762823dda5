package adminserver

import (
	"encoding/json"
	"net/http"

	"github.com/cyberinferno/pzrcon/broadcaster"
	"github.com/cyberinferno/pzrcon/logger"
)

// Client message types accepted on /ws/{serverId}.
const (
	msgPing         = "ping"
	msgPong         = "pong"
	msgGetStatus    = "get_status"
	msgCheckPlayers = "check_players"
	msgError        = "error"
)

// maxClientMessage bounds one websocket frame read from a client.
const maxClientMessage = 4 << 10

type clientMessage struct {
	Type string `json:"type"`
}

type replyMessage struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
}

// handleWebSocket subscribes the client to serverID's events for as long as
// the connection lives. The client first receives the current
// connection_status, then answers to ping, get_status and check_players.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request, serverID int) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logger.Field{Key: "error", Value: err})
		return
	}
	conn.SetReadLimit(maxClientMessage)

	sink := broadcaster.NewWebSocketSink(conn, h.config.SinkWriteTimeout)
	log := h.log.With(
		logger.Field{Key: "server_id", Value: serverID},
		logger.Field{Key: "sink_id", Value: sink.ID().String()},
		logger.Field{Key: "remote", Value: r.RemoteAddr},
	)

	h.svc.bus.Subscribe(serverID, sink)
	log.Info("websocket client connected")
	defer func() {
		h.svc.bus.Unsubscribe(serverID, sink)
		_ = sink.Close()
		log.Info("websocket client disconnected")
	}()

	if err := sink.Send(h.svc.Status(serverID)); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := sink.Send(replyMessage{Type: msgError, Error: "invalid message"}); err != nil {
				return
			}
			continue
		}

		var reply any
		switch msg.Type {
		case msgPing:
			reply = replyMessage{Type: msgPong}
		case msgGetStatus:
			reply = h.svc.Status(serverID)
		case msgCheckPlayers:
			reply = h.svc.Players(r.Context(), serverID)
		default:
			reply = replyMessage{Type: msgError, Error: "unknown message type: " + msg.Type}
		}

		if err := sink.Send(reply); err != nil {
			return
		}
	}
}
