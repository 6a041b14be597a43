package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/whiteroom-io/whiteroom/pkg/room"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// same-origin policy is enforced upstream
	CheckOrigin: func(r *http.Request) bool { return true },
}

const writeTimeout = 10 * time.Second

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]
	_, role := s.subject(r)

	rm, err := s.manager.GetOrCreate(roomID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	// the role is queued before the upgrade; the room assigns it to the
	// next connection that registers
	rm.EnqueuePendingRole(role)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID).Msg("websocket upgrade failed")
		return
	}

	client := room.NewClient()
	logger := s.logger.With().Str("room_id", roomID).Str("conn_id", client.ID).Logger()
	logger.Info().Str("role", string(role)).Msg("connection opened")

	rm.Attach(client)
	go writePump(conn, client, logger)
	readLoop(conn, rm, client, logger)
}

// writePump is the only writer on the socket. It drains the client's queue
// until the room closes it on unregister.
func writePump(conn *websocket.Conn, client *room.Client, logger zerolog.Logger) {
	for f := range client.Out() {
		msgType := websocket.TextMessage
		if f.Binary {
			msgType = websocket.BinaryMessage
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(msgType, f.Data); err != nil {
			logger.Debug().Err(err).Msg("write failed, dropping connection")
			_ = conn.Close()
			return
		}
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
}

func readLoop(conn *websocket.Conn, rm *room.Room, client *room.Client, logger zerolog.Logger) {
	defer func() {
		rm.Detach(client)
		_ = conn.Close()
		logger.Info().Msg("connection closed")
	}()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("read failed")
			}
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			rm.HandleFrame(client, data)
		case websocket.TextMessage:
			if string(data) == "ping" {
				client.Push(room.OutFrame{Data: []byte("pong")})
			}
		}
	}
}
