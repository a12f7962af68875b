package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/waitline/queuecoord/internal/channel/realtime"
)

// wsUpgrader accepts connections from any origin: the realtime bus is a
// read channel for already-authenticated API consumers, not a CSRF
// boundary, and the client authenticates over the socket itself via an
// `authenticate` frame per §4.E.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// serveWebsocket upgrades r and hands the connection to hub, owning the
// read loop as hub.Attach's contract requires: every inbound frame goes
// to hub.HandleClientFrame until the client disconnects, at which point
// the connection is detached.
func serveWebsocket(hub *realtime.Hub, log zerolog.Logger, w http.ResponseWriter, r *http.Request) {
	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("httpapi: websocket upgrade failed")
		return
	}
	defer ws.Close()

	hub.Attach(ws)
	defer hub.Detach(ws)

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		hub.HandleClientFrame(ws, raw)
	}
}
