// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades GET requests to a websocket, opens a hub session
// for the connection and starts its pumps. The client must send a join frame
// before anything else is accepted.
func (g *Gateway) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, g, r.RemoteAddr)
	if err := g.admit(client); err != nil {
		g.log.Warn("Connection refused", "conn_id", client.id, "error", err)
		client.sendClose(websocket.CloseTryAgainLater, "server unavailable")
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func (g *Gateway) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "chatnest server is running! clients=%d users=%d", g.Clients(), g.hub.Registry().Len())
}

// TestPageHandler serves an HTML page for exercising the websocket protocol
// by hand: identify, join a room, send messages and toggle typing.
func (g *Gateway) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		g.log.Warn("Error writing HTML response", "error", err)
	}
}
