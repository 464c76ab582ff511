// Package server tracks live websocket clients and bridges them to the
// realtime hub via the Gateway type.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/chatnest/internal/realtime"
	"github.com/gorilla/websocket"
)

// Gateway owns the websocket side of every session. It registers clients,
// starts their pumps and runs the disconnect cascade when a client goes away.
type Gateway struct {
	log      *slog.Logger
	hub      *realtime.Hub
	verifier *TokenVerifier
	upgrader websocket.Upgrader

	clients    map[realtime.ConnectionID]*Client
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewGateway creates a Gateway in front of hub. A nil verifier accepts the
// userId of join frames as is.
func NewGateway(log *slog.Logger, hub *realtime.Hub, verifier *TokenVerifier) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		log:        log,
		hub:        hub,
		verifier:   verifier,
		clients:    make(map[realtime.ConnectionID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

// Hub returns the core the gateway feeds.
func (g *Gateway) Hub() *realtime.Hub {
	return g.hub
}

// Clients returns the number of clients with running pumps.
func (g *Gateway) Clients() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.clients)
}

// Run handles client registration and unregistration until Shutdown is
// called. It should run in its own goroutine.
func (g *Gateway) Run() {
	defer close(g.done)

	for {
		select {
		case <-g.ctx.Done():
			g.shutdownClients()
			return

		case client := <-g.register:
			if client == nil {
				g.log.Warn("Received nil client registration; skipping")
				continue
			}

			g.mutex.Lock()
			g.clients[client.id] = client
			clientCount := len(g.clients)
			g.mutex.Unlock()
			g.log.Info("Client registered", "conn_id", client.id, "remote_addr", client.addr, "clients", clientCount)

			g.wg.Add(2)
			go func() {
				defer g.wg.Done()
				client.writePump()
			}()
			go func() {
				defer g.wg.Done()
				client.readPump()
			}()

		case client := <-g.unregister:
			g.release(client)
		}
	}
}

// admit opens the hub session for client and hands it to Run.
func (g *Gateway) admit(client *Client) error {
	if err := g.hub.Connect(client.id, client.out); err != nil {
		return err
	}

	select {
	case g.register <- client:
		return nil
	case <-g.ctx.Done():
		_ = g.hub.Disconnect(client.id)
		return context.Canceled
	}
}

// leave is called by a client's read pump when its connection ends.
func (g *Gateway) leave(client *Client) {
	select {
	case g.unregister <- client:
	case <-g.ctx.Done():
		g.release(client)
	}
}

// release forgets client and runs the disconnect cascade. It is safe to call
// more than once, and after the hub already evicted the connection.
func (g *Gateway) release(client *Client) {
	g.mutex.Lock()
	_, ok := g.clients[client.id]
	delete(g.clients, client.id)
	clientCount := len(g.clients)
	g.mutex.Unlock()

	if err := g.hub.Disconnect(client.id); err != nil && !errors.Is(err, realtime.ErrUnknownConnection) {
		g.log.Error("Disconnect cascade failed", "conn_id", client.id, "error", err)
	}
	if ok {
		g.log.Info("Client unregistered", "conn_id", client.id, "remote_addr", client.addr, "clients", clientCount)
	}
}

// shutdownClients gracefully closes all active client connections
func (g *Gateway) shutdownClients() {
	g.log.Info("Shutting down all client connections...")

	g.mutex.RLock()
	clients := make([]*Client, 0, len(g.clients))
	for _, client := range g.clients {
		clients = append(clients, client)
	}
	g.mutex.RUnlock()

	for _, client := range clients {
		client.sendClose(websocket.CloseGoingAway, "server shutting down")
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				g.log.Warn("Error closing client connection", "conn_id", client.id, "error", err)
			}
		}
	}

	g.log.Info("Closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the gateway and waits for all client
// goroutines to complete, or for the timeout to pass.
func (g *Gateway) Shutdown(timeout time.Duration) error {
	g.log.Info("Initiating gateway shutdown...")

	g.cancel()
	<-g.done

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.log.Info("Gateway shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		g.log.Warn("Gateway shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
