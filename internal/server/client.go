// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and frame dispatch for each connection.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Tyrowin/chatnest/internal/realtime"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one websocket connection. The read pump turns inbound frames into
// hub calls; the write pump drains the connection's outbox onto the socket.
type Client struct {
	id             realtime.ConnectionID
	conn           *websocket.Conn
	out            *realtime.Queue
	gateway        *Gateway
	addr           string
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	log            *slog.Logger
}

// NewClient creates a Client with a fresh connection id and an outbox sized
// from the active configuration.
func NewClient(conn *websocket.Conn, gateway *Gateway, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	id := realtime.ConnectionID(uuid.NewString())

	return &Client{
		id:             id,
		conn:           conn,
		out:            realtime.NewQueue(cfg.Outbox.Size, cfg.Outbox.Overflow),
		gateway:        gateway,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit),
		rateLimit:      cfg.RateLimit,
		log:            gateway.log.With("conn_id", id),
	}
}

// ID returns the connection id the hub knows this client by.
func (c *Client) ID() realtime.ConnectionID {
	return c.id
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// handleReadError logs the reason a read failed. Every read error ends the
// read loop.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Frame exceeded maximum size", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Debug("Client disconnected", "error", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug("Client connection closed", "error", err)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		c.log.Warn("Unexpected WebSocket close", "error", err)
	default:
		c.log.Debug("WebSocket read ended", "error", err)
	}
}

// checkRateLimit reports whether the client may send another frame.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.log.Warn("Rate limit exceeded; discarding frame",
			"burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// fail queues an error frame for the client.
func (c *Client) fail(code string, err error) {
	c.log.Debug("Rejecting frame", "code", code, "error", err)
	if pushErr := c.out.Push(errorEvent(code, err.Error())); pushErr != nil {
		c.log.Debug("Error frame not queued", "error", pushErr)
	}
}

// processMessage decodes one inbound frame and applies it to the hub. Failures
// are reported to the client and never close the connection.
func (c *Client) processMessage(raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Type == "" {
		c.fail(codeBadRequest, errBadFrame)
		return
	}

	if err := c.dispatch(frame); err != nil {
		c.fail(errorCode(err), err)
	}
}

func (c *Client) dispatch(frame Frame) error {
	hub := c.gateway.hub

	switch frame.Type {
	case frameJoin:
		var data JoinData
		if err := decodeData(frame, &data); err != nil {
			return err
		}
		user, err := c.gateway.verifier.authenticate(data)
		if err != nil {
			return err
		}
		return hub.Authenticate(c.id, user)

	case frameJoinRoom, frameLeaveRoom:
		var data RoomData
		if err := decodeData(frame, &data); err != nil {
			return err
		}
		if err := requireField(frame.Type, "chatRoomId", data.ChatRoomID); err != nil {
			return err
		}
		if frame.Type == frameJoinRoom {
			return hub.Join(c.id, realtime.RoomID(data.ChatRoomID))
		}
		return hub.Leave(c.id, realtime.RoomID(data.ChatRoomID))

	case frameSendMessage:
		var data SendMessageData
		if err := decodeData(frame, &data); err != nil {
			return err
		}
		if err := requireField(frame.Type, "chatRoomId", data.ChatRoomID); err != nil {
			return err
		}
		if len(data.Message) == 0 {
			return requireField(frame.Type, "message", "")
		}
		return hub.Message(c.id, realtime.RoomID(data.ChatRoomID), data.Message)

	case frameTyping:
		var data TypingData
		if err := decodeData(frame, &data); err != nil {
			return err
		}
		if err := requireField(frame.Type, "chatRoomId", data.ChatRoomID); err != nil {
			return err
		}
		return hub.Typing(c.id, realtime.RoomID(data.ChatRoomID), data.IsTyping)

	case frameMarkAsRead:
		var data MarkAsReadData
		if err := decodeData(frame, &data); err != nil {
			return err
		}
		if err := requireField(frame.Type, "chatRoomId", data.ChatRoomID); err != nil {
			return err
		}
		if err := requireField(frame.Type, "messageId", data.MessageID); err != nil {
			return err
		}
		return hub.MarkRead(c.id, realtime.RoomID(data.ChatRoomID), data.MessageID)

	case frameSetStatus:
		var data StatusData
		if err := decodeData(frame, &data); err != nil {
			return err
		}
		status, err := realtime.ParseStatus(data.Status)
		if err != nil {
			return err
		}
		return hub.SetStatus(c.id, status)

	default:
		return fmt.Errorf("%w: unknown type %q", errBadFrame, frame.Type)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.gateway.leave(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("Error closing connection in readPump", "error", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit() {
			c.fail(codeRateLimited, errors.New("too many frames"))
			continue
		}

		c.processMessage(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case <-c.out.Ready():
		return c.writeEvents(c.out.Drain())
	case <-c.out.Done():
		// Flush what was queued before the cascade closed the outbox.
		c.writeEvents(c.out.Drain())
		c.sendClose(websocket.CloseNormalClosure, "")
		return false
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("Error closing connection in writePump", "error", err)
	}
}

// writeEvents writes one text frame per event and returns false once the
// socket is unusable.
func (c *Client) writeEvents(events []realtime.Event) bool {
	for _, ev := range events {
		payload, err := encodeEvent(ev)
		if err != nil {
			c.log.Error("Dropping unencodable event", "event", ev.Type, "error", err)
			continue
		}
		if !c.writeTextMessage(payload) {
			return false
		}
	}
	return true
}

// writeTextMessage writes a single text frame.
func (c *Client) writeTextMessage(payload []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("Error setting write deadline", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing frame", "error", err)
		}
		return false
	}
	return true
}

// sendClose sends a close control frame. It may run concurrently with the
// write pump.
func (c *Client) sendClose(code int, reason string) {
	if c.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil && !isExpectedCloseError(err) {
		c.log.Debug("Error writing close message", "error", err)
	}
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		c.log.Debug("Error writing ping", "error", err)
		return false
	}
	return true
}
