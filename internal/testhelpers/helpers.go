// Package testhelpers provides common utilities for testing the chatnest
// gateway over real HTTP and websocket connections.
//
// It starts a gateway behind an httptest server, dials clients with an
// allowed origin and reads and writes protocol frames.
package testhelpers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/chatnest/internal/realtime"
	"github.com/Tyrowin/chatnest/internal/server"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
)

// TestOrigin is the origin every helper dials with.
const TestOrigin = "http://localhost:8080"

// frameTimeout bounds every read made by the helpers.
const frameTimeout = 2 * time.Second

// Env is a running gateway and its HTTP front.
type Env struct {
	Gateway *server.Gateway
	Server  *httptest.Server
	WSURL   string
}

// StartGateway applies cfg (with TestOrigin allowed), starts a hub and a
// gateway behind an httptest server and stops everything when t ends.
func StartGateway(t *testing.T, cfg server.Config, verifier *server.TokenVerifier) *Env {
	t.Helper()

	cfg.AllowedOrigins = append(cfg.AllowedOrigins, TestOrigin)
	applied := server.SetConfig(&cfg)
	t.Cleanup(func() { server.SetConfig(nil) })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	hub := realtime.NewHub(log, applied.HubOptions())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()

	gateway := server.NewGateway(log, hub, verifier)
	go gateway.Run()

	srv := httptest.NewServer(server.SetupRoutes(gateway))
	t.Cleanup(func() {
		_ = gateway.Shutdown(2 * time.Second)
		srv.Close()
		cancel()
	})

	return &Env{
		Gateway: gateway,
		Server:  srv,
		WSURL:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket dials url with origin set in the Origin header. The
// handshake response is returned so callers can inspect refusals.
func ConnectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Dial connects to the gateway of env and closes the connection when t ends.
func (env *Env) Dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := ConnectWebSocket(env.WSURL, TestOrigin)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Identify dials a connection and sends its join frame for user, then waits
// for the online users snapshot.
func (env *Env) Identify(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	conn := env.Dial(t)
	if err := SendFrame(conn, "join", server.JoinData{UserID: user}); err != nil {
		t.Fatalf("Failed to send join: %v", err)
	}
	ReadFrameOfType(t, conn, "onlineUsers")
	return conn
}

// SendFrame writes a frame of type typ carrying data.
func SendFrame(conn *websocket.Conn, typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(server.Frame{Type: typ, Data: raw})
}

// ReadFrame reads the next frame, failing after timeout.
func ReadFrame(conn *websocket.Conn, timeout time.Duration) (server.Frame, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return server.Frame{}, err
	}
	var frame server.Frame
	err := conn.ReadJSON(&frame)
	return frame, err
}

// ReadFrameOfType skips frames until one of type typ arrives.
func ReadFrameOfType(t *testing.T, conn *websocket.Conn, typ string) server.Frame {
	t.Helper()
	deadline := time.Now().Add(frameTimeout)
	for time.Now().Before(deadline) {
		frame, err := ReadFrame(conn, time.Until(deadline))
		if err != nil {
			t.Fatalf("Waiting for %s frame: %v", typ, err)
		}
		if frame.Type == typ {
			return frame
		}
	}
	t.Fatalf("No %s frame within %v", typ, frameTimeout)
	return server.Frame{}
}

// ExpectNoFrameOfType fails if a frame of type typ arrives within timeout.
func ExpectNoFrameOfType(t *testing.T, conn *websocket.Conn, typ string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		frame, err := ReadFrame(conn, time.Until(deadline))
		if err != nil {
			return
		}
		if frame.Type == typ {
			t.Fatalf("Unexpected %s frame: %s", typ, frame.Data)
		}
	}
}

// Decode unmarshals the data of frame into v.
func Decode[T any](t *testing.T, frame server.Frame) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(frame.Data, &v); err != nil {
		t.Fatalf("Decoding %s frame: %v", frame.Type, err)
	}
	return v
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return fmt.Errorf("write close: %w", err)
	}
	return conn.Close()
}
