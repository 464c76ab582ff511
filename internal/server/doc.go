// Package server implements the websocket session gateway for chatnest.
//
// The gateway owns the wire protocol: it upgrades HTTP requests, decodes JSON
// frames into calls on the realtime hub and writes each connection's outbox
// back as frames. The implementation is split into configuration, the
// gateway registry, clients and their pumps, frame codecs, routing, and
// HTTP handlers.
package server
