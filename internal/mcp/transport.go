package mcp

import (
	"context"
	"encoding/json"
)

// transport moves JSON-RPC frames between the client and one server.
// Implementations own their connection lifecycle and deliver
// unsolicited server frames on the notifications channel.
type transport interface {
	open(ctx context.Context) error
	close() error

	// roundTrip sends a request and blocks for its response.
	roundTrip(ctx context.Context, method string, params any) (json.RawMessage, error)

	// post sends a notification.
	post(ctx context.Context, method string, params any) error

	notifications() <-chan *frame
	alive() bool
}

// dial picks the transport for a server config. Stdio is the default;
// only an explicit http transport goes over the network.
func dial(cfg *ServerConfig) transport {
	if cfg.Transport == TransportHTTP {
		return newHTTPTransport(cfg)
	}
	return newStdioTransport(cfg)
}
