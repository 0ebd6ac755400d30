package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Client is the engine's handle on one MCP server: it owns the
// transport, runs the handshake, and caches the server's tool list.
type Client struct {
	cfg *ServerConfig
	tr  transport
	log *slog.Logger

	mu     sync.RWMutex
	tools  []*Tool
	remote ServerInfo

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient builds a client for one server. Nothing connects until
// Connect.
func NewClient(cfg *ServerConfig, logger *slog.Logger) *Client {
	return newClient(cfg, dial(cfg), logger)
}

func newClient(cfg *ServerConfig, tr transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:  cfg,
		tr:   tr,
		log:  logger.With("mcp_server", cfg.Name),
		done: make(chan struct{}),
	}
}

// Connect opens the transport, runs the initialize handshake, and
// pulls the first tool list. A failed handshake tears the transport
// back down.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.tr.open(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	if err := c.handshake(ctx); err != nil {
		_ = c.tr.close()
		return err
	}

	if err := c.refreshTools(ctx); err != nil {
		c.log.Warn("failed to list tools", "error", err)
	}

	go c.watch(ctx)

	return nil
}

func (c *Client) handshake(ctx context.Context) error {
	params := initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities: Capabilities{
			Roots: &RootsCapability{ListChanged: true},
		},
		ClientInfo: ServerInfo{Name: clientName, Version: clientVersion},
	}

	raw, err := c.tr.roundTrip(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	var result initializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("parse initialize result: %w", err)
	}

	c.mu.Lock()
	c.remote = result.ServerInfo
	c.mu.Unlock()

	c.log.Info("connected to MCP server",
		"name", result.ServerInfo.Name,
		"version", result.ServerInfo.Version,
		"protocol", result.ProtocolVersion)

	if err := c.tr.post(ctx, "notifications/initialized", nil); err != nil {
		c.log.Warn("failed to send initialized notification", "error", err)
	}

	return nil
}

// Close shuts down the transport. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.tr.close()
}

// Connected reports whether the transport is up.
func (c *Client) Connected() bool { return c.tr.alive() }

// ServerInfo returns what the server reported about itself during the
// handshake.
func (c *Client) ServerInfo() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remote
}

// Tools returns a copy of the cached tool list.
func (c *Client) Tools() []*Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// CallTool invokes a tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*CallToolResult, error) {
	params := callToolParams{Name: name}
	if arguments != nil {
		raw, err := json.Marshal(arguments)
		if err != nil {
			return nil, fmt.Errorf("marshal arguments: %w", err)
		}
		params.Arguments = raw
	}

	raw, err := c.tr.roundTrip(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var result CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse tools/call result: %w", err)
	}
	return &result, nil
}

// refreshTools replaces the cached tool list with the server's current
// one.
func (c *Client) refreshTools(ctx context.Context) error {
	raw, err := c.tr.roundTrip(ctx, "tools/list", nil)
	if err != nil {
		return err
	}

	var result listToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("parse tools/list result: %w", err)
	}

	c.mu.Lock()
	c.tools = result.Tools
	c.mu.Unlock()

	c.log.Debug("refreshed tools", "count", len(result.Tools))
	return nil
}

// watch reacts to server notifications, refreshing the tool cache when
// the server announces a changed list.
func (c *Client) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case f, ok := <-c.tr.notifications():
			if !ok {
				return
			}
			if f.Method == "notifications/tools/list_changed" {
				if err := c.refreshTools(ctx); err != nil {
					c.log.Debug("tool refresh after list_changed failed", "error", err)
				}
			}
		}
	}
}
