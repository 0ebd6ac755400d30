package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Manager owns the MCP connections for one engine run, keyed by
// configured server name.
type Manager struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	known   []*ServerConfig
}

// NewManager builds an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		log:     logger.With("component", "mcp"),
		clients: make(map[string]*Client),
	}
}

// Start validates and connects every configured server. A server that
// fails validation or connection is logged and skipped; its tools are
// simply absent from discovery.
func (m *Manager) Start(ctx context.Context, servers []*ServerConfig) error {
	m.mu.Lock()
	m.known = servers
	m.mu.Unlock()

	for _, cfg := range servers {
		if err := cfg.Validate(); err != nil {
			m.log.Error("invalid MCP server config",
				"server", cfg.Name,
				"error", err)
			continue
		}
		if err := m.connect(ctx, cfg); err != nil {
			m.log.Error("failed to connect to MCP server",
				"server", cfg.Name,
				"error", err)
		}
	}
	return nil
}

func (m *Manager) connect(ctx context.Context, cfg *ServerConfig) error {
	m.mu.RLock()
	_, dup := m.clients[cfg.Name]
	m.mu.RUnlock()
	if dup {
		return nil
	}

	client := NewClient(cfg, m.log)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.clients[cfg.Name] = client
	m.mu.Unlock()

	m.log.Info("connected to MCP server",
		"server", cfg.Name,
		"name", client.ServerInfo().Name)
	return nil
}

// StopAll closes every connected client. Safe to call repeatedly.
func (m *Manager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, client := range m.clients {
		if err := client.Close(); err != nil {
			m.log.Error("failed to close MCP client",
				"server", name,
				"error", err)
		}
		delete(m.clients, name)
	}
	return nil
}

// Client returns the connected client for a server name.
func (m *Manager) Client(name string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[name]
	return c, ok
}

// AllTools returns every discovered tool keyed by server name.
func (m *Manager) AllTools() map[string][]*Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]*Tool)
	for name, client := range m.clients {
		if tools := client.Tools(); len(tools) > 0 {
			out[name] = tools
		}
	}
	return out
}

// CallTool routes a tool invocation to the owning server.
func (m *Manager) CallTool(ctx context.Context, server, tool string, arguments map[string]any) (*CallToolResult, error) {
	client, ok := m.Client(server)
	if !ok {
		return nil, fmt.Errorf("server %q not connected", server)
	}
	return client.CallTool(ctx, tool, arguments)
}

// ServerStatus describes one configured server for status displays.
type ServerStatus struct {
	Name      string     `json:"name"`
	Connected bool       `json:"connected"`
	Server    ServerInfo `json:"server"`
	Tools     int        `json:"tools"`
}

// Status reports every configured server, connected or not.
func (m *Manager) Status() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ServerStatus, 0, len(m.known))
	for _, cfg := range m.known {
		st := ServerStatus{Name: cfg.Name}
		if client, ok := m.clients[cfg.Name]; ok {
			st.Connected = client.Connected()
			st.Server = client.ServerInfo()
			st.Tools = len(client.Tools())
		}
		out = append(out, st)
	}
	return out
}
