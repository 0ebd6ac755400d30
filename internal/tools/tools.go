// Package tools discovers MCP tools, applies allow-list policy, and
// executes tool calls on behalf of the execution handlers.
package tools

import (
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/machellerogden/thinksuit-sub000/internal/mcp"
)

// Descriptor describes one discovered tool. Server is the opaque name of
// the MCP server that exposes it.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	Server      string          `json:"server"`
}

// Discover flattens the manager's connected servers into a single tool
// map. Servers are walked in sorted order so collisions resolve
// deterministically: the first server to claim a name keeps it.
func Discover(mgr *mcp.Manager, logger *slog.Logger) map[string]Descriptor {
	if logger == nil {
		logger = slog.Default()
	}

	discovered := make(map[string]Descriptor)
	if mgr == nil {
		return discovered
	}

	all := mgr.AllTools()
	servers := make([]string, 0, len(all))
	for name := range all {
		servers = append(servers, name)
	}
	sort.Strings(servers)

	for _, server := range servers {
		for _, tool := range all[server] {
			if prev, exists := discovered[tool.Name]; exists {
				logger.Warn("tool name collision, keeping first",
					"tool", tool.Name,
					"kept", prev.Server,
					"dropped", server)
				continue
			}
			discovered[tool.Name] = Descriptor{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.InputSchema,
				Server:      server,
			}
		}
	}

	return discovered
}

// Names returns the sorted tool names of a discovery map.
func Names(discovered map[string]Descriptor) []string {
	names := make([]string, 0, len(discovered))
	for name := range discovered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
