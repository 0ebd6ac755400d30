package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/machellerogden/thinksuit-sub000/internal/config"
	"github.com/machellerogden/thinksuit-sub000/internal/mcp"
)

// Arg placeholders expanded when building stdio server commands.
const (
	placeholderCwd         = "{cwd}"
	placeholderAllowedDirs = "{allowedDirectories}"
)

// StartOptions carries per-turn parameters for server startup.
type StartOptions struct {
	// Cwd becomes the working directory of stdio servers that do not
	// set their own, and substitutes the {cwd} arg placeholder.
	Cwd string

	// AllowedDirectories replaces the {allowedDirectories} arg
	// placeholder, one arg per directory. Servers whose args never
	// mention the placeholder are unaffected.
	AllowedDirectories []string

	// Timeout bounds each request/response exchange. Zero keeps the
	// transport default.
	Timeout time.Duration
}

// StartServers converts the engine tool configuration into MCP server
// configs and connects to each. Individual server failures are logged by
// the manager and leave that server's tools undiscovered; they do not
// fail the turn.
func StartServers(ctx context.Context, cfg config.ToolsConfig, opts StartOptions, logger *slog.Logger) (*mcp.Manager, error) {
	mgr := mcp.NewManager(logger)

	if !cfg.Enabled || len(cfg.MCPServers) == 0 {
		return mgr, nil
	}

	allowedDirs := opts.AllowedDirectories
	if len(allowedDirs) == 0 {
		allowedDirs = cfg.AllowedDirectories
	}

	servers := make([]*mcp.ServerConfig, 0, len(cfg.MCPServers))
	for name, srv := range cfg.MCPServers {
		servers = append(servers, buildServerConfig(name, srv, opts.Cwd, allowedDirs, opts.Timeout))
	}

	if err := mgr.Start(ctx, servers); err != nil {
		return mgr, err
	}
	return mgr, nil
}

func buildServerConfig(name string, srv config.MCPServerConfig, cwd string, allowedDirs []string, timeout time.Duration) *mcp.ServerConfig {
	out := &mcp.ServerConfig{
		Name:    name,
		Env:     srv.Env,
		Timeout: timeout,
	}

	if srv.URL != "" {
		out.Transport = mcp.TransportHTTP
		out.URL = srv.URL
		out.Headers = srv.Headers
		return out
	}

	out.Transport = mcp.TransportStdio
	out.Command = srv.Command
	out.WorkDir = cwd
	out.Args = expandArgs(srv.Args, cwd, allowedDirs)
	return out
}

// expandArgs substitutes placeholders in configured args. The
// {allowedDirectories} placeholder expands to one arg per directory and
// disappears entirely when none are configured.
func expandArgs(args []string, cwd string, allowedDirs []string) []string {
	if len(args) == 0 {
		return nil
	}

	out := make([]string, 0, len(args))
	for _, arg := range args {
		switch arg {
		case placeholderAllowedDirs:
			out = append(out, allowedDirs...)
		case placeholderCwd:
			out = append(out, cwd)
		default:
			out = append(out, arg)
		}
	}
	return out
}
