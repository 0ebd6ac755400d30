// Package mcp speaks the Model Context Protocol from the client side.
// A Manager owns one Client per configured server; each Client rides a
// stdio or streamable HTTP transport and exposes the server's tools.
package mcp

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// TransportType selects how a server is reached.
type TransportType string

const (
	TransportStdio TransportType = "stdio"
	TransportHTTP  TransportType = "http"
)

// ServerConfig describes one MCP server. Names are opaque identifiers
// chosen by the user and key everything downstream: discovery, tool
// routing, logs.
type ServerConfig struct {
	Name      string
	Transport TransportType

	// Stdio servers run as child processes.
	Command string
	Args    []string
	Env     map[string]string
	WorkDir string

	// HTTP servers are remote endpoints.
	URL     string
	Headers map[string]string

	// Timeout bounds every request/response exchange. Zero means 30s.
	Timeout time.Duration
}

func (c *ServerConfig) requestTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 30 * time.Second
}

// Validate rejects configs that are incomplete or smell like shell
// injection. Server configs come from user-editable files, so the arg
// checks are deliberately suspicious.
func (c *ServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("server name is required")
	}

	switch c.Transport {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("stdio config for %s: command is required", c.Name)
		}
		if err := checkPath("command", c.Command); err != nil {
			return fmt.Errorf("stdio config for %s: %w", c.Name, err)
		}
		if err := checkPath("workdir", c.WorkDir); err != nil {
			return fmt.Errorf("stdio config for %s: %w", c.Name, err)
		}
		for i, arg := range c.Args {
			if unsafeShellArg(arg) {
				return fmt.Errorf("stdio config for %s: arg[%d] contains suspicious shell metacharacters: %q", c.Name, i, arg)
			}
		}
	case TransportHTTP:
		if c.URL == "" {
			return fmt.Errorf("http config for %s: URL is required", c.Name)
		}
		if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
			return fmt.Errorf("http config for %s: URL must start with http:// or https://", c.Name)
		}
	default:
		return fmt.Errorf("server %s: unknown transport %q", c.Name, c.Transport)
	}

	return nil
}

// checkPath rejects paths that climb out of their directory.
func checkPath(field, path string) error {
	if path == "" {
		return nil
	}
	// Inspect the raw path: cleaning first would resolve ".." segments
	// away and let them through.
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("%s contains path traversal: %q", field, path)
		}
	}
	return nil
}

// unsafeShellArg reports whether an argument carries command-chaining
// or substitution syntax. Spaces and quotes stay legal; they are common
// in legitimate args.
func unsafeShellArg(s string) bool {
	if strings.ContainsAny(s, ";|<>`\n\r") {
		return true
	}
	return strings.Contains(s, "$(") || strings.Contains(s, "${") || strings.Contains(s, "&&")
}
