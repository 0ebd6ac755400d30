package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/machellerogden/thinksuit-sub000/internal/config"
	"github.com/machellerogden/thinksuit-sub000/internal/mcp"
)

// rpcMessage mirrors the JSON-RPC framing on the wire, enough for a
// fake server to decode requests and echo IDs.
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// fakeMCPServer serves the minimal JSON-RPC surface the client touches:
// initialize, tools/list, tools/call.
func fakeMCPServer(t *testing.T, serverName string, tools []*mcp.Tool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sse" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var req rpcMessage
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		respond := func(result any) {
			raw, err := json.Marshal(result)
			if err != nil {
				t.Errorf("marshal result: %v", err)
				return
			}
			_ = json.NewEncoder(w).Encode(rpcMessage{JSONRPC: "2.0", ID: req.ID, Result: raw})
		}

		switch req.Method {
		case "initialize":
			respond(map[string]any{
				"protocolVersion": "2024-11-05",
				"capabilities":    map[string]any{},
				"serverInfo":      mcp.ServerInfo{Name: serverName, Version: "0.0.1"},
			})
		case "tools/list":
			respond(map[string]any{"tools": tools})
		case "tools/call":
			var params struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(req.Params, &params); err != nil {
				t.Errorf("parse call params: %v", err)
				return
			}
			if params.Name == "always_fails" {
				respond(mcp.CallToolResult{
					Content: []mcp.ToolResultContent{{Type: "text", Text: "boom"}},
					IsError: true,
				})
				return
			}
			respond(mcp.CallToolResult{
				Content: []mcp.ToolResultContent{{Type: "text", Text: "called " + params.Name}},
			})
		default:
			// Notifications get an empty 200.
			w.WriteHeader(http.StatusOK)
		}
	}))
}

func startTestManager(t *testing.T, servers map[string]string) *mcp.Manager {
	t.Helper()

	cfg := config.ToolsConfig{Enabled: true, MCPServers: map[string]config.MCPServerConfig{}}
	for name, url := range servers {
		cfg.MCPServers[name] = config.MCPServerConfig{URL: url}
	}

	mgr, err := StartServers(context.Background(), cfg, StartOptions{}, nil)
	if err != nil {
		t.Fatalf("StartServers: %v", err)
	}
	t.Cleanup(func() { mgr.StopAll() })
	return mgr
}

func TestDiscoverAndCall(t *testing.T) {
	srv := fakeMCPServer(t, "files", []*mcp.Tool{
		{Name: "read_file", Description: "Read a file", InputSchema: json.RawMessage(`{"type":"object"}`)},
		{Name: "always_fails", Description: "Always errors"},
	})
	defer srv.Close()

	mgr := startTestManager(t, map[string]string{"files": srv.URL})

	discovered := Discover(mgr, nil)
	if len(discovered) != 2 {
		t.Fatalf("discovered %d tools, want 2: %v", len(discovered), Names(discovered))
	}

	desc := discovered["read_file"]
	if desc.Server != "files" || desc.Description != "Read a file" {
		t.Errorf("descriptor = %+v", desc)
	}

	res := Call(context.Background(), mgr, discovered, "read_file", map[string]any{"path": "/tmp/x"})
	if !res.Success || res.Result != "called read_file" {
		t.Errorf("call result = %+v", res)
	}

	failed := Call(context.Background(), mgr, discovered, "always_fails", nil)
	if failed.Success || failed.Error != "boom" {
		t.Errorf("failing call = %+v", failed)
	}

	missing := Call(context.Background(), mgr, discovered, "ghost", nil)
	if missing.Success || missing.Error == "" {
		t.Errorf("missing tool call = %+v", missing)
	}
}

func TestDiscoverCollisionFirstServerWins(t *testing.T) {
	srvA := fakeMCPServer(t, "alpha", []*mcp.Tool{{Name: "shared_tool", Description: "from alpha"}})
	defer srvA.Close()
	srvB := fakeMCPServer(t, "beta", []*mcp.Tool{{Name: "shared_tool", Description: "from beta"}})
	defer srvB.Close()

	mgr := startTestManager(t, map[string]string{"alpha": srvA.URL, "beta": srvB.URL})

	discovered := Discover(mgr, nil)
	if len(discovered) != 1 {
		t.Fatalf("discovered = %v", Names(discovered))
	}
	// Servers are walked sorted; alpha claims the name.
	if discovered["shared_tool"].Server != "alpha" {
		t.Errorf("collision kept %q, want alpha", discovered["shared_tool"].Server)
	}
}

func TestStartServersDisabled(t *testing.T) {
	mgr, err := StartServers(context.Background(), config.ToolsConfig{Enabled: false}, StartOptions{}, nil)
	if err != nil {
		t.Fatalf("StartServers: %v", err)
	}
	defer mgr.StopAll()

	if len(Discover(mgr, nil)) != 0 {
		t.Error("disabled tools should discover nothing")
	}
}

func TestExpandArgs(t *testing.T) {
	args := expandArgs(
		[]string{"--root", "{cwd}", "{allowedDirectories}", "--verbose"},
		"/work",
		[]string{"/data/a", "/data/b"},
	)

	want := []string{"--root", "/work", "/data/a", "/data/b", "--verbose"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args = %v, want %v", args, want)
		}
	}

	// No allowed directories: the placeholder vanishes.
	empty := expandArgs([]string{"{allowedDirectories}", "--x"}, "", nil)
	if len(empty) != 1 || empty[0] != "--x" {
		t.Errorf("args = %v, want [--x]", empty)
	}
}
