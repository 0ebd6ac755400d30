package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// protocolVersion is the MCP revision this client negotiates.
const protocolVersion = "2024-11-05"

// clientName and clientVersion identify the engine in the initialize
// handshake.
const (
	clientName    = "thinksuit"
	clientVersion = "1.0.0"
)

// frame is a JSON-RPC 2.0 message. One shape covers all three kinds:
// requests carry an ID and a method, responses an ID and a result or
// error, notifications a method and no ID.
type frame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is the JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// Error codes this client can see from conforming servers.
const (
	codeMethodNotFound = -32601
	codeToolNotFound   = -32002
)

// requestFrame builds an outbound request.
func requestFrame(id int64, method string, params any) (*frame, error) {
	f := &frame{JSONRPC: "2.0", ID: &id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		f.Params = raw
	}
	return f, nil
}

// notificationFrame builds an outbound notification. No reply comes
// back for these.
func notificationFrame(method string, params any) (*frame, error) {
	f := &frame{JSONRPC: "2.0", Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		f.Params = raw
	}
	return f, nil
}

// ServerInfo identifies an MCP server, or this client in clientInfo.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities advertised during initialize.
type Capabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
	Roots *RootsCapability `json:"roots,omitempty"`
}

// ToolsCapability describes tool-related capabilities.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// RootsCapability describes roots-related capabilities.
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type initializeParams struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ClientInfo      ServerInfo   `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

// Tool is a tool exposed by an MCP server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type listToolsResult struct {
	Tools []*Tool `json:"tools"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is what a tool invocation produced.
type CallToolResult struct {
	Content []ToolResultContent `json:"content"`
	IsError bool                `json:"isError,omitempty"`
}

// ToolResultContent is one piece of tool output.
type ToolResultContent struct {
	Type     string `json:"type"` // text | image | resource
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Text flattens a result for inclusion in a model prompt. Pure text
// content joins with newlines; anything richer passes through as the
// raw content JSON so nothing is lost.
func (r *CallToolResult) Text() string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}

	parts := make([]string, 0, len(r.Content))
	for _, item := range r.Content {
		if item.Type != "text" {
			raw, err := json.Marshal(r.Content)
			if err != nil {
				return ""
			}
			return string(raw)
		}
		if item.Text != "" {
			parts = append(parts, item.Text)
		}
	}
	return strings.Join(parts, "\n")
}
