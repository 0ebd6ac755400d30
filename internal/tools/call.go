package tools

import (
	"context"
	"fmt"

	"github.com/machellerogden/thinksuit-sub000/internal/mcp"
)

// CallResult is the uniform outcome of one tool invocation. Exactly one
// of Result and Error is meaningful, selected by Success.
type CallResult struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Call resolves a tool against the discovery map and executes it. A
// missing tool, transport failure, or isError result all come back as
// Success=false with an explanation; the caller decides whether that
// ends the task or feeds back into the loop.
func Call(ctx context.Context, mgr *mcp.Manager, discovered map[string]Descriptor, name string, args map[string]any) CallResult {
	desc, ok := discovered[name]
	if !ok {
		return CallResult{
			Success: false,
			Error:   fmt.Sprintf("tool %q not found among %d discovered tools", name, len(discovered)),
		}
	}

	result, err := mgr.CallTool(ctx, desc.Server, name, args)
	if err != nil {
		return CallResult{
			Success: false,
			Error:   fmt.Sprintf("tool %q failed: %v", name, err),
		}
	}

	text := result.Text()
	if result.IsError {
		if text == "" {
			text = fmt.Sprintf("tool %q reported an error", name)
		}
		return CallResult{Success: false, Error: text}
	}

	return CallResult{Success: true, Result: text}
}
