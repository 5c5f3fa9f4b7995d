package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/dapbridge/internal/debug"
	"github.com/louisbranch/dapbridge/internal/platform/id"
)

// invocationIDMetaKey carries the per-call correlation identifier in tool
// result metadata.
const invocationIDMetaKey = "dapbridge/invocation-id"

// NewInvocationID generates an invocation identifier for a tool call.
func NewInvocationID() (string, error) {
	return id.NewID()
}

// AckResult is the fixed acknowledgement payload for tools that perform an
// action without returning data.
type AckResult struct {
	OK     bool   `json:"ok" jsonschema:"whether the action was accepted by the session"`
	Action string `json:"action" jsonschema:"name of the acknowledged action"`
}

// callToolResult renders the payload as indented JSON text content and
// attaches the invocation id. The structured form of the payload travels as
// the typed tool output.
func callToolResult(invocationID string, payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool payload: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
		Meta: map[string]any{
			invocationIDMetaKey: invocationID,
		},
	}, nil
}

// invalidArguments reports schema violations before any session RPC runs.
func invalidArguments(fields ...string) error {
	return debug.NewError(debug.CodeInvalidArguments, fmt.Sprintf("invalid arguments: %s", strings.Join(fields, ", ")))
}
