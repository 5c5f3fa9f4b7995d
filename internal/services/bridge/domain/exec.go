package domain

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/dapbridge/internal/debug"
)

// ThreadControlInput represents the MCP tool input shared by the
// thread-scoped execution controls.
type ThreadControlInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"session identifier (defaults to the active session)"`
	ThreadID  int    `json:"thread_id,omitempty" jsonschema:"thread to control (defaults to 1)"`
}

// RestartInput represents the MCP tool input for restarting a session.
type RestartInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"session identifier (defaults to the active session)"`
}

// TerminateInput represents the MCP tool input for terminating the debuggee.
type TerminateInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"session identifier (defaults to the active session)"`
	Restart   bool   `json:"restart,omitempty" jsonschema:"ask the session to restart after terminating"`
}

// DisconnectInput represents the MCP tool input for disconnecting a session.
type DisconnectInput struct {
	SessionID         string `json:"session_id,omitempty" jsonschema:"session identifier (defaults to the active session)"`
	TerminateDebuggee bool   `json:"terminate_debuggee,omitempty" jsonschema:"terminate the debuggee on disconnect"`
	SuspendDebuggee   bool   `json:"suspend_debuggee,omitempty" jsonschema:"leave the debuggee suspended on disconnect"`
	Restart           bool   `json:"restart,omitempty" jsonschema:"disconnect as part of a restart sequence"`
}

// ContinueTool defines the MCP tool schema for resuming execution.
func ContinueTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "continue",
		Description: "Resumes execution of a halted thread",
	}
}

// PauseTool defines the MCP tool schema for pausing execution.
func PauseTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "pause",
		Description: "Pauses a running thread",
	}
}

// StepOverTool defines the MCP tool schema for stepping over a line.
func StepOverTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "step_over",
		Description: "Steps over the current line of a halted thread",
	}
}

// StepInTool defines the MCP tool schema for stepping into a call.
func StepInTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "step_in",
		Description: "Steps into the call at the current line of a halted thread",
	}
}

// StepOutTool defines the MCP tool schema for stepping out of a frame.
func StepOutTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "step_out",
		Description: "Steps out of the current frame of a halted thread",
	}
}

// RestartTool defines the MCP tool schema for restarting a session.
func RestartTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "restart",
		Description: "Restarts a debug session",
	}
}

// TerminateTool defines the MCP tool schema for terminating the debuggee.
func TerminateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "terminate",
		Description: "Terminates the debuggee of a debug session",
	}
}

// DisconnectTool defines the MCP tool schema for disconnecting a session.
func DisconnectTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "disconnect",
		Description: "Disconnects from a debug session",
	}
}

// threadControlHandler builds an acknowledging handler around one of the
// thread-scoped bridge controls.
func threadControlHandler(action string, control func(ctx context.Context, sessionID string, threadID int) error) mcp.ToolHandlerFor[ThreadControlInput, AckResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ThreadControlInput) (*mcp.CallToolResult, AckResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, AckResult{}, err
		}

		if input.ThreadID < 0 {
			return nil, AckResult{}, invalidArguments("thread_id must be non-negative")
		}

		if err := control(ctx, input.SessionID, input.ThreadID); err != nil {
			return nil, AckResult{}, err
		}

		result := AckResult{OK: true, Action: action}
		toolResult, err := callToolResult(invocationID, result)
		if err != nil {
			return nil, AckResult{}, err
		}
		return toolResult, result, nil
	}
}

// ContinueHandler resumes a halted thread.
func ContinueHandler(client *debug.Client) mcp.ToolHandlerFor[ThreadControlInput, AckResult] {
	return threadControlHandler("continue", client.Continue)
}

// PauseHandler pauses a running thread.
func PauseHandler(client *debug.Client) mcp.ToolHandlerFor[ThreadControlInput, AckResult] {
	return threadControlHandler("pause", client.Pause)
}

// StepOverHandler steps over the current line.
func StepOverHandler(client *debug.Client) mcp.ToolHandlerFor[ThreadControlInput, AckResult] {
	return threadControlHandler("step_over", client.Next)
}

// StepInHandler steps into the call at the current line.
func StepInHandler(client *debug.Client) mcp.ToolHandlerFor[ThreadControlInput, AckResult] {
	return threadControlHandler("step_in", client.StepIn)
}

// StepOutHandler steps out of the current frame.
func StepOutHandler(client *debug.Client) mcp.ToolHandlerFor[ThreadControlInput, AckResult] {
	return threadControlHandler("step_out", client.StepOut)
}

// RestartHandler restarts a session.
func RestartHandler(client *debug.Client) mcp.ToolHandlerFor[RestartInput, AckResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input RestartInput) (*mcp.CallToolResult, AckResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, AckResult{}, err
		}

		if err := client.Restart(ctx, input.SessionID); err != nil {
			return nil, AckResult{}, err
		}

		result := AckResult{OK: true, Action: "restart"}
		toolResult, err := callToolResult(invocationID, result)
		if err != nil {
			return nil, AckResult{}, err
		}
		return toolResult, result, nil
	}
}

// TerminateHandler terminates the debuggee.
func TerminateHandler(client *debug.Client) mcp.ToolHandlerFor[TerminateInput, AckResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TerminateInput) (*mcp.CallToolResult, AckResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, AckResult{}, err
		}

		if err := client.Terminate(ctx, input.SessionID, input.Restart); err != nil {
			return nil, AckResult{}, err
		}

		result := AckResult{OK: true, Action: "terminate"}
		toolResult, err := callToolResult(invocationID, result)
		if err != nil {
			return nil, AckResult{}, err
		}
		return toolResult, result, nil
	}
}

// DisconnectHandler disconnects from a session.
func DisconnectHandler(client *debug.Client) mcp.ToolHandlerFor[DisconnectInput, AckResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input DisconnectInput) (*mcp.CallToolResult, AckResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, AckResult{}, err
		}

		options := debug.DisconnectOptions{
			TerminateDebuggee: input.TerminateDebuggee,
			SuspendDebuggee:   input.SuspendDebuggee,
			Restart:           input.Restart,
		}
		if err := client.Disconnect(ctx, input.SessionID, options); err != nil {
			return nil, AckResult{}, err
		}

		result := AckResult{OK: true, Action: "disconnect"}
		toolResult, err := callToolResult(invocationID, result)
		if err != nil {
			return nil, AckResult{}, err
		}
		return toolResult, result, nil
	}
}
