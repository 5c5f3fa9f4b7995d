package domain

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/dapbridge/internal/debug"
)

// SessionEntry represents one debug session in MCP responses.
type SessionEntry struct {
	ID            string `json:"id" jsonschema:"session identifier"`
	Name          string `json:"name" jsonschema:"human-readable session name"`
	Type          string `json:"type" jsonschema:"debug adapter type"`
	WorkspaceRoot string `json:"workspace_root,omitempty" jsonschema:"workspace root of the debugged program"`
}

// ThreadEntry represents one debuggee thread in MCP responses.
type ThreadEntry struct {
	ID   int    `json:"id" jsonschema:"thread identifier"`
	Name string `json:"name" jsonschema:"thread name"`
}

// SourceEntry represents the origin of a stack frame in MCP responses.
type SourceEntry struct {
	Name string `json:"name,omitempty" jsonschema:"source file name"`
	Path string `json:"path,omitempty" jsonschema:"source file path"`
}

// FrameEntry represents one stack frame in MCP responses. Frame identifiers
// are only valid for the current stopped state.
type FrameEntry struct {
	ID     int          `json:"id" jsonschema:"frame identifier, valid for the current stop only"`
	Name   string       `json:"name" jsonschema:"frame name"`
	Line   int          `json:"line" jsonschema:"line number"`
	Column int          `json:"column,omitempty" jsonschema:"column number"`
	Source *SourceEntry `json:"source,omitempty" jsonschema:"frame source location"`
}

// ListSessionsInput represents the MCP tool input for listing sessions.
type ListSessionsInput struct{}

// ListSessionsResult represents the MCP tool output for listing sessions.
type ListSessionsResult struct {
	Sessions []SessionEntry `json:"sessions" jsonschema:"all tracked debug sessions"`
}

// StatusInput represents the MCP tool input for session status.
type StatusInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"session identifier (defaults to the active session)"`
}

// StatusResult represents the MCP tool output for session status.
type StatusResult struct {
	Session  SessionEntry  `json:"session" jsonschema:"resolved session"`
	Stopped  bool          `json:"stopped" jsonschema:"whether the debuggee is halted"`
	ThreadID int           `json:"thread_id" jsonschema:"thread id used for the liveness probe"`
	Threads  []ThreadEntry `json:"threads" jsonschema:"debuggee threads, best effort"`
}

// ThreadsInput represents the MCP tool input for listing threads.
type ThreadsInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"session identifier (defaults to the active session)"`
}

// ThreadsResult represents the MCP tool output for listing threads.
type ThreadsResult struct {
	Threads []ThreadEntry `json:"threads" jsonschema:"debuggee threads"`
}

// WaitForStopInput represents the MCP tool input for waiting on a halt.
type WaitForStopInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"session identifier (defaults to the active session)"`
	ThreadID  int    `json:"thread_id,omitempty" jsonschema:"thread to watch (defaults to 1)"`
	PollMs    int    `json:"poll_ms,omitempty" jsonschema:"poll interval in milliseconds (defaults to 300)"`
}

// WaitForStopResult represents the MCP tool output for waiting on a halt.
type WaitForStopResult struct {
	Stopped bool        `json:"stopped" jsonschema:"always true on success"`
	Frame   *FrameEntry `json:"frame,omitempty" jsonschema:"top stack frame at the stop, when available"`
}

// ListSessionsTool defines the MCP tool schema for listing sessions.
func ListSessionsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_sessions",
		Description: "Lists all tracked debug sessions",
	}
}

// StatusTool defines the MCP tool schema for session status.
func StatusTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "status",
		Description: "Reports whether a debug session's debuggee is halted, with its threads",
	}
}

// ThreadsTool defines the MCP tool schema for listing threads.
func ThreadsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "threads",
		Description: "Lists the debuggee threads of a debug session",
	}
}

// WaitForStopTool defines the MCP tool schema for waiting on a halt.
func WaitForStopTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "wait_for_stop",
		Description: "Polls a debug session until the debuggee halts, then returns the top frame",
	}
}

// ListSessionsHandler lists all tracked sessions.
func ListSessionsHandler(client *debug.Client) mcp.ToolHandlerFor[ListSessionsInput, ListSessionsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ ListSessionsInput) (*mcp.CallToolResult, ListSessionsResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, ListSessionsResult{}, err
		}

		result := ListSessionsResult{Sessions: []SessionEntry{}}
		for _, handle := range client.ListSessions() {
			result.Sessions = append(result.Sessions, sessionEntryFromHandle(handle))
		}

		toolResult, err := callToolResult(invocationID, result)
		if err != nil {
			return nil, ListSessionsResult{}, err
		}
		return toolResult, result, nil
	}
}

// StatusHandler reports halt state for a session.
func StatusHandler(client *debug.Client) mcp.ToolHandlerFor[StatusInput, StatusResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input StatusInput) (*mcp.CallToolResult, StatusResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, StatusResult{}, err
		}

		status, err := client.Status(ctx, input.SessionID)
		if err != nil {
			return nil, StatusResult{}, err
		}

		result := StatusResult{
			Session:  sessionEntryFromHandle(status.Session),
			Stopped:  status.Stopped,
			ThreadID: status.ThreadID,
			Threads:  threadEntries(status.Threads),
		}

		toolResult, err := callToolResult(invocationID, result)
		if err != nil {
			return nil, StatusResult{}, err
		}
		return toolResult, result, nil
	}
}

// ThreadsHandler lists the threads of a session.
func ThreadsHandler(client *debug.Client) mcp.ToolHandlerFor[ThreadsInput, ThreadsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ThreadsInput) (*mcp.CallToolResult, ThreadsResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, ThreadsResult{}, err
		}

		threads, err := client.Threads(ctx, input.SessionID)
		if err != nil {
			return nil, ThreadsResult{}, err
		}

		result := ThreadsResult{Threads: threadEntries(threads)}
		toolResult, err := callToolResult(invocationID, result)
		if err != nil {
			return nil, ThreadsResult{}, err
		}
		return toolResult, result, nil
	}
}

// WaitForStopHandler polls until the debuggee halts. The poll has no
// deadline of its own; cancellation comes from the request context.
func WaitForStopHandler(client *debug.Client) mcp.ToolHandlerFor[WaitForStopInput, WaitForStopResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input WaitForStopInput) (*mcp.CallToolResult, WaitForStopResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, WaitForStopResult{}, err
		}

		if input.ThreadID < 0 {
			return nil, WaitForStopResult{}, invalidArguments("thread_id must be non-negative")
		}
		if input.PollMs < 0 {
			return nil, WaitForStopResult{}, invalidArguments("poll_ms must be non-negative")
		}

		interval := time.Duration(input.PollMs) * time.Millisecond
		stop, err := client.WaitForStop(ctx, input.SessionID, input.ThreadID, interval)
		if err != nil {
			return nil, WaitForStopResult{}, err
		}

		result := WaitForStopResult{
			Stopped: stop.Stopped,
			Frame:   frameEntry(stop.Frame),
		}
		toolResult, err := callToolResult(invocationID, result)
		if err != nil {
			return nil, WaitForStopResult{}, err
		}
		return toolResult, result, nil
	}
}

func sessionEntryFromHandle(handle debug.Handle) SessionEntry {
	return SessionEntry{
		ID:            handle.ID,
		Name:          handle.Name,
		Type:          handle.Type,
		WorkspaceRoot: handle.WorkspaceRoot,
	}
}

func threadEntries(threads []debug.Thread) []ThreadEntry {
	entries := []ThreadEntry{}
	for _, thread := range threads {
		entries = append(entries, ThreadEntry{ID: thread.ID, Name: thread.Name})
	}
	return entries
}

func frameEntry(frame *debug.StackFrame) *FrameEntry {
	if frame == nil {
		return nil
	}
	entry := &FrameEntry{
		ID:     frame.ID,
		Name:   frame.Name,
		Line:   frame.Line,
		Column: frame.Column,
	}
	if frame.Source != nil {
		entry.Source = &SourceEntry{Name: frame.Source.Name, Path: frame.Source.Path}
	}
	return entry
}

func frameEntries(frames []debug.StackFrame) []FrameEntry {
	entries := []FrameEntry{}
	for i := range frames {
		entries = append(entries, *frameEntry(&frames[i]))
	}
	return entries
}
