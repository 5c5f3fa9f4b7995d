package domain

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/dapbridge/internal/debug"
)

// SourceBreakpointInput represents one requested line breakpoint.
type SourceBreakpointInput struct {
	Line         int    `json:"line" jsonschema:"1-based line number"`
	Column       int    `json:"column,omitempty" jsonschema:"optional column number"`
	Condition    string `json:"condition,omitempty" jsonschema:"optional condition expression"`
	HitCondition string `json:"hit_condition,omitempty" jsonschema:"optional hit count expression"`
	LogMessage   string `json:"log_message,omitempty" jsonschema:"optional log message, turns the breakpoint into a logpoint"`
}

// FunctionBreakpointInput represents one requested function breakpoint.
type FunctionBreakpointInput struct {
	Name         string `json:"name" jsonschema:"function name"`
	Condition    string `json:"condition,omitempty" jsonschema:"optional condition expression"`
	HitCondition string `json:"hit_condition,omitempty" jsonschema:"optional hit count expression"`
}

// ExceptionOptionInput represents one exception filter refinement.
type ExceptionOptionInput struct {
	FilterID  string `json:"filter_id" jsonschema:"exception filter identifier"`
	Condition string `json:"condition,omitempty" jsonschema:"optional condition expression"`
}

// BreakpointEntry represents one verified breakpoint in MCP responses.
type BreakpointEntry struct {
	ID       int    `json:"id,omitempty" jsonschema:"session-assigned breakpoint identifier"`
	Verified bool   `json:"verified" jsonschema:"whether the session bound the breakpoint"`
	Message  string `json:"message,omitempty" jsonschema:"session explanation for unverified breakpoints"`
}

// SetBreakpointInput represents the MCP tool input for replacing a file's
// breakpoints.
type SetBreakpointInput struct {
	SessionID   string                  `json:"session_id,omitempty" jsonschema:"session identifier (defaults to the active session)"`
	File        string                  `json:"file" jsonschema:"source file path"`
	Breakpoints []SourceBreakpointInput `json:"breakpoints" jsonschema:"complete breakpoint set for the file, replacing any previous set"`
}

// SetBreakpointResult represents the MCP tool output for breakpoint updates.
type SetBreakpointResult struct {
	Breakpoints []BreakpointEntry `json:"breakpoints" jsonschema:"verification results in submission order"`
}

// ClearBreakpointsInput represents the MCP tool input for clearing a file's
// breakpoints.
type ClearBreakpointsInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"session identifier (defaults to the active session)"`
	File      string `json:"file" jsonschema:"source file path"`
}

// SetFunctionBreakpointsInput represents the MCP tool input for replacing
// the function breakpoint set.
type SetFunctionBreakpointsInput struct {
	SessionID   string                    `json:"session_id,omitempty" jsonschema:"session identifier (defaults to the active session)"`
	Breakpoints []FunctionBreakpointInput `json:"breakpoints" jsonschema:"complete function breakpoint set, replacing any previous set"`
}

// SetExceptionBreakpointsInput represents the MCP tool input for configuring
// exception filters.
type SetExceptionBreakpointsInput struct {
	SessionID        string                 `json:"session_id,omitempty" jsonschema:"session identifier (defaults to the active session)"`
	Filters          []string               `json:"filters" jsonschema:"exception filter identifiers to enable"`
	ExceptionOptions []ExceptionOptionInput `json:"exception_options,omitempty" jsonschema:"optional per-filter refinements"`
}

// SetBreakpointTool defines the MCP tool schema for file breakpoints.
func SetBreakpointTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "set_breakpoint",
		Description: "Replaces the breakpoint set of a source file",
	}
}

// ClearBreakpointsTool defines the MCP tool schema for clearing breakpoints.
func ClearBreakpointsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "clear_breakpoints",
		Description: "Removes all breakpoints from a source file",
	}
}

// SetFunctionBreakpointsTool defines the MCP tool schema for function
// breakpoints.
func SetFunctionBreakpointsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "set_function_breakpoints",
		Description: "Replaces the function breakpoint set of a debug session",
	}
}

// SetExceptionBreakpointsTool defines the MCP tool schema for exception
// filters.
func SetExceptionBreakpointsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "set_exception_breakpoints",
		Description: "Configures which exception categories halt the debuggee",
	}
}

// SetBreakpointHandler replaces a file's breakpoints. Submitting an empty
// set removes every breakpoint in the file.
func SetBreakpointHandler(client *debug.Client) mcp.ToolHandlerFor[SetBreakpointInput, SetBreakpointResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SetBreakpointInput) (*mcp.CallToolResult, SetBreakpointResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, SetBreakpointResult{}, err
		}

		var violations []string
		if strings.TrimSpace(input.File) == "" {
			violations = append(violations, "file is required")
		}
		for i, breakpoint := range input.Breakpoints {
			if breakpoint.Line < 1 {
				violations = append(violations, fmt.Sprintf("breakpoints[%d].line must be at least 1", i))
			}
		}
		if len(violations) > 0 {
			return nil, SetBreakpointResult{}, invalidArguments(violations...)
		}

		set := debug.BreakpointSet{
			Kind: debug.BreakpointKindFile,
			File: input.File,
		}
		for _, breakpoint := range input.Breakpoints {
			set.FileBreakpoints = append(set.FileBreakpoints, debug.FileBreakpoint{
				Line:         breakpoint.Line,
				Column:       breakpoint.Column,
				Condition:    breakpoint.Condition,
				HitCondition: breakpoint.HitCondition,
				LogMessage:   breakpoint.LogMessage,
			})
		}

		results, err := client.SetBreakpoints(ctx, input.SessionID, set)
		if err != nil {
			return nil, SetBreakpointResult{}, err
		}

		result := SetBreakpointResult{Breakpoints: breakpointEntries(results)}
		toolResult, err := callToolResult(invocationID, result)
		if err != nil {
			return nil, SetBreakpointResult{}, err
		}
		return toolResult, result, nil
	}
}

// ClearBreakpointsHandler removes all breakpoints from a file.
func ClearBreakpointsHandler(client *debug.Client) mcp.ToolHandlerFor[ClearBreakpointsInput, SetBreakpointResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ClearBreakpointsInput) (*mcp.CallToolResult, SetBreakpointResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, SetBreakpointResult{}, err
		}

		if strings.TrimSpace(input.File) == "" {
			return nil, SetBreakpointResult{}, invalidArguments("file is required")
		}

		results, err := client.ClearFileBreakpoints(ctx, input.SessionID, input.File)
		if err != nil {
			return nil, SetBreakpointResult{}, err
		}

		result := SetBreakpointResult{Breakpoints: breakpointEntries(results)}
		toolResult, err := callToolResult(invocationID, result)
		if err != nil {
			return nil, SetBreakpointResult{}, err
		}
		return toolResult, result, nil
	}
}

// SetFunctionBreakpointsHandler replaces the session's function breakpoint
// set.
func SetFunctionBreakpointsHandler(client *debug.Client) mcp.ToolHandlerFor[SetFunctionBreakpointsInput, SetBreakpointResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SetFunctionBreakpointsInput) (*mcp.CallToolResult, SetBreakpointResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, SetBreakpointResult{}, err
		}

		var violations []string
		for i, breakpoint := range input.Breakpoints {
			if strings.TrimSpace(breakpoint.Name) == "" {
				violations = append(violations, fmt.Sprintf("breakpoints[%d].name is required", i))
			}
		}
		if len(violations) > 0 {
			return nil, SetBreakpointResult{}, invalidArguments(violations...)
		}

		set := debug.BreakpointSet{Kind: debug.BreakpointKindFunction}
		for _, breakpoint := range input.Breakpoints {
			set.FunctionBreakpoints = append(set.FunctionBreakpoints, debug.FunctionBreakpoint{
				Name:         breakpoint.Name,
				Condition:    breakpoint.Condition,
				HitCondition: breakpoint.HitCondition,
			})
		}

		results, err := client.SetBreakpoints(ctx, input.SessionID, set)
		if err != nil {
			return nil, SetBreakpointResult{}, err
		}

		result := SetBreakpointResult{Breakpoints: breakpointEntries(results)}
		toolResult, err := callToolResult(invocationID, result)
		if err != nil {
			return nil, SetBreakpointResult{}, err
		}
		return toolResult, result, nil
	}
}

// SetExceptionBreakpointsHandler configures exception filters. The session
// acknowledges without per-filter verification, so the result is a bare ack.
func SetExceptionBreakpointsHandler(client *debug.Client) mcp.ToolHandlerFor[SetExceptionBreakpointsInput, AckResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SetExceptionBreakpointsInput) (*mcp.CallToolResult, AckResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, AckResult{}, err
		}

		var violations []string
		for i, option := range input.ExceptionOptions {
			if strings.TrimSpace(option.FilterID) == "" {
				violations = append(violations, fmt.Sprintf("exception_options[%d].filter_id is required", i))
			}
		}
		if len(violations) > 0 {
			return nil, AckResult{}, invalidArguments(violations...)
		}

		set := debug.BreakpointSet{
			Kind:             debug.BreakpointKindException,
			ExceptionFilters: input.Filters,
		}
		for _, option := range input.ExceptionOptions {
			set.ExceptionOptions = append(set.ExceptionOptions, debug.ExceptionFilterOption{
				FilterID:  option.FilterID,
				Condition: option.Condition,
			})
		}

		if _, err := client.SetBreakpoints(ctx, input.SessionID, set); err != nil {
			return nil, AckResult{}, err
		}

		result := AckResult{OK: true, Action: "set_exception_breakpoints"}
		toolResult, err := callToolResult(invocationID, result)
		if err != nil {
			return nil, AckResult{}, err
		}
		return toolResult, result, nil
	}
}

func breakpointEntries(results []debug.BreakpointResult) []BreakpointEntry {
	entries := []BreakpointEntry{}
	for _, result := range results {
		entries = append(entries, BreakpointEntry{
			ID:       result.ID,
			Verified: result.Verified,
			Message:  result.Message,
		})
	}
	return entries
}
