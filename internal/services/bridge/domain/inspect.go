package domain

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/dapbridge/internal/debug"
)

// ScopeEntry represents one variable scope in MCP responses.
type ScopeEntry struct {
	Name               string `json:"name" jsonschema:"scope name"`
	VariablesReference int    `json:"variables_reference" jsonschema:"reference for fetching the scope's variables"`
	Expensive          bool   `json:"expensive" jsonschema:"whether fetching this scope is costly"`
}

// VariableEntry represents one variable in MCP responses.
type VariableEntry struct {
	Name               string `json:"name" jsonschema:"variable name"`
	Value              string `json:"value" jsonschema:"rendered variable value"`
	Type               string `json:"type,omitempty" jsonschema:"variable type"`
	VariablesReference int    `json:"variables_reference,omitempty" jsonschema:"reference for fetching child variables, 0 when the value is a leaf"`
}

// StackInput represents the MCP tool input for a stack fetch.
type StackInput struct {
	SessionID  string `json:"session_id,omitempty" jsonschema:"session identifier (defaults to the active session)"`
	ThreadID   int    `json:"thread_id,omitempty" jsonschema:"thread to inspect (defaults to 1)"`
	StartFrame int    `json:"start_frame,omitempty" jsonschema:"index of the first frame to return"`
	Levels     int    `json:"levels,omitempty" jsonschema:"maximum number of frames to return (0 means all)"`
}

// StackResult represents the MCP tool output for a stack fetch.
type StackResult struct {
	Frames []FrameEntry `json:"frames" jsonschema:"stack frames in the order reported by the session"`
}

// ScopesInput represents the MCP tool input for a scopes fetch.
type ScopesInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"session identifier (defaults to the active session)"`
	FrameID   int    `json:"frame_id" jsonschema:"frame identifier from a preceding stack fetch"`
}

// ScopesResult represents the MCP tool output for a scopes fetch.
type ScopesResult struct {
	Scopes []ScopeEntry `json:"scopes" jsonschema:"variable scopes of the frame"`
}

// VariablesInput represents the MCP tool input for a variables fetch.
type VariablesInput struct {
	SessionID          string `json:"session_id,omitempty" jsonschema:"session identifier (defaults to the active session)"`
	VariablesReference int    `json:"variables_reference" jsonschema:"reference from a scope or structured variable"`
	Start              int    `json:"start,omitempty" jsonschema:"index of the first variable to return"`
	Count              int    `json:"count,omitempty" jsonschema:"maximum number of variables to return (0 means all)"`
	Filter             string `json:"filter,omitempty" jsonschema:"restrict to indexed or named variables"`
}

// VariablesResult represents the MCP tool output for a variables fetch.
type VariablesResult struct {
	Variables []VariableEntry `json:"variables" jsonschema:"variables under the reference"`
}

// EvaluateInput represents the MCP tool input for expression evaluation.
type EvaluateInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"session identifier (defaults to the active session)"`
	Expr      string `json:"expr" jsonschema:"expression to evaluate"`
	FrameID   *int   `json:"frame_id,omitempty" jsonschema:"frame to evaluate in (defaults to the current top frame)"`
	Context   string `json:"context,omitempty" jsonschema:"evaluation context hint (watch, repl, hover)"`
	ThreadID  int    `json:"thread_id,omitempty" jsonschema:"thread used to resolve the default frame (defaults to 1)"`
}

// EvaluateResult represents the MCP tool output for expression evaluation.
type EvaluateResult struct {
	Result             string         `json:"result" jsonschema:"rendered evaluation result"`
	Type               string         `json:"type,omitempty" jsonschema:"result type"`
	VariablesReference int            `json:"variables_reference,omitempty" jsonschema:"reference for fetching child variables"`
	Extra              map[string]any `json:"extra,omitempty" jsonschema:"adapter-specific response fields, passed through"`
}

// SetVariableInput represents the MCP tool input for assigning a variable.
type SetVariableInput struct {
	SessionID          string `json:"session_id,omitempty" jsonschema:"session identifier (defaults to the active session)"`
	VariablesReference int    `json:"variables_reference" jsonschema:"reference of the container holding the variable"`
	Name               string `json:"name" jsonschema:"variable name"`
	Value              string `json:"value" jsonschema:"new value expression"`
}

// SetVariableResult represents the MCP tool output for assigning a variable.
type SetVariableResult struct {
	Variable VariableEntry `json:"variable" jsonschema:"variable after assignment"`
}

// SnapshotScopeEntry pairs a scope with its fetched variables.
type SnapshotScopeEntry struct {
	Scope     ScopeEntry      `json:"scope" jsonschema:"variable scope"`
	Variables []VariableEntry `json:"variables" jsonschema:"variables in the scope"`
}

// SnapshotInput represents the MCP tool input for a top-frame snapshot.
type SnapshotInput struct {
	SessionID        string `json:"session_id,omitempty" jsonschema:"session identifier (defaults to the active session)"`
	ThreadID         int    `json:"thread_id,omitempty" jsonschema:"thread to inspect (defaults to 1)"`
	IncludeExpensive bool   `json:"include_expensive,omitempty" jsonschema:"fetch variables of scopes marked expensive"`
	MaxVariables     int    `json:"max_variables,omitempty" jsonschema:"cap on variables fetched per scope (0 means all)"`
}

// SnapshotResult represents the MCP tool output for a top-frame snapshot.
type SnapshotResult struct {
	Frame  *FrameEntry          `json:"frame" jsonschema:"top stack frame, absent when no frames are reported"`
	Scopes []SnapshotScopeEntry `json:"scopes" jsonschema:"scopes of the top frame with their variables"`
}

// StackTool defines the MCP tool schema for stack fetches.
func StackTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "stack",
		Description: "Fetches the call stack of a halted thread",
	}
}

// ScopesTool defines the MCP tool schema for scope fetches.
func ScopesTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "scopes",
		Description: "Fetches the variable scopes of a stack frame",
	}
}

// VariablesTool defines the MCP tool schema for variable fetches.
func VariablesTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "variables",
		Description: "Fetches the variables under a scope or structured variable reference",
	}
}

// EvaluateTool defines the MCP tool schema for expression evaluation.
func EvaluateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "evaluate_expr",
		Description: "Evaluates an expression in a stack frame, defaulting to the current top frame",
	}
}

// SetVariableTool defines the MCP tool schema for variable assignment.
func SetVariableTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "set_variable",
		Description: "Assigns a new value to a variable in a scope or structured variable",
	}
}

// SnapshotTool defines the MCP tool schema for top-frame snapshots.
func SnapshotTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "snapshot",
		Description: "Fetches the top frame with its scopes and variables in one call",
	}
}

// StackHandler fetches a thread's call stack.
func StackHandler(client *debug.Client) mcp.ToolHandlerFor[StackInput, StackResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input StackInput) (*mcp.CallToolResult, StackResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, StackResult{}, err
		}

		var violations []string
		if input.ThreadID < 0 {
			violations = append(violations, "thread_id must be non-negative")
		}
		if input.StartFrame < 0 {
			violations = append(violations, "start_frame must be non-negative")
		}
		if input.Levels < 0 {
			violations = append(violations, "levels must be non-negative")
		}
		if len(violations) > 0 {
			return nil, StackResult{}, invalidArguments(violations...)
		}

		frames, err := client.Stack(ctx, input.SessionID, input.ThreadID, input.StartFrame, input.Levels)
		if err != nil {
			return nil, StackResult{}, err
		}

		result := StackResult{Frames: frameEntries(frames)}
		toolResult, err := callToolResult(invocationID, result)
		if err != nil {
			return nil, StackResult{}, err
		}
		return toolResult, result, nil
	}
}

// ScopesHandler fetches a frame's variable scopes.
func ScopesHandler(client *debug.Client) mcp.ToolHandlerFor[ScopesInput, ScopesResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ScopesInput) (*mcp.CallToolResult, ScopesResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, ScopesResult{}, err
		}

		if input.FrameID < 0 {
			return nil, ScopesResult{}, invalidArguments("frame_id must be non-negative")
		}

		scopes, err := client.Scopes(ctx, input.SessionID, input.FrameID)
		if err != nil {
			return nil, ScopesResult{}, err
		}

		result := ScopesResult{Scopes: scopeEntries(scopes)}
		toolResult, err := callToolResult(invocationID, result)
		if err != nil {
			return nil, ScopesResult{}, err
		}
		return toolResult, result, nil
	}
}

// VariablesHandler fetches variables under a reference.
func VariablesHandler(client *debug.Client) mcp.ToolHandlerFor[VariablesInput, VariablesResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input VariablesInput) (*mcp.CallToolResult, VariablesResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, VariablesResult{}, err
		}

		var violations []string
		if input.VariablesReference <= 0 {
			violations = append(violations, "variables_reference must be positive")
		}
		if input.Start < 0 {
			violations = append(violations, "start must be non-negative")
		}
		if input.Count < 0 {
			violations = append(violations, "count must be non-negative")
		}
		switch strings.ToLower(strings.TrimSpace(input.Filter)) {
		case "", "indexed", "named":
		default:
			violations = append(violations, "filter must be indexed or named")
		}
		if len(violations) > 0 {
			return nil, VariablesResult{}, invalidArguments(violations...)
		}

		variables, err := client.Variables(ctx, input.SessionID, input.VariablesReference, input.Start, input.Count, strings.ToLower(strings.TrimSpace(input.Filter)))
		if err != nil {
			return nil, VariablesResult{}, err
		}

		result := VariablesResult{Variables: variableEntries(variables)}
		toolResult, err := callToolResult(invocationID, result)
		if err != nil {
			return nil, VariablesResult{}, err
		}
		return toolResult, result, nil
	}
}

// EvaluateHandler evaluates an expression. When no frame is given, the
// current top frame of the thread is resolved first so the evaluation sees
// the same frame a preceding stack fetch reported.
func EvaluateHandler(client *debug.Client) mcp.ToolHandlerFor[EvaluateInput, EvaluateResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input EvaluateInput) (*mcp.CallToolResult, EvaluateResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, EvaluateResult{}, err
		}

		var violations []string
		if strings.TrimSpace(input.Expr) == "" {
			violations = append(violations, "expr is required")
		}
		if input.FrameID != nil && *input.FrameID < 0 {
			violations = append(violations, "frame_id must be non-negative")
		}
		if input.ThreadID < 0 {
			violations = append(violations, "thread_id must be non-negative")
		}
		if len(violations) > 0 {
			return nil, EvaluateResult{}, invalidArguments(violations...)
		}

		frameID := 0
		if input.FrameID != nil {
			frameID = *input.FrameID
		} else {
			top, err := client.TopFrame(ctx, input.SessionID, input.ThreadID)
			if err != nil {
				return nil, EvaluateResult{}, err
			}
			if top != nil {
				frameID = top.ID
			}
		}

		eval, err := client.Evaluate(ctx, input.SessionID, input.Expr, frameID, input.Context)
		if err != nil {
			return nil, EvaluateResult{}, err
		}

		result := EvaluateResult{
			Result:             eval.Result,
			Type:               eval.Type,
			VariablesReference: eval.VariablesReference,
			Extra:              eval.Extra,
		}
		toolResult, err := callToolResult(invocationID, result)
		if err != nil {
			return nil, EvaluateResult{}, err
		}
		return toolResult, result, nil
	}
}

// SetVariableHandler assigns a new value to a variable.
func SetVariableHandler(client *debug.Client) mcp.ToolHandlerFor[SetVariableInput, SetVariableResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SetVariableInput) (*mcp.CallToolResult, SetVariableResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, SetVariableResult{}, err
		}

		var violations []string
		if input.VariablesReference <= 0 {
			violations = append(violations, "variables_reference must be positive")
		}
		if strings.TrimSpace(input.Name) == "" {
			violations = append(violations, "name is required")
		}
		if input.Value == "" {
			violations = append(violations, "value is required")
		}
		if len(violations) > 0 {
			return nil, SetVariableResult{}, invalidArguments(violations...)
		}

		variable, err := client.SetVariable(ctx, input.SessionID, input.VariablesReference, input.Name, input.Value)
		if err != nil {
			return nil, SetVariableResult{}, err
		}

		result := SetVariableResult{Variable: variableEntry(variable)}
		toolResult, err := callToolResult(invocationID, result)
		if err != nil {
			return nil, SetVariableResult{}, err
		}
		return toolResult, result, nil
	}
}

// SnapshotHandler fetches the top frame with scopes and variables in one
// call, collapsing what would otherwise take several round trips.
func SnapshotHandler(client *debug.Client) mcp.ToolHandlerFor[SnapshotInput, SnapshotResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SnapshotInput) (*mcp.CallToolResult, SnapshotResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, SnapshotResult{}, err
		}

		var violations []string
		if input.ThreadID < 0 {
			violations = append(violations, "thread_id must be non-negative")
		}
		if input.MaxVariables < 0 {
			violations = append(violations, "max_variables must be non-negative")
		}
		if len(violations) > 0 {
			return nil, SnapshotResult{}, invalidArguments(violations...)
		}

		snapshot, err := client.Snapshot(ctx, input.SessionID, input.ThreadID, input.IncludeExpensive, input.MaxVariables)
		if err != nil {
			return nil, SnapshotResult{}, err
		}

		result := SnapshotResult{
			Frame:  frameEntry(snapshot.Frame),
			Scopes: []SnapshotScopeEntry{},
		}
		for _, pair := range snapshot.Scopes {
			result.Scopes = append(result.Scopes, SnapshotScopeEntry{
				Scope:     scopeEntry(pair.Scope),
				Variables: variableEntries(pair.Variables),
			})
		}

		toolResult, err := callToolResult(invocationID, result)
		if err != nil {
			return nil, SnapshotResult{}, err
		}
		return toolResult, result, nil
	}
}

func scopeEntry(scope debug.Scope) ScopeEntry {
	return ScopeEntry{
		Name:               scope.Name,
		VariablesReference: scope.VariablesReference,
		Expensive:          scope.Expensive,
	}
}

func scopeEntries(scopes []debug.Scope) []ScopeEntry {
	entries := []ScopeEntry{}
	for _, scope := range scopes {
		entries = append(entries, scopeEntry(scope))
	}
	return entries
}

func variableEntry(variable debug.Variable) VariableEntry {
	return VariableEntry{
		Name:               variable.Name,
		Value:              variable.Value,
		Type:               variable.Type,
		VariablesReference: variable.VariablesReference,
	}
}

func variableEntries(variables []debug.Variable) []VariableEntry {
	entries := []VariableEntry{}
	for _, variable := range variables {
		entries = append(entries, variableEntry(variable))
	}
	return entries
}
