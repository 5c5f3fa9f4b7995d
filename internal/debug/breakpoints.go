package debug

import (
	"context"
	"fmt"

	"github.com/google/go-dap"
)

// BreakpointKind tags the closed set of breakpoint spec variants.
type BreakpointKind int

const (
	// BreakpointKindFile replaces the breakpoints of one source file.
	BreakpointKindFile BreakpointKind = iota
	// BreakpointKindFunction replaces all function breakpoints.
	BreakpointKindFunction
	// BreakpointKindException replaces the exception filter set.
	BreakpointKindException
)

// FileBreakpoint is one source-line breakpoint. A non-empty LogMessage turns
// it into a logpoint that logs instead of halting.
type FileBreakpoint struct {
	Line         int    `json:"line"`
	Column       int    `json:"column,omitempty"`
	Condition    string `json:"condition,omitempty"`
	HitCondition string `json:"hitCondition,omitempty"`
	LogMessage   string `json:"logMessage,omitempty"`
}

// FunctionBreakpoint halts on entry to a named function.
type FunctionBreakpoint struct {
	Name         string `json:"name"`
	Condition    string `json:"condition,omitempty"`
	HitCondition string `json:"hitCondition,omitempty"`
}

// ExceptionFilterOption refines one exception filter.
type ExceptionFilterOption struct {
	FilterID  string `json:"filterId"`
	Condition string `json:"condition,omitempty"`
}

// BreakpointSet is the tagged union of the three breakpoint spec variants.
// Applying a set replaces the session's entire breakpoint set of that kind
// for its key: the file path, all function breakpoints, or the exception
// filter set. Callers wanting incremental changes resend the full set.
type BreakpointSet struct {
	Kind BreakpointKind

	// File kind.
	File            string
	FileBreakpoints []FileBreakpoint

	// Function kind.
	FunctionBreakpoints []FunctionBreakpoint

	// Exception kind.
	ExceptionFilters []string
	ExceptionOptions []ExceptionFilterOption
}

// SetBreakpoints applies a breakpoint set to a session. Verification results
// come back in submission order and count; the bridge neither reorders nor
// drops entries. Exception filter sets return no per-filter results because
// the underlying request is a bare acknowledgement.
func (c *Client) SetBreakpoints(ctx context.Context, sessionID string, set BreakpointSet) ([]BreakpointResult, error) {
	session, err := c.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch set.Kind {
	case BreakpointKindFile:
		if set.File == "" {
			return nil, NewError(CodeInvalidArguments, "file breakpoints require a source path")
		}
		breakpoints := make([]dap.SourceBreakpoint, 0, len(set.FileBreakpoints))
		for _, bp := range set.FileBreakpoints {
			breakpoints = append(breakpoints, dap.SourceBreakpoint{
				Line:         bp.Line,
				Column:       bp.Column,
				Condition:    bp.Condition,
				HitCondition: bp.HitCondition,
				LogMessage:   bp.LogMessage,
			})
		}
		args := dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: set.File},
			Breakpoints: breakpoints,
		}
		var body dap.SetBreakpointsResponseBody
		if err := c.send(ctx, session.ID, "setBreakpoints", args, &body); err != nil {
			return nil, err
		}
		return breakpointResults(body.Breakpoints), nil

	case BreakpointKindFunction:
		breakpoints := make([]dap.FunctionBreakpoint, 0, len(set.FunctionBreakpoints))
		for _, bp := range set.FunctionBreakpoints {
			breakpoints = append(breakpoints, dap.FunctionBreakpoint{
				Name:         bp.Name,
				Condition:    bp.Condition,
				HitCondition: bp.HitCondition,
			})
		}
		args := dap.SetFunctionBreakpointsArguments{Breakpoints: breakpoints}
		var body dap.SetFunctionBreakpointsResponseBody
		if err := c.send(ctx, session.ID, "setFunctionBreakpoints", args, &body); err != nil {
			return nil, err
		}
		return breakpointResults(body.Breakpoints), nil

	case BreakpointKindException:
		filters := set.ExceptionFilters
		if filters == nil {
			filters = []string{}
		}
		options := make([]dap.ExceptionFilterOptions, 0, len(set.ExceptionOptions))
		for _, option := range set.ExceptionOptions {
			options = append(options, dap.ExceptionFilterOptions{
				FilterId:  option.FilterID,
				Condition: option.Condition,
			})
		}
		args := dap.SetExceptionBreakpointsArguments{Filters: filters}
		if len(options) > 0 {
			args.FilterOptions = options
		}
		if err := c.send(ctx, session.ID, "setExceptionBreakpoints", args, nil); err != nil {
			return nil, err
		}
		return []BreakpointResult{}, nil

	default:
		return nil, NewError(CodeInvalidArguments, fmt.Sprintf("unsupported breakpoint kind %d", set.Kind))
	}
}

// ClearFileBreakpoints removes every breakpoint in a source file. It is the
// empty-set replace for that file.
func (c *Client) ClearFileBreakpoints(ctx context.Context, sessionID, file string) ([]BreakpointResult, error) {
	return c.SetBreakpoints(ctx, sessionID, BreakpointSet{Kind: BreakpointKindFile, File: file})
}

func breakpointResults(breakpoints []dap.Breakpoint) []BreakpointResult {
	results := make([]BreakpointResult, 0, len(breakpoints))
	for _, bp := range breakpoints {
		results = append(results, BreakpointResult{ID: bp.Id, Verified: bp.Verified, Message: bp.Message})
	}
	return results
}
