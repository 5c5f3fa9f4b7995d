package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/dapbridge/internal/debug"
)

// StackPayload represents the MCP resource payload for the current stack.
type StackPayload struct {
	Frames []FrameEntry `json:"frames"`
}

// FrameVariablesPayload represents the MCP resource payload for a frame's
// first-scope variables.
type FrameVariablesPayload struct {
	FrameID   int             `json:"frame_id"`
	Variables []VariableEntry `json:"variables"`
}

// StackResource declares the readable current-stack resource. The thread is
// fixed at 1; callers needing other threads use the stack tool.
func StackResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "stack",
		Title:       "Current stack",
		Description: "Call stack of thread 1 in the active debug session",
		MIMEType:    "application/json",
		URI:         "debug://stack",
	}
}

// FrameVariablesResourceTemplate declares the readable per-frame variables
// resource.
func FrameVariablesResourceTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		Name:        "frame_variables",
		Title:       "Frame variables",
		Description: "Variables of a frame's first scope. URI format: debug://frames/{frameId}/variables",
		MIMEType:    "application/json",
		URITemplate: "debug://frames/{frameId}/variables",
	}
}

// StackResourceHandler returns the current stack of thread 1.
func StackResourceHandler(client *debug.Client) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := StackResource().URI
		if req != nil && req.Params != nil && req.Params.URI != "" {
			uri = req.Params.URI
		}

		frames, err := client.Stack(ctx, "", 1, 0, 0)
		if err != nil {
			return nil, err
		}

		payload := StackPayload{Frames: frameEntries(frames)}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal stack: %w", err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/json",
					Text:     string(data),
				},
			},
		}, nil
	}
}

// FrameVariablesResourceHandler returns the variables of a frame's first
// reported scope, or an empty list when the frame has no scopes.
func FrameVariablesResourceHandler(client *debug.Client) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if req == nil || req.Params == nil || req.Params.URI == "" {
			return nil, invalidArguments("frame id is required; use URI format debug://frames/{frameId}/variables")
		}
		uri := req.Params.URI

		frameID, err := parseFrameIDFromURI(uri)
		if err != nil {
			return nil, err
		}

		payload := FrameVariablesPayload{FrameID: frameID, Variables: []VariableEntry{}}

		scopes, err := client.Scopes(ctx, "", frameID)
		if err != nil {
			return nil, err
		}
		if len(scopes) > 0 && scopes[0].VariablesReference > 0 {
			variables, err := client.Variables(ctx, "", scopes[0].VariablesReference, 0, 0, "")
			if err != nil {
				return nil, err
			}
			payload.Variables = variableEntries(variables)
		}

		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal frame variables: %w", err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/json",
					Text:     string(data),
				},
			},
		}, nil
	}
}

// parseFrameIDFromURI extracts the frame id path parameter. The id must be a
// non-negative integer.
func parseFrameIDFromURI(uri string) (int, error) {
	rest, ok := strings.CutPrefix(uri, "debug://frames/")
	if !ok {
		return 0, invalidArguments(fmt.Sprintf("unexpected URI %q; use debug://frames/{frameId}/variables", uri))
	}
	raw, ok := strings.CutSuffix(rest, "/variables")
	if !ok || raw == "" || strings.Contains(raw, "/") {
		return 0, invalidArguments(fmt.Sprintf("unexpected URI %q; use debug://frames/{frameId}/variables", uri))
	}
	frameID, err := strconv.Atoi(raw)
	if err != nil || frameID < 0 {
		return 0, invalidArguments(fmt.Sprintf("frame id %q must be a non-negative integer", raw))
	}
	return frameID, nil
}
