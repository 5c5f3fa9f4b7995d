package service

import (
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/dapbridge/internal/debug"
	"github.com/louisbranch/dapbridge/internal/services/bridge/domain"
)

type mcpRegistrationTarget interface {
	AddTool(*mcp.Tool, any) error
	AddResourceTemplate(*mcp.ResourceTemplate, mcp.ResourceHandler)
	AddResource(*mcp.Resource, mcp.ResourceHandler)
}

func registerSessionTools(registrar mcpRegistrationTarget, client *debug.Client) error {
	registrations := []struct {
		tool    *mcp.Tool
		handler any
	}{
		{tool: domain.ListSessionsTool(), handler: domain.ListSessionsHandler(client)},
		{tool: domain.StatusTool(), handler: domain.StatusHandler(client)},
		{tool: domain.ThreadsTool(), handler: domain.ThreadsHandler(client)},
		{tool: domain.WaitForStopTool(), handler: domain.WaitForStopHandler(client)},
	}
	for _, registration := range registrations {
		if err := registerTool(registrar, registration.tool, registration.handler); err != nil {
			return err
		}
	}
	return nil
}

func registerInspectionTools(registrar mcpRegistrationTarget, client *debug.Client) error {
	registrations := []struct {
		tool    *mcp.Tool
		handler any
	}{
		{tool: domain.StackTool(), handler: domain.StackHandler(client)},
		{tool: domain.ScopesTool(), handler: domain.ScopesHandler(client)},
		{tool: domain.VariablesTool(), handler: domain.VariablesHandler(client)},
		{tool: domain.EvaluateTool(), handler: domain.EvaluateHandler(client)},
		{tool: domain.SetVariableTool(), handler: domain.SetVariableHandler(client)},
		{tool: domain.SnapshotTool(), handler: domain.SnapshotHandler(client)},
	}
	for _, registration := range registrations {
		if err := registerTool(registrar, registration.tool, registration.handler); err != nil {
			return err
		}
	}
	return nil
}

func registerExecutionTools(registrar mcpRegistrationTarget, client *debug.Client) error {
	registrations := []struct {
		tool    *mcp.Tool
		handler any
	}{
		{tool: domain.ContinueTool(), handler: domain.ContinueHandler(client)},
		{tool: domain.PauseTool(), handler: domain.PauseHandler(client)},
		{tool: domain.StepOverTool(), handler: domain.StepOverHandler(client)},
		{tool: domain.StepInTool(), handler: domain.StepInHandler(client)},
		{tool: domain.StepOutTool(), handler: domain.StepOutHandler(client)},
		{tool: domain.RestartTool(), handler: domain.RestartHandler(client)},
		{tool: domain.TerminateTool(), handler: domain.TerminateHandler(client)},
		{tool: domain.DisconnectTool(), handler: domain.DisconnectHandler(client)},
	}
	for _, registration := range registrations {
		if err := registerTool(registrar, registration.tool, registration.handler); err != nil {
			return err
		}
	}
	return nil
}

func registerBreakpointTools(registrar mcpRegistrationTarget, client *debug.Client) error {
	registrations := []struct {
		tool    *mcp.Tool
		handler any
	}{
		{tool: domain.SetBreakpointTool(), handler: domain.SetBreakpointHandler(client)},
		{tool: domain.ClearBreakpointsTool(), handler: domain.ClearBreakpointsHandler(client)},
		{tool: domain.SetFunctionBreakpointsTool(), handler: domain.SetFunctionBreakpointsHandler(client)},
		{tool: domain.SetExceptionBreakpointsTool(), handler: domain.SetExceptionBreakpointsHandler(client)},
	}
	for _, registration := range registrations {
		if err := registerTool(registrar, registration.tool, registration.handler); err != nil {
			return err
		}
	}
	return nil
}

func registerTool(registrar mcpRegistrationTarget, tool *mcp.Tool, handler any) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	return registrar.AddTool(tool, handler)
}

// registerDebugResources registers the readable debug MCP resources.
func registerDebugResources(registrar mcpRegistrationTarget, client *debug.Client) {
	registrar.AddResource(domain.StackResource(), domain.StackResourceHandler(client))
	registrar.AddResourceTemplate(domain.FrameVariablesResourceTemplate(), domain.FrameVariablesResourceHandler(client))
}
