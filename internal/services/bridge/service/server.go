package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/dapbridge/internal/debug"
	"github.com/louisbranch/dapbridge/internal/hostclient"
	"github.com/louisbranch/dapbridge/internal/services/bridge/domain"
)

const (
	// serverName identifies this MCP server to clients.
	serverName = "dapbridge"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
)

// TransportKind identifies the MCP transport implementation.
type TransportKind string

const (
	// TransportStdio uses standard input/output for MCP.
	TransportStdio TransportKind = "stdio"
	// TransportHTTP runs MCP over HTTP for local agents and tooling.
	TransportHTTP TransportKind = "http"
)

// Config configures the bridge service.
type Config struct {
	// HostAddr is the TCP address of the debugger-hosting process.
	HostAddr string
	// Transport selects stdio or HTTP serving. Defaults to stdio.
	Transport TransportKind
	// HTTPAddr is the HTTP listen address. Defaults to 127.0.0.1:8081 and
	// should stay loopback-only; the transport carries no authentication.
	HTTPAddr string
}

type mcpRegistrationKind int

const (
	mcpRegistrationKindTools mcpRegistrationKind = iota
	mcpRegistrationKindResources
)

type mcpRegistrationModule struct {
	name     string
	kind     mcpRegistrationKind
	register func(mcpRegistrationTarget) error
}

const (
	mcpSessionToolsModuleName    = "session-tools"
	mcpInspectionToolsModuleName = "inspection-tools"
	mcpExecutionToolsModuleName  = "execution-tools"
	mcpBreakpointToolsModuleName = "breakpoint-tools"
	mcpDebugResourceModuleName   = "debug-resources"
)

func newMCPRegistrationModules(client *debug.Client) []mcpRegistrationModule {
	return []mcpRegistrationModule{
		{
			name: mcpSessionToolsModuleName,
			kind: mcpRegistrationKindTools,
			register: func(registrar mcpRegistrationTarget) error {
				return registerSessionTools(registrar, client)
			},
		},
		{
			name: mcpInspectionToolsModuleName,
			kind: mcpRegistrationKindTools,
			register: func(registrar mcpRegistrationTarget) error {
				return registerInspectionTools(registrar, client)
			},
		},
		{
			name: mcpExecutionToolsModuleName,
			kind: mcpRegistrationKindTools,
			register: func(registrar mcpRegistrationTarget) error {
				return registerExecutionTools(registrar, client)
			},
		},
		{
			name: mcpBreakpointToolsModuleName,
			kind: mcpRegistrationKindTools,
			register: func(registrar mcpRegistrationTarget) error {
				return registerBreakpointTools(registrar, client)
			},
		},
		{
			name: mcpDebugResourceModuleName,
			kind: mcpRegistrationKindResources,
			register: func(registrar mcpRegistrationTarget) error {
				registerDebugResources(registrar, client)
				return nil
			},
		},
	}
}

type mcpServerRegistrationAdapter struct {
	server *mcp.Server
}

func (r mcpServerRegistrationAdapter) AddTool(tool *mcp.Tool, handler any) error {
	return addMCPTool(r.server, tool, handler)
}

func (r mcpServerRegistrationAdapter) AddResourceTemplate(resourceTemplate *mcp.ResourceTemplate, handler mcp.ResourceHandler) {
	r.server.AddResourceTemplate(resourceTemplate, handler)
}

func (r mcpServerRegistrationAdapter) AddResource(resource *mcp.Resource, handler mcp.ResourceHandler) {
	r.server.AddResource(resource, handler)
}

type mcpToolRegistrar struct {
	matches func(any) bool
	add     func(*mcp.Server, *mcp.Tool, any)
}

func newMCPToolRegistrar[I any, O any]() mcpToolRegistrar {
	return mcpToolRegistrar{
		matches: func(handler any) bool {
			_, ok := handler.(mcp.ToolHandlerFor[I, O])
			return ok
		},
		add: func(server *mcp.Server, tool *mcp.Tool, handler any) {
			mcp.AddTool(server, tool, handler.(mcp.ToolHandlerFor[I, O]))
		},
	}
}

var mcpToolRegistrars = []mcpToolRegistrar{
	newMCPToolRegistrar[domain.ListSessionsInput, domain.ListSessionsResult](),
	newMCPToolRegistrar[domain.StatusInput, domain.StatusResult](),
	newMCPToolRegistrar[domain.ThreadsInput, domain.ThreadsResult](),
	newMCPToolRegistrar[domain.WaitForStopInput, domain.WaitForStopResult](),
	newMCPToolRegistrar[domain.StackInput, domain.StackResult](),
	newMCPToolRegistrar[domain.ScopesInput, domain.ScopesResult](),
	newMCPToolRegistrar[domain.VariablesInput, domain.VariablesResult](),
	newMCPToolRegistrar[domain.EvaluateInput, domain.EvaluateResult](),
	newMCPToolRegistrar[domain.SetVariableInput, domain.SetVariableResult](),
	newMCPToolRegistrar[domain.SnapshotInput, domain.SnapshotResult](),
	newMCPToolRegistrar[domain.ThreadControlInput, domain.AckResult](),
	newMCPToolRegistrar[domain.RestartInput, domain.AckResult](),
	newMCPToolRegistrar[domain.TerminateInput, domain.AckResult](),
	newMCPToolRegistrar[domain.DisconnectInput, domain.AckResult](),
	newMCPToolRegistrar[domain.SetBreakpointInput, domain.SetBreakpointResult](),
	newMCPToolRegistrar[domain.ClearBreakpointsInput, domain.SetBreakpointResult](),
	newMCPToolRegistrar[domain.SetFunctionBreakpointsInput, domain.SetBreakpointResult](),
	newMCPToolRegistrar[domain.SetExceptionBreakpointsInput, domain.AckResult](),
}

func addMCPTool(server *mcp.Server, tool *mcp.Tool, handler any) error {
	for _, registrar := range mcpToolRegistrars {
		if registrar.matches(handler) {
			registrar.add(server, tool, handler)
			return nil
		}
	}
	toolName := "<nil>"
	if tool != nil {
		toolName = tool.Name
	}
	return fmt.Errorf("mcp registration adapter does not support handler type %T for tool %q", handler, toolName)
}

// newMCPServer builds a fully registered protocol server around the debug
// client. The HTTP transport calls this per request, so construction must
// stay cheap and side-effect free.
func newMCPServer(client *debug.Client) (*mcp.Server, error) {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	for _, module := range newMCPRegistrationModules(client) {
		if err := module.register(mcpServerRegistrationAdapter{server: mcpServer}); err != nil {
			return nil, fmt.Errorf("register MCP module %q: %w", module.name, err)
		}
	}
	return mcpServer, nil
}

// Run is the service entrypoint and blocks until context cancellation. It
// connects to the debug host, keeps the session registry synced from host
// lifecycle events, and serves the tool surface on the selected transport.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}

	registry := debug.NewRegistry()
	host, err := hostclient.Dial(ctx, cfg.HostAddr, hostclient.BindRegistry(registry))
	if err != nil {
		return err
	}
	defer host.Close()

	client := debug.NewClient(host, registry)

	switch cfg.Transport {
	case TransportStdio:
		return serveStdio(ctx, client)
	case TransportHTTP:
		return NewHTTPTransport(cfg.HTTPAddr, client).Start(ctx)
	default:
		return fmt.Errorf("transport %q is not supported", cfg.Transport)
	}
}

// serveStdio runs one long-lived protocol server over stdio.
func serveStdio(ctx context.Context, client *debug.Client) error {
	mcpServer, err := newMCPServer(client)
	if err != nil {
		return err
	}
	err = mcpServer.Run(ctx, &mcp.StdioTransport{})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}
