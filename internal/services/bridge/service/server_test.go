package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/dapbridge/internal/debug"
)

// deadHost fails every RPC. Registration tests only need a debug client, not
// a live debugger host.
type deadHost struct{}

func (deadHost) SendSessionRequest(context.Context, string, string, any) (json.RawMessage, error) {
	return nil, fmt.Errorf("no host")
}

func (deadHost) ActiveSession(context.Context) (debug.Handle, bool, error) {
	return debug.Handle{}, false, nil
}

func newTestDebugClient() *debug.Client {
	client := debug.NewClient(deadHost{}, debug.NewRegistry())
	client.SetLogf(func(string, ...any) {})
	return client
}

func TestNewMCPServerRegistersAllModules(t *testing.T) {
	server, err := newMCPServer(newTestDebugClient())
	if err != nil {
		t.Fatalf("newMCPServer: %v", err)
	}
	if server == nil {
		t.Fatal("expected a server")
	}
}

func TestAddMCPToolRejectsUnknownHandlerType(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	err := addMCPTool(server, &mcp.Tool{Name: "bogus"}, "not a handler")
	if err == nil {
		t.Fatal("expected error for unsupported handler type")
	}
}

func TestRegisterToolRejectsNilTool(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	err := registerTool(mcpServerRegistrationAdapter{server: server}, nil, nil)
	if err == nil {
		t.Fatal("expected error for nil tool")
	}
}

func TestRunRejectsUnknownTransport(t *testing.T) {
	// Dial failure comes first with an unreachable host, so exercise the
	// transport check through the switch directly.
	err := Run(context.Background(), Config{HostAddr: "127.0.0.1:1", Transport: TransportKind("carrier-pigeon")})
	if err == nil {
		t.Fatal("expected error")
	}
}
