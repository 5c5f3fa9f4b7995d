package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/dapbridge/internal/debug"
)

var listenTCP = net.Listen

const (
	// maxRequestBodyBytes caps POST bodies at 2 MiB. Larger payloads are
	// rejected before any JSON-RPC processing.
	maxRequestBodyBytes = 2 << 20

	// jsonrpcParseErrorCode is the JSON-RPC 2.0 parse error code, reused for
	// both oversized and malformed bodies so clients branch on the message.
	jsonrpcParseErrorCode = -32700

	// defaultShutdownTimeout is the maximum time to wait for graceful HTTP
	// server shutdown.
	defaultShutdownTimeout = 10 * time.Second

	// defaultSessionTimeout closes idle protocol sessions on the streamed
	// channel so abandoned clients do not accumulate.
	defaultSessionTimeout = 30 * time.Minute

	// sessionIDHeader addresses an established protocol session on the
	// streamed channel.
	sessionIDHeader = "Mcp-Session-Id"
)

// HTTPTransport serves the MCP debug bridge over HTTP on a single /mcp path.
//
// One-shot POST calls get a fresh protocol server and wire adapter per
// request, so they never share dispatch-layer state. Stream-capable clients
// that initialize a session are served by a single long-lived protocol
// server instead: the wire protocol requires an established session before
// it opens the GET event-stream channel, so that channel cannot run on
// throwaway per-request servers. Only the debug client and its session
// registry persist across one-shot calls.
type HTTPTransport struct {
	addr   string
	client *debug.Client

	// newHandler builds the per-request protocol handler. Swapped in tests.
	newHandler func(jsonResponse bool) (http.Handler, error)

	// newStreamHandler builds the long-lived session handler backing the GET
	// event-stream channel. Swapped in tests.
	newStreamHandler func() (http.Handler, error)

	streamOnce    sync.Once
	streamHandler http.Handler
	streamErr     error

	httpServer *http.Server
	closeOnce  sync.Once
}

// NewHTTPTransport creates an HTTP transport around a debug client. The
// default listen address is loopback-only; the transport carries no
// authentication and must not be exposed beyond the local host.
func NewHTTPTransport(addr string, client *debug.Client) *HTTPTransport {
	if addr == "" {
		addr = "127.0.0.1:8081"
	}
	transport := &HTTPTransport{addr: addr, client: client}
	transport.newHandler = transport.newProtocolHandler
	transport.newStreamHandler = transport.newStreamProtocolHandler
	return transport
}

// newProtocolHandler constructs a fresh protocol server and wire adapter.
// Stateless mode closes the throwaway session when the request ends.
func (t *HTTPTransport) newProtocolHandler(jsonResponse bool) (http.Handler, error) {
	mcpServer, err := newMCPServer(t.client)
	if err != nil {
		return nil, err
	}
	return mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return mcpServer },
		&mcp.StreamableHTTPOptions{
			Stateless:    true,
			JSONResponse: jsonResponse,
		},
	), nil
}

// newStreamProtocolHandler constructs the long-lived stateful handler behind
// the session channel. Sessions minted here outlive their initialize request,
// which is what lets a later GET attach an event stream to them.
func (t *HTTPTransport) newStreamProtocolHandler() (http.Handler, error) {
	mcpServer, err := newMCPServer(t.client)
	if err != nil {
		return nil, err
	}
	return mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return mcpServer },
		&mcp.StreamableHTTPOptions{
			SessionTimeout: defaultSessionTimeout,
		},
	), nil
}

// Handler returns the HTTP routing for the transport. Only /mcp is served;
// every other path is a bodyless 404.
func (t *HTTPTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", t.handleMCP)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return mux
}

func (t *HTTPTransport) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		t.handlePost(w, r)
	case http.MethodGet:
		// Streamed server-to-client channel. Coerce the accept header so
		// permissive clients still negotiate an event stream.
		r.Header.Set("Accept", "text/event-stream")
		t.dispatchStream(w, r)
	case http.MethodDelete:
		// Session teardown for the streamed channel.
		if r.Header.Get(sessionIDHeader) == "" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		t.dispatchStream(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePost enforces the body ceiling and parse check before any protocol
// processing, then dispatches one JSON-RPC request.
func (t *HTTPTransport) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes+1))
	if err != nil {
		writeJSONRPCError(w, http.StatusBadRequest, "Parse error")
		return
	}
	if len(body) > maxRequestBodyBytes {
		writeJSONRPCError(w, http.StatusRequestEntityTooLarge, "Payload too large")
		return
	}
	if len(body) == 0 || !json.Valid(body) {
		writeJSONRPCError(w, http.StatusBadRequest, "Parse error")
		return
	}

	// Buffered JSON replies unless the client explicitly negotiated an event
	// stream. The wire adapter requires both content types in Accept, so the
	// original preference is captured before coercion.
	streamCapable := strings.Contains(r.Header.Get("Accept"), "text/event-stream")
	r.Header.Set("Accept", "application/json, text/event-stream")
	if r.Header.Get("Content-Type") == "" {
		r.Header.Set("Content-Type", "application/json")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))

	// Session-addressed calls, and initialize calls from stream-capable
	// clients, belong to the long-lived session channel; everything else is a
	// one-shot call on a fresh protocol server.
	if r.Header.Get(sessionIDHeader) != "" || (streamCapable && isInitializeCall(body)) {
		t.dispatchStream(w, r)
		return
	}
	t.dispatch(w, r, !streamCapable)
}

// isInitializeCall reports whether body is a single JSON-RPC initialize call.
func isInitializeCall(body []byte) bool {
	var call struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(body, &call); err != nil {
		return false
	}
	return call.Method == "initialize"
}

// dispatch hands the request to a freshly built protocol handler.
func (t *HTTPTransport) dispatch(w http.ResponseWriter, r *http.Request, jsonResponse bool) {
	handler, err := t.newHandler(jsonResponse)
	if err != nil {
		log.Printf("build protocol server failed: %v", err)
		writeJSONRPCError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	handler.ServeHTTP(w, r)
}

// dispatchStream hands the request to the long-lived session handler, built
// once on first use.
func (t *HTTPTransport) dispatchStream(w http.ResponseWriter, r *http.Request) {
	t.streamOnce.Do(func() {
		t.streamHandler, t.streamErr = t.newStreamHandler()
	})
	if t.streamErr != nil {
		log.Printf("build stream server failed: %v", t.streamErr)
		writeJSONRPCError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	t.streamHandler.ServeHTTP(w, r)
}

type jsonrpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonrpcErrorEnvelope struct {
	JSONRPC string           `json:"jsonrpc"`
	Error   jsonrpcErrorBody `json:"error"`
	ID      any              `json:"id"`
}

// writeJSONRPCError emits a transport-level JSON-RPC error envelope with a
// null id, since the failing request was never parsed.
func writeJSONRPCError(w http.ResponseWriter, status int, message string) {
	envelope := jsonrpcErrorEnvelope{
		JSONRPC: "2.0",
		Error:   jsonrpcErrorBody{Code: jsonrpcParseErrorCode, Message: message},
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		http.Error(w, message, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		log.Printf("write error envelope failed: %v", err)
	}
}

// Start starts the HTTP server and blocks until context cancellation or a
// server failure. Shutdown is graceful and idempotent.
func (t *HTTPTransport) Start(ctx context.Context) error {
	t.httpServer = &http.Server{
		Addr:    t.addr,
		Handler: t.Handler(),
	}

	log.Printf("starting MCP HTTP server on %s", t.addr)

	errChan := make(chan error, 1)
	go func() {
		listener, err := listenTCP("tcp", t.addr)
		if err != nil {
			errChan <- err
			return
		}
		if err := t.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutting down MCP HTTP server")
		return t.Close()
	case err := <-errChan:
		return fmt.Errorf("HTTP server error: %w", err)
	}
}

// Close shuts the HTTP server down gracefully. Safe to call more than once.
func (t *HTTPTransport) Close() error {
	var closeErr error
	t.closeOnce.Do(func() {
		if t.httpServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := t.httpServer.Shutdown(shutdownCtx); err != nil {
			closeErr = fmt.Errorf("shutdown HTTP server: %w", err)
		}
	})
	return closeErr
}
