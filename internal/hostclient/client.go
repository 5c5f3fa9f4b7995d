// Package hostclient connects the bridge to the debugger-hosting process.
//
// The host owns debug sessions and exposes one request/response RPC per
// session plus lifecycle events. The wire protocol is Content-Length framed
// JSON (the DAP base protocol): requests carry a sessionId next to the usual
// command/arguments pair, responses echo request_seq, and events announce
// session lifecycle changes.
package hostclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/google/go-dap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/dapbridge/internal/debug"
)

var tracer = otel.Tracer("github.com/louisbranch/dapbridge/internal/hostclient")

// activeSessionCommand asks the host for its current active session pointer.
const activeSessionCommand = "activeSession"

// LifecycleKind names a host session lifecycle event.
type LifecycleKind string

const (
	// SessionStarted announces a new debug session.
	SessionStarted LifecycleKind = "sessionStarted"
	// SessionTerminated announces a session that no longer exists.
	SessionTerminated LifecycleKind = "sessionTerminated"
	// ActiveSessionChanged announces a change of the host's active pointer.
	ActiveSessionChanged LifecycleKind = "activeSessionChanged"
)

// LifecycleEvent is one host lifecycle notification.
type LifecycleEvent struct {
	Kind    LifecycleKind
	Session debug.Handle
}

// LifecycleHandler consumes host lifecycle events.
type LifecycleHandler func(LifecycleEvent)

// BindRegistry returns a handler that keeps a session registry in sync with
// host lifecycle events: started and active-changed track, terminated
// untracks.
func BindRegistry(registry *debug.Registry) LifecycleHandler {
	return func(event LifecycleEvent) {
		switch event.Kind {
		case SessionStarted, ActiveSessionChanged:
			registry.Track(event.Session)
		case SessionTerminated:
			registry.Untrack(event.Session.ID)
		}
	}
}

type wireRequest struct {
	Seq       int    `json:"seq"`
	Type      string `json:"type"`
	Command   string `json:"command"`
	SessionID string `json:"sessionId,omitempty"`
	Arguments any    `json:"arguments,omitempty"`
}

type wireMessage struct {
	Seq        int             `json:"seq"`
	Type       string          `json:"type"`
	RequestSeq int             `json:"request_seq,omitempty"`
	Success    bool            `json:"success,omitempty"`
	Message    string          `json:"message,omitempty"`
	Command    string          `json:"command,omitempty"`
	Event      string          `json:"event,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

type lifecycleBody struct {
	Session debug.Handle `json:"session"`
}

type activeSessionBody struct {
	Session *debug.Handle `json:"session"`
}

// Client implements debug.Host over a single host connection. Pending
// requests are matched to responses by sequence number, so calls from
// concurrent tool invocations can interleave on one connection.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex

	mu      sync.Mutex
	seq     int
	pending map[int]chan wireMessage
	closed  bool
	done    chan struct{}

	onLifecycle LifecycleHandler
	logf        func(format string, args ...any)
}

// Dial connects to the host and starts the read loop. The lifecycle handler
// may be nil when the caller does not track sessions.
func Dial(ctx context.Context, addr string, onLifecycle LifecycleHandler) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to debug host at %s: %w", addr, err)
	}
	return NewClient(conn, onLifecycle), nil
}

// NewClient wraps an established host connection and starts the read loop.
func NewClient(conn net.Conn, onLifecycle LifecycleHandler) *Client {
	client := &Client{
		conn:        conn,
		reader:      bufio.NewReader(conn),
		pending:     make(map[int]chan wireMessage),
		done:        make(chan struct{}),
		onLifecycle: onLifecycle,
		logf:        log.Printf,
	}
	go client.readLoop()
	return client
}

// SetLogf overrides the client's log function.
func (c *Client) SetLogf(logf func(format string, args ...any)) {
	if logf != nil {
		c.logf = logf
	}
}

// SendSessionRequest implements debug.Host.
func (c *Client) SendSessionRequest(ctx context.Context, sessionID, command string, args any) (json.RawMessage, error) {
	return c.roundTrip(ctx, sessionID, command, args)
}

// ActiveSession implements debug.Host. The host answers with its current
// active session handle or a null session when none is active.
func (c *Client) ActiveSession(ctx context.Context) (debug.Handle, bool, error) {
	raw, err := c.roundTrip(ctx, "", activeSessionCommand, nil)
	if err != nil {
		return debug.Handle{}, false, err
	}
	var body activeSessionBody
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return debug.Handle{}, false, fmt.Errorf("decode active session: %w", err)
		}
	}
	if body.Session == nil || body.Session.ID == "" {
		return debug.Handle{}, false, nil
	}
	return *body.Session, true, nil
}

// roundTrip issues one request and waits for its response. Each round trip
// is traced as a client span named after the wire command.
func (c *Client) roundTrip(ctx context.Context, sessionID, command string, args any) (_ json.RawMessage, err error) {
	ctx, span := tracer.Start(ctx, "host."+command, trace.WithSpanKind(trace.SpanKindClient))
	if sessionID != "" {
		span.SetAttributes(attribute.String("debug.session_id", sessionID))
	}
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	respChan := make(chan wireMessage, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("host connection is closed")
	}
	c.seq++
	seq := c.seq
	c.pending[seq] = respChan
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
	}()

	request := wireRequest{Seq: seq, Type: "request", Command: command, SessionID: sessionID, Arguments: args}
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", command, err)
	}

	c.writeMu.Lock()
	err = dap.WriteBaseMessage(c.conn, payload)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("send %s request: %w", command, err)
	}

	select {
	case resp := <-respChan:
		if !resp.Success {
			message := resp.Message
			if message == "" {
				message = "request failed"
			}
			return nil, fmt.Errorf("%s", message)
		}
		return resp.Body, nil
	case <-c.done:
		return nil, fmt.Errorf("host connection is closed")
	case <-ctx.Done():
		// The RPC stays in flight on the host; its result is discarded when
		// it arrives for an already-removed pending entry.
		return nil, ctx.Err()
	}
}

// readLoop dispatches responses to pending requests and lifecycle events to
// the handler until the connection drops.
func (c *Client) readLoop() {
	defer c.failPending()
	for {
		payload, err := dap.ReadBaseMessage(c.reader)
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.logf("host connection read failed: %v", err)
			}
			return
		}

		var message wireMessage
		if err := json.Unmarshal(payload, &message); err != nil {
			c.logf("host sent undecodable message: %v", err)
			continue
		}

		switch message.Type {
		case "response":
			c.mu.Lock()
			respChan, ok := c.pending[message.RequestSeq]
			c.mu.Unlock()
			if !ok {
				// Late reply for a cancelled request.
				continue
			}
			respChan <- message
		case "event":
			c.dispatchEvent(message)
		default:
			c.logf("host sent unexpected message type %q", message.Type)
		}
	}
}

func (c *Client) dispatchEvent(message wireMessage) {
	if c.onLifecycle == nil {
		return
	}
	kind := LifecycleKind(message.Event)
	switch kind {
	case SessionStarted, SessionTerminated, ActiveSessionChanged:
	default:
		return
	}
	var body lifecycleBody
	if len(message.Body) > 0 {
		if err := json.Unmarshal(message.Body, &body); err != nil {
			c.logf("host sent undecodable %s event: %v", message.Event, err)
			return
		}
	}
	if body.Session.ID == "" {
		return
	}
	c.onLifecycle(LifecycleEvent{Kind: kind, Session: body.Session})
}

// failPending closes the done channel so in-flight calls fail fast.
func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

// Close tears down the host connection. In-flight requests fail with a
// closed-connection error.
func (c *Client) Close() error {
	c.failPending()
	return c.conn.Close()
}
