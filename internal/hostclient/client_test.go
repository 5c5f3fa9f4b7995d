package hostclient

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-dap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/louisbranch/dapbridge/internal/debug"
)

// fakeHost drives the far end of a piped host connection. Responses are keyed
// by command.
type fakeHost struct {
	conn net.Conn

	mu       sync.Mutex
	requests []wireRequest
}

func newFakeHost(t *testing.T, handle func(req wireRequest) *wireMessage) (*fakeHost, *Client, func(LifecycleEvent)) {
	t.Helper()
	clientConn, hostConn := net.Pipe()
	host := &fakeHost{conn: hostConn}

	var eventMu sync.Mutex
	var events []LifecycleEvent
	record := func(event LifecycleEvent) {
		eventMu.Lock()
		events = append(events, event)
		eventMu.Unlock()
	}

	client := NewClient(clientConn, record)
	client.SetLogf(func(string, ...any) {})
	t.Cleanup(func() {
		client.Close()
		hostConn.Close()
	})

	go func() {
		reader := bufio.NewReader(hostConn)
		for {
			payload, err := dap.ReadBaseMessage(reader)
			if err != nil {
				return
			}
			var req wireRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				continue
			}
			host.mu.Lock()
			host.requests = append(host.requests, req)
			host.mu.Unlock()
			if handle == nil {
				continue
			}
			resp := handle(req)
			if resp == nil {
				continue
			}
			out, err := json.Marshal(resp)
			if err != nil {
				return
			}
			if err := dap.WriteBaseMessage(hostConn, out); err != nil {
				return
			}
		}
	}()

	return host, client, record
}

func (h *fakeHost) sendEvent(t *testing.T, event string, session debug.Handle) {
	t.Helper()
	body, err := json.Marshal(lifecycleBody{Session: session})
	if err != nil {
		t.Fatalf("marshal event body: %v", err)
	}
	payload, err := json.Marshal(wireMessage{Type: "event", Event: event, Body: body})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if err := dap.WriteBaseMessage(h.conn, payload); err != nil {
		t.Fatalf("write event: %v", err)
	}
}

func okResponse(req wireRequest, body any) *wireMessage {
	raw, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return &wireMessage{Type: "response", RequestSeq: req.Seq, Success: true, Command: req.Command, Body: raw}
}

func TestSendSessionRequestRoundTrip(t *testing.T) {
	host, client, _ := newFakeHost(t, func(req wireRequest) *wireMessage {
		if req.Command != "threads" {
			return &wireMessage{Type: "response", RequestSeq: req.Seq, Success: false, Message: "unexpected command"}
		}
		return okResponse(req, map[string]any{"threads": []map[string]any{{"id": 1, "name": "main"}}})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, err := client.SendSessionRequest(ctx, "s1", "threads", nil)
	if err != nil {
		t.Fatalf("SendSessionRequest: %v", err)
	}
	var body dap.ThreadsResponseBody
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Threads) != 1 || body.Threads[0].Name != "main" {
		t.Fatalf("unexpected threads: %+v", body.Threads)
	}

	host.mu.Lock()
	defer host.mu.Unlock()
	if len(host.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(host.requests))
	}
	req := host.requests[0]
	if req.Type != "request" || req.SessionID != "s1" || req.Seq == 0 {
		t.Fatalf("malformed request envelope: %+v", req)
	}
}

func TestSendSessionRequestFailureCarriesHostMessage(t *testing.T) {
	_, client, _ := newFakeHost(t, func(req wireRequest) *wireMessage {
		return &wireMessage{Type: "response", RequestSeq: req.Seq, Success: false, Message: "thread 1 is running"}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.SendSessionRequest(ctx, "s1", "stackTrace", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "thread 1 is running" {
		t.Fatalf("expected host message to survive, got %q", err.Error())
	}
}

func TestConcurrentRequestsMatchBySequence(t *testing.T) {
	_, client, _ := newFakeHost(t, func(req wireRequest) *wireMessage {
		// Echo the command back so callers can verify routing.
		return okResponse(req, map[string]string{"echo": req.Command})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	commands := []string{"threads", "stackTrace", "scopes", "variables"}
	var wg sync.WaitGroup
	errs := make([]error, len(commands))
	for i, command := range commands {
		wg.Add(1)
		go func(i int, command string) {
			defer wg.Done()
			raw, err := client.SendSessionRequest(ctx, "s1", command, nil)
			if err != nil {
				errs[i] = err
				return
			}
			var body struct {
				Echo string `json:"echo"`
			}
			if err := json.Unmarshal(raw, &body); err != nil {
				errs[i] = err
				return
			}
			if body.Echo != command {
				t.Errorf("request %q got response for %q", command, body.Echo)
			}
		}(i, command)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("request %q: %v", commands[i], err)
		}
	}
}

func TestActiveSession(t *testing.T) {
	active := debug.Handle{ID: "s9", Name: "api", Type: "go"}
	_, client, _ := newFakeHost(t, func(req wireRequest) *wireMessage {
		if req.Command != activeSessionCommand {
			return &wireMessage{Type: "response", RequestSeq: req.Seq, Success: false, Message: "unexpected command"}
		}
		if req.SessionID != "" {
			return &wireMessage{Type: "response", RequestSeq: req.Seq, Success: false, Message: "active session query must not target a session"}
		}
		return okResponse(req, activeSessionBody{Session: &active})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, ok, err := client.ActiveSession(ctx)
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if !ok || got != active {
		t.Fatalf("expected %+v, got ok=%v %+v", active, ok, got)
	}
}

func TestActiveSessionNone(t *testing.T) {
	_, client, _ := newFakeHost(t, func(req wireRequest) *wireMessage {
		return okResponse(req, activeSessionBody{})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, ok, err := client.ActiveSession(ctx)
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if ok {
		t.Fatal("expected no active session")
	}
}

func TestLifecycleEventsFeedRegistry(t *testing.T) {
	registry := debug.NewRegistry()

	clientConn, hostConn := net.Pipe()
	client := NewClient(clientConn, BindRegistry(registry))
	client.SetLogf(func(string, ...any) {})
	t.Cleanup(func() {
		client.Close()
		hostConn.Close()
	})
	host := &fakeHost{conn: hostConn}
	go func() {
		reader := bufio.NewReader(hostConn)
		for {
			if _, err := dap.ReadBaseMessage(reader); err != nil {
				return
			}
		}
	}()

	started := debug.Handle{ID: "s1", Name: "api", Type: "go"}
	host.sendEvent(t, string(SessionStarted), started)

	waitFor(t, func() bool {
		_, ok := lookup(registry, "s1")
		return ok
	})

	host.sendEvent(t, string(SessionTerminated), started)
	waitFor(t, func() bool {
		_, ok := lookup(registry, "s1")
		return !ok
	})
}

func lookup(registry *debug.Registry, id string) (debug.Handle, bool) {
	for _, handle := range registry.List() {
		if handle.ID == id {
			return handle, true
		}
	}
	return debug.Handle{}, false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}

func TestCancelledRequestToleratesLateReply(t *testing.T) {
	_, client, _ := newFakeHost(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.SendSessionRequest(ctx, "s1", "threads", nil)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRoundTripRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	_, client, _ := newFakeHost(t, func(req wireRequest) *wireMessage {
		if req.Command == "threads" {
			return okResponse(req, map[string]any{"threads": []map[string]any{}})
		}
		return &wireMessage{Type: "response", RequestSeq: req.Seq, Success: false, Message: "thread 1 is running"}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.SendSessionRequest(ctx, "s1", "threads", nil); err != nil {
		t.Fatalf("SendSessionRequest: %v", err)
	}
	if _, err := client.SendSessionRequest(ctx, "s1", "stackTrace", nil); err == nil {
		t.Fatal("expected error")
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "host.threads" {
		t.Fatalf("expected host.threads span, got %q", spans[0].Name())
	}
	var sessionAttr bool
	for _, attr := range spans[0].Attributes() {
		if string(attr.Key) == "debug.session_id" && attr.Value.AsString() == "s1" {
			sessionAttr = true
		}
	}
	if !sessionAttr {
		t.Fatal("expected session id attribute on span")
	}
	if spans[1].Name() != "host.stackTrace" || spans[1].Status().Code != codes.Error {
		t.Fatalf("expected failed host.stackTrace span, got %q with status %v", spans[1].Name(), spans[1].Status())
	}
}

func TestCloseFailsInFlightRequests(t *testing.T) {
	_, client, _ := newFakeHost(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		_, err := client.SendSessionRequest(ctx, "s1", "threads", nil)
		errChan <- err
	}()

	// Wait for the request to hit the wire before closing.
	time.Sleep(20 * time.Millisecond)
	client.Close()

	select {
	case err := <-errChan:
		if err == nil {
			t.Fatal("expected error after close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("request did not fail after close")
	}
}
