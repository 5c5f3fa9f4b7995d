package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type capturedDispatch struct {
	requests     []*http.Request
	bodies       []string
	jsonResponse []bool
	builds       int

	streamRequests []*http.Request
	streamBuilds   int
}

// newCapturingTransport replaces the protocol handlers with recorders so
// transport behavior can be tested without a protocol server.
func newCapturingTransport() (*HTTPTransport, *capturedDispatch) {
	transport := NewHTTPTransport("", nil)
	captured := &capturedDispatch{}
	transport.newHandler = func(jsonResponse bool) (http.Handler, error) {
		captured.builds++
		captured.jsonResponse = append(captured.jsonResponse, jsonResponse)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			captured.requests = append(captured.requests, r)
			captured.bodies = append(captured.bodies, string(body))
			w.WriteHeader(http.StatusOK)
		}), nil
	}
	transport.newStreamHandler = func() (http.Handler, error) {
		captured.streamBuilds++
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured.streamRequests = append(captured.streamRequests, r)
			w.WriteHeader(http.StatusOK)
		}), nil
	}
	return transport, captured
}

// paddedJSON builds a valid JSON document of exactly size bytes.
func paddedJSON(t *testing.T, size int) []byte {
	t.Helper()
	overhead := len(`{"pad":""}`)
	if size < overhead {
		t.Fatalf("size %d is below minimum %d", size, overhead)
	}
	return []byte(`{"pad":"` + strings.Repeat("x", size-overhead) + `"}`)
}

func decodeErrorEnvelope(t *testing.T, body []byte) jsonrpcErrorEnvelope {
	t.Helper()
	var envelope jsonrpcErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, body)
	}
	return envelope
}

func TestPostRejectsOversizedBody(t *testing.T) {
	transport, captured := newCapturingTransport()
	handler := transport.Handler()

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(paddedJSON(t, maxRequestBodyBytes+1)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	envelope := decodeErrorEnvelope(t, rec.Body.Bytes())
	if envelope.JSONRPC != "2.0" || envelope.Error.Code != jsonrpcParseErrorCode || envelope.Error.Message != "Payload too large" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
	if envelope.ID != nil {
		t.Fatalf("expected null id, got %v", envelope.ID)
	}
	if captured.builds != 0 {
		t.Fatal("oversized body must not reach the protocol server")
	}
}

func TestPostAcceptsBodyAtLimit(t *testing.T) {
	transport, captured := newCapturingTransport()
	handler := transport.Handler()

	body := paddedJSON(t, maxRequestBodyBytes)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for body at the limit, got %d", rec.Code)
	}
	if captured.builds != 1 {
		t.Fatalf("expected 1 dispatch, got %d", captured.builds)
	}
	if len(captured.bodies[0]) != maxRequestBodyBytes {
		t.Fatalf("body was truncated to %d bytes", len(captured.bodies[0]))
	}
}

func TestPostRejectsMalformedJSON(t *testing.T) {
	transport, captured := newCapturingTransport()
	handler := transport.Handler()

	for _, body := range []string{"", "{not json", "trailing}"} {
		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
		envelope := decodeErrorEnvelope(t, rec.Body.Bytes())
		if envelope.Error.Code != jsonrpcParseErrorCode || envelope.Error.Message != "Parse error" {
			t.Fatalf("body %q: unexpected envelope: %+v", body, envelope)
		}
	}
	if captured.builds != 0 {
		t.Fatal("malformed bodies must not reach the protocol server")
	}
}

func TestUnknownPathIs404WithoutBody(t *testing.T) {
	transport, _ := newCapturingTransport()
	handler := transport.Handler()

	for _, path := range []string{"/", "/mcp/extra", "/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Fatalf("%s: expected empty body, got %q", path, rec.Body.String())
		}
	}
}

func TestMCPRejectsUnsupportedMethods(t *testing.T) {
	transport, _ := newCapturingTransport()
	handler := transport.Handler()

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestPostCoercesAcceptHeader(t *testing.T) {
	t.Run("json-only client gets buffered responses", func(t *testing.T) {
		transport, captured := newCapturingTransport()
		handler := transport.Handler()

		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`))
		req.Header.Set("Accept", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		accept := captured.requests[0].Header.Get("Accept")
		if !strings.Contains(accept, "application/json") || !strings.Contains(accept, "text/event-stream") {
			t.Fatalf("expected coerced accept header, got %q", accept)
		}
		if !captured.jsonResponse[0] {
			t.Fatal("expected buffered JSON response mode")
		}
	})

	t.Run("stream-capable client keeps streamed responses", func(t *testing.T) {
		transport, captured := newCapturingTransport()
		handler := transport.Handler()

		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`))
		req.Header.Set("Accept", "application/json, text/event-stream")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if captured.jsonResponse[0] {
			t.Fatal("expected streamed response mode")
		}
	})

	t.Run("GET negotiates an event stream on the session channel", func(t *testing.T) {
		transport, captured := newCapturingTransport()
		handler := transport.Handler()

		req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if len(captured.streamRequests) != 1 {
			t.Fatalf("expected 1 session channel dispatch, got %d", len(captured.streamRequests))
		}
		if got := captured.streamRequests[0].Header.Get("Accept"); got != "text/event-stream" {
			t.Fatalf("expected event-stream accept header, got %q", got)
		}
		if captured.builds != 0 {
			t.Fatal("GET must not build a one-shot protocol server")
		}
	})

	t.Run("POST without content type gets a JSON content type", func(t *testing.T) {
		transport, captured := newCapturingTransport()
		handler := transport.Handler()

		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := captured.requests[0].Header.Get("Content-Type"); got != "application/json" {
			t.Fatalf("expected defaulted content type, got %q", got)
		}
	})
}

func TestEachRequestGetsFreshProtocolServer(t *testing.T) {
	transport, captured := newCapturingTransport()
	handler := transport.Handler()

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	if captured.builds != 3 {
		t.Fatalf("expected 3 handler builds, got %d", captured.builds)
	}
}

func TestSessionChannelRouting(t *testing.T) {
	initialize := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`

	t.Run("stream-capable initialize goes to the session channel", func(t *testing.T) {
		transport, captured := newCapturingTransport()
		handler := transport.Handler()

		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(initialize))
		req.Header.Set("Accept", "application/json, text/event-stream")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if len(captured.streamRequests) != 1 || captured.builds != 0 {
			t.Fatalf("expected session channel dispatch, got stream=%d one-shot=%d",
				len(captured.streamRequests), captured.builds)
		}
	})

	t.Run("json-only initialize stays one-shot", func(t *testing.T) {
		transport, captured := newCapturingTransport()
		handler := transport.Handler()

		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(initialize))
		req.Header.Set("Accept", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if captured.builds != 1 || len(captured.streamRequests) != 0 {
			t.Fatalf("expected one-shot dispatch, got stream=%d one-shot=%d",
				len(captured.streamRequests), captured.builds)
		}
	})

	t.Run("session-addressed POST goes to the session channel", func(t *testing.T) {
		transport, captured := newCapturingTransport()
		handler := transport.Handler()

		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
		req.Header.Set(sessionIDHeader, "abc123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if len(captured.streamRequests) != 1 || captured.builds != 0 {
			t.Fatalf("expected session channel dispatch, got stream=%d one-shot=%d",
				len(captured.streamRequests), captured.builds)
		}
	})

	t.Run("session-addressed DELETE goes to the session channel", func(t *testing.T) {
		transport, captured := newCapturingTransport()
		handler := transport.Handler()

		req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
		req.Header.Set(sessionIDHeader, "abc123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if len(captured.streamRequests) != 1 {
			t.Fatalf("expected session channel dispatch, got %d", len(captured.streamRequests))
		}
	})

	t.Run("session channel handler is built once", func(t *testing.T) {
		transport, captured := newCapturingTransport()
		handler := transport.Handler()

		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
		}

		if captured.streamBuilds != 1 {
			t.Fatalf("expected 1 session handler build, got %d", captured.streamBuilds)
		}
	})
}

// TestGetOpensEventStream drives the real protocol handlers end to end:
// initialize mints a session, GET attaches the event-stream channel to it,
// DELETE tears it down.
func TestGetOpensEventStream(t *testing.T) {
	transport := NewHTTPTransport("", newTestDebugClient())
	server := httptest.NewServer(transport.Handler())
	defer server.Close()

	initialize := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"0.0.1"}}}`
	req, err := http.NewRequest(http.MethodPost, server.URL+"/mcp", strings.NewReader(initialize))
	if err != nil {
		t.Fatalf("build initialize request: %v", err)
	}
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initialize: expected 200, got %d", resp.StatusCode)
	}
	sessionID := resp.Header.Get(sessionIDHeader)
	if sessionID == "" {
		t.Fatal("initialize did not return a session id")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	get, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/mcp", nil)
	if err != nil {
		t.Fatalf("build GET request: %v", err)
	}
	get.Header.Set("Accept", "text/event-stream")
	get.Header.Set(sessionIDHeader, sessionID)
	stream, err := http.DefaultClient.Do(get)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer stream.Body.Close()
	if stream.StatusCode != http.StatusOK {
		t.Fatalf("GET stream: expected 200, got %d", stream.StatusCode)
	}
	if ct := stream.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("GET stream: expected event-stream content type, got %q", ct)
	}
	cancel()

	del, err := http.NewRequest(http.MethodDelete, server.URL+"/mcp", nil)
	if err != nil {
		t.Fatalf("build DELETE request: %v", err)
	}
	del.Header.Set(sessionIDHeader, sessionID)
	done, err := http.DefaultClient.Do(del)
	if err != nil {
		t.Fatalf("DELETE session: %v", err)
	}
	done.Body.Close()
	if done.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE session: expected 204, got %d", done.StatusCode)
	}
}
