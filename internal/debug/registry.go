// Package debug tracks host debug sessions and bridges abstract debugging
// operations onto Debug Adapter Protocol requests against those sessions.
package debug

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Handle is an immutable snapshot of a debug session taken at registration
// time. ID is the stable key; the remaining fields are descriptive only.
type Handle struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	WorkspaceRoot string `json:"workspaceRoot,omitempty"`
}

// Host is the external debugger-hosting process. It owns session lifecycle
// and exposes one request/response RPC primitive per session. A session
// present in the registry is assumed reachable through SendSessionRequest;
// the registry itself never attempts a connection.
type Host interface {
	// SendSessionRequest issues one DAP request against a session and returns
	// the raw response body.
	SendSessionRequest(ctx context.Context, sessionID, command string, args any) (json.RawMessage, error)

	// ActiveSession returns the host's current active session pointer, or
	// ok=false when no session is active.
	ActiveSession(ctx context.Context) (Handle, bool, error)
}

// Registry is the process-scoped map of session id to Handle. It is mutated
// by host lifecycle events and read by Resolve and List. Construct one with
// NewRegistry and inject it wherever session resolution is needed so tests
// can substitute their own.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Handle
}

// NewRegistry returns an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Handle)}
}

// Track upserts a session handle by id. Tracking the same id twice replaces
// the stored snapshot.
func (r *Registry) Track(handle Handle) {
	if handle.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[handle.ID] = handle
}

// Untrack removes a session by id. Removing an absent id is not an error.
func (r *Registry) Untrack(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// List returns a snapshot of all tracked handles in unspecified order.
func (r *Registry) List() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handles := make([]Handle, 0, len(r.sessions))
	for _, handle := range r.sessions {
		handles = append(handles, handle)
	}
	return handles
}

// lookup returns the tracked handle for id.
func (r *Registry) lookup(id string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.sessions[id]
	return handle, ok
}

// Resolve returns the handle for an explicit session id, or the host's
// current active session when id is empty. An active session that is not yet
// tracked is tracked first, which heals missed start events for sessions
// that were already running before the bridge attached.
func (r *Registry) Resolve(ctx context.Context, host Host, id string) (Handle, error) {
	if id != "" {
		handle, ok := r.lookup(id)
		if !ok {
			return Handle{}, NewError(CodeSessionNotFound, fmt.Sprintf("session %s is not tracked", id))
		}
		return handle, nil
	}

	active, ok, err := host.ActiveSession(ctx)
	if err != nil {
		return Handle{}, WrapError(CodeUpstreamRequestFailed, "query active session", err)
	}
	if !ok || active.ID == "" {
		return Handle{}, NewError(CodeNoActiveSession, "no debug session is active")
	}
	if _, tracked := r.lookup(active.ID); !tracked {
		r.Track(active)
	}
	return active, nil
}
