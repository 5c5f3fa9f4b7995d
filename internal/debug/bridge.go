package debug

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/go-dap"
)

// defaultThreadID is used when a caller does not name a thread. Most
// single-threaded adapters report exactly one thread with this id.
const defaultThreadID = 1

// Thread is one debuggee thread, fetched per request and never cached.
type Thread struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Source describes the origin of a stack frame.
type Source struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path,omitempty"`
}

// StackFrame is one frame of a stopped thread. The id is scoped to the
// owning session and thread and is only valid for the current stopped state.
type StackFrame struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Line   int     `json:"line"`
	Column int     `json:"column,omitempty"`
	Source *Source `json:"source,omitempty"`
}

// Scope is a named variable container. The variables reference is minted by
// the session for the current stopped state and must not be cached across
// resume or step operations.
type Scope struct {
	Name               string `json:"name"`
	VariablesReference int    `json:"variablesReference"`
	Expensive          bool   `json:"expensive"`
}

// Variable is a name/value pair with an optional nested reference.
type Variable struct {
	Name               string `json:"name"`
	Value              string `json:"value"`
	Type               string `json:"type,omitempty"`
	VariablesReference int    `json:"variablesReference,omitempty"`
}

// EvalResult is a normalized expression evaluation result. Extra carries
// adapter-defined response fields through opaquely.
type EvalResult struct {
	Result             string         `json:"result"`
	Type               string         `json:"type,omitempty"`
	VariablesReference int            `json:"variablesReference,omitempty"`
	Extra              map[string]any `json:"extra,omitempty"`
}

// BreakpointResult reports verification of one submitted breakpoint. The
// session returns results in submission order; the bridge preserves that.
type BreakpointResult struct {
	ID       int    `json:"id,omitempty"`
	Verified bool   `json:"verified"`
	Message  string `json:"message,omitempty"`
}

// SessionStatus describes whether a session's debuggee is currently halted.
type SessionStatus struct {
	Session  Handle   `json:"session"`
	Stopped  bool     `json:"stopped"`
	ThreadID int      `json:"threadId"`
	Threads  []Thread `json:"threads"`
}

// StopResult is the outcome of a wait-for-stop poll.
type StopResult struct {
	Stopped bool        `json:"stopped"`
	Frame   *StackFrame `json:"frame,omitempty"`
}

// ScopeVariables pairs a scope with its fetched variables.
type ScopeVariables struct {
	Scope     Scope      `json:"scope"`
	Variables []Variable `json:"variables"`
}

// Snapshot is the composite top-frame inspection result.
type Snapshot struct {
	Frame  *StackFrame      `json:"frame"`
	Scopes []ScopeVariables `json:"scopes"`
}

// Client maps abstract debugging operations onto DAP requests against a
// resolved host session. It holds no per-call state; every result is fetched
// fresh from the host.
type Client struct {
	host     Host
	registry *Registry
	logf     func(format string, args ...any)
}

// NewClient returns a bridge client over the given host and registry.
func NewClient(host Host, registry *Registry) *Client {
	return &Client{host: host, registry: registry, logf: log.Printf}
}

// SetLogf overrides the client's log function. Tests use this to capture the
// best-effort thread enumeration swallow.
func (c *Client) SetLogf(logf func(format string, args ...any)) {
	if logf != nil {
		c.logf = logf
	}
}

// Registry exposes the session registry backing this client.
func (c *Client) Registry() *Registry {
	return c.registry
}

// resolve returns the handle for sessionID, or the active session when empty.
func (c *Client) resolve(ctx context.Context, sessionID string) (Handle, error) {
	return c.registry.Resolve(ctx, c.host, sessionID)
}

// send issues one DAP request and decodes the response body into out.
func (c *Client) send(ctx context.Context, sessionID, command string, args, out any) error {
	raw, err := c.host.SendSessionRequest(ctx, sessionID, command, args)
	if err != nil {
		return classifyUpstream(sessionID, command, err)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return WrapError(CodeUpstreamRequestFailed, fmt.Sprintf("session %s: decode %s response", sessionID, command), err)
	}
	return nil
}

// ListSessions returns all tracked session handles.
func (c *Client) ListSessions() []Handle {
	return c.registry.List()
}

// Threads returns the debuggee's threads.
func (c *Client) Threads(ctx context.Context, sessionID string) ([]Thread, error) {
	session, err := c.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return c.threadsForSession(ctx, session.ID)
}

func (c *Client) threadsForSession(ctx context.Context, sessionID string) ([]Thread, error) {
	var body dap.ThreadsResponseBody
	if err := c.send(ctx, sessionID, "threads", struct{}{}, &body); err != nil {
		return nil, err
	}
	threads := make([]Thread, 0, len(body.Threads))
	for _, thread := range body.Threads {
		threads = append(threads, Thread{ID: thread.Id, Name: thread.Name})
	}
	return threads, nil
}

// Status probes whether a session's debuggee is halted. Thread enumeration
// is best-effort: some adapters reject it while running, and status must not
// fail for that alone. The stack probe is the liveness signal: success means
// stopped, a not-halted condition means running, anything else propagates.
func (c *Client) Status(ctx context.Context, sessionID string) (SessionStatus, error) {
	session, err := c.resolve(ctx, sessionID)
	if err != nil {
		return SessionStatus{}, err
	}

	threads, err := c.threadsForSession(ctx, session.ID)
	if err != nil {
		c.logf("session %s: thread enumeration failed, continuing without threads: %v", session.ID, err)
		threads = nil
	}

	threadID := defaultThreadID
	if len(threads) > 0 {
		threadID = threads[0].ID
	}

	status := SessionStatus{Session: session, ThreadID: threadID, Threads: threads}
	_, err = c.stackForSession(ctx, session.ID, threadID, 0, 1)
	switch {
	case err == nil:
		status.Stopped = true
	case IsNotHalted(err):
		status.Stopped = false
	default:
		return SessionStatus{}, err
	}
	return status, nil
}

// Stack returns a thread's stack frames, outermost first, exactly as the
// session reports them. An empty result is valid.
func (c *Client) Stack(ctx context.Context, sessionID string, threadID, startFrame, levels int) ([]StackFrame, error) {
	session, err := c.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if threadID == 0 {
		threadID = defaultThreadID
	}
	return c.stackForSession(ctx, session.ID, threadID, startFrame, levels)
}

func (c *Client) stackForSession(ctx context.Context, sessionID string, threadID, startFrame, levels int) ([]StackFrame, error) {
	var body dap.StackTraceResponseBody
	args := dap.StackTraceArguments{ThreadId: threadID, StartFrame: startFrame, Levels: levels}
	if err := c.send(ctx, sessionID, "stackTrace", args, &body); err != nil {
		return nil, err
	}
	frames := make([]StackFrame, 0, len(body.StackFrames))
	for _, frame := range body.StackFrames {
		normalized := StackFrame{ID: frame.Id, Name: frame.Name, Line: frame.Line, Column: frame.Column}
		if frame.Source != nil && (frame.Source.Name != "" || frame.Source.Path != "") {
			normalized.Source = &Source{Name: frame.Source.Name, Path: frame.Source.Path}
		}
		frames = append(frames, normalized)
	}
	return frames, nil
}

// TopFrame returns the top stack frame of a thread, or nil when the thread
// reports no frames.
func (c *Client) TopFrame(ctx context.Context, sessionID string, threadID int) (*StackFrame, error) {
	frames, err := c.Stack(ctx, sessionID, threadID, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, nil
	}
	frame := frames[0]
	return &frame, nil
}

// Scopes returns the variable scopes of a stack frame.
func (c *Client) Scopes(ctx context.Context, sessionID string, frameID int) ([]Scope, error) {
	session, err := c.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return c.scopesForSession(ctx, session.ID, frameID)
}

func (c *Client) scopesForSession(ctx context.Context, sessionID string, frameID int) ([]Scope, error) {
	var body dap.ScopesResponseBody
	if err := c.send(ctx, sessionID, "scopes", dap.ScopesArguments{FrameId: frameID}, &body); err != nil {
		return nil, err
	}
	scopes := make([]Scope, 0, len(body.Scopes))
	for _, scope := range body.Scopes {
		scopes = append(scopes, Scope{Name: scope.Name, VariablesReference: scope.VariablesReference, Expensive: scope.Expensive})
	}
	return scopes, nil
}

// Variables fetches the children of a variables reference. Filter restricts
// to "indexed" or "named" children when the session distinguishes them.
func (c *Client) Variables(ctx context.Context, sessionID string, variablesReference, start, count int, filter string) ([]Variable, error) {
	session, err := c.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return c.variablesForSession(ctx, session.ID, variablesReference, start, count, filter)
}

func (c *Client) variablesForSession(ctx context.Context, sessionID string, variablesReference, start, count int, filter string) ([]Variable, error) {
	var body dap.VariablesResponseBody
	args := dap.VariablesArguments{VariablesReference: variablesReference, Start: start, Count: count, Filter: filter}
	if err := c.send(ctx, sessionID, "variables", args, &body); err != nil {
		return nil, err
	}
	variables := make([]Variable, 0, len(body.Variables))
	for _, variable := range body.Variables {
		variables = append(variables, Variable{
			Name:               variable.Name,
			Value:              variable.Value,
			Type:               variable.Type,
			VariablesReference: variable.VariablesReference,
		})
	}
	return variables, nil
}

// evalKnownFields are the normalized evaluate response fields; everything
// else the adapter returns is passed through in EvalResult.Extra.
var evalKnownFields = map[string]bool{
	"result":             true,
	"type":               true,
	"variablesReference": true,
}

// Evaluate evaluates an expression in a stack frame. The bridge does not
// default frameID; callers wanting top-frame evaluation resolve it first.
func (c *Client) Evaluate(ctx context.Context, sessionID, expression string, frameID int, evalContext string) (EvalResult, error) {
	session, err := c.resolve(ctx, sessionID)
	if err != nil {
		return EvalResult{}, err
	}

	args := dap.EvaluateArguments{Expression: expression, FrameId: frameID, Context: evalContext}
	raw, err := c.host.SendSessionRequest(ctx, session.ID, "evaluate", args)
	if err != nil {
		return EvalResult{}, classifyUpstream(session.ID, "evaluate", err)
	}

	var body dap.EvaluateResponseBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return EvalResult{}, WrapError(CodeUpstreamRequestFailed, fmt.Sprintf("session %s: decode evaluate response", session.ID), err)
	}
	result := EvalResult{Result: body.Result, Type: body.Type, VariablesReference: body.VariablesReference}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err == nil {
		for key, value := range fields {
			if evalKnownFields[key] {
				continue
			}
			if result.Extra == nil {
				result.Extra = make(map[string]any)
			}
			result.Extra[key] = value
		}
	}
	return result, nil
}

// SetVariable assigns a new value to a variable in its container.
func (c *Client) SetVariable(ctx context.Context, sessionID string, variablesReference int, name, value string) (Variable, error) {
	session, err := c.resolve(ctx, sessionID)
	if err != nil {
		return Variable{}, err
	}
	var body dap.SetVariableResponseBody
	args := dap.SetVariableArguments{VariablesReference: variablesReference, Name: name, Value: value}
	if err := c.send(ctx, session.ID, "setVariable", args, &body); err != nil {
		return Variable{}, err
	}
	return Variable{Name: name, Value: body.Value, Type: body.Type, VariablesReference: body.VariablesReference}, nil
}

// Snapshot collapses top-frame inspection into one call: top frame, its
// scopes, and per-scope variables. Expensive scopes are skipped unless
// includeExpensive is set; maxVariables caps each scope's fetch when
// positive.
func (c *Client) Snapshot(ctx context.Context, sessionID string, threadID int, includeExpensive bool, maxVariables int) (Snapshot, error) {
	session, err := c.resolve(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	if threadID == 0 {
		threadID = defaultThreadID
	}

	frames, err := c.stackForSession(ctx, session.ID, threadID, 0, 1)
	if err != nil {
		return Snapshot{}, err
	}
	if len(frames) == 0 {
		return Snapshot{Scopes: []ScopeVariables{}}, nil
	}
	frame := frames[0]

	scopes, err := c.scopesForSession(ctx, session.ID, frame.ID)
	if err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{Frame: &frame, Scopes: make([]ScopeVariables, 0, len(scopes))}
	for _, scope := range scopes {
		if scope.Expensive && !includeExpensive {
			continue
		}
		count := 0
		if maxVariables > 0 {
			count = maxVariables
		}
		variables, err := c.variablesForSession(ctx, session.ID, scope.VariablesReference, 0, count, "")
		if err != nil {
			return Snapshot{}, err
		}
		snapshot.Scopes = append(snapshot.Scopes, ScopeVariables{Scope: scope, Variables: variables})
	}
	return snapshot, nil
}
