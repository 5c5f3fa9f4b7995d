package debug

import (
	"context"

	"github.com/google/go-dap"
)

// Execution control operations. Each issues one request and returns no
// payload; the resulting stopped/running state is observed later through
// Status, Stack, or WaitForStop rather than synchronously.

// Continue resumes a thread.
func (c *Client) Continue(ctx context.Context, sessionID string, threadID int) error {
	return c.execControl(ctx, sessionID, "continue", func(threadID int) any {
		return dap.ContinueArguments{ThreadId: threadID}
	}, threadID)
}

// Next steps over the current line.
func (c *Client) Next(ctx context.Context, sessionID string, threadID int) error {
	return c.execControl(ctx, sessionID, "next", func(threadID int) any {
		return dap.NextArguments{ThreadId: threadID}
	}, threadID)
}

// StepIn steps into the current call.
func (c *Client) StepIn(ctx context.Context, sessionID string, threadID int) error {
	return c.execControl(ctx, sessionID, "stepIn", func(threadID int) any {
		return dap.StepInArguments{ThreadId: threadID}
	}, threadID)
}

// StepOut steps out of the current function.
func (c *Client) StepOut(ctx context.Context, sessionID string, threadID int) error {
	return c.execControl(ctx, sessionID, "stepOut", func(threadID int) any {
		return dap.StepOutArguments{ThreadId: threadID}
	}, threadID)
}

// Pause suspends a running thread.
func (c *Client) Pause(ctx context.Context, sessionID string, threadID int) error {
	return c.execControl(ctx, sessionID, "pause", func(threadID int) any {
		return dap.PauseArguments{ThreadId: threadID}
	}, threadID)
}

func (c *Client) execControl(ctx context.Context, sessionID, command string, args func(int) any, threadID int) error {
	session, err := c.resolve(ctx, sessionID)
	if err != nil {
		return err
	}
	if threadID == 0 {
		threadID = defaultThreadID
	}
	return c.send(ctx, session.ID, command, args(threadID), nil)
}

// Restart restarts the debug session.
func (c *Client) Restart(ctx context.Context, sessionID string) error {
	session, err := c.resolve(ctx, sessionID)
	if err != nil {
		return err
	}
	return c.send(ctx, session.ID, "restart", struct{}{}, nil)
}

// Terminate asks the debuggee to terminate itself, optionally restarting.
func (c *Client) Terminate(ctx context.Context, sessionID string, restart bool) error {
	session, err := c.resolve(ctx, sessionID)
	if err != nil {
		return err
	}
	return c.send(ctx, session.ID, "terminate", dap.TerminateArguments{Restart: restart}, nil)
}

// DisconnectOptions control how the session detaches from the debuggee.
type DisconnectOptions struct {
	TerminateDebuggee bool `json:"terminateDebuggee,omitempty"`
	SuspendDebuggee   bool `json:"suspendDebuggee,omitempty"`
	Restart           bool `json:"restart,omitempty"`
}

// Disconnect detaches the session from the debuggee.
func (c *Client) Disconnect(ctx context.Context, sessionID string, options DisconnectOptions) error {
	session, err := c.resolve(ctx, sessionID)
	if err != nil {
		return err
	}
	args := dap.DisconnectArguments{
		TerminateDebuggee: options.TerminateDebuggee,
		SuspendDebuggee:   options.SuspendDebuggee,
		Restart:           options.Restart,
	}
	return c.send(ctx, session.ID, "disconnect", args, nil)
}
