package debug

import (
	"context"
	"time"
)

// DefaultPollInterval is the delay between stack probes in WaitForStop.
const DefaultPollInterval = 300 * time.Millisecond

// WaitForStop polls a 1-level stack fetch until the debuggee halts. The DAP
// surface available here offers no stop notification, so polling is the
// contract: a successful probe means halted, a not-halted condition sleeps
// for interval and retries, and any other failure propagates immediately.
//
// The loop has no timeout or retry cap; it runs until the debuggee halts,
// the probe errors, or ctx is cancelled (the HTTP transport cancels ctx when
// the client disconnects).
func (c *Client) WaitForStop(ctx context.Context, sessionID string, threadID int, interval time.Duration) (StopResult, error) {
	session, err := c.resolve(ctx, sessionID)
	if err != nil {
		return StopResult{}, err
	}
	if threadID == 0 {
		threadID = defaultThreadID
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	for {
		frames, err := c.stackForSession(ctx, session.ID, threadID, 0, 1)
		if err == nil {
			result := StopResult{Stopped: true}
			if len(frames) > 0 {
				frame := frames[0]
				result.Frame = &frame
			}
			return result, nil
		}
		if !IsNotHalted(err) {
			return StopResult{}, err
		}

		select {
		case <-ctx.Done():
			return StopResult{}, ctx.Err()
		case <-time.After(interval):
		}
	}
}
