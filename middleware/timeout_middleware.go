package middleware

import (
	"context"
	"time"

	"gtipc/message"
)

// TimeOutMiddleware enforces a maximum duration for each compute request.
// If the handler doesn't complete within the timeout, it returns an error
// immediately — belt-and-suspenders alongside the explicit Failed marker
// written for unknown service selectors (Design Notes §9): a handler
// that hangs for any other reason still surfaces a FATAL-mappable error
// instead of leaving the client's wait-one blocked forever.
//
// Implementation:
//  1. Create a context with timeout (ctx.Done() fires when timeout expires)
//  2. Run the next handler in a goroutine, sending its result to a channel
//  3. Select between the result channel and ctx.Done()
//
// Note: the handler goroutine is NOT cancelled — it continues running in the background.
// The timeout only controls when the caller gives up waiting. For true cancellation,
// the handler must check ctx.Done() internally.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.ComputeMessage) *message.ComputeMessage {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			// Run handler in a goroutine so we can race it against the timeout
			done := make(chan *message.ComputeMessage, 1) // Buffered: prevent goroutine leak if timeout fires
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp // Handler completed before timeout
			case <-ctx.Done():
				return &message.ComputeMessage{
					Service: req.Service,
					Err:     "request timed out",
				}
			}
		}
	}
}
