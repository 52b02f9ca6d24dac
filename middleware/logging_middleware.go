package middleware

import (
	"context"
	"log"
	"time"

	"gtipc/message"
)

// LoggingMiddleware records the service selector, duration, and any
// errors for each compute request. It captures the start time before
// calling next, and logs the elapsed time after next returns.
//
// Example output:
//
//	Service: ADD, Duration: 42μs
//	Error: unknown service selector
func LoggingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.ComputeMessage) *message.ComputeMessage {
			start := time.Now()

			// Call the next handler in the chain
			resp := next(ctx, req)

			// Post-processing: log duration and errors
			duration := time.Since(start)
			log.Printf("Service: %s, Duration: %s", req.Service, duration)
			if resp.Err != "" {
				log.Printf("Error: %s", resp.Err)
			}
			return resp
		}
	}
}
