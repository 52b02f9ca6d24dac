// Package message defines the in-process envelope the worker-side
// middleware chain operates on — the compute-domain analogue of the
// teacher's RPCMessage envelope, carrying a fixed (Service, X, Y)
// argument instead of an arbitrary JSON payload because spec.md's
// services are fixed-arity arithmetic stand-ins rather than reflected
// methods.
package message

import "gtipc/wire"

// ComputeMessage carries one request through the worker's middleware
// chain and back.
//
//   - Before the business handler runs: Service, X, Y are set, Res and
//     Err are zero.
//   - After it runs: Res holds the computed result, or Err is non-empty
//     if the handler (or a middleware) rejected the request.
type ComputeMessage struct {
	Service wire.Service
	X, Y    int64
	Res     int64
	Err     string
}
