// Package service holds the pure compute handlers gtipc dispatches to —
// the stand-ins spec.md §1 explicitly carves out of the core's scope.
// The core only ever sees them through the Table's selector → func
// mapping, the same method-map shape as the teacher's server/service.go,
// simplified because spec.md's selectors are a small fixed set of wire
// integers rather than arbitrarily reflected struct methods.
package service

import "gtipc/wire"

// Handler computes a result from an argument pair. Handlers must be
// pure and finite (spec.md §4.3: "it terminates in bounded time because
// service handlers are pure and finite").
type Handler func(x, y int64) int64

// Table maps a wire.Service selector to its handler.
type Table map[wire.Service]Handler

// Default returns the baseline service table: ADD and MUL, grounded on
// original_source/src/server/server.c's add/mul functions.
func Default() Table {
	return Table{
		wire.ServiceAdd: func(x, y int64) int64 { return x + y },
		wire.ServiceMul: func(x, y int64) int64 { return x * y },
	}
}
