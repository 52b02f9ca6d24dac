// Package registry holds the server's active-client set — the
// bookkeeping behind spec.md §4.1's registry intake.
//
// The teacher's registry package solved "how does a client find a
// server instance" via an interface (Register/Deregister/Discover/Watch)
// backed by etcd. gtipc's registry intake solves a different problem —
// "which clients are currently attached to this one server" — so the
// interface collapses to Register/Unregister/Find/List over an in-memory
// map; the etcd-backed implementation has no home here (see DESIGN.md:
// spec.md's Non-goals explicitly exclude distribution across hosts and
// durability across restart).
package registry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"gtipc/ipcconn"
	"gtipc/middleware"
	"gtipc/shm"
)

// ClientRecord is the server's view of one registered client
// (spec.md §3 "Client record (server side)"). The registry task is its
// sole mutator in the active-client set (Design Notes §9); the
// dispatcher and workers that reference it afterwards only read its
// handles or mutate its own synchronization fields (StopDispatch,
// InFlight, SegmentMu-guarded Segment).
type ClientRecord struct {
	Pid int32

	ReqQueue  *ipcconn.Queue // client → server
	RespQueue *ipcconn.Queue // server → client

	ShmName string

	// SegmentMu guards Segment itself (swapped wholesale by the resize
	// protocol, invariant 6: never concurrently with a worker holding an
	// entry in it) — workers and the dispatcher take a read-sized hold of
	// it just long enough to snapshot the pointer before touching an
	// entry.
	SegmentMu sync.RWMutex
	Segment   *shm.Segment

	StopDispatch atomic.Bool // set to stop this client's dispatcher loop
	InFlight     atomic.Int64

	// InFlightWG lets the resize protocol wait for worker quiescence on
	// this client's segment (spec.md §4.4 step 3) without a hand-rolled
	// mutex+condition-variable pair — the same primitive the teacher
	// uses for its own graceful-shutdown drain (server/server.go's
	// Shutdown wg.Wait()).
	InFlightWG sync.WaitGroup

	// Chain is this client's worker-side middleware chain (logging, its
	// own rate limiter, per-request timeout — see DESIGN.md's
	// middleware/ entry). Built once at registration so the rate
	// limiter's token bucket is shared across every request this client
	// submits rather than reset per call. Left nil in tests that
	// construct a ClientRecord directly; the worker pool falls back to
	// calling the business handler unwrapped in that case.
	Chain middleware.Middleware
}

// Registry is the server's active-client set, keyed by pid — the
// associative-container replacement for the original's intrusive
// doubly-linked client list (Design Notes §9).
type Registry struct {
	mu      sync.Mutex
	clients map[int32]*ClientRecord
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{clients: make(map[int32]*ClientRecord)}
}

// Register adds a client record to the active set. It fails if a client
// with the same pid is already registered (a stale registration should
// be explicitly unregistered first).
func (r *Registry) Register(c *ClientRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[c.Pid]; exists {
		return fmt.Errorf("registry: client %d already registered", c.Pid)
	}
	r.clients[c.Pid] = c
	return nil
}

// Unregister removes and returns the client record for pid, if any.
func (r *Registry) Unregister(pid int32) (*ClientRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[pid]
	if ok {
		delete(r.clients, pid)
	}
	return c, ok
}

// Find returns the client record for pid, if registered.
func (r *Registry) Find(pid int32) (*ClientRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[pid]
	return c, ok
}

// List returns a snapshot of all currently registered client records, in
// no particular order. Used by shutdown to notify every attached client.
func (r *Registry) List() []*ClientRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ClientRecord, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Len reports how many clients are currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
