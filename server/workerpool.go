package server

import (
	"context"
	"log"

	"gtipc/message"
	"gtipc/middleware"
	"gtipc/registry"
	"gtipc/service"
	"gtipc/wire"
)

// WorkerPool bounds the number of service handlers running concurrently
// across all clients (spec.md §4.3, invariant 5: at most W workers at
// once). Unlike the teacher's ConnPool — a borrow/return pool of
// reusable connections gated by a buffered channel — there is nothing to
// reuse here, only a concurrency budget to enforce. The buffered-channel
// trick still fits: a channel of W empty slots makes "submit blocks
// until active count < W" fall out of a channel send, with no mutex or
// condition variable of our own.
type WorkerPool struct {
	slots   chan struct{}
	handler service.Table
}

// NewWorkerPool creates a pool with the given concurrency limit and
// service table.
func NewWorkerPool(limit int, handlers service.Table) *WorkerPool {
	return &WorkerPool{
		slots:   make(chan struct{}, limit),
		handler: handlers,
	}
}

// Submit blocks until a worker slot is free, then runs the request's
// service handler against client c in a new goroutine. It returns once
// the work has been launched, not once it has completed.
//
// If c has already been told to stop (its dispatcher is exiting because
// the client is being unregistered), the submission is refused instead
// of launched — spec.md §4.3's cancellation rule: "newly submitted work
// for it is refused; in-flight work is allowed to complete."
func (p *WorkerPool) Submit(c *registry.ClientRecord, req wire.RequestRecord) {
	p.slots <- struct{}{} // blocks here when W workers are already active
	if c.StopDispatch.Load() {
		<-p.slots
		return
	}
	c.InFlight.Add(1)
	c.InFlightWG.Add(1)
	go p.run(c, req)
}

// run is the five-step worker body from spec.md §4.3.
func (p *WorkerPool) run(c *registry.ClientRecord, req wire.RequestRecord) {
	defer func() {
		<-p.slots
		c.InFlight.Add(-1)
		c.InFlightWG.Done()
	}()

	c.SegmentMu.RLock()
	seg := c.Segment
	c.SegmentMu.RUnlock()

	if int(req.EntryIdx) >= seg.Capacity() {
		log.Printf("server: client %d: worker: entry %d out of range (capacity %d)", c.Pid, req.EntryIdx, seg.Capacity())
		return
	}
	entry := seg.EntryAt(int(req.EntryIdx))

	// business is the innermost handler the client's middleware chain
	// wraps (logging, its own rate limiter, request timeout — see
	// DESIGN.md's middleware/ entry). A ClientRecord built directly by a
	// test, rather than through server/registry.go's handleRegister, has
	// no chain; fall back to calling business unwrapped in that case.
	business := func(_ context.Context, msg *message.ComputeMessage) *message.ComputeMessage {
		fn, ok := p.handler[msg.Service]
		if !ok {
			return &message.ComputeMessage{Service: msg.Service, Err: "unknown service selector"}
		}
		return &message.ComputeMessage{Service: msg.Service, X: msg.X, Y: msg.Y, Res: fn(msg.X, msg.Y)}
	}
	wrapped := middleware.HandlerFunc(business)
	if c.Chain != nil {
		wrapped = c.Chain(business)
	}

	resp := wrapped(context.Background(), &message.ComputeMessage{Service: req.Service, X: entry.X, Y: entry.Y})
	if resp.Err != "" {
		log.Printf("server: client %d: request %d: %s", c.Pid, req.RequestID, resp.Err)
		entry.PublishFailure()
	} else {
		entry.Publish(resp.Res)
	}

	log.Printf("server: client %d, request %d: done = 1", c.Pid, req.RequestID)

	ack := wire.ResponseRecord{RequestID: req.RequestID, EntryIdx: req.EntryIdx}
	if err := c.RespQueue.SendResponse(ack); err != nil {
		log.Printf("server: client %d: SEND error delivering response for request %d: %v", c.Pid, req.RequestID, err)
	}
}
