// Package server implements the coordination core of spec.md: registry
// intake, per-client dispatch, the bounded worker pool, and the resize
// protocol.
//
// Control flow, leaves first: service handlers (package service) →
// worker pool → per-client dispatcher → registry intake → Server's
// public Serve/Shutdown surface.
package server

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"gtipc/ipcconn"
	"gtipc/registry"
	"gtipc/service"
	"gtipc/wire"
)

const defaultWorkerLimit = 100

// defaultClientRate/defaultClientBurst bound each client's own worker-side
// rate limiter (middleware.RateLimitMiddleware); defaultHandlerTimeout
// bounds each request's middleware.TimeOutMiddleware. Generous enough
// that a well-behaved client never observes either, while still guarding
// against one client monopolizing the worker pool (spec.md §7's
// "Resource exhaustion" kind).
const (
	defaultClientRate     = 500.0
	defaultClientBurst    = 1000
	defaultHandlerTimeout = 2 * time.Second
)

// DefaultRegistryQueueName is the well-known registry channel name
// (spec.md §6), re-exported here for callers constructing a Server.
const DefaultRegistryQueueName = wire.DefaultRegistryQueueName

// Server is the long-lived process that accepts client registrations,
// runs service handlers on their behalf, and returns results through
// shared memory.
type Server struct {
	registryQueueName string
	workerLimit       int
	dispatchTimeout   time.Duration
	handlers          service.Table
	clientRate        float64
	clientBurst       int
	handlerTimeout    time.Duration

	registryQueue *ipcconn.Queue
	registry      *registry.Registry
	pool          *WorkerPool

	shuttingDown atomic.Bool
	shutdownWG   sync.WaitGroup // registry intake task
	dispatchWG   sync.WaitGroup // one per live dispatcher
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithWorkerLimit sets the worker pool's maximum concurrency W
// (spec.md invariant 5). Default 100.
func WithWorkerLimit(w int) Option {
	return func(s *Server) { s.workerLimit = w }
}

// WithRegistryQueueName overrides the well-known registry channel name.
// Default DefaultRegistryQueueName.
func WithRegistryQueueName(name string) Option {
	return func(s *Server) { s.registryQueueName = name }
}

// WithDispatchTimeout overrides the bounded receive timeout dispatchers
// and the registry intake task use to poll their stop flags. Default
// defaultDispatchTimeout (20ms).
func WithDispatchTimeout(d time.Duration) Option {
	return func(s *Server) { s.dispatchTimeout = d }
}

// WithServiceTable overrides the service-selector-to-handler table.
// Default service.Default() (ADD, MUL).
func WithServiceTable(t service.Table) Option {
	return func(s *Server) { s.handlers = t }
}

// WithClientRateLimit overrides each client's own worker-side token
// bucket (rate per second, burst size). Default
// defaultClientRate/defaultClientBurst.
func WithClientRateLimit(rate float64, burst int) Option {
	return func(s *Server) { s.clientRate = rate; s.clientBurst = burst }
}

// WithHandlerTimeout overrides the per-request middleware timeout.
// Default defaultHandlerTimeout.
func WithHandlerTimeout(d time.Duration) Option {
	return func(s *Server) { s.handlerTimeout = d }
}

// New constructs a Server with the given options applied over the
// defaults.
func New(opts ...Option) *Server {
	s := &Server{
		registryQueueName: DefaultRegistryQueueName,
		workerLimit:       defaultWorkerLimit,
		dispatchTimeout:   defaultDispatchTimeout,
		handlers:          service.Default(),
		clientRate:        defaultClientRate,
		clientBurst:       defaultClientBurst,
		handlerTimeout:    defaultHandlerTimeout,
		registry:          registry.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve opens the well-known registry queue and starts the registry
// intake task in the background, where it runs until Shutdown is called;
// Serve itself returns once the task is started. It returns a non-nil error only if the
// registry queue cannot be created (spec.md §6's INIT failure kind —
// fatal on the server).
func (s *Server) Serve() error {
	q, err := ipcconn.Listen(ipcconn.Path(s.registryQueueName))
	if err != nil {
		return fmt.Errorf("server: INIT error: cannot create registry channel: %w", err)
	}
	s.registryQueue = q
	s.pool = NewWorkerPool(s.workerLimit, s.handlers)

	s.shutdownWG.Add(1)
	go s.runRegistryIntake()

	return nil
}

// Shutdown performs graceful shutdown:
//  1. Set the shutdown flag so the registry intake task and every
//     dispatcher observe it within one poll window.
//  2. Notify every still-registered client with a SERVER_CLOSE record on
//     its response queue (supplemented from original_source/'s
//     unregister_client poison-pill broadcast — see SPEC_FULL.md §4).
//  3. Wait (with timeout) for the intake task and all dispatchers to
//     exit, then close the registry queue.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.shuttingDown.Store(true)

	for _, c := range s.registry.List() {
		notice := wire.ResponseRecord{RequestID: wire.SentinelRequestID, EntryIdx: wire.ServerCloseEntryIdx}
		if err := c.RespQueue.SendResponse(notice); err != nil {
			log.Printf("server: client %d: SEND error delivering SERVER_CLOSE: %v", c.Pid, err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.shutdownWG.Wait()
		s.dispatchWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		return fmt.Errorf("server: shutdown: timeout waiting for tasks to stop")
	}

	return s.registryQueue.Close()
}
