package server

import (
	"errors"
	"log"

	"gtipc/ipcconn"
	"gtipc/middleware"
	"gtipc/registry"
	"gtipc/shm"
	"gtipc/wire"
)

// runRegistryIntake is the single long-running task bound to the
// well-known registry queue (spec.md §4.1). It is the sole mutator of
// the active-client set (Design Notes §9).
//
// Unlike a per-client queue (one dedicated peer, accepted once), the
// registry channel fields many independent client processes, so this
// loop keeps accepting new connections — one per inbound registry
// record — and hands each off to a short-lived goroutine, the same
// accept-then-spawn shape the teacher's Server.Serve uses for its own
// connections.
func (s *Server) runRegistryIntake() {
	defer s.shutdownWG.Done()
	for {
		if s.shuttingDown.Load() {
			return
		}
		if err := s.registryQueue.SetAcceptDeadline(s.dispatchTimeout); err != nil {
			log.Printf("server: registry intake: set accept deadline: %v", err)
			return
		}
		conn, err := s.registryQueue.AcceptNew()
		if err != nil {
			if errors.Is(err, ipcconn.ErrTimeout) {
				continue
			}
			log.Printf("server: registry intake: accept error: %v", err)
			continue
		}
		go s.handleRegistryConn(conn)
	}
}

// handleRegistryConn reads exactly one registry record off a freshly
// accepted registry-channel connection, dispatches it, and closes the
// connection.
func (s *Server) handleRegistryConn(conn *ipcconn.Queue) {
	defer conn.Close()

	if err := conn.SetReadDeadline(s.dispatchTimeout); err != nil {
		log.Printf("server: registry intake: set read deadline: %v", err)
		return
	}
	rec, err := conn.RecvRegistry()
	if err != nil {
		log.Printf("server: registry intake: RECV error: %v", err)
		return
	}

	switch rec.Cmd {
	case wire.CmdRegister:
		s.handleRegister(rec)
	case wire.CmdUnregister, wire.CmdClientClose:
		s.handleUnregister(rec.Pid)
	case wire.CmdServerClose:
		// Only ever sent BY the server, to clients, during shutdown;
		// never a valid inbound command (spec.md §4.1).
		log.Printf("server: registry intake: ignoring inbound SERVER_CLOSE from pid %d", rec.Pid)
	default:
		log.Printf("server: registry intake: dropping malformed record from pid %d: unknown command %v", rec.Pid, rec.Cmd)
	}
}

// handleRegister opens both of the client's queues and its shared-memory
// segment, and — only if all three succeed — adds the client to the
// active set and starts its dispatcher. Any failure abandons the
// registration and cleans up whatever was already opened (spec.md
// §4.1's explicit redesign away from a server crash).
func (s *Server) handleRegister(rec wire.RegistryRecord) {
	reqQ, err := ipcconn.Dial(ipcconn.Path(rec.ReqQueueName))
	if err != nil {
		log.Printf("server: registry intake: ATTACH error for pid %d: dial request queue: %v", rec.Pid, err)
		return
	}
	respQ, err := ipcconn.Dial(ipcconn.Path(rec.RespQueueName))
	if err != nil {
		log.Printf("server: registry intake: ATTACH error for pid %d: dial response queue: %v", rec.Pid, err)
		reqQ.Close()
		return
	}
	seg, err := shm.Open(rec.ShmName)
	if err != nil {
		log.Printf("server: registry intake: SHM error for pid %d: %v", rec.Pid, err)
		reqQ.Close()
		respQ.Close()
		return
	}

	c := &registry.ClientRecord{
		Pid:       rec.Pid,
		ReqQueue:  reqQ,
		RespQueue: respQ,
		ShmName:   rec.ShmName,
		Segment:   seg,
		Chain: middleware.Chain(
			middleware.LoggingMiddleware(),
			middleware.RateLimitMiddleware(s.clientRate, s.clientBurst),
			middleware.TimeOutMiddleware(s.handlerTimeout),
		),
	}
	if err := s.registry.Register(c); err != nil {
		log.Printf("server: registry intake: ATTACH error for pid %d: %v", rec.Pid, err)
		reqQ.Close()
		respQ.Close()
		seg.Close()
		return
	}

	s.dispatchWG.Add(1)
	go s.runDispatcher(c)
	log.Printf("server: client %d registered (capacity %d)", rec.Pid, seg.Capacity())
}

// handleUnregister locates the client by pid, stops its dispatcher,
// drains already-launched workers, closes its queues, unmaps its
// segment, and removes it from the active set (spec.md §4.1's
// UNREGISTER/CLIENT_CLOSE row). StopDispatch only refuses new
// submissions (workerpool.go's Submit) — it does not wait for workers
// already running against this client's segment, so InFlightWG.Wait
// must run before the segment is unmapped, the same ordering
// resize.go uses before it swaps the mapping out from under a worker
// (spec.md §4.3 "in-flight work is allowed to complete", invariants 4
// and 6).
func (s *Server) handleUnregister(pid int32) {
	c, ok := s.registry.Unregister(pid)
	if !ok {
		log.Printf("server: registry intake: UNREGISTER for unknown pid %d", pid)
		return
	}
	c.StopDispatch.Store(true)
	c.InFlightWG.Wait()
	if err := c.ReqQueue.Close(); err != nil {
		log.Printf("server: client %d: close request queue: %v", pid, err)
	}
	if err := c.RespQueue.Close(); err != nil {
		log.Printf("server: client %d: close response queue: %v", pid, err)
	}
	c.SegmentMu.Lock()
	seg := c.Segment
	c.SegmentMu.Unlock()
	if err := seg.Close(); err != nil {
		log.Printf("server: client %d: unmap segment: %v", pid, err)
	}
	log.Printf("server: client %d unregistered", pid)
}
