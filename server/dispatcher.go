package server

import (
	"errors"
	"log"
	"time"

	"gtipc/ipcconn"
	"gtipc/registry"
	"gtipc/wire"
)

// defaultDispatchTimeout is the bounded receive timeout a dispatcher
// uses to periodically observe its client's stop flag (spec.md §4.2,
// Design Notes §9 "preserve this idiom" — it mirrors the original's
// short mq_timedreceive window rather than blocking indefinitely).
// Overridable via WithDispatchTimeout.
const defaultDispatchTimeout = 20 * time.Millisecond

// runDispatcher is the per-client dispatcher task: one per registered
// client, owning that client's request queue. It routes inbound request
// records to either the resize protocol (sentinel request id) or the
// worker pool, and never executes service logic itself.
func (s *Server) runDispatcher(c *registry.ClientRecord) {
	defer s.dispatchWG.Done()
	for {
		if c.StopDispatch.Load() || s.shuttingDown.Load() {
			return
		}
		if err := c.ReqQueue.SetReadDeadline(s.dispatchTimeout); err != nil {
			log.Printf("server: client %d: dispatcher: set deadline: %v", c.Pid, err)
			return
		}
		req, err := c.ReqQueue.RecvRequest()
		if err != nil {
			if errors.Is(err, ipcconn.ErrTimeout) {
				continue
			}
			// Transport error reading from a client that's gone away —
			// log and stop; the registry will clean up this record when
			// it sees UNREGISTER/CLIENT_CLOSE (or never does, if the
			// client vanished without one, in which case this dispatcher
			// simply idles no more).
			log.Printf("server: client %d: dispatcher: RECV error: %v", c.Pid, err)
			return
		}

		if req.RequestID == wire.SentinelRequestID {
			s.handleResize(c, req)
			continue
		}
		s.pool.Submit(c, req)
	}
}
