package server

import (
	"log"

	"gtipc/registry"
	"gtipc/shm"
	"gtipc/wire"
)

// handleResize runs the server side of the six-step resize protocol
// (spec.md §4.4) when a dispatcher sees a sentinel-request-id record
// naming a client's (already out-of-band-enlarged) shared-memory
// object.
//
// Steps 1-2 of spec.md (re-open the object, learn its new size) are
// shm.Open. Step 4 (copy old region into the new one) has no work to
// do here: shm.Grow truncates the *same* backing file the client
// already enlarged, so re-mapping it, as opposed to mapping a distinct
// new object, already preserves every existing entry's bytes — no
// explicit byte-copy or per-entry lock rebuild is needed, because there
// never are two separate regions to reconcile. Step 3 (quiescence) and
// steps 5-6 (pointer swap, ack) still apply exactly as specified and
// are the actual correctness-critical work.
func (s *Server) handleResize(c *registry.ClientRecord, req wire.RequestRecord) {
	newSeg, err := shm.Open(c.ShmName)
	if err != nil {
		log.Printf("server: client %d: resize: re-open %q: %v", c.Pid, c.ShmName, err)
		fail := wire.ResponseRecord{RequestID: wire.SentinelRequestID, EntryIdx: wire.ResizeFailedEntryIdx}
		if err := c.RespQueue.SendResponse(fail); err != nil {
			log.Printf("server: client %d: resize: SEND error delivering resize-failed ack: %v", c.Pid, err)
		}
		return
	}

	// Step 3: wait for this client's in-flight workers to drain before
	// swapping the segment pointer out from under them (invariant 6).
	c.InFlightWG.Wait()

	c.SegmentMu.Lock()
	old := c.Segment
	c.Segment = newSeg
	c.SegmentMu.Unlock()

	if err := old.Close(); err != nil {
		log.Printf("server: client %d: resize: close old mapping: %v", c.Pid, err)
	}

	ack := wire.ResponseRecord{RequestID: wire.SentinelRequestID, EntryIdx: 0}
	if err := c.RespQueue.SendResponse(ack); err != nil {
		log.Printf("server: client %d: resize: SEND error delivering resize-complete ack: %v", c.Pid, err)
	}
}
