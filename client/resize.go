package client

import (
	"fmt"
	"log"

	"gtipc/shm"
	"gtipc/wire"
)

// resize is the client-side three-step handshake of spec.md §4.5/§4.4:
// enlarge the backing object out-of-band, notify the server, await its
// acknowledgement. It is called by allocate only when the free list is
// empty.
//
// sendMu is held for the handshake's entire duration (from growing the
// object through receiving the ack), which is the lock discipline
// Design Notes §9 asks implementers to state explicitly: no other
// goroutine's Submit can send a data request on reqQueue until this
// resize completes, because Submit takes the same lock to send its own
// request record.
func (c *Client) resize() error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.segMu.RLock()
	oldCapacity := c.seg.Capacity()
	c.segMu.RUnlock()
	newCapacity := oldCapacity * 2

	if err := shm.Grow(c.shmName, newCapacity); err != nil {
		return fmt.Errorf("enlarge shared-memory object: %w", err)
	}

	newSeg, err := shm.Open(c.shmName)
	if err != nil {
		return fmt.Errorf("remap enlarged object: %w", err)
	}
	c.segMu.Lock()
	oldSeg := c.seg
	c.seg = newSeg
	c.segMu.Unlock()
	if err := oldSeg.Close(); err != nil {
		log.Printf("client %d: resize: close old mapping: %v", c.pid, err)
	}

	ctrl := wire.RequestRecord{RequestID: wire.SentinelRequestID, Pid: c.pid}
	if err := c.reqQueue.SendRequest(ctrl); err != nil {
		return fmt.Errorf("send resize control record: %w", err)
	}

	if ok := <-c.resizeAck; !ok {
		return fmt.Errorf("server: FATAL error: server could not re-open enlarged shared-memory object %q", c.shmName)
	}

	c.mu.Lock()
	for i := oldCapacity; i < newCapacity; i++ {
		c.free = append(c.free, uint32(i))
	}
	c.mu.Unlock()

	return nil
}
