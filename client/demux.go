package client

import (
	"errors"
	"log"
	"time"

	"gtipc/ipcconn"
	"gtipc/wire"
)

// demuxPollInterval bounds how long the response demultiplexer blocks on
// a receive before checking whether the client has been closed — the
// same bounded-timeout idiom the server's dispatchers use (spec.md §4.2,
// Design Notes §9).
const demuxPollInterval = 20 * time.Millisecond

// demux is the background task that owns the response queue (spec.md
// §4.5 "response demultiplexer"). For each inbound response record it
// looks up the request id in the key table and signals that row's
// completion channel; responses for unknown ids are dropped with a
// diagnostic, and control acks (sentinel request id) are routed to
// either the resize handshake or the server-shutdown notice.
func (c *Client) demux() {
	defer close(c.demuxDone)
	for {
		if c.closed.Load() {
			return
		}
		if err := c.respQueue.SetReadDeadline(demuxPollInterval); err != nil {
			log.Printf("client %d: demux: set deadline: %v", c.pid, err)
			return
		}
		resp, err := c.respQueue.RecvResponse()
		if err != nil {
			if errors.Is(err, ipcconn.ErrTimeout) {
				continue
			}
			log.Printf("client %d: demux: RECV error: %v", c.pid, err)
			return
		}

		if resp.RequestID == wire.SentinelRequestID {
			switch resp.EntryIdx {
			case wire.ServerCloseEntryIdx:
				c.serverClosing.Store(true)
				log.Printf("client %d: server is shutting down", c.pid)
			case wire.ResizeFailedEntryIdx:
				c.resizeAck <- false
			default:
				c.resizeAck <- true
			}
			continue
		}

		c.mu.Lock()
		pr, ok := c.pending[resp.RequestID]
		c.mu.Unlock()
		if !ok {
			log.Printf("client %d: demux: dropping response for unknown request id %d", c.pid, resp.RequestID)
			continue
		}
		close(pr.done)
	}
}
