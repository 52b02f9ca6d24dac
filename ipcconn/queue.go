// Package ipcconn implements the named, bounded "queue" abstraction that
// stands in for POSIX message queues: the registry channel and each
// client's request/response channels (spec.md §6). A queue is backed by
// a Unix domain stream socket — one side calls Listen (this is the
// "owner" that creates the named rendezvous point, matching "client
// allocates and owns its two per-client channels", spec.md §2), the
// other calls Dial. Once connected, the resulting connection is
// full-duplex, exactly like the teacher's single multiplexed TCP
// connection in transport/client_transport.go — here used one-directional
// per queue because spec.md calls for two separately-named channels
// rather than one multiplexed connection.
package ipcconn

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"gtipc/wire"
)

// BaseDir is where queue socket files live, given a short name carried
// on the wire (registry records only have room for a 64-byte name
// field, not a full path). Mirrors shm.BaseDir; tests may override it
// to isolate runs.
var BaseDir = os.TempDir()

// Path resolves a short queue name (as carried in a RegistryRecord) to
// the socket file path both sides must agree on.
func Path(name string) string {
	return filepath.Join(BaseDir, "gtipc-q-"+name+".sock")
}

// ErrTimeout is returned by Recv* when no record arrived before the
// configured read deadline. Dispatcher and registry intake loops use
// this to poll their stop flags, mirroring the original's
// mq_timedreceive-with-10ms-timeout idiom (Design Notes §9).
var ErrTimeout = errors.New("ipcconn: receive timed out")

// Queue is one named, connection-backed channel.
type Queue struct {
	path string
	ln   net.Listener
	conn net.Conn
}

// Listen creates the named rendezvous point for a queue. The caller owns
// the resulting socket file and must call Accept before sending or
// receiving records.
func Listen(path string) (*Queue, error) {
	os.Remove(path) // best effort: clear a stale socket file from a prior run
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ipcconn: listen %q: %w", path, err)
	}
	return &Queue{path: path, ln: ln}, nil
}

// Accept blocks until a peer dials in, completing the queue's
// connection. Registration is only complete (spec.md §5: "a REGISTER is
// fully effective... before any request for that client will be
// dispatched") once both of a client's queues have accepted their peer.
//
// Accept is for the single-peer queues (a client's own request and
// response channels, dialed by the server exactly once). The well-known
// registry channel instead fields one connection per inbound message,
// from however many distinct client processes are registering or
// unregistering concurrently — see AcceptNew.
func (q *Queue) Accept() error {
	conn, err := q.ln.Accept()
	if err != nil {
		return fmt.Errorf("ipcconn: accept on %q: %w", q.path, err)
	}
	q.conn = conn
	return nil
}

// SetAcceptDeadline arranges for the next AcceptNew call to fail with a
// timeout error if no peer dials in before d elapses, so an accept loop
// can check a stop flag between accepts instead of blocking forever.
func (q *Queue) SetAcceptDeadline(d time.Duration) error {
	ul, ok := q.ln.(*net.UnixListener)
	if !ok {
		return fmt.Errorf("ipcconn: listener for %q does not support deadlines", q.path)
	}
	return ul.SetDeadline(time.Now().Add(d))
}

// AcceptNew blocks until a peer dials in, then returns a fresh Queue
// wrapping that one connection, leaving the receiver's own listener free
// to accept further, unrelated connections. This is how the registry
// queue fields many independent client processes on the same
// well-known channel, each opening a short-lived connection to send one
// registry record — a stream-socket stand-in for a message queue's
// many-senders-one-receiver semantics.
func (q *Queue) AcceptNew() (*Queue, error) {
	conn, err := q.ln.Accept()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("ipcconn: accept on %q: %w", q.path, err)
	}
	return &Queue{path: q.path, conn: conn}, nil
}

// Dial connects to an existing queue by path.
func Dial(path string) (*Queue, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ipcconn: dial %q: %w", path, err)
	}
	return &Queue{path: path, conn: conn}, nil
}

// SetReadDeadline arranges for the next Recv* call to fail with
// ErrTimeout if no record arrives in time, so a poll loop can check a
// stop flag between receives without blocking forever.
func (q *Queue) SetReadDeadline(d time.Duration) error {
	return q.conn.SetReadDeadline(time.Now().Add(d))
}

// Close releases the queue's connection and, if this side owns the
// rendezvous point, its listener and socket file.
func (q *Queue) Close() error {
	var err error
	if q.conn != nil {
		err = q.conn.Close()
	}
	if q.ln != nil {
		if lerr := q.ln.Close(); lerr != nil && err == nil {
			err = lerr
		}
		os.Remove(q.path)
	}
	return err
}

func (q *Queue) send(buf []byte) error {
	_, err := q.conn.Write(buf)
	return err
}

func (q *Queue) recv(buf []byte) error {
	_, err := io.ReadFull(q.conn, buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return ErrTimeout
		}
		return err
	}
	return nil
}

// SendRegistry writes a RegistryRecord to the queue.
func (q *Queue) SendRegistry(rec wire.RegistryRecord) error {
	buf, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	return q.send(buf)
}

// RecvRegistry reads one RegistryRecord from the queue.
func (q *Queue) RecvRegistry() (wire.RegistryRecord, error) {
	buf := make([]byte, wire.RegistryRecordSize)
	var rec wire.RegistryRecord
	if err := q.recv(buf); err != nil {
		return rec, err
	}
	err := rec.UnmarshalBinary(buf)
	return rec, err
}

// SendRequest writes a RequestRecord to the queue.
func (q *Queue) SendRequest(rec wire.RequestRecord) error {
	buf, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	return q.send(buf)
}

// RecvRequest reads one RequestRecord from the queue.
func (q *Queue) RecvRequest() (wire.RequestRecord, error) {
	buf := make([]byte, wire.RequestRecordSize)
	var rec wire.RequestRecord
	if err := q.recv(buf); err != nil {
		return rec, err
	}
	err := rec.UnmarshalBinary(buf)
	return rec, err
}

// SendResponse writes a ResponseRecord to the queue.
func (q *Queue) SendResponse(rec wire.ResponseRecord) error {
	buf, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	return q.send(buf)
}

// RecvResponse reads one ResponseRecord from the queue.
func (q *Queue) RecvResponse() (wire.ResponseRecord, error) {
	buf := make([]byte, wire.ResponseRecordSize)
	var rec wire.ResponseRecord
	if err := q.recv(buf); err != nil {
		return rec, err
	}
	err := rec.UnmarshalBinary(buf)
	return rec, err
}
