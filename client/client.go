// Package client is the library linked into each client process
// (spec.md §2). It allocates and owns a shared-memory segment divided
// into fixed-size entries, owns its two per-client queues, and presents
// a synchronous call, an asynchronous submit, a wait-on-one, and a
// wait-on-many to the application.
package client

import (
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"gtipc/ipcconn"
	"gtipc/shm"
	"gtipc/wire"
)

// Key is the client-side opaque handle returned by Submit, correlating
// an asynchronous request with its eventual result (spec.md §3 "Request
// key").
type Key struct {
	requestID int32
	entryIdx  uint32
}

type pendingRequest struct {
	entryIdx uint32
	done     chan struct{}
}

// Client is one application process's connection to the compute
// service: its request/response queues, its shared-memory segment, and
// the bookkeeping (key table, free list) needed to correlate requests
// with results.
type Client struct {
	pid int32

	registryQueueName string
	reqQueue          *ipcconn.Queue
	respQueue         *ipcconn.Queue
	shmName           string

	segMu sync.RWMutex
	seg   *shm.Segment

	// mu guards both the free list and the key table (spec.md §5: "client
	// key table and free list are guarded by a client-local mutex; the
	// demultiplexer takes it only to signal completion").
	mu      sync.Mutex
	free    []uint32
	pending map[int32]*pendingRequest

	nextRequestID atomic.Int32

	// sendMu serializes writes of request records on reqQueue, both for
	// framing integrity (concurrent Submits must not interleave bytes of
	// two fixed-size records) and, doubling as the resize-concurrency
	// gate Design Notes §9 calls for: resize holds sendMu from the
	// control record send through the resize-complete ack, so no other
	// goroutine's Submit can enqueue a data request in between.
	sendMu sync.Mutex

	resizeAck chan bool // true: resize-complete; false: server failed to re-open the segment

	serverClosing atomic.Bool
	closed        atomic.Bool
	demuxDone     chan struct{}
}

// Options configures New.
type Options struct {
	RegistryQueueName string // default server.DefaultRegistryQueueName
	InitialCapacity   int    // default 16
}

const defaultInitialCapacity = 16

// New registers a new client with the server: it creates its own
// request/response queues and shared-memory segment, sends a REGISTER
// record on the well-known registry channel, and waits for the server
// to dial both queues (spec.md §4.1, §5's "a REGISTER is fully
// effective... before any request for that client will be dispatched").
func New(opts Options) (*Client, error) {
	if opts.RegistryQueueName == "" {
		opts.RegistryQueueName = wire.DefaultRegistryQueueName
	}
	if opts.InitialCapacity <= 0 {
		opts.InitialCapacity = defaultInitialCapacity
	}

	pid := int32(os.Getpid())
	suffix := uuid.NewString()
	reqName := fmt.Sprintf("req-%d-%s", pid, suffix)
	respName := fmt.Sprintf("resp-%d-%s", pid, suffix)
	shmName := fmt.Sprintf("shm-%d-%s", pid, suffix)

	reqQ, err := ipcconn.Listen(ipcconn.Path(reqName))
	if err != nil {
		return nil, fmt.Errorf("client: INIT error: create request queue: %w", err)
	}
	respQ, err := ipcconn.Listen(ipcconn.Path(respName))
	if err != nil {
		reqQ.Close()
		return nil, fmt.Errorf("client: INIT error: create response queue: %w", err)
	}
	seg, err := shm.Create(shmName, opts.InitialCapacity)
	if err != nil {
		reqQ.Close()
		respQ.Close()
		return nil, fmt.Errorf("client: SHM error: %w", err)
	}

	c := &Client{
		pid:               pid,
		registryQueueName: opts.RegistryQueueName,
		reqQueue:          reqQ,
		respQueue:         respQ,
		shmName:           shmName,
		seg:               seg,
		free:              freeListOf(opts.InitialCapacity),
		pending:           make(map[int32]*pendingRequest),
		resizeAck:         make(chan bool),
		demuxDone:         make(chan struct{}),
	}

	rec := wire.RegistryRecord{
		Cmd:             wire.CmdRegister,
		Pid:             pid,
		ReqQueueName:    reqName,
		RespQueueName:   respName,
		ShmName:         shmName,
		InitialCapacity: uint32(opts.InitialCapacity),
	}
	if err := sendRegistryRecord(opts.RegistryQueueName, rec); err != nil {
		reqQ.Close()
		respQ.Close()
		seg.Close()
		shm.Remove(shmName)
		return nil, fmt.Errorf("client: ATTACH error: send REGISTER: %w", err)
	}

	if err := acceptBoth(reqQ, respQ); err != nil {
		reqQ.Close()
		respQ.Close()
		seg.Close()
		shm.Remove(shmName)
		return nil, fmt.Errorf("client: ATTACH error: server did not attach: %w", err)
	}

	go c.demux()
	return c, nil
}

// sendRegistryRecord dials the well-known registry queue, sends one
// record, and disconnects — mirroring the server's one-connection-per-
// message accept loop (server/registry.go's AcceptNew).
func sendRegistryRecord(registryQueueName string, rec wire.RegistryRecord) error {
	q, err := ipcconn.Dial(ipcconn.Path(registryQueueName))
	if err != nil {
		return err
	}
	defer q.Close()
	return q.SendRegistry(rec)
}

// acceptBoth waits for the server to dial both per-client queues
// concurrently, since the server opens them in a fixed order
// (request then response) and either Accept could complete first.
func acceptBoth(reqQ, respQ *ipcconn.Queue) error {
	errs := make(chan error, 2)
	go func() { errs <- reqQ.Accept() }()
	go func() { errs <- respQ.Accept() }()
	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func freeListOf(capacity int) []uint32 {
	free := make([]uint32, capacity)
	for i := range free {
		free[i] = uint32(i)
	}
	return free
}

// Call performs a synchronous request: submit, then wait-one, then
// free-entry (spec.md §4.5 "synchronous call").
func (c *Client) Call(svc wire.Service, x, y int64) (int64, error) {
	key, err := c.Submit(svc, x, y)
	if err != nil {
		return 0, err
	}
	return c.WaitOne(key)
}

// Submit is the allocate-and-submit half of the engine: it acquires an
// entry (triggering a resize handshake if the free list is empty),
// writes the argument, picks a fresh request id, records the key-table
// row, and sends the request record.
func (c *Client) Submit(svc wire.Service, x, y int64) (Key, error) {
	if c.closed.Load() {
		return Key{}, fmt.Errorf("client: FATAL error: client is closed")
	}

	entryIdx, err := c.allocate()
	if err != nil {
		return Key{}, fmt.Errorf("client: SHM error: %w", err)
	}

	c.segMu.RLock()
	entry := c.seg.EntryAt(int(entryIdx))
	entry.Reset(x, y)
	c.segMu.RUnlock()

	reqID := c.nextRequestID.Add(1)
	pr := &pendingRequest{entryIdx: entryIdx, done: make(chan struct{})}

	c.mu.Lock()
	c.pending[reqID] = pr
	c.mu.Unlock()

	rec := wire.RequestRecord{RequestID: reqID, Service: svc, EntryIdx: entryIdx, Pid: c.pid}
	c.sendMu.Lock()
	err = c.reqQueue.SendRequest(rec)
	c.sendMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.free = append(c.free, entryIdx)
		c.mu.Unlock()
		return Key{}, fmt.Errorf("client: SEND error: %w", err)
	}

	return Key{requestID: reqID, entryIdx: entryIdx}, nil
}

// WaitOne blocks until key's request completes, then returns its result
// and retires the entry to the free list (spec.md §4.5 "wait-one").
func (c *Client) WaitOne(key Key) (int64, error) {
	c.mu.Lock()
	pr, ok := c.pending[key.requestID]
	c.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("client: FATAL error: unknown request key %d", key.requestID)
	}

	<-pr.done

	c.segMu.RLock()
	entry := c.seg.EntryAt(int(key.entryIdx))
	failed := entry.IsFailed()
	result := entry.Res
	c.segMu.RUnlock()

	c.mu.Lock()
	delete(c.pending, key.requestID)
	c.free = append(c.free, key.entryIdx)
	c.mu.Unlock()

	if failed {
		return 0, fmt.Errorf("client: FATAL error: request %d marked failed by the server", key.requestID)
	}
	return result, nil
}

// WaitMany (join) waits on and harvests every key in the order given,
// so results[i] belongs to keys[i]. It completes only once every
// constituent has completed and returns the first error met, if any
// (spec.md §4.5 "wait-many (join)").
func (c *Client) WaitMany(keys []Key) ([]int64, error) {
	results := make([]int64, len(keys))
	var firstErr error
	for i, k := range keys {
		res, err := c.WaitOne(k)
		results[i] = res
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return results, firstErr
}

// Close sends UNREGISTER, tears down the client's queues and segment,
// and stops the response demultiplexer.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	rec := wire.RegistryRecord{Cmd: wire.CmdUnregister, Pid: c.pid}
	if err := c.sendUnregister(rec); err != nil {
		log.Printf("client %d: SEND error delivering UNREGISTER: %v", c.pid, err)
	}

	<-c.demuxDone

	var err error
	if e := c.reqQueue.Close(); e != nil {
		err = e
	}
	if e := c.respQueue.Close(); e != nil && err == nil {
		err = e
	}
	c.segMu.RLock()
	seg := c.seg
	c.segMu.RUnlock()
	if e := seg.Close(); e != nil && err == nil {
		err = e
	}
	if e := shm.Remove(c.shmName); e != nil && err == nil {
		err = e
	}
	return err
}

func (c *Client) sendUnregister(rec wire.RegistryRecord) error {
	q, err := ipcconn.Dial(ipcconn.Path(c.registryQueueName))
	if err != nil {
		return err
	}
	defer q.Close()
	return q.SendRegistry(rec)
}
