package server

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gtipc/ipcconn"
	"gtipc/registry"
	"gtipc/service"
	"gtipc/shm"
	"gtipc/wire"
)

func newTestClient(t *testing.T, capacity int) (*registry.ClientRecord, *ipcconn.Queue) {
	t.Helper()
	shm.BaseDir = t.TempDir()
	ipcconn.BaseDir = t.TempDir()

	seg, err := shm.Create("workerpool-test", capacity)
	if err != nil {
		t.Fatalf("shm.Create failed: %v", err)
	}
	t.Cleanup(func() { seg.Close() })

	sockPath := filepath.Join(t.TempDir(), "resp.sock")
	serverSide, err := ipcconn.Listen(sockPath)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { serverSide.Close() })

	accepted := make(chan error, 1)
	go func() { accepted <- serverSide.Accept() }()
	clientSide, err := ipcconn.Dial(sockPath)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { clientSide.Close() })
	if err := <-accepted; err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	c := &registry.ClientRecord{Pid: 1, RespQueue: serverSide, Segment: seg}
	return c, clientSide
}

func TestWorkerPoolRunsHandlerAndReplies(t *testing.T) {
	c, clientSide := newTestClient(t, 4)
	pool := NewWorkerPool(2, service.Default())

	entry := c.Segment.EntryAt(0)
	entry.Reset(3, 4)

	pool.Submit(c, wire.RequestRecord{RequestID: 1, Service: wire.ServiceAdd, EntryIdx: 0})

	clientSide.SetReadDeadline(time.Second)
	resp, err := clientSide.RecvResponse()
	if err != nil {
		t.Fatalf("RecvResponse failed: %v", err)
	}
	if resp.RequestID != 1 || resp.EntryIdx != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !entry.IsDone() {
		t.Fatal("entry not marked done")
	}
	if entry.Res != 7 {
		t.Errorf("Res = %d, want 7", entry.Res)
	}
}

func TestWorkerPoolUnknownServiceMarksFailed(t *testing.T) {
	c, clientSide := newTestClient(t, 4)
	pool := NewWorkerPool(2, service.Default())

	entry := c.Segment.EntryAt(0)
	entry.Reset(1, 1)

	pool.Submit(c, wire.RequestRecord{RequestID: 1, Service: wire.Service(99), EntryIdx: 0})

	clientSide.SetReadDeadline(time.Second)
	if _, err := clientSide.RecvResponse(); err != nil {
		t.Fatalf("RecvResponse failed: %v", err)
	}
	if !entry.IsFailed() {
		t.Fatal("expected entry to be marked failed for an unknown service selector")
	}
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	c, clientSide := newTestClient(t, 64)
	const limit = 4
	const n = 20

	var current, peak atomic.Int32
	release := make(chan struct{})
	slow := service.Table{
		wire.ServiceAdd: func(x, y int64) int64 {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			current.Add(-1)
			return x + y
		},
	}
	pool := NewWorkerPool(limit, slow)

	// Submit blocks once limit workers are in flight (workerpool.go's
	// "submit blocks until active count < W" semaphore), and every
	// handler here blocks on release — so submitting has to happen off
	// the main goroutine, which needs to reach close(release) below
	// while submits beyond the limit are still pending.
	var submitWG sync.WaitGroup
	for i := 0; i < n; i++ {
		entry := c.Segment.EntryAt(i)
		entry.Reset(int64(i), 1)
		submitWG.Add(1)
		go func(i int) {
			defer submitWG.Done()
			pool.Submit(c, wire.RequestRecord{RequestID: int32(i), Service: wire.ServiceAdd, EntryIdx: uint32(i)})
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	submitWG.Wait()

	if p := peak.Load(); p > limit {
		t.Fatalf("observed peak of %d concurrent workers, want <= %d", p, limit)
	}

	clientSide.SetReadDeadline(5 * time.Second)
	for i := 0; i < n; i++ {
		if _, err := clientSide.RecvResponse(); err != nil {
			t.Fatalf("RecvResponse %d failed: %v", i, err)
		}
	}
}
