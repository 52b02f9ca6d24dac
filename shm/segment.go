// Package shm implements the shared-memory segment that stands in for
// the POSIX shared-memory object of spec.md §3/§6: a contiguous region
// sized capacity×EntrySize, mapped into both the client's and the
// server's address space and addressed by zero-based entry index.
//
// Real shm_open+mmap needs a kernel-visible named object; this package
// backs the segment with a regular file (under BaseDir) memory-mapped
// with golang.org/x/sys/unix, which is the direct Go equivalent of the
// original's shm_open/fstat/mmap sequence (see original_source/src/
// server/server.c's open_shm_object and resize_shm_object).
package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// BaseDir is where backing files for named segments live. It defaults to
// the system temp directory; tests may override it to isolate runs.
var BaseDir = os.TempDir()

// Segment is a memory-mapped shared-memory region divided into
// fixed-size entries.
type Segment struct {
	name string
	file *os.File
	data []byte // mmap'd bytes, len == capacity*EntrySize
}

func path(name string) string {
	return filepath.Join(BaseDir, "gtipc-shm-"+name)
}

// Create allocates a new backing object with the given name and initial
// capacity (number of entries) and maps it.
func Create(name string, capacity int) (*Segment, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("shm: capacity must be positive, got %d", capacity)
	}
	f, err := os.OpenFile(path(name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: create %q: %w", name, err)
	}
	size := int64(capacity * EntrySize)
	if err := f.Truncate(size); err != nil {
		f.Close()
		os.Remove(path(name))
		return nil, fmt.Errorf("shm: truncate %q: %w", name, err)
	}
	return mapFile(name, f)
}

// Open maps an existing backing object by name, reading its current
// size to learn the segment's capacity (mirrors open_shm_object's
// fstat-for-size step).
func Open(name string) (*Segment, error) {
	f, err := os.OpenFile(path(name), os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: open %q: %w", name, err)
	}
	return mapFile(name, f)
}

func mapFile(name string, f *os.File) (*Segment, error) {
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: stat %q: %w", name, err)
	}
	size := info.Size()
	if size == 0 || size%int64(EntrySize) != 0 {
		f.Close()
		return nil, fmt.Errorf("shm: %q has size %d, not a multiple of entry size %d", name, size, EntrySize)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: mmap %q: %w", name, err)
	}
	return &Segment{name: name, file: f, data: data}, nil
}

// Grow enlarges the named backing object to newCapacity entries
// out-of-band, without requiring the caller to hold an open mapping.
// This is the client-side "enlarge" step of the resize handshake
// (spec.md §4.5) — the server learns the new size later, via Open.
func Grow(name string, newCapacity int) error {
	f, err := os.OpenFile(path(name), os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("shm: grow %q: open: %w", name, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("shm: grow %q: stat: %w", name, err)
	}
	newSize := int64(newCapacity * EntrySize)
	if newSize <= info.Size() {
		return fmt.Errorf("shm: grow %q: new capacity %d not larger than current %d entries", name, newCapacity, info.Size()/int64(EntrySize))
	}
	if err := f.Truncate(newSize); err != nil {
		return fmt.Errorf("shm: grow %q: truncate: %w", name, err)
	}
	return nil
}

// Capacity returns the number of entries the segment currently holds.
func (s *Segment) Capacity() int {
	return len(s.data) / EntrySize
}

// Name returns the segment's backing-object name.
func (s *Segment) Name() string {
	return s.name
}

// EntryAt returns a pointer to the entry at idx. The caller must ensure
// idx < Capacity() (invariant 1, spec.md §3); callers that might race
// with a Resize swapping the segment must hold whatever lock protects
// that swap before dereferencing the returned pointer.
func (s *Segment) EntryAt(idx int) *Entry {
	base := unsafe.Pointer(&s.data[0])
	return (*Entry)(unsafe.Add(base, idx*EntrySize))
}

// Close unmaps the segment and closes its backing file descriptor. It
// does not remove the backing object — the owning client does that on
// unregister.
func (s *Segment) Close() error {
	if err := unix.Munmap(s.data); err != nil {
		s.file.Close()
		return fmt.Errorf("shm: munmap %q: %w", s.name, err)
	}
	return s.file.Close()
}

// Remove deletes the named backing object from disk. Called by the
// client once the segment is no longer mapped by anyone (its own
// lifetime, and the server's, having both ended).
func Remove(name string) error {
	if err := os.Remove(path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("shm: remove %q: %w", name, err)
	}
	return nil
}
