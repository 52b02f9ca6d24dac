package shm

import (
	"testing"
)

func withTempBaseDir(t *testing.T) {
	t.Helper()
	old := BaseDir
	BaseDir = t.TempDir()
	t.Cleanup(func() { BaseDir = old })
}

func TestCreateOpenRoundTrip(t *testing.T) {
	withTempBaseDir(t)

	seg, err := Create("seg-a", 4)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer seg.Close()

	if got := seg.Capacity(); got != 4 {
		t.Errorf("Capacity() = %d, want 4", got)
	}

	e := seg.EntryAt(1)
	e.Reset(3, 4)
	e.Publish(7)

	reopened, err := Open("seg-a")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reopened.Close()

	got := reopened.EntryAt(1)
	if !got.IsDone() {
		t.Fatal("expected reopened entry to be done")
	}
	if got.Res != 7 {
		t.Errorf("Res = %d, want 7", got.Res)
	}
}

func TestGrowPreservesExistingEntries(t *testing.T) {
	withTempBaseDir(t)

	seg, err := Create("seg-grow", 2)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	seg.EntryAt(0).Reset(1, 1)
	seg.EntryAt(0).Publish(2)
	seg.Close()

	if err := Grow("seg-grow", 4); err != nil {
		t.Fatalf("Grow failed: %v", err)
	}

	grown, err := Open("seg-grow")
	if err != nil {
		t.Fatalf("Open after grow failed: %v", err)
	}
	defer grown.Close()

	if got := grown.Capacity(); got != 4 {
		t.Errorf("Capacity() after grow = %d, want 4", got)
	}
	if !grown.EntryAt(0).IsDone() || grown.EntryAt(0).Res != 2 {
		t.Error("grow did not preserve existing entry state")
	}
}

func TestGrowRejectsShrink(t *testing.T) {
	withTempBaseDir(t)

	seg, err := Create("seg-shrink", 4)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	seg.Close()

	if err := Grow("seg-shrink", 2); err == nil {
		t.Fatal("expected error growing to a smaller capacity, got nil")
	}
}

func TestEntryFailureMarker(t *testing.T) {
	withTempBaseDir(t)

	seg, err := Create("seg-fail", 1)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer seg.Close()

	e := seg.EntryAt(0)
	e.Reset(1, 2)
	e.PublishFailure()

	if !e.IsDone() {
		t.Fatal("expected entry to be marked done")
	}
	if !e.IsFailed() {
		t.Error("expected entry to be marked failed")
	}
}
