package registry

import "testing"

func TestRegisterFindUnregister(t *testing.T) {
	r := New()
	c := &ClientRecord{Pid: 42}

	if err := r.Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, ok := r.Find(42)
	if !ok {
		t.Fatal("Find did not locate registered client")
	}
	if got != c {
		t.Fatal("Find returned a different record than was registered")
	}

	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}

	removed, ok := r.Unregister(42)
	if !ok || removed != c {
		t.Fatal("Unregister did not return the registered record")
	}
	if _, ok := r.Find(42); ok {
		t.Fatal("client still found after Unregister")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d after unregister, want 0", r.Len())
	}
}

func TestRegisterDuplicatePidFails(t *testing.T) {
	r := New()
	if err := r.Register(&ClientRecord{Pid: 7}); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := r.Register(&ClientRecord{Pid: 7}); err == nil {
		t.Fatal("expected an error registering a duplicate pid")
	}
}

func TestUnregisterUnknownPid(t *testing.T) {
	r := New()
	if _, ok := r.Unregister(99); ok {
		t.Fatal("Unregister on an unknown pid reported success")
	}
}

func TestListSnapshot(t *testing.T) {
	r := New()
	r.Register(&ClientRecord{Pid: 1})
	r.Register(&ClientRecord{Pid: 2})
	r.Register(&ClientRecord{Pid: 3})

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("List returned %d records, want 3", len(list))
	}

	seen := make(map[int32]bool)
	for _, c := range list {
		seen[c.Pid] = true
	}
	for _, pid := range []int32{1, 2, 3} {
		if !seen[pid] {
			t.Errorf("List missing pid %d", pid)
		}
	}
}
