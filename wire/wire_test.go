package wire

import "testing"

func TestRegistryRecordRoundTrip(t *testing.T) {
	rec := RegistryRecord{
		Cmd:             CmdRegister,
		Pid:             4242,
		ReqQueueName:    "/gtipc-req-4242",
		RespQueueName:   "/gtipc-resp-4242",
		ShmName:         "/gtipc-shm-4242",
		InitialCapacity: 256,
	}

	buf, err := rec.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	if len(buf) != RegistryRecordSize {
		t.Fatalf("wire size mismatch: got %d, want %d", len(buf), RegistryRecordSize)
	}

	var got RegistryRecord
	if err := got.UnmarshalBinary(buf); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if got != rec {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, rec)
	}
}

func TestRegistryRecordNameTooLong(t *testing.T) {
	rec := RegistryRecord{
		ReqQueueName: make65ByteString(),
	}
	if _, err := rec.MarshalBinary(); err == nil {
		t.Fatal("expected error for oversized queue name, got nil")
	}
}

func make65ByteString() string {
	b := make([]byte, 65)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}

func TestRequestRecordRoundTrip(t *testing.T) {
	cases := []RequestRecord{
		{RequestID: 1, Service: ServiceAdd, EntryIdx: 0, Pid: 100},
		{RequestID: SentinelRequestID, Service: ServiceMul, EntryIdx: 7, Pid: 100},
	}
	for _, rec := range cases {
		buf, err := rec.MarshalBinary()
		if err != nil {
			t.Fatalf("MarshalBinary failed: %v", err)
		}
		if len(buf) != RequestRecordSize {
			t.Fatalf("wire size mismatch: got %d, want %d", len(buf), RequestRecordSize)
		}
		var got RequestRecord
		if err := got.UnmarshalBinary(buf); err != nil {
			t.Fatalf("UnmarshalBinary failed: %v", err)
		}
		if got != rec {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, rec)
		}
	}
}

func TestResponseRecordRoundTrip(t *testing.T) {
	rec := ResponseRecord{RequestID: SentinelRequestID, EntryIdx: 3}
	buf, err := rec.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	var got ResponseRecord
	if err := got.UnmarshalBinary(buf); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if got != rec {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, rec)
	}
}

func TestUnmarshalBinaryWrongSize(t *testing.T) {
	var rec RequestRecord
	if err := rec.UnmarshalBinary([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for undersized buffer, got nil")
	}
}

func TestCommandString(t *testing.T) {
	if got := CmdRegister.String(); got != "REGISTER" {
		t.Errorf("Command.String() = %q, want REGISTER", got)
	}
	if got := Command(99).String(); got == "" {
		t.Errorf("Command.String() for unknown command returned empty string")
	}
}
