// Package wire defines the bit-exact records exchanged between gtipc
// clients and the server: the registry record (REGISTER/UNREGISTER/...)
// and the per-client request/response records. Sizes are fixed so that
// client and server binaries built independently still agree on layout.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Command identifies a registry-channel operation.
type Command uint32

const (
	CmdRegister Command = iota
	CmdUnregister
	CmdClientClose
	CmdServerClose
)

func (c Command) String() string {
	switch c {
	case CmdRegister:
		return "REGISTER"
	case CmdUnregister:
		return "UNREGISTER"
	case CmdClientClose:
		return "CLIENT_CLOSE"
	case CmdServerClose:
		return "SERVER_CLOSE"
	default:
		return fmt.Sprintf("Command(%d)", uint32(c))
	}
}

// Service identifies which pure function a worker should run. The set is
// small and fixed, unlike the teacher's reflected "ServiceName.Method"
// strings — the wire format carries a stable small integer instead.
type Service uint32

const (
	ServiceAdd Service = iota
	ServiceMul
)

func (s Service) String() string {
	switch s {
	case ServiceAdd:
		return "ADD"
	case ServiceMul:
		return "MUL"
	default:
		return fmt.Sprintf("Service(%d)", uint32(s))
	}
}

// SentinelRequestID multiplexes resize control records onto the same
// per-client channels as data requests (Design Notes §9). -1 is reserved
// and must never be used as a real request ID.
const SentinelRequestID int32 = -1

// ServerCloseEntryIdx pairs with SentinelRequestID on a response record
// to distinguish a SERVER_CLOSE notice from a resize-complete
// acknowledgement — both are control acks on the same response channel,
// so they need a second tag beyond the shared sentinel request id. No
// real segment ever grows large enough to produce this index.
const ServerCloseEntryIdx uint32 = ^uint32(0)

// ResizeFailedEntryIdx pairs with SentinelRequestID to tell a client its
// resize control record was received but the server could not re-open
// the enlarged shared-memory object — otherwise the client would block
// on its resize acknowledgement forever. Distinct from both
// ServerCloseEntryIdx and the success ack's EntryIdx (0).
const ResizeFailedEntryIdx uint32 = ^uint32(0) - 1

const nameFieldLen = 64

// DefaultRegistryQueueName is the well-known registry channel name from
// spec.md §6 ("/gtipc_registry"), minus the leading slash — ipcconn
// derives the actual socket path from a bare name.
const DefaultRegistryQueueName = "gtipc_registry"

// RegistryRecord is sent on the well-known registry channel to
// attach/detach a client. Field order and widths are part of the wire
// contract — do not reorder.
type RegistryRecord struct {
	Cmd             Command
	Pid             int32
	ReqQueueName    string // zero-padded to nameFieldLen on the wire; a longer name fails MarshalBinary
	RespQueueName   string
	ShmName         string
	InitialCapacity uint32
}

// RegistryRecordSize is the exact wire size of a RegistryRecord.
const RegistryRecordSize = 4 + 4 + nameFieldLen + nameFieldLen + nameFieldLen + 4

// MarshalBinary encodes r into a RegistryRecordSize-byte buffer.
func (r RegistryRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RegistryRecordSize)
	off := 0
	binary.BigEndian.PutUint32(buf[off:], uint32(r.Cmd))
	off += 4
	binary.BigEndian.PutUint32(buf[off:], uint32(r.Pid))
	off += 4
	if err := putFixedString(buf[off:off+nameFieldLen], r.ReqQueueName); err != nil {
		return nil, fmt.Errorf("wire: req queue name: %w", err)
	}
	off += nameFieldLen
	if err := putFixedString(buf[off:off+nameFieldLen], r.RespQueueName); err != nil {
		return nil, fmt.Errorf("wire: resp queue name: %w", err)
	}
	off += nameFieldLen
	if err := putFixedString(buf[off:off+nameFieldLen], r.ShmName); err != nil {
		return nil, fmt.Errorf("wire: shm name: %w", err)
	}
	off += nameFieldLen
	binary.BigEndian.PutUint32(buf[off:], r.InitialCapacity)
	return buf, nil
}

// UnmarshalBinary decodes buf into r. buf must be exactly RegistryRecordSize bytes.
func (r *RegistryRecord) UnmarshalBinary(buf []byte) error {
	if len(buf) != RegistryRecordSize {
		return fmt.Errorf("wire: registry record: want %d bytes, got %d", RegistryRecordSize, len(buf))
	}
	off := 0
	r.Cmd = Command(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	r.Pid = int32(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	r.ReqQueueName = getFixedString(buf[off : off+nameFieldLen])
	off += nameFieldLen
	r.RespQueueName = getFixedString(buf[off : off+nameFieldLen])
	off += nameFieldLen
	r.ShmName = getFixedString(buf[off : off+nameFieldLen])
	off += nameFieldLen
	r.InitialCapacity = binary.BigEndian.Uint32(buf[off:])
	return nil
}

// RequestRecord is sent client→server on the per-client request channel.
// RequestID == SentinelRequestID marks a resize-control record; the
// argument (if any) lives in the shared-memory entry at EntryIdx, not
// here.
type RequestRecord struct {
	RequestID int32
	Service   Service
	EntryIdx  uint32
	Pid       int32
}

// RequestRecordSize is the exact wire size of a RequestRecord.
const RequestRecordSize = 4 + 4 + 4 + 4

func (r RequestRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RequestRecordSize)
	binary.BigEndian.PutUint32(buf[0:], uint32(r.RequestID))
	binary.BigEndian.PutUint32(buf[4:], uint32(r.Service))
	binary.BigEndian.PutUint32(buf[8:], r.EntryIdx)
	binary.BigEndian.PutUint32(buf[12:], uint32(r.Pid))
	return buf, nil
}

func (r *RequestRecord) UnmarshalBinary(buf []byte) error {
	if len(buf) != RequestRecordSize {
		return fmt.Errorf("wire: request record: want %d bytes, got %d", RequestRecordSize, len(buf))
	}
	r.RequestID = int32(binary.BigEndian.Uint32(buf[0:]))
	r.Service = Service(binary.BigEndian.Uint32(buf[4:]))
	r.EntryIdx = binary.BigEndian.Uint32(buf[8:])
	r.Pid = int32(binary.BigEndian.Uint32(buf[12:]))
	return nil
}

// ResponseRecord is sent server→client on the per-client response
// channel. RequestID == SentinelRequestID marks a control record, told
// apart by EntryIdx: a SERVER_CLOSE notice (ServerCloseEntryIdx), a
// failed resize (ResizeFailedEntryIdx), or otherwise a resize-complete
// acknowledgement.
type ResponseRecord struct {
	RequestID int32
	EntryIdx  uint32
}

// ResponseRecordSize is the exact wire size of a ResponseRecord.
const ResponseRecordSize = 4 + 4

func (r ResponseRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ResponseRecordSize)
	binary.BigEndian.PutUint32(buf[0:], uint32(r.RequestID))
	binary.BigEndian.PutUint32(buf[4:], r.EntryIdx)
	return buf, nil
}

func (r *ResponseRecord) UnmarshalBinary(buf []byte) error {
	if len(buf) != ResponseRecordSize {
		return fmt.Errorf("wire: response record: want %d bytes, got %d", ResponseRecordSize, len(buf))
	}
	r.RequestID = int32(binary.BigEndian.Uint32(buf[0:]))
	r.EntryIdx = binary.BigEndian.Uint32(buf[4:])
	return nil
}

func putFixedString(dst []byte, s string) error {
	if len(s) > len(dst) {
		return fmt.Errorf("string %q exceeds %d-byte wire field", s, len(dst))
	}
	copy(dst, s)
	for i := len(s); i < len(dst); i++ {
		dst[i] = 0
	}
	return nil
}

func getFixedString(src []byte) string {
	n := 0
	for n < len(src) && src[n] != 0 {
		n++
	}
	return string(src[:n])
}
