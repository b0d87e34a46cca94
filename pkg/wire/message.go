// Package wire implements the framed message protocol spoken on the
// handler-to-manager UNIX socket: a fixed-size header followed by a
// type-specific payload, both written with a single read/write so that
// short I/O is treated as a hard error rather than retried.
package wire

import (
	"encoding/binary"
	"errors"
	"io"
)

// HashMagic is the fixed sentinel every header must carry; a mismatch
// means the frame is not one of ours and the connection is closed.
const HashMagic uint16 = 0xFCDF

// VersionLen is the build-constant width of the NUL-terminated version
// string embedded in every header.
const VersionLen = 64

const headerSize = 2 + VersionLen + 2 + 2 + 4

type Type uint16

const (
	TypeNew Type = iota + 1
	TypeUpdate
	TypeComplete
	TypeFailed
)

func (t Type) String() string {
	switch t {
	case TypeNew:
		return "NEW"
	case TypeUpdate:
		return "UPDATE"
	case TypeComplete:
		return "COMPLETE"
	case TypeFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrBadMagic  = errors.New("wire: header hash_magic mismatch")
	ErrShortIO   = errors.New("wire: short read or write")
	ErrOversized = errors.New("wire: data_size exceeds the accepted frame limit")
)

// MaxPayload bounds the data_size a peer may claim, independent of the
// specific payload's own fixed-width encoding, so a corrupt or hostile
// header can never drive an unbounded allocation.
const MaxPayload = 64 << 10

// Header is the literal, in-order field sequence written to the wire;
// no field is ever reordered or padded beyond what's declared here.
type Header struct {
	HashMagic uint16
	Version   [VersionLen]byte
	Type      Type
	Session   uint16
	DataSize  uint32
}

// SetVersion copies s into Version, truncating and NUL-terminating it to
// fit VersionLen.
func (h *Header) SetVersion(s string) {
	n := len(s)
	if n > VersionLen-1 {
		n = VersionLen - 1
	}
	h.Version = [VersionLen]byte{}
	copy(h.Version[:n], s[:n])
}

func (h Header) VersionString() string {
	n := 0
	for n < VersionLen && h.Version[n] != 0 {
		n++
	}
	return string(h.Version[:n])
}

func (h Header) marshal() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint16(buf[0:2], h.HashMagic)
	copy(buf[2:2+VersionLen], h.Version[:])
	off := 2 + VersionLen
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(h.Type))
	binary.LittleEndian.PutUint16(buf[off+2:off+4], h.Session)
	binary.LittleEndian.PutUint32(buf[off+4:off+8], h.DataSize)
	return buf
}

func unmarshalHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < headerSize {
		return h, ErrShortIO
	}
	h.HashMagic = binary.LittleEndian.Uint16(buf[0:2])
	copy(h.Version[:], buf[2:2+VersionLen])
	off := 2 + VersionLen
	h.Type = Type(binary.LittleEndian.Uint16(buf[off : off+2]))
	h.Session = binary.LittleEndian.Uint16(buf[off+2 : off+4])
	h.DataSize = binary.LittleEndian.Uint32(buf[off+4 : off+8])
	return h, nil
}

// Message pairs a header with its raw, already-encoded payload.
type Message struct {
	Header Header
	Data   []byte
}

// New builds a message of the given type and session with no payload set.
func New(t Type, session uint16, version string) *Message {
	m := &Message{Header: Header{HashMagic: HashMagic, Type: t, Session: session}}
	m.Header.SetVersion(version)
	return m
}

// SetData attaches the encoded payload and records its length.
func (m *Message) SetData(data []byte) {
	m.Data = data
	m.Header.DataSize = uint32(len(data))
}

func (m *Message) IsValid() bool {
	return m != nil && m.Header.HashMagic == HashMagic
}

// Write performs exactly one write of the header and one write of the
// payload, mirroring the reference implementation's single-syscall
// framing: a short write is an error, never retried.
func Write(w io.Writer, m *Message) error {
	if !m.IsValid() {
		return ErrBadMagic
	}
	hdr := m.Header.marshal()
	n, err := w.Write(hdr)
	if err != nil {
		return err
	}
	if n != len(hdr) {
		return ErrShortIO
	}
	if len(m.Data) == 0 {
		return nil
	}
	n, err = w.Write(m.Data)
	if err != nil {
		return err
	}
	if n != len(m.Data) {
		return ErrShortIO
	}
	return nil
}

// Read performs exactly one read for the header and, if data_size is
// nonzero, exactly one read for the payload. Either read returning fewer
// bytes than expected is a hard failure, matching the peer's own framing
// discipline rather than looping to paper over a partial read.
func Read(r io.Reader) (*Message, error) {
	hdrBuf := make([]byte, headerSize)
	n, err := r.Read(hdrBuf)
	if err != nil {
		return nil, err
	}
	if n != headerSize {
		return nil, ErrShortIO
	}
	hdr, err := unmarshalHeader(hdrBuf)
	if err != nil {
		return nil, err
	}
	m := &Message{Header: hdr}
	if !m.IsValid() {
		return nil, ErrBadMagic
	}
	if hdr.DataSize == 0 {
		return m, nil
	}
	if hdr.DataSize > MaxPayload {
		return nil, ErrOversized
	}
	data := make([]byte, hdr.DataSize)
	n, err = r.Read(data)
	if err != nil {
		return nil, err
	}
	if uint32(n) != hdr.DataSize {
		return nil, ErrShortIO
	}
	m.Data = data
	return m, nil
}
