// Package epilog implements the crash-epilog protocol: a tiny client
// library that instrumented processes link in to report a crash signal
// and an in-process backtrace before the kernel's own core-dump handler
// runs, and the manager-side server that records what it received.
package epilog

import (
	"encoding/binary"
	"errors"
	"io"
)

// StartHash and ProtocolVersion are the fixed sentinels every header
// carries; either mismatching means the frame is rejected.
const (
	StartHash       uint16 = 0xFCDF
	ProtocolVersion uint32 = 0x0001
)

type Type uint16

const (
	TypeInvalid Type = iota
	TypeNew
)

var (
	ErrBadHeader    = errors.New("epilog: hash or version mismatch")
	ErrShortIO      = errors.New("epilog: short read or write")
	ErrUnknownType  = errors.New("epilog: unsupported message type")
)

const headerSize = 2 + 4 + 2 + 2 + 2 + 2 + 2

// Header mirrors the wire layout field-for-field: hash, protocol
// version, type, then four argument-size slots the NEW payload uses the
// first two of.
type Header struct {
	Hash     uint16
	Version  uint32
	Type     Type
	ArgSize1 uint16
	ArgSize2 uint16
	ArgSize3 uint16
	ArgSize4 uint16
}

func (h Header) marshal() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint16(buf[0:2], h.Hash)
	binary.LittleEndian.PutUint32(buf[2:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.LittleEndian.PutUint16(buf[8:10], h.ArgSize1)
	binary.LittleEndian.PutUint16(buf[10:12], h.ArgSize2)
	binary.LittleEndian.PutUint16(buf[12:14], h.ArgSize3)
	binary.LittleEndian.PutUint16(buf[14:16], h.ArgSize4)
	return buf
}

func unmarshalHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < headerSize {
		return h, ErrShortIO
	}
	h.Hash = binary.LittleEndian.Uint16(buf[0:2])
	h.Version = binary.LittleEndian.Uint32(buf[2:6])
	h.Type = Type(binary.LittleEndian.Uint16(buf[6:8]))
	h.ArgSize1 = binary.LittleEndian.Uint16(buf[8:10])
	h.ArgSize2 = binary.LittleEndian.Uint16(buf[10:12])
	h.ArgSize3 = binary.LittleEndian.Uint16(buf[12:14])
	h.ArgSize4 = binary.LittleEndian.Uint16(buf[14:16])
	return h, nil
}

// NewData is the NEW message's payload: the pid and signal of the
// process that is about to crash.
type NewData struct {
	ProcessPID       int64
	ProcessExitSignal int64
}

func (d NewData) encode() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(d.ProcessPID))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(d.ProcessExitSignal))
	return buf
}

func decodeNewData(buf []byte) (NewData, error) {
	if len(buf) < 16 {
		return NewData{}, ErrShortIO
	}
	return NewData{
		ProcessPID:        int64(binary.LittleEndian.Uint64(buf[0:8])),
		ProcessExitSignal: int64(binary.LittleEndian.Uint64(buf[8:16])),
	}, nil
}

// Message is a decoded NEW frame; the server never sees any other type.
type Message struct {
	Header Header
	Data   NewData
}

// NewMessage builds a NEW frame ready to write, with the argument sizes
// the reference writer fills in just before sending.
func NewMessage(pid, sig int64) *Message {
	return &Message{
		Header: Header{Hash: StartHash, Version: ProtocolVersion, Type: TypeNew, ArgSize1: 8, ArgSize2: 8},
		Data:   NewData{ProcessPID: pid, ProcessExitSignal: sig},
	}
}

// Write sends the header then the NEW payload as two separate writes,
// matching the two readv/writev calls of the reference implementation.
func Write(w io.Writer, m *Message) error {
	hdr := m.Header.marshal()
	n, err := w.Write(hdr)
	if err != nil {
		return err
	}
	if n != len(hdr) {
		return ErrShortIO
	}
	payload := m.Data.encode()
	n, err = w.Write(payload)
	if err != nil {
		return err
	}
	if n != len(payload) {
		return ErrShortIO
	}
	return nil
}

// Read reads the fixed header, validates it, then reads the NEW
// payload. Any other declared type is rejected: the protocol has no
// other message shape today.
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
	if hdr.Hash != StartHash || hdr.Version != ProtocolVersion {
		return nil, ErrBadHeader
	}
	if hdr.Type != TypeNew {
		return nil, ErrUnknownType
	}

	payload := make([]byte, 16)
	n, err = r.Read(payload)
	if err != nil {
		return nil, err
	}
	if n != 16 {
		return nil, ErrShortIO
	}
	data, err := decodeNewData(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Header: hdr, Data: data}, nil
}
