package wire

import (
	"encoding/binary"
	"errors"
)

// Field widths for the typed payloads, named after the build constants
// the reference header documents as N, M and P.
const (
	NameLen     = 64   // N: thread name / process name
	FingerprintLen = 17 // M: crash_id / vector_id / context_id
	CoreFileLen = 1024 // P: archive path
)

var ErrTruncated = errors.New("wire: payload shorter than its fixed encoding")

// NewPayload is the NEW message body: the handler's initial report of a
// crash in progress, before any fingerprint is known.
type NewPayload struct {
	PID        int64
	Sig        int64
	Tstamp     uint64
	ThreadName string
	ProcName   string
}

func (p NewPayload) Encode() []byte {
	buf := make([]byte, 8+8+8+NameLen+NameLen)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(p.PID))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(p.Sig))
	binary.LittleEndian.PutUint64(buf[16:24], p.Tstamp)
	putCString(buf[24:24+NameLen], p.ThreadName)
	putCString(buf[24+NameLen:24+2*NameLen], p.ProcName)
	return buf
}

func DecodeNewPayload(data []byte) (NewPayload, error) {
	want := 8 + 8 + 8 + NameLen + NameLen
	if len(data) < want {
		return NewPayload{}, ErrTruncated
	}
	return NewPayload{
		PID:        int64(binary.LittleEndian.Uint64(data[0:8])),
		Sig:        int64(binary.LittleEndian.Uint64(data[8:16])),
		Tstamp:     binary.LittleEndian.Uint64(data[16:24]),
		ThreadName: getCString(data[24 : 24+NameLen]),
		ProcName:   getCString(data[24+NameLen : 24+2*NameLen]),
	}, nil
}

// UpdatePayload carries the fingerprint once the core has been parsed.
type UpdatePayload struct {
	CrashID   string
	VectorID  string
	ContextID string
}

func (p UpdatePayload) Encode() []byte {
	buf := make([]byte, 3*FingerprintLen)
	putCString(buf[0:FingerprintLen], p.CrashID)
	putCString(buf[FingerprintLen:2*FingerprintLen], p.VectorID)
	putCString(buf[2*FingerprintLen:3*FingerprintLen], p.ContextID)
	return buf
}

func DecodeUpdatePayload(data []byte) (UpdatePayload, error) {
	want := 3 * FingerprintLen
	if len(data) < want {
		return UpdatePayload{}, ErrTruncated
	}
	return UpdatePayload{
		CrashID:   getCString(data[0:FingerprintLen]),
		VectorID:  getCString(data[FingerprintLen : 2*FingerprintLen]),
		ContextID: getCString(data[2*FingerprintLen : 3*FingerprintLen]),
	}, nil
}

// CompletePayload carries the finished archive's path. FAILED has no
// payload at all: an empty-data message of that type is itself the body.
type CompletePayload struct {
	CoreFile string
}

func (p CompletePayload) Encode() []byte {
	buf := make([]byte, CoreFileLen)
	putCString(buf, p.CoreFile)
	return buf
}

func DecodeCompletePayload(data []byte) (CompletePayload, error) {
	if len(data) < CoreFileLen {
		return CompletePayload{}, ErrTruncated
	}
	return CompletePayload{CoreFile: getCString(data[:CoreFileLen])}, nil
}

func putCString(dst []byte, s string) {
	n := len(s)
	if n > len(dst)-1 {
		n = len(dst) - 1
	}
	copy(dst, s[:n])
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func getCString(src []byte) string {
	n := 0
	for n < len(src) && src[n] != 0 {
		n++
	}
	return string(src[:n])
}
