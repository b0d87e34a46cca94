package epilog

import (
	"bytes"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	m := NewMessage(4242, 11)

	var buf bytes.Buffer
	if err := Write(&buf, m); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Header.Hash != StartHash {
		t.Fatalf("hash = %#x, want %#x", got.Header.Hash, StartHash)
	}
	if got.Header.Version != ProtocolVersion {
		t.Fatalf("version = %#x, want %#x", got.Header.Version, ProtocolVersion)
	}
	if got.Data.ProcessPID != 4242 || got.Data.ProcessExitSignal != 11 {
		t.Fatalf("data = %+v, want pid=4242 sig=11", got.Data)
	}
}

func TestReadRejectsBadHash(t *testing.T) {
	m := NewMessage(1, 6)
	var buf bytes.Buffer
	if err := Write(&buf, m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	corrupted := buf.Bytes()
	corrupted[0] ^= 0xff

	if _, err := Read(bytes.NewReader(corrupted)); err != ErrBadHeader {
		t.Fatalf("err = %v, want ErrBadHeader", err)
	}
}

func TestReadRejectsTruncatedHeader(t *testing.T) {
	if _, err := Read(bytes.NewReader([]byte{1, 2, 3})); err == nil {
		t.Fatalf("expected error on a truncated header")
	}
}
