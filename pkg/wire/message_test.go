package wire

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	m := New(TypeNew, 0x1234, "1.0.0")
	p := NewPayload{PID: 42, Sig: 11, Tstamp: 1690000000, ThreadName: "main", ProcName: "crashy"}
	m.SetData(p.Encode())

	var buf bytes.Buffer
	if err := Write(&buf, m); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Header.HashMagic != HashMagic {
		t.Fatalf("hash_magic = %#x, want %#x", got.Header.HashMagic, HashMagic)
	}
	if got.Header.Type != TypeNew {
		t.Fatalf("type = %v, want NEW", got.Header.Type)
	}
	if got.Header.Session != 0x1234 {
		t.Fatalf("session = %#x, want 0x1234", got.Header.Session)
	}
	if got.Header.VersionString() != "1.0.0" {
		t.Fatalf("version = %q, want 1.0.0", got.Header.VersionString())
	}

	dp, err := DecodeNewPayload(got.Data)
	if err != nil {
		t.Fatalf("DecodeNewPayload: %v", err)
	}
	if dp != p {
		t.Fatalf("payload = %+v, want %+v", dp, p)
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	m := New(TypeFailed, 1, "1.0.0")
	var buf bytes.Buffer
	if err := Write(&buf, m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	corrupted := buf.Bytes()
	corrupted[0] ^= 0xff

	if _, err := Read(bytes.NewReader(corrupted)); err != ErrBadMagic {
		t.Fatalf("err = %v, want ErrBadMagic", err)
	}
}

func TestReadRejectsShortHeader(t *testing.T) {
	if _, err := Read(bytes.NewReader([]byte{1, 2, 3})); err == nil {
		t.Fatalf("expected error reading a truncated header")
	}
}

func TestFailedMessageCarriesNoPayload(t *testing.T) {
	m := New(TypeFailed, 7, "1.0.0")
	var buf bytes.Buffer
	if err := Write(&buf, m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.Data) != 0 {
		t.Fatalf("FAILED message carried %d bytes of payload, want 0", len(got.Data))
	}
}

func TestUpdateAndCompletePayloadRoundTrip(t *testing.T) {
	up := UpdatePayload{CrashID: "DEADBEEFDEADBEEF", VectorID: "CAFEBABECAFEBABE", ContextID: "host"}
	gotUp, err := DecodeUpdatePayload(up.Encode())
	if err != nil {
		t.Fatalf("DecodeUpdatePayload: %v", err)
	}
	if gotUp != up {
		t.Fatalf("update payload = %+v, want %+v", gotUp, up)
	}

	cp := CompletePayload{CoreFile: "/var/crash/crashy.123.456.cdh.tar.gz"}
	gotCp, err := DecodeCompletePayload(cp.Encode())
	if err != nil {
		t.Fatalf("DecodeCompletePayload: %v", err)
	}
	if gotCp != cp {
		t.Fatalf("complete payload = %+v, want %+v", gotCp, cp)
	}
}
