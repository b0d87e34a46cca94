package epilog

import (
	"bytes"
	"net"
	"testing"
	"time"
)

type fakeSink struct {
	recs []Record
}

func (f *fakeSink) AppendEpilog(rec Record) error {
	f.recs = append(f.recs, rec)
	return nil
}

func TestHandleConnAppendsRecord(t *testing.T) {
	server, client := net.Pipe()
	sink := &fakeSink{}

	done := make(chan struct{})
	go func() {
		HandleConn(server, sink)
		close(done)
	}()

	msg := NewMessage(99, 6)
	if err := Write(client, msg); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := client.Write([]byte("[backtrace]\nframe0\nframe1\n")); err != nil {
		t.Fatalf("writing body: %v", err)
	}
	client.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleConn did not return")
	}

	if len(sink.recs) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(sink.recs))
	}
	rec := sink.recs[0]
	if rec.PID != 99 || rec.Signal != 6 {
		t.Fatalf("record = %+v, want pid=99 sig=6", rec)
	}
	if !bytes.Contains(rec.Body, []byte("frame0")) || !bytes.Contains(rec.Body, []byte("frame1")) {
		t.Fatalf("body = %q, missing expected frames", rec.Body)
	}
}

func TestHandleConnDiscardsMalformedHeader(t *testing.T) {
	server, client := net.Pipe()
	sink := &fakeSink{}

	done := make(chan struct{})
	go func() {
		HandleConn(server, sink)
		close(done)
	}()

	client.Write([]byte("not-a-valid-header-at-all"))
	client.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleConn did not return")
	}

	if len(sink.recs) != 0 {
		t.Fatalf("recorded %d entries, want 0 for a malformed client", len(sink.recs))
	}
}
