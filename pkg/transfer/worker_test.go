package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeShipper struct {
	mu       sync.Mutex
	shipped  []string
	failPath string
}

func (f *fakeShipper) Ship(ctx context.Context, path string) error {
	f.mu.Lock()
	f.shipped = append(f.shipped, path)
	f.mu.Unlock()
	if path == f.failPath {
		return errors.New("boom")
	}
	return nil
}

func TestWorkerShipsAndPostsCompletion(t *testing.T) {
	shipper := &fakeShipper{}
	w := NewWorker(shipper, 4)
	w.Start(context.Background())
	defer w.Stop()

	require.True(t, w.Ready())
	require.True(t, w.Enqueue(Task{Path: "/tmp/a.tar.gz", Handle: 1}))

	select {
	case c := <-w.Completions():
		require.NoError(t, c.Err)
		require.Equal(t, "/tmp/a.tar.gz", c.Task.Path)
		require.Equal(t, uint64(1), c.Task.Handle)
	case <-time.After(2 * time.Second):
		t.Fatal("completion never posted")
	}
}

func TestWorkerReportsShipperError(t *testing.T) {
	shipper := &fakeShipper{failPath: "/tmp/bad.tar.gz"}
	w := NewWorker(shipper, 4)
	w.Start(context.Background())
	defer w.Stop()

	require.True(t, w.Enqueue(Task{Path: "/tmp/bad.tar.gz", Handle: 2}))

	select {
	case c := <-w.Completions():
		require.Error(t, c.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("completion never posted")
	}
}

func TestWorkerSerializesTasks(t *testing.T) {
	shipper := &fakeShipper{}
	w := NewWorker(shipper, 4)
	w.Start(context.Background())
	defer w.Stop()

	for i := 0; i < 3; i++ {
		require.True(t, w.Enqueue(Task{Path: "p", Handle: uint64(i)}))
	}
	seen := 0
	for seen < 3 {
		select {
		case <-w.Completions():
			seen++
		case <-time.After(2 * time.Second):
			t.Fatalf("only saw %d of 3 completions", seen)
		}
	}
}
