package stream

import (
	"context"
	"testing"
	"time"

	"github.com/mirko1075/in-one-button-be/internal/core"
)

// The read pump sits in ReadMessage and only notices a server-side cancel on
// the next client frame, so the write pump must close the socket to wake it.
func TestWritePumpClosesConnOnCtxDone(t *testing.T) {
	ctl := NewStreamWSController(&fakeCoord{}, nil)
	c := &wsConn{id: "c1", identity: "alice", send: make(chan core.Frame, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ctl.writePump(ctx, c)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writePump did not exit on ctx cancel")
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if !closed {
		t.Fatal("connection not closed when write pump exited")
	}
}
