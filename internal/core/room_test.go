package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/mirko1075/in-one-button-be/internal/domain"
)

type testConn struct {
	id       string
	identity domain.Identity
	reject   bool

	mu     sync.Mutex
	frames []Frame
}

func (c *testConn) ID() string                { return c.id }
func (c *testConn) Identity() domain.Identity { return c.identity }
func (c *testConn) Close()                    {}

func (c *testConn) TrySend(f Frame) error {
	if c.reject {
		return errors.New("backpressure")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *testConn) received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestRoomBroadcast(t *testing.T) {
	room := NewRoomService("m1")
	a := &testConn{id: "a"}
	b := &testConn{id: "b"}
	room.AddMember(a)
	room.AddMember(b)

	res := room.Broadcast(Frame(`{"type":"x"}`))
	if res.SentTo != 2 || len(res.Dropped) != 0 {
		t.Fatalf("sent_to = %d, dropped = %d, want 2 and 0", res.SentTo, len(res.Dropped))
	}
	if a.received() != 1 || b.received() != 1 {
		t.Fatal("not all members received the frame")
	}
}

func TestRoomBroadcastReportsDropped(t *testing.T) {
	room := NewRoomService("m1")
	slow := &testConn{id: "slow", reject: true}
	ok := &testConn{id: "ok"}
	room.AddMember(slow)
	room.AddMember(ok)

	res := room.Broadcast(Frame(`{}`))
	if res.SentTo != 1 || len(res.Dropped) != 1 {
		t.Fatalf("sent_to = %d, dropped = %d, want 1 and 1", res.SentTo, len(res.Dropped))
	}
}

func TestRoomRemoveMember(t *testing.T) {
	room := NewRoomService("m1")
	a := &testConn{id: "a"}
	b := &testConn{id: "b"}
	room.AddMember(a)
	room.AddMember(b)
	room.RemoveMember("a")

	if room.MemberCount() != 1 {
		t.Fatalf("count = %d, want 1", room.MemberCount())
	}
	room.Broadcast(Frame(`{}`))
	if a.received() != 0 {
		t.Fatal("removed member still received a frame")
	}
	if b.received() != 1 {
		t.Fatal("remaining member did not receive the frame")
	}
}
