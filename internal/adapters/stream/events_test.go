package stream

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mirko1075/in-one-button-be/internal/app"
	"github.com/mirko1075/in-one-button-be/internal/core"
	"github.com/mirko1075/in-one-button-be/internal/domain"
)

type coordCall struct {
	op     string
	sid    domain.SessionID
	connID string
	chunk  []byte
	ident  domain.Identity
}

type fakeCoord struct {
	mu       sync.Mutex
	calls    []coordCall
	startErr error
	audioErr error
	stopErr  error
	joinErr  error
}

func (f *fakeCoord) record(c coordCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeCoord) Start(ctx context.Context, conn core.SignalConnection, id domain.SessionID) error {
	f.record(coordCall{op: "start", sid: id, connID: conn.ID(), ident: conn.Identity()})
	return f.startErr
}

func (f *fakeCoord) Audio(id domain.SessionID, connID string, chunk []byte) error {
	f.record(coordCall{op: "audio", sid: id, connID: connID, chunk: chunk})
	return f.audioErr
}

func (f *fakeCoord) Stop(id domain.SessionID, identity domain.Identity) error {
	f.record(coordCall{op: "stop", sid: id, ident: identity})
	return f.stopErr
}

func (f *fakeCoord) Join(conn core.SignalConnection, id domain.SessionID) error {
	f.record(coordCall{op: "join", sid: id, connID: conn.ID()})
	return f.joinErr
}

func (f *fakeCoord) Leave(connID string, id domain.SessionID) {
	f.record(coordCall{op: "leave", sid: id, connID: connID})
}

func (f *fakeCoord) ConnectionClosed(connID string) {
	f.record(coordCall{op: "closed", connID: connID})
}

func (f *fakeCoord) last() (coordCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return coordCall{}, false
	}
	return f.calls[len(f.calls)-1], true
}

func newTestConn(identity domain.Identity) *wsConn {
	return &wsConn{
		id:       "conn-1",
		identity: identity,
		send:     make(chan core.Frame, 32),
	}
}

func drainEvents(t *testing.T, c *wsConn) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case f := <-c.send:
			var m map[string]any
			if err := json.Unmarshal(f, &m); err != nil {
				t.Fatalf("bad frame %q: %v", f, err)
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestDispatchStart(t *testing.T) {
	coord := &fakeCoord{}
	ctl := NewStreamWSController(coord, nil)
	c := newTestConn("alice")

	ctl.handleEvent(context.Background(), c, []byte(`{"type":"stream:start","sessionId":"m1"}`))

	call, ok := coord.last()
	if !ok || call.op != "start" || call.sid != "m1" {
		t.Fatalf("coordinator call = %+v", call)
	}
	if c.started != "m1" || c.joined != "m1" {
		t.Fatalf("bindings = started %q joined %q", c.started, c.joined)
	}
	events := drainEvents(t, c)
	if len(events) != 1 || events[0]["type"] != "stream:started" || events[0]["sessionId"] != "m1" {
		t.Fatalf("events = %v", events)
	}
}

func TestDispatchStartDuplicate(t *testing.T) {
	coord := &fakeCoord{startErr: app.ErrAlreadyActive}
	ctl := NewStreamWSController(coord, nil)
	c := newTestConn("alice")

	ctl.handleEvent(context.Background(), c, []byte(`{"type":"stream:start","sessionId":"m1"}`))

	if c.started != "" {
		t.Fatal("conn bound to session despite failed start")
	}
	events := drainEvents(t, c)
	if len(events) != 1 || events[0]["type"] != "stream:error" || events[0]["error"] != "already active" {
		t.Fatalf("events = %v", events)
	}
}

func TestDispatchStartUnauthorized(t *testing.T) {
	coord := &fakeCoord{startErr: app.ErrUnauthorized}
	ctl := NewStreamWSController(coord, nil)
	c := newTestConn("bob")

	ctl.handleEvent(context.Background(), c, []byte(`{"type":"stream:start","sessionId":"m2"}`))

	events := drainEvents(t, c)
	if len(events) != 1 || events[0]["error"] != "unauthorized" {
		t.Fatalf("events = %v", events)
	}
}

func TestDispatchStartRateLimited(t *testing.T) {
	coord := &fakeCoord{}
	ctl := NewStreamWSController(coord, NewStartRateLimiter(1, time.Minute))
	c := newTestConn("alice")

	ctl.handleEvent(context.Background(), c, []byte(`{"type":"stream:start","sessionId":"m1"}`))
	ctl.handleEvent(context.Background(), c, []byte(`{"type":"stream:start","sessionId":"m2"}`))

	events := drainEvents(t, c)
	if len(events) != 2 {
		t.Fatalf("events = %v", events)
	}
	if events[1]["type"] != "stream:error" || events[1]["error"] != "rate limited" {
		t.Fatalf("second event = %v", events[1])
	}
	coord.mu.Lock()
	defer coord.mu.Unlock()
	if len(coord.calls) != 1 {
		t.Fatalf("coordinator saw %d calls, want 1", len(coord.calls))
	}
}

func TestDispatchStartLeavesPreviousRoom(t *testing.T) {
	coord := &fakeCoord{}
	ctl := NewStreamWSController(coord, nil)
	c := newTestConn("bob")
	c.joined = "m1"

	ctl.handleEvent(context.Background(), c, []byte(`{"type":"stream:start","sessionId":"m2"}`))

	coord.mu.Lock()
	calls := append([]coordCall(nil), coord.calls...)
	coord.mu.Unlock()
	if len(calls) != 2 || calls[0].op != "start" || calls[0].sid != "m2" || calls[1].op != "leave" || calls[1].sid != "m1" {
		t.Fatalf("calls = %+v", calls)
	}
	if c.joined != "m2" || c.started != "m2" {
		t.Fatalf("bindings = started %q joined %q", c.started, c.joined)
	}
}

func TestDispatchStartDuringShutdown(t *testing.T) {
	coord := &fakeCoord{startErr: app.ErrShuttingDown}
	ctl := NewStreamWSController(coord, nil)
	c := newTestConn("alice")

	ctl.handleEvent(context.Background(), c, []byte(`{"type":"stream:start","sessionId":"m1"}`))

	events := drainEvents(t, c)
	if len(events) != 1 || events[0]["error"] != "shutting down" {
		t.Fatalf("events = %v", events)
	}
}

func TestDispatchAudioEnvelope(t *testing.T) {
	coord := &fakeCoord{}
	ctl := NewStreamWSController(coord, nil)
	c := newTestConn("alice")

	chunk := []byte{0xde, 0xad, 0xbe, 0xef}
	payload, _ := json.Marshal(map[string]string{
		"type":      "stream:audio",
		"sessionId": "m1",
		"bytes":     base64.StdEncoding.EncodeToString(chunk),
	})
	ctl.handleEvent(context.Background(), c, payload)

	call, ok := coord.last()
	if !ok || call.op != "audio" || call.sid != "m1" || !bytes.Equal(call.chunk, chunk) {
		t.Fatalf("coordinator call = %+v", call)
	}
}

func TestBinaryAudioRequiresStartedSession(t *testing.T) {
	coord := &fakeCoord{}
	ctl := NewStreamWSController(coord, nil)
	c := newTestConn("alice")

	ctl.handleBinaryAudio(c, []byte{1, 2, 3})

	events := drainEvents(t, c)
	if len(events) != 1 || events[0]["error"] != "no started session" {
		t.Fatalf("events = %v", events)
	}

	c.started = "m1"
	ctl.handleBinaryAudio(c, []byte{4, 5})
	call, _ := coord.last()
	if call.op != "audio" || call.sid != "m1" || !bytes.Equal(call.chunk, []byte{4, 5}) {
		t.Fatalf("coordinator call = %+v", call)
	}
}

func TestDispatchStopUnknownSession(t *testing.T) {
	coord := &fakeCoord{stopErr: app.ErrNoSession}
	ctl := NewStreamWSController(coord, nil)
	c := newTestConn("alice")

	ctl.handleEvent(context.Background(), c, []byte(`{"type":"stream:stop","sessionId":"gone"}`))

	events := drainEvents(t, c)
	if len(events) != 1 || events[0]["error"] != "unknown session" {
		t.Fatalf("events = %v", events)
	}
}

func TestDispatchJoinSwitchesRooms(t *testing.T) {
	coord := &fakeCoord{}
	ctl := NewStreamWSController(coord, nil)
	c := newTestConn("bob")
	c.joined = "m1"

	ctl.handleEvent(context.Background(), c, []byte(`{"type":"stream:join","sessionId":"m2"}`))

	coord.mu.Lock()
	calls := append([]coordCall(nil), coord.calls...)
	coord.mu.Unlock()
	if len(calls) != 2 || calls[0].op != "leave" || calls[0].sid != "m1" || calls[1].op != "join" || calls[1].sid != "m2" {
		t.Fatalf("calls = %+v", calls)
	}
	if c.joined != "m2" {
		t.Fatalf("joined = %q, want m2", c.joined)
	}
}

func TestDispatchUnknownEvent(t *testing.T) {
	coord := &fakeCoord{}
	ctl := NewStreamWSController(coord, nil)
	c := newTestConn("alice")

	ctl.handleEvent(context.Background(), c, []byte(`{"type":"nonsense"}`))

	events := drainEvents(t, c)
	if len(events) != 1 || events[0]["error"] != "unknown event" {
		t.Fatalf("events = %v", events)
	}
}

func TestDispatchBadJSON(t *testing.T) {
	coord := &fakeCoord{}
	ctl := NewStreamWSController(coord, nil)
	c := newTestConn("alice")

	ctl.handleEvent(context.Background(), c, []byte(`{not json`))

	events := drainEvents(t, c)
	if len(events) != 1 || events[0]["error"] != "bad payload" {
		t.Fatalf("events = %v", events)
	}
}
