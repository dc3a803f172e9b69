package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mirko1075/in-one-button-be/internal/core"
	"github.com/mirko1075/in-one-button-be/internal/domain"
)

var (
	// ErrUnauthorized is returned when the caller's identity does not match
	// the session's declared owner.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoSession is returned for operations on a session id that is not
	// live. Harmless protocol misuse, never fatal to the connection.
	ErrNoSession = errors.New("no such session")

	// ErrShuttingDown is returned for starts arriving once the shutdown
	// drain has begun.
	ErrShuttingDown = errors.New("shutting down")
)

const defaultDrainWindow = 3 * time.Second

// Coordinator owns every live session's state machine. One run loop goroutine
// per session serializes audio forwarding, recognizer results, buffer writes
// and broadcasts; sessions never block each other.
type Coordinator struct {
	Registry   *Registry
	Rooms      core.RoomManager
	Recognizer core.Recognizer
	Owners     core.OwnershipLookup
	Store      core.TranscriptStore

	StreamConfig core.StreamConfig
	// DrainWindow bounds how long teardown waits for in-flight recognizer
	// results after closing the upstream stream.
	DrainWindow time.Duration

	// mu guards draining against the wg.Add in launch; once Shutdown has
	// flipped it no new run loop may spawn.
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
}

// Start validates ownership, claims the session id, opens the upstream
// recognition stream and launches the session run loop. The caller announces
// stream:started on a nil return.
func (c *Coordinator) Start(ctx context.Context, conn core.SignalConnection, id domain.SessionID) error {
	c.mu.Lock()
	draining := c.draining
	c.mu.Unlock()
	if draining {
		return ErrShuttingDown
	}

	owner, err := c.Owners.OwnerOf(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrOwnerNotFound) {
			return ErrUnauthorized
		}
		return err
	}
	if owner != conn.Identity() {
		return ErrUnauthorized
	}

	s, err := c.Registry.Create(id, owner, conn.ID())
	if err != nil {
		return err
	}
	s.setState(domain.StateStarting)

	stream, err := c.Recognizer.Open(ctx, id, c.StreamConfig)
	if err != nil {
		c.Registry.Remove(id)
		log.Error().Err(err).Str("module", "app.coordinator").Str("session", string(id)).Msg("upstream open failed")
		return err
	}
	s.stream = stream

	c.Rooms.GetOrCreate(id).AddMember(conn)
	if !c.launch(s) {
		// Shutdown began between the claim and the launch; undo it.
		_ = stream.Close()
		c.Rooms.Drop(id)
		c.Registry.Remove(id)
		return ErrShuttingDown
	}
	s.setState(domain.StateActive)
	log.Info().Str("module", "app.coordinator").Str("session", string(id)).Str("owner", string(owner)).Msg("session active")
	return nil
}

// launch spawns the run loop unless the shutdown drain has begun. The
// draining check and wg.Add share a critical section so no run loop can
// slip past a Shutdown already waiting on the group.
func (c *Coordinator) launch(s *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draining {
		return false
	}
	c.wg.Add(1)
	go c.run(s)
	return true
}

// Audio forwards a chunk into the session mailbox. Only the owning connection
// may stream audio. Chunks racing a stop are dropped silently.
func (c *Coordinator) Audio(id domain.SessionID, connID string, chunk []byte) error {
	s, ok := c.Registry.Get(id)
	if !ok {
		return ErrNoSession
	}
	if s.ownerConn != connID {
		return ErrUnauthorized
	}
	if st := s.State(); st != domain.StateActive {
		if st == domain.StateStopping || st == domain.StateClosed {
			return nil
		}
		return ErrNoSession
	}
	s.enqueueAudio(chunk)
	return nil
}

// Stop requests teardown. Idempotent: a second stop on the same live session
// is absorbed, and a stop on an already-closed id reports ErrNoSession.
func (c *Coordinator) Stop(id domain.SessionID, identity domain.Identity) error {
	s, ok := c.Registry.Get(id)
	if !ok {
		return ErrNoSession
	}
	if s.owner != identity {
		return ErrUnauthorized
	}
	s.requestStop()
	return nil
}

// Join adds a listener connection to a live session's room. Listeners receive
// only fragments emitted after they join.
func (c *Coordinator) Join(conn core.SignalConnection, id domain.SessionID) error {
	if _, ok := c.Registry.Get(id); !ok {
		return ErrNoSession
	}
	c.Rooms.GetOrCreate(id).AddMember(conn)
	return nil
}

// Leave removes a listener from a session's room; no effect on the session.
func (c *Coordinator) Leave(connID string, id domain.SessionID) {
	if room, ok := c.Rooms.Get(id); ok {
		room.RemoveMember(connID)
	}
}

// ConnectionClosed handles a transport disconnect. The owning connection's
// disconnect is an implicit stop; a listener's disconnect only leaves rooms.
func (c *Coordinator) ConnectionClosed(connID string) {
	for _, s := range c.Registry.Snapshot() {
		if s.ownerConn == connID {
			log.Info().Str("module", "app.coordinator").Str("session", string(s.id)).Str("conn", connID).Msg("owner disconnected, stopping session")
			s.requestStop()
		}
	}
	for _, info := range c.Rooms.List() {
		if room, ok := c.Rooms.Get(info.SessionID); ok {
			room.RemoveMember(connID)
		}
	}
}

// ActiveSessions reports how many sessions are currently registered.
func (c *Coordinator) ActiveSessions() int {
	return c.Registry.Count()
}

// Shutdown stops every live session and waits for their run loops to finish
// teardown, bounded by ctx.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	c.draining = true
	c.mu.Unlock()
	for _, s := range c.Registry.Snapshot() {
		s.requestStop()
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Str("module", "app.coordinator").Msg("all sessions drained")
	case <-ctx.Done():
		log.Warn().Str("module", "app.coordinator").Int("remaining", c.Registry.Count()).Msg("shutdown window elapsed with sessions still draining")
	}
}

func (c *Coordinator) run(s *session) {
	defer c.wg.Done()

	var cause error
	results := s.stream.Results()
loop:
	for {
		select {
		case <-s.stopc:
			break loop
		case chunk := <-s.audio:
			if err := s.stream.Send(chunk); err != nil {
				cause = err
				break loop
			}
		case frag, ok := <-results:
			if !ok {
				cause = s.stream.Err()
				break loop
			}
			c.deliver(s, frag)
		}
	}
	c.teardown(s, cause)
}

func (c *Coordinator) deliver(s *session, frag domain.TranscriptFragment) {
	if frag.IsFinal {
		s.buf.Append(frag)
	}
	c.Rooms.Publish(s.id, TranscriptionUpdate{
		Type:       EventTranscriptionUpdate,
		SessionID:  s.id,
		Text:       frag.Text,
		IsFinal:    frag.IsFinal,
		Confidence: frag.Confidence,
		Words:      frag.Words,
	})
}

// teardown runs the Stopping -> Closed transition: close upstream, drain
// in-flight fragments within the drain window, persist best-effort, notify
// the room and release the id.
func (c *Coordinator) teardown(s *session, cause error) {
	s.setState(domain.StateStopping)
	_ = s.stream.Close()

	drain := c.DrainWindow
	if drain <= 0 {
		drain = defaultDrainWindow
	}
	timer := time.NewTimer(drain)
	defer timer.Stop()
	results := s.stream.Results()
drain:
	for {
		select {
		case frag, ok := <-results:
			if !ok {
				if cause == nil {
					cause = s.stream.Err()
				}
				break drain
			}
			c.deliver(s, frag)
		case <-timer.C:
			log.Warn().Str("module", "app.coordinator").Str("session", string(s.id)).Msg("drain window elapsed")
			break drain
		}
	}

	transcript := s.buf.Transcript()
	if c.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.Store.Persist(ctx, s.id, transcript); err != nil {
			// Best effort: the transcript is lost but teardown completes.
			log.Error().Err(err).Str("module", "app.coordinator").Str("session", string(s.id)).Msg("transcript persistence failed")
		}
		cancel()
	}

	if cause != nil {
		log.Error().Err(cause).Str("module", "app.coordinator").Str("session", string(s.id)).Msg("session ended on error")
		c.Rooms.Publish(s.id, StreamError{Type: EventStreamError, SessionID: s.id, Error: publicReason(cause)})
	} else {
		c.Rooms.Publish(s.id, StreamStopped{Type: EventStreamStopped, SessionID: s.id, Transcript: transcript})
	}

	c.Rooms.Drop(s.id)
	c.Registry.Remove(s.id)
	s.setState(domain.StateClosed)
	close(s.done)
	log.Info().Str("module", "app.coordinator").Str("session", string(s.id)).Int("final_fragments", s.buf.Len()).Msg("session closed")
}

// publicReason maps internal failures to the stable texts clients see.
func publicReason(err error) string {
	var up *core.UpstreamError
	switch {
	case errors.As(err, &up):
		return "recognition provider error"
	case errors.Is(err, core.ErrStreamClosed):
		return "recognition stream closed"
	default:
		return "internal error"
	}
}
