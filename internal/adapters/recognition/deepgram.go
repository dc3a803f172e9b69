package recognition

import (
	"context"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/listen"
	"github.com/rs/zerolog/log"

	"github.com/mirko1075/in-one-button-be/internal/core"
	"github.com/mirko1075/in-one-button-be/internal/domain"
)

const (
	openTimeout = 10 * time.Second
	// closeGrace bounds how long we wait for the provider's close event
	// before forcing the result channel shut.
	closeGrace = 2 * time.Second
)

// Deepgram opens live transcription streams against the Deepgram websocket
// API, one per session.
type Deepgram struct {
	apiKey string
}

func NewDeepgram(apiKey string) *Deepgram {
	return &Deepgram{apiKey: apiKey}
}

func (d *Deepgram) Open(ctx context.Context, id domain.SessionID, cfg core.StreamConfig) (core.RecognitionStream, error) {
	cOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          cfg.Model,
		Language:       cfg.Language,
		Punctuate:      cfg.Punctuate,
		Encoding:       cfg.Encoding,
		Channels:       cfg.Channels,
		SampleRate:     cfg.SampleRate,
		SmartFormat:    true,
		InterimResults: cfg.InterimResults,
		Diarize:        cfg.Diarize,
	}

	s := newStream(id)
	client, err := listen.NewWebSocket(ctx, d.apiKey, cOptions, tOptions, &handler{s: s})
	if err != nil {
		return nil, &core.UpstreamError{Kind: core.UpstreamUnavailable, Detail: err.Error()}
	}
	s.client = client

	go client.Connect()

	select {
	case <-s.opened:
	case <-time.After(openTimeout):
		_ = s.Close()
		return nil, &core.UpstreamError{Kind: core.UpstreamUnavailable, Detail: "open timed out"}
	case <-ctx.Done():
		_ = s.Close()
		return nil, ctx.Err()
	}
	return s, nil
}

// stream is one live upstream connection. Callbacks arrive on the SDK's read
// goroutine; the forwarder goroutine is the only sender on (and closer of)
// the results channel.
type stream struct {
	id     domain.SessionID
	client *listen.WSCallback

	results chan domain.TranscriptFragment
	msgs    chan domain.TranscriptFragment
	audio   chan []byte

	opened    chan struct{}
	quit      chan struct{}
	finishedc chan struct{}

	openOnce   sync.Once
	finishOnce sync.Once
	closeOnce  sync.Once

	mu     sync.Mutex
	err    error
	closed bool

	seq uint64
}

func newStream(id domain.SessionID) *stream {
	s := &stream{
		id:        id,
		results:   make(chan domain.TranscriptFragment, 64),
		msgs:      make(chan domain.TranscriptFragment),
		audio:     make(chan []byte, 128),
		opened:    make(chan struct{}),
		quit:      make(chan struct{}),
		finishedc: make(chan struct{}),
	}
	go s.forward()
	return s
}

func (s *stream) Send(chunk []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return core.ErrStreamClosed
	}
	select {
	case s.audio <- chunk:
		return nil
	default:
		log.Warn().Str("module", "recognition.deepgram").Str("session", string(s.id)).Msg("audio buffer full, chunk dropped")
		return nil
	}
}

func (s *stream) Results() <-chan domain.TranscriptFragment { return s.results }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close is idempotent. The provider normally acknowledges the stop with a
// close event; closeGrace covers the case where it never does.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.quit)
		if s.client != nil {
			s.client.Stop()
		}
		time.AfterFunc(closeGrace, func() { s.finish(nil) })
	})
	return nil
}

func (s *stream) finish(err error) {
	s.finishOnce.Do(func() {
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
		close(s.finishedc)
	})
}

func (s *stream) forward() {
	for {
		select {
		case f := <-s.msgs:
			select {
			case s.results <- f:
			case <-s.finishedc:
				close(s.results)
				return
			}
		case <-s.finishedc:
			close(s.results)
			return
		}
	}
}

func (s *stream) emit(f domain.TranscriptFragment) {
	select {
	case s.msgs <- f:
	case <-s.finishedc:
	}
}

func (s *stream) writePump() {
	for {
		select {
		case data := <-s.audio:
			if err := s.client.WriteBinary(data); err != nil {
				log.Error().Err(err).Str("module", "recognition.deepgram").Str("session", string(s.id)).Msg("write audio")
				return
			}
		case <-s.quit:
			return
		}
	}
}

// handler receives the SDK callbacks for one stream.
type handler struct {
	s *stream
}

func (h *handler) Open(ocr *api.OpenResponse) error {
	log.Info().Str("module", "recognition.deepgram").Str("session", string(h.s.id)).Msg("upstream open")
	h.s.openOnce.Do(func() { close(h.s.opened) })
	go h.s.writePump()
	return nil
}

func (h *handler) Message(mr *api.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return nil
	}
	h.s.seq++
	h.s.emit(domain.TranscriptFragment{
		SessionID:  h.s.id,
		Text:       text,
		IsFinal:    mr.IsFinal,
		Confidence: alt.Confidence,
		Sequence:   h.s.seq,
	})
	return nil
}

func (h *handler) Metadata(md *api.MetadataResponse) error {
	log.Debug().Str("module", "recognition.deepgram").Interface("metadata", md).Msg("metadata")
	return nil
}

func (h *handler) SpeechStarted(ssr *api.SpeechStartedResponse) error {
	log.Debug().Str("module", "recognition.deepgram").Float64("timestamp", ssr.Timestamp).Msg("speech started")
	return nil
}

func (h *handler) UtteranceEnd(ur *api.UtteranceEndResponse) error {
	log.Debug().Str("module", "recognition.deepgram").Float64("last_word_end", ur.LastWordEnd).Msg("utterance end")
	return nil
}

func (h *handler) Close(ocr *api.CloseResponse) error {
	log.Info().Str("module", "recognition.deepgram").Str("session", string(h.s.id)).Str("reason", ocr.Type).Msg("upstream closed")
	h.s.finish(nil)
	return nil
}

func (h *handler) Error(er *api.ErrorResponse) error {
	log.Error().Str("module", "recognition.deepgram").Str("session", string(h.s.id)).Str("type", er.Type).Str("description", er.Description).Msg("upstream error")
	h.s.finish(&core.UpstreamError{Kind: kindFor(er.Type, er.Description), Detail: er.Description})
	return nil
}

func (h *handler) UnhandledEvent(byData []byte) error {
	log.Warn().Str("module", "recognition.deepgram").Str("data", string(byData)).Msg("unhandled event")
	return nil
}

func kindFor(errType, desc string) core.UpstreamErrorKind {
	t := strings.ToLower(errType + " " + desc)
	switch {
	case strings.Contains(t, "auth") || strings.Contains(t, "401") || strings.Contains(t, "403"):
		return core.UpstreamAuth
	case strings.Contains(t, "rate") || strings.Contains(t, "429"):
		return core.UpstreamRateLimited
	case strings.Contains(t, "400") || strings.Contains(t, "payload") || strings.Contains(t, "malformed"):
		return core.UpstreamProtocol
	default:
		return core.UpstreamUnavailable
	}
}
