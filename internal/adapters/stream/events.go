package stream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/mirko1075/in-one-button-be/internal/app"
	"github.com/mirko1075/in-one-button-be/internal/core"
	"github.com/mirko1075/in-one-button-be/internal/domain"
)

type sessionPayload struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

type audioPayload struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Bytes     string `json:"bytes"`
}

type sessionEvent struct {
	Type      string           `json:"type"`
	SessionID domain.SessionID `json:"sessionId"`
}

type errorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (ctl *StreamWSController) handleStart(ctx context.Context, c *wsConn, data []byte) {
	var p sessionPayload
	if err := json.Unmarshal(data, &p); err != nil || p.SessionID == "" {
		ctl.sendError(c, "bad payload")
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(c.identity) {
		log.Warn().Str("module", "stream").Str("identity", string(c.identity)).Msg("start rate limited")
		ctl.sendError(c, "rate limited")
		return
	}

	sid := domain.SessionID(p.SessionID)
	log.Info().Str("module", "stream").Str("conn", c.id).Str("session", p.SessionID).Msg("start")
	if err := ctl.Coord.Start(ctx, c, sid); err != nil {
		ctl.sendError(c, reasonFor(err))
		return
	}
	// A connection listens to at most one room; starting a session moves it
	// out of any room it was observing.
	if c.joined != "" && c.joined != sid {
		ctl.Coord.Leave(c.id, c.joined)
	}
	c.started = sid
	c.joined = sid
	ctl.sendJSON(c, sessionEvent{Type: "stream:started", SessionID: sid})
}

func (ctl *StreamWSController) handleAudio(c *wsConn, data []byte) {
	var p audioPayload
	if err := json.Unmarshal(data, &p); err != nil || p.SessionID == "" {
		ctl.sendError(c, "bad payload")
		return
	}
	chunk, err := base64.StdEncoding.DecodeString(p.Bytes)
	if err != nil {
		ctl.sendError(c, "bad payload")
		return
	}
	if err := ctl.Coord.Audio(domain.SessionID(p.SessionID), c.id, chunk); err != nil {
		ctl.sendError(c, reasonFor(err))
	}
}

func (ctl *StreamWSController) handleStop(c *wsConn, data []byte) {
	var p sessionPayload
	if err := json.Unmarshal(data, &p); err != nil || p.SessionID == "" {
		ctl.sendError(c, "bad payload")
		return
	}
	log.Info().Str("module", "stream").Str("conn", c.id).Str("session", p.SessionID).Msg("stop")
	if err := ctl.Coord.Stop(domain.SessionID(p.SessionID), c.identity); err != nil {
		ctl.sendError(c, reasonFor(err))
	}
}

func (ctl *StreamWSController) handleJoin(c *wsConn, data []byte) {
	var p sessionPayload
	if err := json.Unmarshal(data, &p); err != nil || p.SessionID == "" {
		ctl.sendError(c, "bad payload")
		return
	}
	sid := domain.SessionID(p.SessionID)
	if c.joined != "" && c.joined != sid {
		ctl.Coord.Leave(c.id, c.joined)
		c.joined = ""
	}
	if err := ctl.Coord.Join(c, sid); err != nil {
		ctl.sendError(c, reasonFor(err))
		return
	}
	c.joined = sid
	log.Info().Str("module", "stream").Str("conn", c.id).Str("session", p.SessionID).Msg("join")
	ctl.sendJSON(c, sessionEvent{Type: "stream:joined", SessionID: sid})
}

func (ctl *StreamWSController) handleLeave(c *wsConn, data []byte) {
	var p sessionPayload
	if err := json.Unmarshal(data, &p); err != nil || p.SessionID == "" {
		ctl.sendError(c, "bad payload")
		return
	}
	sid := domain.SessionID(p.SessionID)
	ctl.Coord.Leave(c.id, sid)
	if c.joined == sid {
		c.joined = ""
	}
	ctl.sendJSON(c, sessionEvent{Type: "stream:left", SessionID: sid})
}

func (ctl *StreamWSController) handlePing(c *wsConn) {
	ctl.sendJSON(c, struct {
		Type string `json:"type"`
	}{Type: "pong"})
}

// reasonFor maps coordinator errors to the stable texts clients see.
// Internal detail never crosses the wire.
func reasonFor(err error) string {
	var up *core.UpstreamError
	switch {
	case errors.Is(err, app.ErrAlreadyActive):
		return "already active"
	case errors.Is(err, app.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, app.ErrNoSession):
		return "unknown session"
	case errors.Is(err, app.ErrShuttingDown):
		return "shutting down"
	case errors.As(err, &up):
		if up.Transient() {
			return "recognition provider unavailable"
		}
		return "recognition provider error"
	default:
		return "internal error"
	}
}
