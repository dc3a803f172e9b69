package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mirko1075/in-one-button-be/internal/core"
)

func (ctl *StreamWSController) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "stream").Str("conn", c.id).Msg("writePump ctx done")
			// Closing the socket here unblocks the read pump's ReadMessage,
			// which otherwise observes the cancel only after the next frame.
			c.Close()
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "stream").Str("conn", c.id).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "stream").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "stream").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *StreamWSController) readPump(ctx context.Context, c *wsConn) {
	defer func() {
		log.Info().Str("module", "stream").Str("conn", c.id).Msg("readPump closing")
		ctl.Coord.ConnectionClosed(c.id)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "stream").Str("conn", c.id).Msg("readPump ctx done")
			return
		default:
			msgType, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "stream").Str("conn", c.id).Msg("readPump read error")
				return
			}
			switch msgType {
			case websocket.BinaryMessage:
				ctl.handleBinaryAudio(c, data)
			case websocket.TextMessage:
				ctl.handleEvent(ctx, c, data)
			}
		}
	}
}

// handleBinaryAudio treats raw binary frames as audio for the session this
// connection started, sparing clients the base64 envelope on the hot path.
func (ctl *StreamWSController) handleBinaryAudio(c *wsConn, data []byte) {
	if c.started == "" {
		ctl.sendError(c, "no started session")
		return
	}
	if err := ctl.Coord.Audio(c.started, c.id, data); err != nil {
		ctl.sendError(c, reasonFor(err))
	}
}

func (ctl *StreamWSController) handleEvent(ctx context.Context, c *wsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "stream").Msg("bad json")
		ctl.sendError(c, "bad payload")
		return
	}

	switch env.Type {
	case "stream:start":
		ctl.handleStart(ctx, c, data)
	case "stream:audio":
		ctl.handleAudio(c, data)
	case "stream:stop":
		ctl.handleStop(c, data)
	case "stream:join":
		ctl.handleJoin(c, data)
	case "stream:leave":
		ctl.handleLeave(c, data)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "stream").Str("type", env.Type).Msg("unknown event")
		ctl.sendError(c, "unknown event")
	}
}

func (ctl *StreamWSController) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "stream").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(core.Frame(b))
}

func (ctl *StreamWSController) sendError(c *wsConn, reason string) {
	ctl.sendJSON(c, errorEvent{Type: "stream:error", Error: reason})
}
