package stream

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mirko1075/in-one-button-be/internal/core"
	"github.com/mirko1075/in-one-button-be/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// SessionCoordinator is the coordinator surface the gateway dispatches into.
type SessionCoordinator interface {
	Start(ctx context.Context, conn core.SignalConnection, id domain.SessionID) error
	Audio(id domain.SessionID, connID string, chunk []byte) error
	Stop(id domain.SessionID, identity domain.Identity) error
	Join(conn core.SignalConnection, id domain.SessionID) error
	Leave(connID string, id domain.SessionID)
	ConnectionClosed(connID string)
}

type StreamWSController struct {
	Coord   SessionCoordinator
	Limiter *StartRateLimiter
	// ReadLimit caps inbound message size; zero leaves the transport default.
	ReadLimit int64
}

func NewStreamWSController(coord SessionCoordinator, limiter *StartRateLimiter) *StreamWSController {
	return &StreamWSController{Coord: coord, Limiter: limiter}
}

// wsConn is one client connection. started/joined are only touched from the
// connection's read pump.
type wsConn struct {
	id       string
	identity domain.Identity
	conn     *websocket.Conn
	send     chan core.Frame

	started domain.SessionID
	joined  domain.SessionID

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) ID() string                { return c.id }
func (c *wsConn) Identity() domain.Identity { return c.identity }

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleStream upgrades an authenticated request to a websocket connection.
// The identity is placed in the gin context by the auth middleware; requests
// without one never reach the upgrade.
func (ctl *StreamWSController) HandleStream(ctx context.Context, c *gin.Context) {
	identity := domain.Identity(c.GetString("identity"))
	if identity == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "stream").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &wsConn{
		id:       uuid.NewString(),
		identity: identity,
		conn:     ws,
		send:     make(chan core.Frame, 32),
	}
	log.Info().Str("module", "stream").Str("conn", conn.id).Str("identity", string(identity)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, conn)
	}()
}
