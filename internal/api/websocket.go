package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/librarycatalog/library-server/internal/auth"
	"github.com/librarycatalog/library-server/internal/graph"
)

const subprotocol = "graphql-transport-ws"

// graphql-transport-ws message types.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

// graphql-transport-ws close codes.
const (
	closeBadRequest      = 4400
	closeUnauthorized    = 4401
	closeNotAcceptable   = 4406
	closeInitTimeout     = 4408
	closeSubscriberTaken = 4409
	closeTooManyInits    = 4429
)

const wsWriteTimeout = 10 * time.Second

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// wsConn is one graphql-transport-ws connection. A single reader goroutine
// dispatches messages; each operation streams from its own goroutine and
// writes are serialised by writeMu.
type wsConn struct {
	s      *Server
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	viewer   *auth.Viewer
	initSeen bool
	ops      map[string]context.CancelFunc

	acked atomic.Bool
	wg    sync.WaitGroup
}

// serveWebSocket upgrades the request and runs the protocol until either side closes.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &wsConn{
		s:      s,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		log:    s.logger.With(slog.String("request_id", middleware.GetReqID(r.Context()))),
		viewer: auth.ViewerFrom(r.Context()),
		ops:    make(map[string]context.CancelFunc),
	}

	if conn.Subprotocol() != subprotocol {
		c.closeWith(closeNotAcceptable, "Subprotocol not acceptable")
		_ = conn.Close()
		cancel()
		return
	}

	s.track(c)
	defer s.untrack(c)

	c.run()
}

func (c *wsConn) run() {
	defer c.shutdown()

	initTimer := time.AfterFunc(c.s.opts.InitTimeout, func() {
		if !c.acked.Load() {
			c.closeWith(closeInitTimeout, "Connection initialisation timeout")
		}
	})
	defer initTimer.Stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("websocket read failed", "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			c.closeWith(closeBadRequest, "Invalid message received")
			return
		}
		if !c.handle(msg) {
			return
		}
	}
}

// handle dispatches one client message. It returns false once the connection is closed.
func (c *wsConn) handle(msg wsMessage) bool {
	switch msg.Type {
	case msgConnectionInit:
		return c.handleInit(msg)

	case msgPing:
		return c.write(wsMessage{Type: msgPong, Payload: msg.Payload}) == nil

	case msgPong:
		return true

	case msgSubscribe:
		if !c.acked.Load() {
			c.closeWith(closeUnauthorized, "Unauthorized")
			return false
		}
		return c.handleSubscribe(msg)

	case msgComplete:
		c.mu.Lock()
		cancel, ok := c.ops[msg.ID]
		delete(c.ops, msg.ID)
		c.mu.Unlock()
		if ok {
			cancel()
		}
		return true
	}

	c.closeWith(closeBadRequest, fmt.Sprintf("Unknown message type %q", msg.Type))
	return false
}

// handleInit authenticates the connection from the init payload. The payload
// may carry Authorization directly or under headers; without one the viewer
// from the upgrade request stays in place.
func (c *wsConn) handleInit(msg wsMessage) bool {
	c.mu.Lock()
	if c.initSeen {
		c.mu.Unlock()
		c.closeWith(closeTooManyInits, "Too many initialisation requests")
		return false
	}
	c.initSeen = true
	c.mu.Unlock()

	if header := initAuthorization(msg.Payload); header != "" {
		c.mu.Lock()
		c.viewer = c.s.resolveViewer(c.ctx, header, c.viewer.RemoteAddr)
		c.mu.Unlock()
	}

	if err := c.write(wsMessage{Type: msgConnectionAck}); err != nil {
		return false
	}
	c.acked.Store(true)

	c.wg.Go(c.keepAlive)
	return true
}

func initAuthorization(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	for _, path := range []string{"Authorization", "authorization", "headers.Authorization", "headers.authorization"} {
		if v := gjson.GetBytes(payload, path); v.Type == gjson.String {
			return v.String()
		}
	}
	return ""
}

func (c *wsConn) handleSubscribe(msg wsMessage) bool {
	if msg.ID == "" {
		c.closeWith(closeBadRequest, "Subscribe message requires an id")
		return false
	}

	var params graph.Params
	if err := decodeJSON(bytes.NewReader(msg.Payload), &params); err != nil {
		c.closeWith(closeBadRequest, "Invalid subscribe payload")
		return false
	}

	// Only the reader goroutine adds operations, so the id cannot be taken
	// between this check and the insert below.
	c.mu.Lock()
	_, exists := c.ops[msg.ID]
	viewer := c.viewer
	c.mu.Unlock()
	if exists {
		c.closeWith(closeSubscriberTaken, fmt.Sprintf("Subscriber for %s already exists", msg.ID))
		return false
	}

	op, errs := c.s.schema.Prepare(params)
	if errs != nil {
		payload, err := json.Marshal(errs)
		if err != nil {
			return false
		}
		return c.write(wsMessage{ID: msg.ID, Type: msgError, Payload: payload}) == nil
	}

	ctx, cancel := context.WithCancel(auth.WithViewer(c.ctx, viewer))
	c.mu.Lock()
	c.ops[msg.ID] = cancel
	c.mu.Unlock()

	c.wg.Go(func() {
		c.stream(ctx, msg.ID, op)
	})
	return true
}

// stream forwards results for one operation. complete is sent only when the
// operation ends on its own; a client complete cancels ctx first.
func (c *wsConn) stream(ctx context.Context, id string, op *graph.Operation) {
	for resp := range c.s.openStream(ctx, op) {
		payload, err := json.Marshal(resp)
		if err != nil {
			c.log.Error("failed to encode result", "error", err, "id", id)
			continue
		}
		if err := c.write(wsMessage{ID: id, Type: msgNext, Payload: payload}); err != nil {
			return
		}
	}

	c.mu.Lock()
	cancel, active := c.ops[id]
	delete(c.ops, id)
	c.mu.Unlock()
	if !active || ctx.Err() != nil {
		return
	}
	cancel()
	_ = c.write(wsMessage{ID: id, Type: msgComplete})
}

func (c *wsConn) keepAlive() {
	ticker := time.NewTicker(c.s.opts.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.write(wsMessage{Type: msgPing}); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *wsConn) write(msg wsMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

// closeWith sends a close frame and closes the socket, which ends the read loop.
func (c *wsConn) closeWith(code int, reason string) {
	c.log.Debug("closing websocket", "code", code, "reason", reason)
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsWriteTimeout))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.log.Debug("failed to send close frame", "error", err)
	}
	_ = c.conn.Close()
}

// shutdown cancels every operation and waits for their goroutines.
func (c *wsConn) shutdown() {
	c.cancel()
	_ = c.conn.Close()
	c.wg.Wait()
}

func (s *Server) track(c *wsConn) {
	s.socketsMu.Lock()
	defer s.socketsMu.Unlock()
	if s.sockets == nil {
		s.sockets = make(map[*wsConn]struct{})
	}
	s.sockets[c] = struct{}{}
}

func (s *Server) untrack(c *wsConn) {
	s.socketsMu.Lock()
	defer s.socketsMu.Unlock()
	delete(s.sockets, c)
}

// CloseSockets closes every open WebSocket with 1001 going away.
// http.Server.Shutdown does not track hijacked connections, so register
// this with RegisterOnShutdown.
func (s *Server) CloseSockets() {
	s.socketsMu.Lock()
	conns := make([]*wsConn, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.socketsMu.Unlock()

	for _, c := range conns {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
}
