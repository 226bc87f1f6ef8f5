package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const maxMessageSize = 8 << 20

// WebSocket is JSON-RPC 2.0 over a persistent WebSocket connection. One
// read loop per connection routes responses to waiting callers by id.
type WebSocket struct {
	logger       *slog.Logger
	closeTimeout time.Duration

	mu    sync.Mutex
	conns map[string]*wsConn
}

type wsConn struct {
	conn   *websocket.Conn
	url    string
	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan rpcResponse

	cancel context.CancelFunc
	done   chan struct{}
	err    error // set before done is closed
}

// NewWebSocket returns a WebSocket transport. closeTimeout bounds how long
// Close waits for the closing handshake.
func NewWebSocket(closeTimeout time.Duration, logger *slog.Logger) *WebSocket {
	return &WebSocket{
		logger:       logger.With("component", "transport", "kind", KindWebSocket.String()),
		closeTimeout: closeTimeout,
		conns:        make(map[string]*wsConn),
	}
}

func (t *WebSocket) Kind() Kind { return KindWebSocket }

// Open dials url. ctx bounds the dial only; the connection lives until Close.
func (t *WebSocket) Open(ctx context.Context, url string) (Handle, error) {
	if err := checkScheme(url, "ws", "wss"); err != nil {
		return Handle{}, &Error{Op: "open", URL: url, Err: err}
	}

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return Handle{}, &Error{Op: "open", URL: url, Err: err}
	}
	conn.SetReadLimit(maxMessageSize)

	readCtx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		conn:    conn,
		url:     url,
		pending: make(map[uint64]chan rpcResponse),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go t.readLoop(readCtx, c)

	h := NewHandle(KindWebSocket, url)
	t.mu.Lock()
	t.conns[h.ID()] = c
	t.mu.Unlock()

	t.logger.Info("websocket opened", "url", url, "handle", h.ID())
	return h, nil
}

// Close performs the closing handshake, waiting at most closeTimeout before
// dropping the socket.
func (t *WebSocket) Close(h Handle) error {
	t.mu.Lock()
	c, ok := t.conns[h.ID()]
	delete(t.conns, h.ID())
	t.mu.Unlock()
	if !ok {
		return &Error{Op: "close", URL: h.URL(), Err: ErrClosed}
	}

	closed := make(chan error, 1)
	go func() { closed <- c.conn.Close(websocket.StatusNormalClosure, "session closed") }()

	var err error
	select {
	case err = <-closed:
	case <-time.After(t.closeTimeout):
		err = fmt.Errorf("close handshake timed out after %s", t.closeTimeout)
		_ = c.conn.CloseNow()
	}
	c.cancel()

	select {
	case <-c.done:
	case <-time.After(t.closeTimeout):
	}

	t.logger.Info("websocket closed", "url", h.URL(), "handle", h.ID())
	if err != nil && !isNormalClose(err) {
		return &Error{Op: "close", URL: h.URL(), Err: err}
	}
	return nil
}

// Call sends one request and waits for its response.
func (t *WebSocket) Call(ctx context.Context, h Handle, method string, params ...any) (json.RawMessage, error) {
	t.mu.Lock()
	c, ok := t.conns[h.ID()]
	t.mu.Unlock()
	if !ok {
		return nil, &Error{Op: "call " + method, URL: h.URL(), Err: ErrClosed}
	}

	id := c.nextID.Add(1)
	ch := make(chan rpcResponse, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	t.logger.Debug("RPC call", "method", method, "id", id)
	if err := wsjson.Write(ctx, c.conn, newRequest(id, method, params)); err != nil {
		return nil, &Error{Op: "call " + method, URL: h.URL(), Err: err}
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			t.logger.Warn("RPC returned error", "method", method, "code", resp.Error.Code, "message", resp.Error.Message)
			return nil, &Error{Op: "call " + method, URL: h.URL(), Err: resp.Error}
		}
		return resp.Result, nil
	case <-c.done:
		return nil, &Error{Op: "call " + method, URL: h.URL(), Err: fmt.Errorf("%w: %v", ErrClosed, c.err)}
	case <-ctx.Done():
		return nil, &Error{Op: "call " + method, URL: h.URL(), Err: ctx.Err()}
	}
}

func (t *WebSocket) readLoop(ctx context.Context, c *wsConn) {
	defer close(c.done)
	for {
		var resp rpcResponse
		if err := wsjson.Read(ctx, c.conn, &resp); err != nil {
			c.err = err
			if !isNormalClose(err) && ctx.Err() == nil {
				t.logger.Warn("websocket read failed", "url", c.url, "error", err)
			}
			return
		}
		if resp.ID == nil {
			// Subscription notification; nothing subscribes yet.
			t.logger.Debug("dropping notification", "method", resp.Method)
			continue
		}

		if !c.deliver(resp) {
			t.logger.Debug("dropping unmatched response", "id", *resp.ID)
		}
	}
}

// deliver hands resp to the caller waiting on its id. It never blocks: a
// response for an unknown id, or a duplicate for one already answered, is
// dropped.
func (c *wsConn) deliver(resp rpcResponse) bool {
	c.mu.Lock()
	ch, ok := c.pending[*resp.ID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- resp:
		return true
	default:
		return false
	}
}

func isNormalClose(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	return websocket.CloseStatus(err) == websocket.StatusNormalClosure
}
