package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HTTP is JSON-RPC 2.0 over plain HTTP POST. Open does no I/O; it only
// validates the URL and registers the handle.
type HTTP struct {
	client    *http.Client
	logger    *slog.Logger
	requestID atomic.Uint64

	mu      sync.RWMutex
	handles map[string]Handle
}

// NewHTTP returns an HTTP transport with a per-request timeout.
func NewHTTP(timeout time.Duration, logger *slog.Logger) *HTTP {
	return &HTTP{
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "transport", "kind", KindHTTP.String()),
		handles: make(map[string]Handle),
	}
}

func (t *HTTP) Kind() Kind { return KindHTTP }

// Open registers url as a callable endpoint.
func (t *HTTP) Open(_ context.Context, url string) (Handle, error) {
	if err := checkScheme(url, "http", "https"); err != nil {
		return Handle{}, &Error{Op: "open", URL: url, Err: err}
	}
	h := NewHandle(KindHTTP, url)
	t.mu.Lock()
	t.handles[h.ID()] = h
	t.mu.Unlock()
	return h, nil
}

// Close forgets the handle.
func (t *HTTP) Close(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.handles[h.ID()]; !ok {
		return &Error{Op: "close", URL: h.URL(), Err: ErrClosed}
	}
	delete(t.handles, h.ID())
	return nil
}

// Call performs one JSON-RPC request.
func (t *HTTP) Call(ctx context.Context, h Handle, method string, params ...any) (json.RawMessage, error) {
	t.mu.RLock()
	_, ok := t.handles[h.ID()]
	t.mu.RUnlock()
	if !ok {
		return nil, &Error{Op: "call " + method, URL: h.URL(), Err: ErrClosed}
	}

	id := t.requestID.Add(1)
	t.logger.Debug("RPC call", "method", method, "id", id)

	result, err := postJSONRPC(ctx, t.client, h.URL(), newRequest(id, method, params))
	if err != nil {
		t.logger.Warn("RPC call failed", "method", method, "url", h.URL(), "error", err)
		return nil, &Error{Op: "call " + method, URL: h.URL(), Err: err}
	}
	return result, nil
}

// postJSONRPC sends req to url and returns the result field.
func postJSONRPC(ctx context.Context, client *http.Client, url string, req rpcRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http call: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxMessageSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, truncate(respBody, 256))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
