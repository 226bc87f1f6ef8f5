package transport

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrTransport matches every *Error via errors.Is.
var ErrTransport = errors.New("transport error")

// ErrClosed is returned for calls on a handle that is closed or unknown.
var ErrClosed = errors.New("handle closed")

// Error describes a failed open, call or close.
type Error struct {
	Op  string // "open", "call eth_call", "close", ...
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrTransport }

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}
