// Package transport implements the network boundary of the staking client:
// open a URL, call methods on the resulting handle, close it.
//
// The set of transports is closed:
//
//	KindWebSocket  JSON-RPC 2.0 over ws:// or wss:// (coder/websocket)
//	KindHTTP       JSON-RPC 2.0 over http:// or https://
//	KindGraphQL    GraphQL queries against an indexer endpoint
//
// Every handle carries its Kind, and Router dispatches on it with an
// exhaustive switch.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"
)

// Kind identifies one of the supported transports.
type Kind int

const (
	KindWebSocket Kind = iota
	KindHTTP
	KindGraphQL
)

func (k Kind) String() string {
	switch k {
	case KindWebSocket:
		return "websocket"
	case KindHTTP:
		return "http"
	case KindGraphQL:
		return "graphql"
	default:
		return "unknown"
	}
}

// KindForURL picks the RPC transport for an endpoint URL by scheme.
func KindForURL(rawURL string) (Kind, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("parse endpoint %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
		return KindWebSocket, nil
	case "http", "https":
		return KindHTTP, nil
	default:
		return 0, fmt.Errorf("unsupported endpoint scheme %q in %q", u.Scheme, rawURL)
	}
}

// Handle refers to one opened connection. The zero Handle refers to nothing.
type Handle struct {
	id   string
	kind Kind
	url  string
}

// NewHandle allocates a handle with a fresh id.
func NewHandle(kind Kind, rawURL string) Handle {
	return Handle{id: uuid.NewString(), kind: kind, url: rawURL}
}

func (h Handle) ID() string   { return h.id }
func (h Handle) Kind() Kind   { return h.kind }
func (h Handle) URL() string  { return h.url }
func (h Handle) IsZero() bool { return h.id == "" }

func (h Handle) String() string {
	if h.IsZero() {
		return "<none>"
	}
	return fmt.Sprintf("%s:%s", h.kind, h.url)
}

// Transport is implemented by each transport kind.
type Transport interface {
	Kind() Kind
	Open(ctx context.Context, url string) (Handle, error)
	Close(h Handle) error
	Call(ctx context.Context, h Handle, method string, params ...any) (json.RawMessage, error)
}

func checkScheme(rawURL string, schemes ...string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", rawURL)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme %q not supported (want %v)", u.Scheme, schemes)
}
