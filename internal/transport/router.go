package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Router owns one transport per kind and dispatches on the handle's kind.
type Router struct {
	ws      Transport
	http    Transport
	graphql Transport
}

// NewRouter wires the three transports together.
func NewRouter(ws, http, graphql Transport) *Router {
	return &Router{ws: ws, http: http, graphql: graphql}
}

// NewDefaultRouter builds the production transports.
func NewDefaultRouter(requestTimeout, closeTimeout time.Duration, logger *slog.Logger) *Router {
	return NewRouter(
		NewWebSocket(closeTimeout, logger),
		NewHTTP(requestTimeout, logger),
		NewGraphQL(requestTimeout, logger),
	)
}

func (r *Router) pick(k Kind) (Transport, error) {
	switch k {
	case KindWebSocket:
		return r.ws, nil
	case KindHTTP:
		return r.http, nil
	case KindGraphQL:
		return r.graphql, nil
	default:
		return nil, fmt.Errorf("no transport for kind %d", int(k))
	}
}

// Open opens an RPC endpoint, choosing WebSocket or HTTP by URL scheme.
func (r *Router) Open(ctx context.Context, url string) (Handle, error) {
	kind, err := KindForURL(url)
	if err != nil {
		return Handle{}, &Error{Op: "open", URL: url, Err: err}
	}
	return r.OpenKind(ctx, kind, url)
}

// OpenIndexer opens a GraphQL indexer endpoint.
func (r *Router) OpenIndexer(ctx context.Context, url string) (Handle, error) {
	return r.OpenKind(ctx, KindGraphQL, url)
}

// OpenKind opens url with the transport for kind.
func (r *Router) OpenKind(ctx context.Context, kind Kind, url string) (Handle, error) {
	t, err := r.pick(kind)
	if err != nil {
		return Handle{}, &Error{Op: "open", URL: url, Err: err}
	}
	return t.Open(ctx, url)
}

// Close closes h on its own transport.
func (r *Router) Close(h Handle) error {
	t, err := r.pick(h.Kind())
	if err != nil {
		return &Error{Op: "close", URL: h.URL(), Err: err}
	}
	return t.Close(h)
}

// Call invokes method on h.
func (r *Router) Call(ctx context.Context, h Handle, method string, params ...any) (json.RawMessage, error) {
	t, err := r.pick(h.Kind())
	if err != nil {
		return nil, &Error{Op: "call " + method, URL: h.URL(), Err: err}
	}
	return t.Call(ctx, h, method, params...)
}
