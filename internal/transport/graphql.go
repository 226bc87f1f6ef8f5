package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// ErrInvalidQuery is returned when a query document does not parse. No
// request is sent in that case.
var ErrInvalidQuery = errors.New("invalid graphql query")

// GraphQL queries an indexer over HTTP. The method passed to Call is the
// query document; an optional single params element holds the variables.
type GraphQL struct {
	client *http.Client
	logger *slog.Logger

	mu      sync.RWMutex
	handles map[string]Handle
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

// NewGraphQL returns an indexer transport with a per-request timeout.
func NewGraphQL(timeout time.Duration, logger *slog.Logger) *GraphQL {
	return &GraphQL{
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "transport", "kind", KindGraphQL.String()),
		handles: make(map[string]Handle),
	}
}

func (t *GraphQL) Kind() Kind { return KindGraphQL }

// Open registers an indexer endpoint.
func (t *GraphQL) Open(_ context.Context, url string) (Handle, error) {
	if err := checkScheme(url, "http", "https"); err != nil {
		return Handle{}, &Error{Op: "open", URL: url, Err: err}
	}
	h := NewHandle(KindGraphQL, url)
	t.mu.Lock()
	t.handles[h.ID()] = h
	t.mu.Unlock()
	return h, nil
}

// Close forgets the handle.
func (t *GraphQL) Close(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.handles[h.ID()]; !ok {
		return &Error{Op: "close", URL: h.URL(), Err: ErrClosed}
	}
	delete(t.handles, h.ID())
	return nil
}

// Call runs the query in method. params may hold one map[string]any of variables.
func (t *GraphQL) Call(ctx context.Context, h Handle, method string, params ...any) (json.RawMessage, error) {
	var vars map[string]any
	if len(params) > 0 {
		v, ok := params[0].(map[string]any)
		if !ok && params[0] != nil {
			return nil, &Error{Op: "query", URL: h.URL(), Err: fmt.Errorf("variables must be map[string]any, got %T", params[0])}
		}
		vars = v
	}
	return t.Query(ctx, h, method, vars)
}

// Query validates and sends a GraphQL query, returning the data field.
func (t *GraphQL) Query(ctx context.Context, h Handle, query string, vars map[string]any) (json.RawMessage, error) {
	t.mu.RLock()
	_, ok := t.handles[h.ID()]
	t.mu.RUnlock()
	if !ok {
		return nil, &Error{Op: "query", URL: h.URL(), Err: ErrClosed}
	}

	op, err := ValidateQuery(query)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("indexer query", "operation", op, "url", h.URL())

	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, &Error{Op: "query", URL: h.URL(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	data, err := t.post(ctx, h.URL(), body)
	if err != nil {
		t.logger.Warn("indexer query failed", "operation", op, "error", err)
		return nil, &Error{Op: "query", URL: h.URL(), Err: err}
	}
	return data, nil
}

func (t *GraphQL) post(ctx context.Context, url string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxMessageSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(raw, 256))
	}

	var gr gqlResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(gr.Errors) > 0 {
		msgs := make([]string, len(gr.Errors))
		for i, e := range gr.Errors {
			msgs[i] = e.Message
		}
		return nil, fmt.Errorf("graphql: %s", strings.Join(msgs, "; "))
	}
	return gr.Data, nil
}

// ValidateQuery parses query and returns the name of its first operation
// ("" for anonymous operations).
func ValidateQuery(query string) (string, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "query", Input: query})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if len(doc.Operations) == 0 {
		return "", fmt.Errorf("%w: no operation defined", ErrInvalidQuery)
	}
	return doc.Operations[0].Name, nil
}
