// Package session owns the single live connection of the staking client.
//
// A Manager moves between Idle, Connecting, Connected and Failed. Every
// SelectChain bumps a generation counter; a connect attempt whose generation
// is no longer current is discarded and its handles closed, so late
// completions never overwrite a newer selection. Connects are serialized and
// the previous transport is closed before the next one is opened, so at most
// one RPC transport is open at a time.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clawinfra/stakeclaw/internal/chains"
	"github.com/clawinfra/stakeclaw/internal/contracts"
	"github.com/clawinfra/stakeclaw/internal/transport"
)

var (
	// ErrSuperseded is returned by SelectChain when a newer selection or a
	// Close arrived before it finished.
	ErrSuperseded = errors.New("connection superseded")
	// ErrNotConnected is returned for session calls while no session is live.
	ErrNotConnected = errors.New("not connected")
	// ErrNoIndexer is returned when the active chain has no indexer handle.
	ErrNoIndexer = errors.New("no indexer for active chain")
	// ErrNoEndpoints is returned for a chain without RPC endpoints.
	ErrNoEndpoints = errors.New("no rpc endpoints")
)

// Resolver looks up chain configs by id.
type Resolver interface {
	Resolve(id uint64) (chains.ChainConfig, error)
}

// Transport is the connection boundary the manager drives.
type Transport interface {
	Open(ctx context.Context, url string) (transport.Handle, error)
	OpenIndexer(ctx context.Context, url string) (transport.Handle, error)
	Close(h transport.Handle) error
	Call(ctx context.Context, h transport.Handle, method string, params ...any) (json.RawMessage, error)
}

// ClientBuilder binds a chain's contracts to a caller.
type ClientBuilder interface {
	Build(cfg chains.ChainConfig, caller contracts.Caller) (*contracts.ClientSet, error)
}

// Manager is the connection state machine.
type Manager struct {
	registry  Resolver
	transport Transport
	builder   ClientBuilder
	logger    *slog.Logger
	now       func() time.Time

	gen atomic.Uint64

	// connectMu serializes open and close of sessions.
	connectMu sync.Mutex

	mu      sync.Mutex
	snap    Snapshot
	session *Session
	cancel  context.CancelFunc

	obsMu     sync.Mutex
	observers []observer
	nextObs   uint64
}

type observer struct {
	id uint64
	fn func(Snapshot)
}

// NewManager returns an Idle manager.
func NewManager(registry Resolver, t Transport, builder ClientBuilder, logger *slog.Logger) *Manager {
	m := &Manager{
		registry:  registry,
		transport: t,
		builder:   builder,
		logger:    logger.With("component", "session"),
		now:       time.Now,
	}
	m.snap = Snapshot{State: Idle, UpdatedAt: m.now()}
	return m
}

// Current returns the latest snapshot.
func (m *Manager) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Session returns the live session, if any.
func (m *Manager) Session() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, m.session != nil
}

// Subscribe registers fn for every state transition. Callbacks run
// synchronously, in subscription order, on the goroutine making the
// transition and must not call SelectChain or Close themselves. The returned
// func unsubscribes.
func (m *Manager) Subscribe(fn func(Snapshot)) (cancel func()) {
	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers = append(m.observers, observer{id: id, fn: fn})
	m.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.obsMu.Lock()
			m.observers = slices.DeleteFunc(m.observers, func(o observer) bool { return o.id == id })
			m.obsMu.Unlock()
		})
	}
}

// SelectChain tears down the current session and connects to chain id. It
// returns the snapshot it committed. A superseded attempt returns the
// current snapshot and ErrSuperseded.
func (m *Manager) SelectChain(ctx context.Context, id uint64) (Snapshot, error) {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	gen := m.supersede(cancel)

	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	if m.stale(gen) {
		return m.Current(), ErrSuperseded
	}
	log := m.logger.With("chain", id, "generation", gen)

	m.teardown()
	if _, ok := m.publish(gen, Snapshot{State: Connecting, ChainID: id}); !ok {
		return m.Current(), ErrSuperseded
	}

	cfg, err := m.registry.Resolve(id)
	if err != nil {
		log.Warn("chain not resolvable", "error", err)
		return m.fail(gen, Idle, id, err)
	}

	handle, endpoint, err := m.openRPC(cctx, cfg)
	if err != nil {
		if m.stale(gen) {
			return m.Current(), ErrSuperseded
		}
		log.Error("chain connect failed", "error", err)
		return m.fail(gen, Failed, id, err)
	}
	if m.stale(gen) {
		log.Info("discarding superseded connection", "endpoint", endpoint.URL)
		m.closeHandle(handle)
		return m.Current(), ErrSuperseded
	}

	clients, err := m.builder.Build(cfg, m.caller(handle))
	if err != nil {
		log.Error("contract binding failed", "error", err)
		m.closeHandle(handle)
		return m.fail(gen, Failed, id, err)
	}

	sess := &Session{
		id:       uuid.NewString(),
		chain:    cfg,
		endpoint: endpoint,
		rpc:      handle,
		indexer:  m.openIndexer(cctx, cfg, log),
		clients:  clients,
		openedAt: m.now(),
	}

	m.mu.Lock()
	if m.gen.Load() != gen {
		m.mu.Unlock()
		log.Info("discarding superseded connection", "endpoint", endpoint.URL)
		m.closeSession(sess)
		return m.Current(), ErrSuperseded
	}
	m.session = sess
	m.snap = Snapshot{
		Generation:  gen,
		State:       Connected,
		ChainID:     id,
		SessionID:   sess.id,
		Endpoint:    endpoint.URL,
		ConnectedAt: sess.openedAt,
		UpdatedAt:   m.now(),
	}
	snap := m.snap
	m.mu.Unlock()

	log.Info("chain connected", "endpoint", endpoint.URL, "session", sess.id)
	m.notify(snap)
	return snap, nil
}

// Close cancels any in-flight connect, closes the session and returns to
// Idle. Close errors are logged and joined into the result; the manager is
// Idle either way.
func (m *Manager) Close() error {
	gen := m.supersede(nil)

	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	err := m.teardown()
	m.publish(gen, Snapshot{State: Idle})
	return err
}

// Call sends an RPC request on the live session.
func (m *Manager) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	sess, ok := m.Session()
	if !ok {
		return nil, ErrNotConnected
	}
	return m.transport.Call(ctx, sess.rpc, method, params...)
}

// QueryIndexer runs a GraphQL query against the live session's indexer.
func (m *Manager) QueryIndexer(ctx context.Context, query string, vars map[string]any) (json.RawMessage, error) {
	sess, ok := m.Session()
	if !ok {
		return nil, ErrNotConnected
	}
	h, ok := sess.Indexer()
	if !ok {
		return nil, fmt.Errorf("chain %d: %w", sess.ChainID(), ErrNoIndexer)
	}
	return m.transport.Call(ctx, h, query, vars)
}

// supersede starts a new generation, cancels the in-flight connect and
// installs cancel as the current one. The bump and the swap share one
// critical section so an older call can never cancel a newer one.
func (m *Manager) supersede(cancel context.CancelFunc) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen := m.gen.Add(1)
	if m.cancel != nil {
		m.cancel()
	}
	m.cancel = cancel
	return gen
}

func (m *Manager) stale(gen uint64) bool { return m.gen.Load() != gen }

// publish commits snap if gen is still current.
func (m *Manager) publish(gen uint64, snap Snapshot) (Snapshot, bool) {
	m.mu.Lock()
	if m.gen.Load() != gen {
		m.mu.Unlock()
		return Snapshot{}, false
	}
	snap.Generation = gen
	snap.UpdatedAt = m.now()
	m.snap = snap
	m.mu.Unlock()

	m.notify(snap)
	return snap, true
}

func (m *Manager) fail(gen uint64, state State, id uint64, err error) (Snapshot, error) {
	snap, ok := m.publish(gen, Snapshot{State: state, ChainID: id, Err: err})
	if !ok {
		return m.Current(), ErrSuperseded
	}
	return snap, err
}

func (m *Manager) notify(snap Snapshot) {
	m.obsMu.Lock()
	obs := slices.Clone(m.observers)
	m.obsMu.Unlock()

	for _, o := range obs {
		o.fn(snap)
	}
}

// openRPC tries the chain's endpoints in order.
func (m *Manager) openRPC(ctx context.Context, cfg chains.ChainConfig) (transport.Handle, chains.Endpoint, error) {
	if len(cfg.RPC) == 0 {
		return transport.Handle{}, chains.Endpoint{}, fmt.Errorf("chain %d: %w", cfg.ChainID,
			&transport.Error{Op: "open", Err: ErrNoEndpoints})
	}

	var errs []error
	for _, ep := range cfg.RPC {
		h, err := m.transport.Open(ctx, ep.URL)
		if err == nil {
			// May complete after cancellation; the caller re-checks the generation.
			return h, ep, nil
		}
		m.logger.Warn("endpoint open failed", "chain", cfg.ChainID, "endpoint", ep.Name, "url", ep.URL, "error", err)
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return transport.Handle{}, chains.Endpoint{}, fmt.Errorf("chain %d: all endpoints failed: %w", cfg.ChainID, errors.Join(errs...))
}

func (m *Manager) openIndexer(ctx context.Context, cfg chains.ChainConfig, log *slog.Logger) transport.Handle {
	if cfg.Indexer == "" {
		return transport.Handle{}
	}
	h, err := m.transport.OpenIndexer(ctx, cfg.Indexer)
	if err != nil {
		log.Warn("indexer unavailable", "url", cfg.Indexer, "error", err)
		return transport.Handle{}
	}
	return h
}

func (m *Manager) caller(h transport.Handle) contracts.Caller {
	return func(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
		return m.transport.Call(ctx, h, method, params...)
	}
}

// teardown closes the live session, if any. Must hold connectMu.
func (m *Manager) teardown() error {
	m.mu.Lock()
	sess := m.session
	m.session = nil
	m.mu.Unlock()

	if sess == nil {
		return nil
	}
	err := m.closeSession(sess)
	m.logger.Info("session closed", "chain", sess.ChainID(), "session", sess.id)
	return err
}

func (m *Manager) closeSession(sess *Session) error {
	var errs []error
	if h, ok := sess.Indexer(); ok {
		errs = append(errs, m.closeHandle(h))
	}
	errs = append(errs, m.closeHandle(sess.rpc))
	return errors.Join(errs...)
}

func (m *Manager) closeHandle(h transport.Handle) error {
	if err := m.transport.Close(h); err != nil {
		m.logger.Warn("transport close failed", "handle", h.String(), "error", err)
		return err
	}
	return nil
}
