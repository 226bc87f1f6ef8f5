// Package orchestrator is the single surface the CLI and API drive. It ties
// the chain registry, the session manager, the preference store and the
// staking arithmetic together.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/clawinfra/stakeclaw/internal/chains"
	"github.com/clawinfra/stakeclaw/internal/prefs"
	"github.com/clawinfra/stakeclaw/internal/session"
	"github.com/clawinfra/stakeclaw/internal/staking"
)

// ErrNoSecondary is returned when the active chain has no secondary token.
var ErrNoSecondary = errors.New("chain has no secondary token")

// Orchestrator wraps registry, manager and preferences.
type Orchestrator struct {
	registry     *chains.Registry
	manager      *session.Manager
	prefs        *prefs.Store
	logger       *slog.Logger
	defaultChain uint64

	// persistMu orders selectedNetwork writes against the live generation.
	persistMu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDefaultChain sets the chain Restore selects when nothing is persisted.
func WithDefaultChain(id uint64) Option {
	return func(o *Orchestrator) { o.defaultChain = id }
}

// New returns an Orchestrator. The manager should be Idle.
func New(registry *chains.Registry, manager *session.Manager, store *prefs.Store, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		manager:  manager,
		prefs:    store,
		logger:   logger.With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Chains lists the selectable chains in table order.
func (o *Orchestrator) Chains() []chains.ChainConfig { return o.registry.List() }

// Chain resolves one chain by id.
func (o *Orchestrator) Chain(id uint64) (chains.ChainConfig, error) { return o.registry.Resolve(id) }

// ActiveChain returns the config of the connected chain.
func (o *Orchestrator) ActiveChain() (chains.ChainConfig, bool) {
	sess, ok := o.manager.Session()
	if !ok {
		return chains.ChainConfig{}, false
	}
	return sess.Chain(), true
}

func (o *Orchestrator) State() session.Snapshot { return o.manager.Current() }

// Subscribe forwards to the session manager.
func (o *Orchestrator) Subscribe(fn func(session.Snapshot)) (cancel func()) {
	return o.manager.Subscribe(fn)
}

func (o *Orchestrator) Preferences() *prefs.Store { return o.prefs }

// SelectChain switches the active chain and persists the selection once
// connected.
func (o *Orchestrator) SelectChain(ctx context.Context, id uint64) (session.Snapshot, error) {
	snap, err := o.manager.SelectChain(ctx, id)
	if err != nil {
		return snap, err
	}
	o.persistSelection(ctx, snap)
	return snap, nil
}

// persistSelection stores snap's chain only while snap is still the live
// generation, so a selection overtaken by a newer one is not written last.
func (o *Orchestrator) persistSelection(ctx context.Context, snap session.Snapshot) {
	o.persistMu.Lock()
	defer o.persistMu.Unlock()
	if cur := o.manager.Current(); cur.Generation != snap.Generation {
		o.logger.Debug("selection superseded, not persisting", "chain", snap.ChainID, "current", cur.ChainID)
		return
	}
	o.prefs.Set(ctx, prefs.KeySelectedNetwork, snap.ChainID)
}

// Disconnect tears down the active session.
func (o *Orchestrator) Disconnect() error { return o.manager.Close() }

// Close disconnects and releases the preference store.
func (o *Orchestrator) Close() error {
	return errors.Join(o.manager.Close(), o.prefs.Close())
}

// Restore reconnects to the persisted chain, or to the default chain when
// nothing is stored. A stored chain that no longer resolves leaves the
// manager Idle.
func (o *Orchestrator) Restore(ctx context.Context) (session.Snapshot, error) {
	id, ok := o.prefs.GetUint64(ctx, prefs.KeySelectedNetwork)
	if !ok {
		if o.defaultChain == 0 {
			o.logger.Info("no persisted chain, staying idle")
			return o.manager.Current(), nil
		}
		id = o.defaultChain
	}

	snap, err := o.SelectChain(ctx, id)
	if errors.Is(err, chains.ErrUnknownChain) {
		o.logger.Warn("persisted chain unknown, staying idle", "chain", id)
		return snap, nil
	}
	return snap, err
}

// Account is the staking position of one account on the active chain.
type Account struct {
	Address     string
	StakedRing  *big.Int
	StakedKton  *big.Int
	Power       *big.Int
	Deposits    []*big.Int
	KtonBalance *big.Int // nil when the chain binds no kton contract
}

// AccountPower reads account's ledger and the pools and computes its power.
func (o *Orchestrator) AccountPower(ctx context.Context, account string) (*big.Int, error) {
	acct, err := o.readPower(ctx, account)
	if err != nil {
		return nil, err
	}
	return acct.Power, nil
}

// Account reads account's full position. Deposit and balance reads are
// skipped when the chain does not bind those contracts.
func (o *Orchestrator) Account(ctx context.Context, account string) (Account, error) {
	acct, err := o.readPower(ctx, account)
	if err != nil {
		return Account{}, err
	}
	sess, ok := o.manager.Session()
	if !ok {
		return Account{}, session.ErrNotConnected
	}
	clients := sess.Clients()
	if _, ok := clients.Get(chains.KindDeposit); ok {
		if acct.Deposits, err = clients.DepositsOf(ctx, account); err != nil {
			return Account{}, fmt.Errorf("read deposits: %w", err)
		}
	}
	if _, ok := clients.Get(chains.KindKton); ok {
		if acct.KtonBalance, err = clients.KtonBalance(ctx, account); err != nil {
			return Account{}, fmt.Errorf("read kton balance: %w", err)
		}
	}
	return acct, nil
}

func (o *Orchestrator) readPower(ctx context.Context, account string) (Account, error) {
	sess, ok := o.manager.Session()
	if !ok {
		return Account{}, session.ErrNotConnected
	}
	clients := sess.Clients()

	ring, kton, err := clients.Ledger(ctx, account)
	if err != nil {
		return Account{}, fmt.Errorf("read ledger: %w", err)
	}
	ringPool, ktonPool, err := clients.StakingPools(ctx)
	if err != nil {
		return Account{}, fmt.Errorf("read pools: %w", err)
	}
	power, err := staking.StakingToPower(ring, kton, ringPool, ktonPool)
	if err != nil {
		return Account{}, err
	}
	return Account{Address: account, StakedRing: ring, StakedKton: kton, Power: power}, nil
}

// FormatNative formats value with the active chain's native decimals.
func (o *Orchestrator) FormatNative(value *big.Int, opts staking.FormatOptions) (string, error) {
	cfg, ok := o.ActiveChain()
	if !ok {
		return "", session.ErrNotConnected
	}
	return staking.FormatBalance(value, cfg.Native.Decimals, opts)
}

// FormatSecondary formats value with the active chain's secondary decimals.
func (o *Orchestrator) FormatSecondary(value *big.Int, opts staking.FormatOptions) (string, error) {
	cfg, ok := o.ActiveChain()
	if !ok {
		return "", session.ErrNotConnected
	}
	if cfg.Secondary == nil {
		return "", fmt.Errorf("chain %d: %w", cfg.ChainID, ErrNoSecondary)
	}
	return staking.FormatBalance(value, cfg.Secondary.Decimals, opts)
}

// QueryIndexer runs query on the active chain's indexer and decodes the
// data field into out, when out is non-nil.
func (o *Orchestrator) QueryIndexer(ctx context.Context, query string, vars map[string]any, out any) error {
	data, err := o.manager.QueryIndexer(ctx, query, vars)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode indexer data: %w", err)
	}
	return nil
}

func (o *Orchestrator) StakingToPower(ring, kton, ringPool, ktonPool *big.Int) (*big.Int, error) {
	return staking.StakingToPower(ring, kton, ringPool, ktonPool)
}

func (o *Orchestrator) CalcKtonReward(depositRing *big.Int, months int) (*big.Int, error) {
	return staking.CalcKtonReward(depositRing, months)
}

func (o *Orchestrator) FormatBalance(value *big.Int, decimals int, opts staking.FormatOptions) (string, error) {
	return staking.FormatBalance(value, decimals, opts)
}

func (o *Orchestrator) FormatBalanceParts(value *big.Int, decimals int, opts staking.FormatOptions) (staking.Parts, error) {
	return staking.FormatBalanceParts(value, decimals, opts)
}
