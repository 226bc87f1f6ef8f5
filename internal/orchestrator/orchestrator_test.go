package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/clawinfra/stakeclaw/internal/chains"
	"github.com/clawinfra/stakeclaw/internal/contracts"
	"github.com/clawinfra/stakeclaw/internal/prefs"
	"github.com/clawinfra/stakeclaw/internal/session"
	"github.com/clawinfra/stakeclaw/internal/staking"
	"github.com/clawinfra/stakeclaw/internal/transport"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

const account = "0x00000000000000000000000000000000000000aa"

// chainNode is a session.Transport that answers eth_call from canned
// per-method outputs and GraphQL queries from a canned data blob.
type chainNode struct {
	mu      sync.Mutex
	abis    []abi.ABI
	outputs map[string][]any
	gqlData json.RawMessage
	open    map[string]transport.Handle
}

func newChainNode(t *testing.T) *chainNode {
	t.Helper()
	n := &chainNode{outputs: make(map[string][]any), open: make(map[string]transport.Handle)}
	for _, ref := range []string{"staking.json", "deposit.json", "kton.json"} {
		blob, err := contracts.Embedded().Lookup(ref)
		if err != nil {
			t.Fatal(err)
		}
		parsed, err := abi.JSON(bytes.NewReader(blob))
		if err != nil {
			t.Fatal(err)
		}
		n.abis = append(n.abis, parsed)
	}
	return n
}

func (n *chainNode) Open(_ context.Context, url string) (transport.Handle, error) {
	return n.register(transport.NewHandle(transport.KindWebSocket, url)), nil
}

func (n *chainNode) OpenIndexer(_ context.Context, url string) (transport.Handle, error) {
	return n.register(transport.NewHandle(transport.KindGraphQL, url)), nil
}

func (n *chainNode) register(h transport.Handle) transport.Handle {
	n.mu.Lock()
	n.open[h.ID()] = h
	n.mu.Unlock()
	return h
}

func (n *chainNode) Close(h transport.Handle) error {
	n.mu.Lock()
	delete(n.open, h.ID())
	n.mu.Unlock()
	return nil
}

func (n *chainNode) Call(_ context.Context, h transport.Handle, method string, params ...any) (json.RawMessage, error) {
	if h.Kind() == transport.KindGraphQL {
		return n.gqlData, nil
	}
	if method != "eth_call" {
		return nil, fmt.Errorf("unexpected method %s", method)
	}
	raw, err := json.Marshal(params[0])
	if err != nil {
		return nil, err
	}
	var args struct {
		To   string `json:"to"`
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	input, err := hexutil.Decode(args.Data)
	if err != nil {
		return nil, err
	}
	for _, a := range n.abis {
		m, err := a.MethodById(input[:4])
		if err != nil {
			continue
		}
		out, err := m.Outputs.Pack(n.outputs[m.Name]...)
		if err != nil {
			return nil, err
		}
		return json.Marshal(hexutil.Encode(out))
	}
	return nil, fmt.Errorf("no method for selector %x at %s", input[:4], common.HexToAddress(args.To).Hex())
}

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func newTestOrchestrator(t *testing.T, reg *chains.Registry, node *chainNode, opts ...Option) (*Orchestrator, *prefs.MemoryBackend) {
	t.Helper()
	if reg == nil {
		var err error
		if reg, err = chains.Default(); err != nil {
			t.Fatal(err)
		}
	}
	logger := newTestLogger()
	mgr := session.NewManager(reg, node, contracts.NewBuilder(contracts.Embedded(), logger), logger)
	backend := prefs.NewMemoryBackend(nil)
	o := New(reg, mgr, prefs.New(backend, logger), logger, opts...)
	t.Cleanup(func() { _ = o.Close() })
	return o, backend
}

func TestChainsExcludesDisabled(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, newChainNode(t))
	for _, c := range o.Chains() {
		if c.Disabled {
			t.Errorf("disabled chain %d listed", c.ChainID)
		}
	}
	if _, err := o.Chain(43); !errors.Is(err, chains.ErrUnknownChain) {
		t.Errorf("Chain(43) err = %v, want ErrUnknownChain", err)
	}
}

func TestSelectChainPersistsSelection(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, newChainNode(t))
	ctx := context.Background()

	if _, err := o.SelectChain(ctx, 46); err != nil {
		t.Fatalf("SelectChain: %v", err)
	}
	if id, ok := o.Preferences().GetUint64(ctx, prefs.KeySelectedNetwork); !ok || id != 46 {
		t.Errorf("selectedNetwork = %d, %v; want 46", id, ok)
	}
	cfg, ok := o.ActiveChain()
	if !ok || cfg.Name != "Darwinia" {
		t.Errorf("ActiveChain = %q, %v", cfg.Name, ok)
	}
	if o.State().State != session.Connected {
		t.Errorf("state = %s", o.State().State)
	}
}

func TestSupersededSelectionNotPersisted(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, newChainNode(t))
	ctx := context.Background()

	crab, err := o.SelectChain(ctx, 44)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.SelectChain(ctx, 46); err != nil {
		t.Fatal(err)
	}

	// Crab's persist arriving after Darwinia's must not win.
	o.persistSelection(ctx, crab)
	if id, _ := o.Preferences().GetUint64(ctx, prefs.KeySelectedNetwork); id != 46 {
		t.Errorf("selectedNetwork = %d, want 46", id)
	}
	if cfg, _ := o.ActiveChain(); cfg.ChainID != 46 {
		t.Errorf("active chain = %d, want 46", cfg.ChainID)
	}
}

func TestFailedSelectDoesNotPersist(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, newChainNode(t))
	ctx := context.Background()

	if _, err := o.SelectChain(ctx, 45); !errors.Is(err, chains.ErrUnknownChain) {
		t.Fatalf("err = %v, want ErrUnknownChain", err)
	}
	if _, ok := o.Preferences().Get(ctx, prefs.KeySelectedNetwork); ok {
		t.Error("failed selection was persisted")
	}
}

func TestRestore(t *testing.T) {
	tests := []struct {
		name         string
		stored       string
		defaultChain uint64
		wantState    session.State
		wantChain    uint64
	}{
		{"persisted chain", `{"selectedNetwork":46}`, 44, session.Connected, 46},
		{"persisted as string", `{"selectedNetwork":"44"}`, 0, session.Connected, 44},
		{"default when empty", ``, 44, session.Connected, 44},
		{"idle when nothing", ``, 0, session.Idle, 0},
		{"unknown persisted", `{"selectedNetwork":45}`, 44, session.Idle, 45},
		{"corrupt blob uses default", `{not json`, 46, session.Connected, 46},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, backend := newTestOrchestrator(t, nil, newChainNode(t), WithDefaultChain(tt.defaultChain))
			if tt.stored != "" {
				backend.Raw([]byte(tt.stored))
			}
			snap, err := o.Restore(context.Background())
			if err != nil {
				t.Fatalf("Restore: %v", err)
			}
			if snap.State != tt.wantState || snap.ChainID != tt.wantChain {
				t.Errorf("snapshot = %s/%d, want %s/%d", snap.State, snap.ChainID, tt.wantState, tt.wantChain)
			}
		})
	}
}

func TestAccountPower(t *testing.T) {
	node := newChainNode(t)
	node.outputs["ringPool"] = []any{e18(1000)}
	node.outputs["ktonPool"] = []any{e18(50)}
	node.outputs["ledgers"] = []any{e18(100), e18(10)}
	o, _ := newTestOrchestrator(t, nil, node)
	ctx := context.Background()

	if _, err := o.AccountPower(ctx, account); !errors.Is(err, session.ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}

	if _, err := o.SelectChain(ctx, 44); err != nil {
		t.Fatal(err)
	}
	power, err := o.AccountPower(ctx, account)
	if err != nil {
		t.Fatalf("AccountPower: %v", err)
	}
	if power.Cmp(big.NewInt(150000000)) != 0 {
		t.Errorf("power = %s, want 150000000", power)
	}
}

func TestAccountReadsFullPosition(t *testing.T) {
	node := newChainNode(t)
	node.outputs["ringPool"] = []any{e18(1000)}
	node.outputs["ktonPool"] = []any{big.NewInt(0)}
	node.outputs["ledgers"] = []any{e18(100), e18(10)}
	node.outputs["depositsOf"] = []any{[]*big.Int{big.NewInt(1), big.NewInt(2)}}
	node.outputs["balanceOf"] = []any{e18(5)}
	o, _ := newTestOrchestrator(t, nil, node)
	ctx := context.Background()
	if _, err := o.SelectChain(ctx, 46); err != nil {
		t.Fatal(err)
	}

	acct, err := o.Account(ctx, account)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if acct.Power.Cmp(big.NewInt(50000000)) != 0 {
		t.Errorf("power = %s, want 50000000", acct.Power)
	}
	if len(acct.Deposits) != 2 || acct.KtonBalance.Cmp(e18(5)) != 0 {
		t.Errorf("deposits = %v, balance = %s", acct.Deposits, acct.KtonBalance)
	}
}

func TestFormatWithActiveChain(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, newChainNode(t))
	ctx := context.Background()
	v := big.NewInt(1234567890000000000)
	opts := staking.FormatOptions{Precision: 3, KeepZero: true}

	if _, err := o.FormatNative(v, opts); !errors.Is(err, session.ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
	if _, err := o.SelectChain(ctx, 44); err != nil {
		t.Fatal(err)
	}
	if got, err := o.FormatNative(v, opts); err != nil || got != "1.235" {
		t.Errorf("FormatNative = %q, %v", got, err)
	}
	if got, err := o.FormatSecondary(v, opts); err != nil || got != "1.235" {
		t.Errorf("FormatSecondary = %q, %v", got, err)
	}
}

func TestFormatSecondaryWithoutToken(t *testing.T) {
	reg, err := chains.New([]chains.ChainConfig{{
		ChainID: 9,
		Name:    "Solo",
		Native:  chains.Token{Symbol: "SOLO", Decimals: 9},
		RPC:     []chains.Endpoint{{Name: "a", URL: "wss://solo.example"}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	o, _ := newTestOrchestrator(t, reg, newChainNode(t))
	if _, err := o.SelectChain(context.Background(), 9); err != nil {
		t.Fatal(err)
	}
	if _, err := o.FormatSecondary(big.NewInt(1), staking.FormatOptions{Precision: 3}); !errors.Is(err, ErrNoSecondary) {
		t.Errorf("err = %v, want ErrNoSecondary", err)
	}
	if got, _ := o.FormatNative(big.NewInt(1500000000), staking.FormatOptions{Precision: 3}); got != "1.5" {
		t.Errorf("FormatNative = %q, want 1.5", got)
	}
}

func TestQueryIndexer(t *testing.T) {
	node := newChainNode(t)
	node.gqlData = json.RawMessage(`{"deposits":{"totalCount":2}}`)
	o, _ := newTestOrchestrator(t, nil, node)
	ctx := context.Background()
	if _, err := o.SelectChain(ctx, 44); err != nil {
		t.Fatal(err)
	}

	var out struct {
		Deposits struct {
			TotalCount int `json:"totalCount"`
		} `json:"deposits"`
	}
	if err := o.QueryIndexer(ctx, `{ deposits { totalCount } }`, nil, &out); err != nil {
		t.Fatalf("QueryIndexer: %v", err)
	}
	if out.Deposits.TotalCount != 2 {
		t.Errorf("totalCount = %d", out.Deposits.TotalCount)
	}
}

func TestDisconnectKeepsPreferences(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, newChainNode(t))
	ctx := context.Background()
	if _, err := o.SelectChain(ctx, 44); err != nil {
		t.Fatal(err)
	}
	if err := o.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if o.State().State != session.Idle {
		t.Errorf("state = %s, want idle", o.State().State)
	}
	if _, ok := o.Preferences().GetUint64(ctx, prefs.KeySelectedNetwork); !ok {
		t.Error("Disconnect dropped the persisted chain")
	}
}

func TestArithmeticDelegates(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, newChainNode(t))
	reward, err := o.CalcKtonReward(e18(10000), 12)
	if err != nil || reward.String() != "1003866274480715353" {
		t.Errorf("CalcKtonReward = %v, %v", reward, err)
	}
	parts, err := o.FormatBalanceParts(big.NewInt(1234567890000000000), 18, staking.FormatOptions{Precision: 3, KeepZero: true})
	if err != nil || parts.Integer != "1" || parts.Decimal != "235" {
		t.Errorf("parts = %+v, %v", parts, err)
	}
}
