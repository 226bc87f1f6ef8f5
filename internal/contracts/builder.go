package contracts

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/clawinfra/stakeclaw/internal/chains"
)

// Caller sends one JSON-RPC request over the session's bound transport.
type Caller func(ctx context.Context, method string, params ...any) (json.RawMessage, error)

type parsedABI struct {
	abi         abi.ABI
	fingerprint string
}

// Builder turns chain configs into client sets. Parsed ABIs are cached by
// reference, so one Builder should be shared across chain switches.
type Builder struct {
	abis   ABISource
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]parsedABI
}

// NewBuilder returns a Builder resolving ABIs from src.
func NewBuilder(src ABISource, logger *slog.Logger) *Builder {
	return &Builder{
		abis:   src,
		logger: logger.With("component", "contracts"),
		cache:  make(map[string]parsedABI),
	}
}

// Build binds every contract of cfg to caller. It performs no I/O.
func (b *Builder) Build(cfg chains.ChainConfig, caller Caller) (*ClientSet, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain %d: nil caller", cfg.ChainID)
	}

	kinds := make([]chains.ContractKind, 0, len(cfg.Contracts))
	for k := range cfg.Contracts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	set := &ClientSet{chainID: cfg.ChainID, clients: make(map[chains.ContractKind]*Client, len(kinds))}
	for _, kind := range kinds {
		ct := cfg.Contracts[kind]
		if !common.IsHexAddress(ct.Address) {
			return nil, &AbiResolutionError{Chain: cfg.ChainID, Kind: kind, Ref: ct.ABI,
				Err: fmt.Errorf("%w: %q", ErrInvalidAddress, ct.Address)}
		}
		parsed, err := b.resolve(ct.ABI)
		if err != nil {
			return nil, &AbiResolutionError{Chain: cfg.ChainID, Kind: kind, Ref: ct.ABI, Err: err}
		}
		set.clients[kind] = &Client{
			kind:        kind,
			address:     common.HexToAddress(ct.Address),
			abi:         parsed.abi,
			fingerprint: parsed.fingerprint,
			caller:      caller,
		}
	}

	b.logger.Debug("clients built", "chain", cfg.ChainID, "contracts", len(kinds))
	return set, nil
}

func (b *Builder) resolve(ref string) (parsedABI, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.cache[ref]; ok {
		return p, nil
	}

	blob, err := b.abis.Lookup(ref)
	if err != nil {
		return parsedABI{}, fmt.Errorf("lookup: %w", err)
	}
	parsed, err := abi.JSON(bytes.NewReader(blob))
	if err != nil {
		return parsedABI{}, fmt.Errorf("parse: %w", err)
	}
	if len(parsed.Methods) == 0 {
		return parsedABI{}, fmt.Errorf("parse: no methods")
	}

	p := parsedABI{abi: parsed, fingerprint: Fingerprint(blob)}
	b.cache[ref] = p
	return p, nil
}

// Fingerprint returns the hex keccak-256 of an ABI blob.
func Fingerprint(blob []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(blob)
	return hex.EncodeToString(h.Sum(nil))
}

// ClientSet holds the clients bound for one chain.
type ClientSet struct {
	chainID uint64
	clients map[chains.ContractKind]*Client
}

func (s *ClientSet) ChainID() uint64 { return s.chainID }

// Get returns the client for kind.
func (s *ClientSet) Get(kind chains.ContractKind) (*Client, bool) {
	c, ok := s.clients[kind]
	return c, ok
}

// Kinds lists the bound contract kinds in sorted order.
func (s *ClientSet) Kinds() []chains.ContractKind {
	out := make([]chains.ContractKind, 0, len(s.clients))
	for k := range s.clients {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *ClientSet) client(kind chains.ContractKind) (*Client, error) {
	c, ok := s.clients[kind]
	if !ok {
		return nil, fmt.Errorf("chain %d: %w: %s", s.chainID, ErrNoContract, kind)
	}
	return c, nil
}
