// Package chains holds the static table of networks the staking client can
// talk to and the registry used to resolve them by chain id.
//
// The table is loaded once at startup (embedded chains.yaml or a user file)
// and never mutated afterwards. Every lookup hands out a deep copy, so callers
// can keep what they get without synchronisation.
package chains

import (
	"fmt"
	"time"
)

// ContractKind names a contract binding on a chain ("staking", "deposit", ...).
type ContractKind string

const (
	KindStaking ContractKind = "staking"
	KindDeposit ContractKind = "deposit"
	KindKton    ContractKind = "kton"
)

// Token describes a token's display metadata.
type Token struct {
	Symbol   string `yaml:"symbol" json:"symbol"`
	Decimals int    `yaml:"decimals" json:"decimals"`
	// Address is empty for the native token.
	Address string `yaml:"address,omitempty" json:"address,omitempty"`
}

// Endpoint is one RPC endpoint of a chain. Endpoints are tried in order.
type Endpoint struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// Contract binds an on-chain address to an ABI reference such as "staking.json".
type Contract struct {
	Address string `yaml:"address" json:"address"`
	ABI     string `yaml:"abi" json:"abi"`
}

// ChainConfig is the immutable descriptor of one supported network.
type ChainConfig struct {
	ChainID      uint64                    `yaml:"chainId" json:"chainId"`
	Name         string                    `yaml:"name" json:"name"`
	Native       Token                     `yaml:"native" json:"native"`
	Secondary    *Token                    `yaml:"secondary,omitempty" json:"secondary,omitempty"`
	RPC          []Endpoint                `yaml:"rpc" json:"rpc"`
	Indexer      string                    `yaml:"indexer,omitempty" json:"indexer,omitempty"`
	Contracts    map[ContractKind]Contract `yaml:"contracts" json:"contracts"`
	BlockTimeSec int                       `yaml:"blockTime" json:"blockTime"`
	Explorer     string                    `yaml:"explorer,omitempty" json:"explorer,omitempty"`
	TestNet      bool                      `yaml:"testNet,omitempty" json:"testNet,omitempty"`
	Disabled     bool                      `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// BlockTime returns the expected block interval.
func (c ChainConfig) BlockTime() time.Duration {
	return time.Duration(c.BlockTimeSec) * time.Second
}

// Contract returns the binding for kind.
func (c ChainConfig) Contract(kind ContractKind) (Contract, bool) {
	ct, ok := c.Contracts[kind]
	return ct, ok
}

// Clone returns a deep copy so the registry's table can't be mutated through it.
func (c ChainConfig) Clone() ChainConfig {
	out := c
	if c.Secondary != nil {
		sec := *c.Secondary
		out.Secondary = &sec
	}
	if c.RPC != nil {
		out.RPC = make([]Endpoint, len(c.RPC))
		copy(out.RPC, c.RPC)
	}
	if c.Contracts != nil {
		out.Contracts = make(map[ContractKind]Contract, len(c.Contracts))
		for k, v := range c.Contracts {
			out.Contracts[k] = v
		}
	}
	return out
}

func (c ChainConfig) validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("chain %q: chainId must be set", c.Name)
	}
	if c.Name == "" {
		return fmt.Errorf("chain %d: name must be set", c.ChainID)
	}
	if c.Native.Decimals < 0 {
		return fmt.Errorf("chain %d: native decimals must be >= 0, got %d", c.ChainID, c.Native.Decimals)
	}
	if c.Secondary != nil && c.Secondary.Decimals < 0 {
		return fmt.Errorf("chain %d: secondary decimals must be >= 0, got %d", c.ChainID, c.Secondary.Decimals)
	}
	for kind, ct := range c.Contracts {
		if ct.ABI == "" {
			return fmt.Errorf("chain %d: contract %s has no abi reference", c.ChainID, kind)
		}
	}
	return nil
}
