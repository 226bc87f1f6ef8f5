package chains

import (
	"errors"
	"fmt"
)

// ErrUnknownChain is returned when a chain id is not in the registry
// (or is registered but disabled).
var ErrUnknownChain = errors.New("unknown chain")

// Registry is the read-only table of chain configs. It is safe for
// concurrent use without locking because nothing mutates it after New.
type Registry struct {
	chains []ChainConfig
	byID   map[uint64]int
}

// New builds a registry from cfgs, keeping their order.
func New(cfgs []ChainConfig) (*Registry, error) {
	r := &Registry{
		chains: make([]ChainConfig, 0, len(cfgs)),
		byID:   make(map[uint64]int, len(cfgs)),
	}
	for _, c := range cfgs {
		if err := c.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[c.ChainID]; dup {
			return nil, fmt.Errorf("duplicate chain id %d (%s)", c.ChainID, c.Name)
		}
		r.byID[c.ChainID] = len(r.chains)
		r.chains = append(r.chains, c.Clone())
	}
	return r, nil
}

// List returns the selectable chains in table order. Disabled entries are skipped.
func (r *Registry) List() []ChainConfig {
	out := make([]ChainConfig, 0, len(r.chains))
	for _, c := range r.chains {
		if c.Disabled {
			continue
		}
		out = append(out, c.Clone())
	}
	return out
}

// All returns every chain in table order, including disabled ones.
func (r *Registry) All() []ChainConfig {
	out := make([]ChainConfig, len(r.chains))
	for i, c := range r.chains {
		out[i] = c.Clone()
	}
	return out
}

// Resolve returns the config for chainID.
func (r *Registry) Resolve(chainID uint64) (ChainConfig, error) {
	i, ok := r.byID[chainID]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	c := r.chains[i]
	if c.Disabled {
		return ChainConfig{}, fmt.Errorf("%w: %d (%s is disabled)", ErrUnknownChain, chainID, c.Name)
	}
	return c.Clone(), nil
}

// IDs returns the ids of the selectable chains, in order.
func (r *Registry) IDs() []uint64 {
	ids := make([]uint64, 0, len(r.chains))
	for _, c := range r.chains {
		if !c.Disabled {
			ids = append(ids, c.ChainID)
		}
	}
	return ids
}
