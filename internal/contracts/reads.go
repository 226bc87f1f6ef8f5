package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/clawinfra/stakeclaw/internal/chains"
)

// StakingPools returns the total bonded native and secondary amounts.
func (s *ClientSet) StakingPools(ctx context.Context) (ring, kton *big.Int, err error) {
	c, err := s.client(chains.KindStaking)
	if err != nil {
		return nil, nil, err
	}
	if ring, err = c.callBig(ctx, "ringPool"); err != nil {
		return nil, nil, err
	}
	if kton, err = c.callBig(ctx, "ktonPool"); err != nil {
		return nil, nil, err
	}
	return ring, kton, nil
}

// Ledger returns the amounts account has bonded.
func (s *ClientSet) Ledger(ctx context.Context, account string) (ring, kton *big.Int, err error) {
	c, err := s.client(chains.KindStaking)
	if err != nil {
		return nil, nil, err
	}
	addr, err := ParseAddress(account)
	if err != nil {
		return nil, nil, err
	}
	out, err := c.Call(ctx, "ledgers", addr)
	if err != nil {
		return nil, nil, err
	}
	if ring, err = bigAt(out, 0); err != nil {
		return nil, nil, fmt.Errorf("staking.ledgers: %w", err)
	}
	if kton, err = bigAt(out, 1); err != nil {
		return nil, nil, fmt.Errorf("staking.ledgers: %w", err)
	}
	return ring, kton, nil
}

// DepositsOf returns the ids of account's time-locked deposits.
func (s *ClientSet) DepositsOf(ctx context.Context, account string) ([]*big.Int, error) {
	c, err := s.client(chains.KindDeposit)
	if err != nil {
		return nil, err
	}
	addr, err := ParseAddress(account)
	if err != nil {
		return nil, err
	}
	out, err := c.Call(ctx, "depositsOf", addr)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("deposit.depositsOf: empty result")
	}
	ids, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("deposit.depositsOf: unexpected %T", out[0])
	}
	return ids, nil
}

// KtonBalance returns account's secondary token balance.
func (s *ClientSet) KtonBalance(ctx context.Context, account string) (*big.Int, error) {
	c, err := s.client(chains.KindKton)
	if err != nil {
		return nil, err
	}
	addr, err := ParseAddress(account)
	if err != nil {
		return nil, err
	}
	return c.callBig(ctx, "balanceOf", addr)
}

// ParseAddress validates a 0x-prefixed 20-byte hex address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

func (c *Client) callBig(ctx context.Context, method string, args ...any) (*big.Int, error) {
	out, err := c.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, err := bigAt(out, 0)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", c.kind, method, err)
	}
	return v, nil
}

func bigAt(values []any, i int) (*big.Int, error) {
	if i >= len(values) {
		return nil, fmt.Errorf("missing output %d", i)
	}
	v, ok := values[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("output %d: unexpected %T", i, values[i])
	}
	return v, nil
}
