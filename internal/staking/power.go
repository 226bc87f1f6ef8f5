// Package staking implements the exact integer arithmetic behind staking
// power, deposit rewards and balance display. Every value is a *big.Int in
// the token's smallest unit; nothing here goes through floating point.
package staking

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrInvalidArgument is returned for negative or otherwise out-of-domain input.
var ErrInvalidArgument = errors.New("invalid argument")

var (
	powerScale   = big.NewInt(1_000_000_000)
	rewardScale  = big.NewInt(1000)
	rewardDivide = big.NewInt(1_970_000)
	ratioNum     = big.NewInt(67)
	ratioDen     = big.NewInt(66)
	two          = big.NewInt(2)
)

// MaxDepositMonths is the longest deposit term offered by the product.
// CalcKtonReward accepts longer terms; callers decide whether to allow them.
const MaxDepositMonths = 36

// StakingToPower converts bonded RING and KTON into power relative to the pools:
//
//	divider = ktonPool == 0 ? 0 : ringPool / ktonPool
//	power   = 1e9 * (ring + kton*divider) / (2 * ringPool)
//
// A non-positive ringPool yields 0.
func StakingToPower(ring, kton, ringPool, ktonPool *big.Int) (*big.Int, error) {
	if sign(ringPool) <= 0 {
		return new(big.Int), nil
	}
	if err := nonNegative("ring", ring); err != nil {
		return nil, err
	}
	if err := nonNegative("kton", kton); err != nil {
		return nil, err
	}
	if err := nonNegative("ktonPool", ktonPool); err != nil {
		return nil, err
	}

	divider := new(big.Int)
	if sign(ktonPool) > 0 {
		divider.Quo(ringPool, ktonPool)
	}

	weighted := new(big.Int).Mul(orZero(kton), divider)
	weighted.Add(weighted, orZero(ring))
	weighted.Mul(weighted, powerScale)

	denom := new(big.Int).Mul(ringPool, two)
	return weighted.Quo(weighted, denom), nil
}

// CalcKtonReward returns the KTON granted for locking depositRing for months.
//
// The curve approximates compounding with the integer ratio 67^m / 66^m.
// Divisions run left to right on exact integers; reordering them changes
// the last digits.
func CalcKtonReward(depositRing *big.Int, months int) (*big.Int, error) {
	if sign(depositRing) == 0 || months == 0 {
		return new(big.Int), nil
	}
	if months < 0 {
		return nil, fmt.Errorf("%w: months must be >= 0, got %d", ErrInvalidArgument, months)
	}
	if err := nonNegative("depositRing", depositRing); err != nil {
		return nil, err
	}

	m := big.NewInt(int64(months))
	n := new(big.Int).Exp(ratioNum, m, nil)
	d := new(big.Int).Exp(ratioDen, m, nil)

	quot, rem := new(big.Int).QuoRem(n, d, new(big.Int))

	// precision * (quot - 1)
	base := new(big.Int).Sub(quot, big.NewInt(1))
	base.Mul(base, rewardScale)

	// precision * rem * depositRing / d / 1_970_000
	frac := new(big.Int).Mul(rewardScale, rem)
	frac.Mul(frac, depositRing)
	frac.Quo(frac, d)
	frac.Quo(frac, rewardDivide)

	return base.Add(base, frac), nil
}

func sign(v *big.Int) int {
	if v == nil {
		return 0
	}
	return v.Sign()
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func nonNegative(name string, v *big.Int) error {
	if sign(v) < 0 {
		return fmt.Errorf("%w: %s must be >= 0, got %s", ErrInvalidArgument, name, v.String())
	}
	return nil
}
