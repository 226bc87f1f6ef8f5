package contracts

import (
	"errors"
	"fmt"

	"github.com/clawinfra/stakeclaw/internal/chains"
)

var (
	// ErrInvalidAddress is returned for a contract or account that is not a
	// 20-byte hex address.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrNoContract is returned when a chain has no binding of the requested kind.
	ErrNoContract = errors.New("contract not bound")
)

// AbiResolutionError reports a contract binding whose ABI could not be
// found or parsed. The chain is unusable until its table is fixed.
type AbiResolutionError struct {
	Chain uint64
	Kind  chains.ContractKind
	Ref   string
	Err   error
}

func (e *AbiResolutionError) Error() string {
	return fmt.Sprintf("chain %d: resolve %s abi %q: %v", e.Chain, e.Kind, e.Ref, e.Err)
}

func (e *AbiResolutionError) Unwrap() error { return e.Err }
